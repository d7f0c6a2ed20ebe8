/*
Package results keeps training records of finished runs in a SQLite database
*/
package results

import (
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go-ml.dev/pkg/dacredit/fu"
	"go-ml.dev/pkg/dacredit/model"
	"go-ml.dev/pkg/zorros/zorros"
	"golang.org/x/xerrors"
)

// ErrNotFound means no run has the requested id
var ErrNotFound = xerrors.New("run not found")

// DefaultFile is the store name inside the go-ml cache
const DefaultFile = "runs.db"

const schema = `
create table if not exists runs (
	id text primary key,
	model text not null,
	config text not null,
	roc real not null,
	seconds real not null,
	stop text not null,
	stopped_at integer not null,
	created integer not null
);
create table if not exists checkpoints (
	run text not null references runs(id),
	n integer not null,
	l_src real, domain_div real, total_div real, copula_distance real,
	target_loss real, roc real,
	primary key (run, n)
);`

/*
Store is a database of training runs
*/
type Store struct {
	db *sql.DB
}

/*
Open opens or creates the store, relative paths are resolved into the go-ml cache
*/
func Open(path string) (*Store, error) {
	path = fu.CachePath(fu.Fnzs(path, DefaultFile))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, zorros.Trace(err)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, zorros.Wrapf(err, "failed to open run store %v: %v", path, err.Error())
	}
	if _, err = db.Exec(schema); err != nil {
		db.Close()
		return nil, zorros.Wrapf(err, "failed to create run store schema: %v", err.Error())
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

/*
Run is a stored training run
*/
type Run struct {
	ID      string
	Config  model.Config
	Record  *model.Record
	Created time.Time
}

/*
Save stores a finished run and returns its id
*/
func (s *Store) Save(cfg model.Config, rec *model.Record) (id string, err error) {
	cj, err := json.Marshal(cfg)
	if err != nil {
		return "", zorros.Trace(err)
	}
	id = uuid.New().String()
	tx, err := s.db.Begin()
	if err != nil {
		return "", zorros.Trace(err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()
	if _, err = tx.Exec(
		`insert into runs (id, model, config, roc, seconds, stop, stopped_at, created) values (?,?,?,?,?,?,?,?)`,
		id, cfg.Model.String(), string(cj), rec.Roc, rec.Time, rec.Stop.String(), rec.StoppedAt, time.Now().Unix()); err != nil {
		return "", zorros.Wrapf(err, "failed to save run: %v", err.Error())
	}
	for n := 0; n < rec.Checkpoints(); n++ {
		if _, err = tx.Exec(
			`insert into checkpoints (run, n, l_src, domain_div, total_div, copula_distance, target_loss, roc) values (?,?,?,?,?,?,?,?)`,
			id, n, rec.LSrc[n], rec.DomainDiv[n], rec.TotalDiv[n], rec.CopulaDistance[n],
			at(rec.TargetLoss, n), at(rec.RocHistory, n)); err != nil {
			return "", zorros.Wrapf(err, "failed to save checkpoint %d: %v", n, err.Error())
		}
	}
	if err = tx.Commit(); err != nil {
		return "", zorros.Trace(err)
	}
	return id, nil
}

func at(a []float64, i int) float64 {
	if i < len(a) {
		return a[i]
	}
	return 0
}

/*
Load reads a run by id
*/
func (s *Store) Load(id string) (*Run, error) {
	var cj, stop string
	var created int64
	rec := &model.Record{}
	err := s.db.QueryRow(`select config, roc, seconds, stop, stopped_at, created from runs where id = ?`, id).
		Scan(&cj, &rec.Roc, &rec.Time, &stop, &rec.StoppedAt, &created)
	if err == sql.ErrNoRows {
		return nil, xerrors.Errorf("%v: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, zorros.Trace(err)
	}
	r := &Run{ID: id, Record: rec, Created: time.Unix(created, 0)}
	if err = json.Unmarshal([]byte(cj), &r.Config); err != nil {
		return nil, zorros.Wrapf(err, "broken config of run %v: %v", id, err.Error())
	}
	if err = rec.Stop.UnmarshalText([]byte(stop)); err != nil {
		return nil, zorros.Trace(err)
	}
	rows, err := s.db.Query(
		`select l_src, domain_div, total_div, copula_distance, target_loss, roc from checkpoints where run = ? order by n`, id)
	if err != nil {
		return nil, zorros.Trace(err)
	}
	defer rows.Close()
	for rows.Next() {
		var l, dd, td, cd, tl, roc float64
		if err = rows.Scan(&l, &dd, &td, &cd, &tl, &roc); err != nil {
			return nil, zorros.Trace(err)
		}
		rec.LSrc = append(rec.LSrc, l)
		rec.DomainDiv = append(rec.DomainDiv, dd)
		rec.TotalDiv = append(rec.TotalDiv, td)
		rec.CopulaDistance = append(rec.CopulaDistance, cd)
		rec.TargetLoss = append(rec.TargetLoss, tl)
		rec.RocHistory = append(rec.RocHistory, roc)
	}
	if err = rows.Err(); err != nil {
		return nil, zorros.Trace(err)
	}
	return r, nil
}

/*
Best returns id and ROC-AUC of the best stored run of the model
*/
func (s *Store) Best(kind model.Kind) (id string, roc float64, err error) {
	err = s.db.QueryRow(`select id, roc from runs where model = ? order by roc desc, created desc limit 1`, kind.String()).
		Scan(&id, &roc)
	if err == sql.ErrNoRows {
		return "", 0, xerrors.Errorf("no %v runs: %w", kind, ErrNotFound)
	}
	if err != nil {
		err = zorros.Trace(err)
	}
	return
}
