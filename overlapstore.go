package gofootprint

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/pkg/errors"

	_ "modernc.org/sqlite"
)

// overlapstore_schema.sql holds the tables for overlap runs, their records
// and their error ledgers.
//
//go:embed overlapstore_schema.sql
var overlapSchemaSQL string

// OverlapStore persists overlap runs in a sqlite database.
type OverlapStore struct {
	db *sql.DB
}

// OverlapRunInfo summarises a stored run.
type OverlapRunInfo struct {
	RunID       string
	Notes       string
	StartedAt   time.Time
	FinishedAt  time.Time
	RecordCount int
	LedgerCount int
}

// OpenOverlapStore opens (creating if needed) the database at path.
func OpenOverlapStore(path string) (*OverlapStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening overlap store %s", path)
	}
	if _, err := db.Exec(overlapSchemaSQL); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "creating overlap store schema")
	}
	Diagf("overlap store: opened %s", path)
	return &OverlapStore{db: db}, nil
}

// Close closes the database.
func (s *OverlapStore) Close() error {
	return s.db.Close()
}

// OverlapRun is an open run. It implements OverlapSink so a pipelined
// computation can stream straight into the store.
type OverlapRun struct {
	store *OverlapStore
	id    string
	seq   int
}

// ID returns the run identifier.
func (r *OverlapRun) ID() string { return r.id }

// StartRun creates a new run with a generated identifier.
func (s *OverlapStore) StartRun(notes string) (*OverlapRun, error) {
	id := uuid.New().String()
	_, err := s.db.Exec(`INSERT INTO overlap_runs (run_id, notes, started_at) VALUES (?, ?, ?)`,
		id, notes, time.Now().UnixNano())
	if err != nil {
		return nil, errors.Wrap(err, "starting overlap run")
	}
	return &OverlapRun{store: s, id: id}, nil
}

// WriteOverlap stores rec. Records with an empty polygon are skipped.
func (r *OverlapRun) WriteOverlap(rec OverlapRecord) error {
	if isEmpty(rec.Polygon) {
		return nil
	}
	_, err := r.store.db.Exec(`
		INSERT INTO overlap_records (run_id, seq, serials, area, polygon_wkt)
		VALUES (?, ?, ?, ?, ?)`,
		r.id, r.seq, strings.Join(rec.Serials, "\t"), area(rec.Polygon), wkt.MarshalString(rec.Polygon))
	if err != nil {
		return errors.Wrapf(err, "storing overlap record %d of run %s", r.seq, r.id)
	}
	r.seq++
	return nil
}

// Finish stores the ledger and closes the run.
func (r *OverlapRun) Finish(ledger []LedgerEntry) error {
	tx, err := r.store.db.Begin()
	if err != nil {
		return errors.Wrap(err, "beginning ledger transaction")
	}
	defer tx.Rollback()

	for _, e := range ledger {
		serials, err := json.Marshal(e.Serials)
		if err != nil {
			return errors.Wrap(err, "encoding ledger serials")
		}
		polygons, err := json.Marshal(e.Polygons)
		if err != nil {
			return errors.Wrap(err, "encoding ledger polygons")
		}
		_, err = tx.Exec(`
			INSERT INTO overlap_ledger (run_id, kind, serials, polygons, error, description)
			VALUES (?, ?, ?, ?, ?, ?)`,
			r.id, string(e.Kind), string(serials), string(polygons), e.Error, e.Description)
		if err != nil {
			return errors.Wrapf(err, "storing ledger entry for run %s", r.id)
		}
	}

	_, err = tx.Exec(`
		UPDATE overlap_runs SET finished_at = ?, record_count = ?, ledger_count = ?
		WHERE run_id = ?`,
		time.Now().UnixNano(), r.seq, len(ledger), r.id)
	if err != nil {
		return errors.Wrapf(err, "finishing run %s", r.id)
	}
	return errors.Wrap(tx.Commit(), "committing run")
}

// Run returns the summary of a stored run.
func (s *OverlapStore) Run(runID string) (*OverlapRunInfo, error) {
	var (
		info     OverlapRunInfo
		notes    sql.NullString
		started  int64
		finished sql.NullInt64
	)
	err := s.db.QueryRow(`
		SELECT run_id, notes, started_at, finished_at, record_count, ledger_count
		FROM overlap_runs WHERE run_id = ?`, runID).
		Scan(&info.RunID, &notes, &started, &finished, &info.RecordCount, &info.LedgerCount)
	if err != nil {
		return nil, errors.Wrapf(err, "loading run %s", runID)
	}
	info.Notes = notes.String
	info.StartedAt = time.Unix(0, started)
	if finished.Valid {
		info.FinishedAt = time.Unix(0, finished.Int64)
	}
	return &info, nil
}

// Records returns the records of a run in the order they were written.
func (s *OverlapStore) Records(runID string) ([]OverlapRecord, error) {
	rows, err := s.db.Query(`
		SELECT serials, polygon_wkt FROM overlap_records
		WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, errors.Wrapf(err, "querying records of run %s", runID)
	}
	defer rows.Close()

	var out []OverlapRecord
	for rows.Next() {
		var serials, text string
		if err := rows.Scan(&serials, &text); err != nil {
			return nil, errors.Wrap(err, "scanning overlap record")
		}
		mp, err := parseMultiPolygonWKT(text)
		if err != nil {
			return nil, errors.Wrapf(err, "run %s", runID)
		}
		out = append(out, OverlapRecord{Polygon: mp, Serials: strings.Split(serials, "\t")})
	}
	return out, errors.Wrap(rows.Err(), "iterating overlap records")
}

// Ledger returns the stored ledger of a run.
func (s *OverlapStore) Ledger(runID string) ([]LedgerEntry, error) {
	rows, err := s.db.Query(`
		SELECT kind, serials, polygons, error, description FROM overlap_ledger
		WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, errors.Wrapf(err, "querying ledger of run %s", runID)
	}
	defer rows.Close()

	var out []LedgerEntry
	for rows.Next() {
		var (
			e                  LedgerEntry
			kind, ser, polys   string
			errText, descrText sql.NullString
		)
		if err := rows.Scan(&kind, &ser, &polys, &errText, &descrText); err != nil {
			return nil, errors.Wrap(err, "scanning ledger entry")
		}
		if err := json.Unmarshal([]byte(ser), &e.Serials); err != nil {
			return nil, errors.Wrap(err, "decoding ledger serials")
		}
		if err := json.Unmarshal([]byte(polys), &e.Polygons); err != nil {
			return nil, errors.Wrap(err, "decoding ledger polygons")
		}
		e.Kind = LedgerKind(kind)
		e.Error = errText.String
		e.Description = descrText.String
		out = append(out, e)
	}
	return out, errors.Wrap(rows.Err(), "iterating ledger entries")
}
