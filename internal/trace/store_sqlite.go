package trace

import (
	"database/sql"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteSink mirrors the journal into a SQLite database (pure Go driver) so
// it survives the process and can be inspected with sigiltrace.
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink opens or creates the journal database at path.
func NewSQLiteSink(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// WAL keeps readers (sigiltrace) from blocking the recording process.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	s := &SQLiteSink{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteSink) init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS transitions (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		kind      TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		name      TEXT NOT NULL DEFAULT '',
		from_st   TEXT NOT NULL DEFAULT '',
		to_st     TEXT NOT NULL,
		reason    TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_transitions_entity ON transitions(entity_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record implements Recorder. Journal writes are best-effort: a full disk
// must not take the scheduler down with it.
func (s *SQLiteSink) Record(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	_, _ = s.db.Exec(
		`INSERT INTO transitions (timestamp, kind, entity_id, name, from_st, to_st, reason)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.Time.UTC().Format(time.RFC3339Nano),
		ev.Kind, ev.ID, ev.Name, ev.From, ev.To, ev.Reason,
	)
}

// Events returns every recorded transition, oldest first.
func (s *SQLiteSink) Events() ([]Event, error) {
	rows, err := s.db.Query(
		`SELECT timestamp, kind, entity_id, name, from_st, to_st, reason
		 FROM transitions ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var ev Event
		var ts string
		if err := rows.Scan(&ts, &ev.Kind, &ev.ID, &ev.Name, &ev.From, &ev.To, &ev.Reason); err != nil {
			return nil, err
		}
		if t, perr := time.Parse(time.RFC3339Nano, ts); perr == nil {
			ev.Time = t
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
