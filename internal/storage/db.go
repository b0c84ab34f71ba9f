package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/cptspacemanspiff/battery-stats/internal/collector"
	"github.com/cptspacemanspiff/battery-stats/internal/stats"
)

const schema = `
CREATE TABLE IF NOT EXISTS compute_passes (
	id TEXT PRIMARY KEY,
	timestamp INTEGER NOT NULL,
	on_battery INTEGER NOT NULL,
	total_mah REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_passes_ts ON compute_passes(timestamp);

CREATE TABLE IF NOT EXISTS pass_records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	pass_id TEXT NOT NULL,
	timestamp INTEGER NOT NULL,
	consumption_type INTEGER NOT NULL,
	uid INTEGER NOT NULL,
	user_id INTEGER NOT NULL,
	power_mah REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_records_pass ON pass_records(pass_id);

CREATE TABLE IF NOT EXISTS state_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp INTEGER NOT NULL,
	cause TEXT NOT NULL,
	state TEXT NOT NULL,
	level INTEGER NOT NULL,
	uid INTEGER NOT NULL,
	elapsed_ms INTEGER NOT NULL,
	count INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_state_events_ts ON state_events(timestamp);
`

// DB wraps a SQLite database holding compute pass history.
type DB struct {
	db *sql.DB
}

// Open opens or creates the SQLite database at the given path.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &DB{db: db}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// InsertPass stores a pass and its records in a single transaction.
func (d *DB) InsertPass(p stats.Pass) error {
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	ts := p.Timestamp.Unix()
	onBattery := 0
	if p.OnBattery {
		onBattery = 1
	}
	if _, err := tx.Exec(
		"INSERT INTO compute_passes (id, timestamp, on_battery, total_mah) VALUES (?, ?, ?, ?)",
		p.ID, ts, onBattery, p.TotalMah,
	); err != nil {
		tx.Rollback()
		return fmt.Errorf("insert pass: %w", err)
	}
	stmt, err := tx.Prepare("INSERT INTO pass_records (pass_id, timestamp, consumption_type, uid, user_id, power_mah) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, r := range p.Records {
		if _, err := stmt.Exec(p.ID, ts, int32(r.Type), r.UID, r.UserID, r.PowerMah); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert record: %w", err)
		}
	}
	return tx.Commit()
}

// LatestPass returns the most recent pass with its records.
func (d *DB) LatestPass() (*stats.Pass, error) {
	row := d.db.QueryRow("SELECT id, timestamp, on_battery, total_mah FROM compute_passes ORDER BY timestamp DESC, rowid DESC LIMIT 1")
	p, err := scanPass(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if p.Records, err = d.RecordsForPass(p.ID); err != nil {
		return nil, err
	}
	return &p, nil
}

// PassesInRange returns passes within the given time range, oldest first,
// each with its records.
func (d *DB) PassesInRange(from, to int64) ([]stats.Pass, error) {
	rows, err := d.db.Query(
		"SELECT id, timestamp, on_battery, total_mah FROM compute_passes WHERE timestamp >= ? AND timestamp <= ? ORDER BY timestamp, rowid",
		from, to,
	)
	if err != nil {
		return nil, err
	}
	var passes []stats.Pass
	for rows.Next() {
		p, err := scanPass(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		passes = append(passes, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range passes {
		if passes[i].Records, err = d.RecordsForPass(passes[i].ID); err != nil {
			return nil, err
		}
	}
	return passes, nil
}

// RecordsForPass returns the records of a pass in insertion order.
func (d *DB) RecordsForPass(id string) ([]stats.Info, error) {
	rows, err := d.db.Query(
		"SELECT consumption_type, uid, user_id, power_mah FROM pass_records WHERE pass_id = ? ORDER BY id",
		id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []stats.Info
	for rows.Next() {
		var r stats.Info
		var kind int32
		if err := rows.Scan(&kind, &r.UID, &r.UserID, &r.PowerMah); err != nil {
			return nil, err
		}
		r.Type = stats.ConsumptionType(kind)
		records = append(records, r)
	}
	return records, rows.Err()
}

// AppHistory returns the power of uid across passes in the given range.
func (d *DB) AppHistory(uid int32, from, to int64) ([]collector.PowerPoint, error) {
	rows, err := d.db.Query(
		"SELECT timestamp, power_mah FROM pass_records WHERE consumption_type = ? AND uid = ? AND timestamp >= ? AND timestamp <= ? ORDER BY timestamp, id",
		int32(stats.ConsumptionApp), uid, from, to,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var points []collector.PowerPoint
	for rows.Next() {
		var pt collector.PowerPoint
		if err := rows.Scan(&pt.Timestamp, &pt.PowerMah); err != nil {
			return nil, err
		}
		points = append(points, pt)
	}
	return points, rows.Err()
}

// InsertEvents batch-inserts dispatched events in a single transaction.
func (d *DB) InsertEvents(events []collector.Event) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare("INSERT INTO state_events (timestamp, cause, state, level, uid, elapsed_ms, count) VALUES (?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, e := range events {
		state := ""
		if !e.Traffic {
			state = e.State.String()
		}
		if _, err := stmt.Exec(e.Timestamp, e.Cause.String(), state, e.Level, e.UID, e.ElapsedMs, e.Count); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// EventsInRange returns recorded events within the given time range.
func (d *DB) EventsInRange(from, to int64) ([]collector.Event, error) {
	rows, err := d.db.Query(
		"SELECT timestamp, cause, state, level, uid, elapsed_ms, count FROM state_events WHERE timestamp >= ? AND timestamp <= ? ORDER BY timestamp, id",
		from, to,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var events []collector.Event
	for rows.Next() {
		var e collector.Event
		var cause, state string
		if err := rows.Scan(&e.Timestamp, &cause, &state, &e.Level, &e.UID, &e.ElapsedMs, &e.Count); err != nil {
			return nil, err
		}
		e.Cause, _ = stats.ParseCause(cause)
		if state == "" {
			e.Traffic = true
			e.State = stats.StateInvalid
		} else {
			e.State, _ = stats.ParseState(state)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPass(row rowScanner) (stats.Pass, error) {
	var p stats.Pass
	var ts int64
	var onBattery int
	if err := row.Scan(&p.ID, &ts, &onBattery, &p.TotalMah); err != nil {
		return stats.Pass{}, err
	}
	p.Timestamp = time.Unix(ts, 0)
	p.OnBattery = onBattery != 0
	return p, nil
}
