// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.4
//

package gopsl

import (
	"database/sql"
	"fmt"
	"math"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS results (
	id         INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
	session_id TEXT    NOT NULL,
	seq        INTEGER NOT NULL,
	mode       TEXT    NOT NULL,
	week       INTEGER NOT NULL,
	tow        REAL    NOT NULL,
	x          REAL,
	y          REAL,
	z          REAL,
	bias       REAL,
	status     TEXT    NOT NULL,
	err        TEXT    NOT NULL,
	sats       TEXT    NOT NULL,
	origin     TEXT    NOT NULL,
	iter       INTEGER NOT NULL,
	elapsed_us INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS results_session ON results (session_id, seq);
`

// One row of the results table. Unsolved coordinates are NULL.
type ResultRow struct {
	ID        int64           `db:"id"`
	SessionID string          `db:"session_id"`
	Seq       int64           `db:"seq"`
	Mode      string          `db:"mode"`
	Week      int             `db:"week"`
	Tow       float64         `db:"tow"`
	X         sql.NullFloat64 `db:"x"`
	Y         sql.NullFloat64 `db:"y"`
	Z         sql.NullFloat64 `db:"z"`
	Bias      sql.NullFloat64 `db:"bias"`
	Status    string          `db:"status"`
	Err       string          `db:"err"`
	Sats      string          `db:"sats"`
	Origin    string          `db:"origin"`
	Iter      int             `db:"iter"`
	ElapsedUs int64           `db:"elapsed_us"`
}

// SqliteSink stores results in a sqlite database
type SqliteSink struct {
	db *sqlx.DB
}

// NewSqliteSink opens (or creates) the database at path
func NewSqliteSink(path string) (*SqliteSink, error) {
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("Open() failed, err=%w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("Exec() failed, err=%w", err)
	}
	return &SqliteSink{db: db}, nil
}

func nullFloat(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func (p *SqliteSink) WriteResult(r *Result) error {
	row := ResultRow{
		SessionID: r.SessionID,
		Seq:       int64(r.Seq),
		Mode:      r.Mode.String(),
		Week:      r.Time.Week,
		Tow:       r.Time.Sec,
		X:         nullFloat(r.Solution.Pos.X),
		Y:         nullFloat(r.Solution.Pos.Y),
		Z:         nullFloat(r.Solution.Pos.Z),
		Bias:      nullFloat(r.Solution.Bias),
		Status:    r.Status(),
		Sats:      (*PrnVar)(&r.Sats).String(),
		Origin:    string(r.Origin),
		Iter:      r.Iter,
		ElapsedUs: r.Elapsed.Microseconds(),
	}
	if r.Err != nil {
		row.Err = r.Err.Error()
	}
	_, err := p.db.NamedExec(`INSERT INTO results
		(session_id, seq, mode, week, tow, x, y, z, bias, status, err, sats, origin, iter, elapsed_us)
		VALUES
		(:session_id, :seq, :mode, :week, :tow, :x, :y, :z, :bias, :status, :err, :sats, :origin, :iter, :elapsed_us)`, &row)
	if err != nil {
		return fmt.Errorf("NamedExec() failed, err=%w", err)
	}
	return nil
}

// Rows returns the stored results of a session ordered by sequence number
func (p *SqliteSink) Rows(sessionID string) ([]ResultRow, error) {
	rows := []ResultRow{}
	err := p.db.Select(&rows, `SELECT * FROM results WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("Select() failed, err=%w", err)
	}
	return rows, nil
}

// Count of stored results by status
func (p *SqliteSink) CountByStatus() (map[string]int, error) {
	var rows []struct {
		Status string `db:"status"`
		N      int    `db:"n"`
	}
	if err := p.db.Select(&rows, `SELECT status, COUNT(*) AS n FROM results GROUP BY status`); err != nil {
		return nil, fmt.Errorf("Select() failed, err=%w", err)
	}
	m := map[string]int{}
	for _, r := range rows {
		m[r.Status] = r.N
	}
	return m, nil
}

func (p *SqliteSink) Close() error {
	return p.db.Close()
}
