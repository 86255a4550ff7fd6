// Package storage implementa el journal de auditoría sobre SQLite.
// Es append-only: la sesión escribe cierres y puntos de capital, y el
// arranque nunca lee estado desde aquí.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/alf-alejandro/agente-clima/internal/domain"
	"github.com/alf-alejandro/agente-clima/internal/ports"
)

const schema = `
CREATE TABLE IF NOT EXISTS closed_records (
	id           TEXT PRIMARY KEY,
	condition_id TEXT NOT NULL,
	city         TEXT NOT NULL,
	question     TEXT NOT NULL,
	status       TEXT NOT NULL,
	entry_no     REAL NOT NULL,
	exit_no      REAL NOT NULL,
	allocated    REAL NOT NULL,
	pnl          REAL NOT NULL,
	reason       TEXT NOT NULL,
	entry_time   TEXT NOT NULL,
	close_time   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS capital_history (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	time    TEXT NOT NULL,
	capital REAL NOT NULL
);
`

// SQLiteJournal implementa ports.Journal sobre un fichero SQLite.
type SQLiteJournal struct {
	db *sql.DB
}

var _ ports.Journal = (*SQLiteJournal)(nil)

// NewSQLiteJournal abre (o crea) la base en dsn y aplica el esquema.
func NewSQLiteJournal(dsn string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteJournal: %w", err)
	}
	// modernc/sqlite no soporta escritores concurrentes.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteJournal: %w", err)
	}
	return &SQLiteJournal{db: db}, nil
}

// RecordClose inserta un registro de cierre (terminal o parcial).
func (j *SQLiteJournal) RecordClose(ctx context.Context, rec domain.ClosedRecord) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO closed_records
			(id, condition_id, city, question, status, entry_no, exit_no,
			 allocated, pnl, reason, entry_time, close_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ConditionID, rec.City, rec.Question, string(rec.Status),
		rec.EntryNo, rec.ExitNo, rec.Allocated, rec.PnL, rec.Reason,
		rec.EntryTime.UTC().Format(time.RFC3339Nano),
		rec.CloseTime.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("storage.RecordClose: %w", err)
	}
	return nil
}

// RecordCapital inserta un punto de la serie de capital.
func (j *SQLiteJournal) RecordCapital(ctx context.Context, point domain.CapitalPoint) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO capital_history (time, capital) VALUES (?, ?)`,
		point.Time.UTC().Format(time.RFC3339Nano), point.Capital,
	)
	if err != nil {
		return fmt.Errorf("storage.RecordCapital: %w", err)
	}
	return nil
}

// ClosedRecords devuelve todos los cierres persistidos, en orden de cierre.
func (j *SQLiteJournal) ClosedRecords(ctx context.Context) ([]domain.ClosedRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, condition_id, city, question, status, entry_no, exit_no,
		       allocated, pnl, reason, entry_time, close_time
		FROM closed_records
		ORDER BY close_time`)
	if err != nil {
		return nil, fmt.Errorf("storage.ClosedRecords: %w", err)
	}
	defer rows.Close()

	var records []domain.ClosedRecord
	for rows.Next() {
		var rec domain.ClosedRecord
		var status, entryTime, closeTime string
		if err := rows.Scan(
			&rec.ID, &rec.ConditionID, &rec.City, &rec.Question, &status,
			&rec.EntryNo, &rec.ExitNo, &rec.Allocated, &rec.PnL, &rec.Reason,
			&entryTime, &closeTime,
		); err != nil {
			return nil, fmt.Errorf("storage.ClosedRecords: %w", err)
		}
		rec.Status = domain.PositionStatus(status)
		rec.EntryTime, _ = time.Parse(time.RFC3339Nano, entryTime)
		rec.CloseTime, _ = time.Parse(time.RFC3339Nano, closeTime)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage.ClosedRecords: %w", err)
	}
	return records, nil
}

// Close cierra la conexión.
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}
