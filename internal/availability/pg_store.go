package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func scanWindow(row pgx.Row) (*Window, error) {
	var w Window
	var day int

	err := row.Scan(
		&w.ID,
		&w.DoctorID,
		&day,
		&w.StartTime,
		&w.EndTime,
		&w.IsActive,
		&w.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	w.DayOfWeek = time.Weekday(day)
	return &w, nil
}

func collectWindows(rows pgx.Rows) ([]Window, error) {
	defer rows.Close()

	var result []Window
	for rows.Next() {
		w, err := scanWindow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *w)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (s *PgStore) GetActiveWindows(ctx context.Context, doctorID uuid.UUID, day time.Weekday) ([]Window, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, doctor_id, day_of_week, start_time, end_time, is_active, created_at
		FROM availability_windows
		WHERE doctor_id = $1
		  AND day_of_week = $2
		  AND is_active
		ORDER BY start_time
	`, doctorID, int(day))
	if err != nil {
		return nil, fmt.Errorf("query active windows: %w", err)
	}
	return collectWindows(rows)
}

func (s *PgStore) ListActiveWindows(ctx context.Context, doctorID uuid.UUID) ([]Window, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, doctor_id, day_of_week, start_time, end_time, is_active, created_at
		FROM availability_windows
		WHERE doctor_id = $1
		  AND is_active
		ORDER BY day_of_week, start_time
	`, doctorID)
	if err != nil {
		return nil, fmt.Errorf("query weekly windows: %w", err)
	}
	return collectWindows(rows)
}

func (s *PgStore) ReplaceWeeklySchedule(ctx context.Context, schedule WeeklySchedule) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin replace schedule: %w", err)
	}
	defer tx.Rollback(ctx)

	// Concurrent replacements for the same doctor queue up behind this row lock.
	var locked uuid.UUID
	err = tx.QueryRow(ctx, `SELECT id FROM doctors WHERE id = $1 FOR UPDATE`, schedule.DoctorID).Scan(&locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrDoctorNotFound
		}
		return fmt.Errorf("lock doctor: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE availability_windows
		SET is_active = false,
		    updated_at = now()
		WHERE doctor_id = $1
		  AND is_active
	`, schedule.DoctorID); err != nil {
		return fmt.Errorf("deactivate windows: %w", err)
	}

	if len(schedule.Windows) > 0 {
		batch := &pgx.Batch{}
		for _, w := range schedule.Windows {
			batch.Queue(`
				INSERT INTO availability_windows (id, doctor_id, day_of_week, start_time, end_time, is_active, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, true, now(), now())
			`, uuid.New(), schedule.DoctorID, int(w.DayOfWeek), w.StartTime, w.EndTime)
		}

		br := tx.SendBatch(ctx, batch)
		for range schedule.Windows {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return fmt.Errorf("insert window: %w", err)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("close window batch: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit replace schedule: %w", err)
	}

	return nil
}
