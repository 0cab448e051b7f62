package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"autoposter/internal/domain"
)

type AutomationStore struct {
	db *sqlx.DB
}

func NewAutomationStore(db *sqlx.DB) *AutomationStore {
	return &AutomationStore{db: db}
}

const automationColumns = `
	id, user_id, name, description, platforms, content_settings,
	posting_schedule, ai_settings, hashtag_settings, status, last_run,
	next_run, run_count, error_count, last_error, version, created_at,
	updated_at`

func (s *AutomationStore) ListDue(ctx context.Context, now time.Time) ([]domain.Automation, error) {
	query := `
		SELECT ` + automationColumns + `
		FROM automations
		WHERE status = $1 AND (next_run IS NULL OR next_run <= $2)
		ORDER BY next_run NULLS FIRST, id`

	rows, err := s.db.QueryxContext(ctx, query, domain.AutomationActive, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var automations []domain.Automation
	for rows.Next() {
		a, err := scanAutomation(rows)
		if err != nil {
			return nil, err
		}
		automations = append(automations, *a)
	}
	return automations, rows.Err()
}

func (s *AutomationStore) GetByID(ctx context.Context, id int64) (*domain.Automation, error) {
	row := s.db.QueryRowxContext(ctx,
		`SELECT `+automationColumns+` FROM automations WHERE id = $1`, id)
	return scanAutomation(row)
}

// MarkRun records a successful run. Compare-and-set on version: a
// concurrent user edit bumps version, and the stale update silently
// loses (the next tick re-evaluates the edited schedule).
func (s *AutomationStore) MarkRun(ctx context.Context, id, version int64, lastRun, nextRun time.Time) error {
	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, `
		UPDATE automations SET
			last_run = $1,
			next_run = $2,
			run_count = run_count + 1,
			error_count = 0,
			last_error = NULL,
			version = version + 1,
			updated_at = NOW()
		WHERE id = $3 AND version = $4`,
		lastRun, nextRun, id, version)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrClaimConflict
	}
	return nil
}

// RecordError increments the consecutive failure count; hitting the
// threshold flips the automation to error status in the same statement,
// freezing next_run until a user resets it.
func (s *AutomationStore) RecordError(ctx context.Context, id int64, msg string, threshold int) (bool, error) {
	query := `
		UPDATE automations SET
			error_count = error_count + 1,
			last_error = $1,
			status = CASE
				WHEN error_count + 1 >= $2 AND status = $3 THEN $4
				ELSE status
			END,
			updated_at = NOW()
		WHERE id = $5
		RETURNING status`

	var status domain.AutomationStatus
	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		msg, threshold, domain.AutomationActive, domain.AutomationError, id,
	).Scan(&status)
	if err != nil {
		return false, err
	}
	return status == domain.AutomationError, nil
}

// Reset is the user-initiated recovery from error status.
func (s *AutomationStore) Reset(ctx context.Context, id int64, nextRun time.Time) error {
	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, `
		UPDATE automations SET
			status = $1,
			error_count = 0,
			last_error = NULL,
			next_run = $2,
			version = version + 1,
			updated_at = NOW()
		WHERE id = $3 AND status = $4`,
		domain.AutomationActive, nextRun, id, domain.AutomationError)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("automation %d is not in error status", id)
	}
	return nil
}

func (s *AutomationStore) Delete(ctx context.Context, id int64) error {
	_, err := GetExecutor(ctx, s.db).ExecContext(ctx,
		"DELETE FROM automations WHERE id = $1", id)
	return err
}

func (s *AutomationStore) CountDue(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM automations
		WHERE status = $1 AND (next_run IS NULL OR next_run <= $2)`,
		domain.AutomationActive, now,
	).Scan(&n)
	return n, err
}

// rowScanner covers both *sqlx.Row and *sqlx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAutomation(row rowScanner) (*domain.Automation, error) {
	var a domain.Automation
	var platforms pq.StringArray
	var contentSettings, postingSchedule []byte
	var aiSettings, hashtagSettings []byte

	err := row.Scan(
		&a.ID,
		&a.UserID,
		&a.Name,
		&a.Description,
		&platforms,
		&contentSettings,
		&postingSchedule,
		&aiSettings,
		&hashtagSettings,
		&a.Status,
		&a.LastRun,
		&a.NextRun,
		&a.RunCount,
		&a.ErrorCount,
		&a.LastError,
		&a.Version,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	for _, p := range platforms {
		a.Platforms = append(a.Platforms, domain.Platform(p))
	}
	if err := json.Unmarshal(contentSettings, &a.ContentSettings); err != nil {
		return nil, fmt.Errorf("decode content_settings for automation %d: %w", a.ID, err)
	}
	if err := json.Unmarshal(postingSchedule, &a.PostingSchedule); err != nil {
		return nil, fmt.Errorf("decode posting_schedule for automation %d: %w", a.ID, err)
	}
	if aiSettings != nil {
		if err := json.Unmarshal(aiSettings, &a.AISettings); err != nil {
			return nil, fmt.Errorf("decode ai_settings for automation %d: %w", a.ID, err)
		}
	}
	if hashtagSettings != nil {
		if err := json.Unmarshal(hashtagSettings, &a.HashtagSettings); err != nil {
			return nil, fmt.Errorf("decode hashtag_settings for automation %d: %w", a.ID, err)
		}
	}

	return &a, nil
}
