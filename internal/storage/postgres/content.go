package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"autoposter/internal/domain"
)

type ContentStore struct {
	db *sqlx.DB
}

func NewContentStore(db *sqlx.DB) *ContentStore {
	return &ContentStore{db: db}
}

func (s *ContentStore) Create(ctx context.Context, item *domain.ContentItem) (int64, error) {
	query := `
		INSERT INTO content_items (
			user_id, automation_id, social_account_id, content, hashtags,
			media_urls, scheduled_for, status, retry_count
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, 0
		)
		RETURNING id`

	var id int64
	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		item.UserID,
		item.AutomationID,
		item.SocialAccountID,
		item.Content,
		pq.Array(item.Hashtags),
		pq.Array(item.MediaURLs),
		item.ScheduledFor,
		domain.ContentScheduled,
	).Scan(&id)
	if err != nil {
		return 0, err
	}

	item.ID = id
	item.Status = domain.ContentScheduled
	return id, nil
}

// ClaimNext claims the oldest due item of any account that has nothing
// currently posting, so each account's queue drains strictly in order
// while different accounts post in parallel. SKIP LOCKED keeps
// concurrent workers from blocking on each other's candidate rows.
func (s *ContentStore) ClaimNext(ctx context.Context, workerID string, now time.Time, lease time.Duration) (*domain.ContentItem, error) {
	query := `
		UPDATE content_items SET
			status = $1,
			claimed_by = $2,
			claim_expires_at = $3
		WHERE id = (
			SELECT c.id FROM content_items c
			WHERE c.status = $4
			  AND c.scheduled_for <= $5
			  AND NOT EXISTS (
				SELECT 1 FROM content_items p
				WHERE p.social_account_id = c.social_account_id
				  AND p.status = $1
			  )
			  AND c.scheduled_for = (
				SELECT MIN(e.scheduled_for) FROM content_items e
				WHERE e.social_account_id = c.social_account_id
				  AND e.status = $4
				  AND e.scheduled_for <= $5
			  )
			ORDER BY c.scheduled_for, c.id
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING id, user_id, automation_id, social_account_id, content,
			hashtags, media_urls, scheduled_for, status, retry_count,
			error_message, claimed_by, claim_expires_at, created_at`

	row := s.db.QueryRowxContext(ctx, query,
		domain.ContentPosting,
		workerID,
		now.Add(lease),
		domain.ContentScheduled,
		now,
	)

	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (s *ContentStore) MarkPosted(ctx context.Context, id int64, platformPostID string, postedAt time.Time) error {
	return s.transition(ctx, `
		UPDATE content_items SET
			status = $1,
			platform_post_id = $2,
			posted_at = $3,
			error_message = NULL,
			claimed_by = NULL,
			claim_expires_at = NULL
		WHERE id = $4 AND status = $5`,
		domain.ContentPosted, platformPostID, postedAt, id, domain.ContentPosting)
}

func (s *ContentStore) Reschedule(ctx context.Context, id int64, at time.Time, errMsg string) error {
	return s.transition(ctx, `
		UPDATE content_items SET
			status = $1,
			scheduled_for = $2,
			error_message = $3,
			retry_count = retry_count + 1,
			claimed_by = NULL,
			claim_expires_at = NULL
		WHERE id = $4 AND status = $5`,
		domain.ContentScheduled, at, errMsg, id, domain.ContentPosting)
}

func (s *ContentStore) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	return s.transition(ctx, `
		UPDATE content_items SET
			status = $1,
			error_message = $2,
			claimed_by = NULL,
			claim_expires_at = NULL
		WHERE id = $3 AND status = $4`,
		domain.ContentFailed, errMsg, id, domain.ContentPosting)
}

func (s *ContentStore) transition(ctx context.Context, query string, args ...any) error {
	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, query, args...)
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

// Cancel cancels a scheduled item. An item already picked up by a
// worker cannot be cancelled (the publish completes) and a posted or
// failed item is final; cancelling an already cancelled item is a
// no-op.
func (s *ContentStore) Cancel(ctx context.Context, id int64) error {
	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, `
		UPDATE content_items SET status = $1
		WHERE id = $2 AND status = $3`,
		domain.ContentCancelled, id, domain.ContentScheduled)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	var status domain.ContentStatus
	err = sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &status,
		"SELECT status FROM content_items WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return sql.ErrNoRows
	}
	if err != nil {
		return err
	}
	switch status {
	case domain.ContentPosting:
		return domain.ErrAlreadyPosting
	case domain.ContentCancelled:
		return nil
	default:
		return domain.ErrItemFinal
	}
}

func (s *ContentStore) CancelByAutomation(ctx context.Context, automationID int64) (int64, error) {
	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, `
		UPDATE content_items SET status = $1
		WHERE automation_id = $2 AND status = $3`,
		domain.ContentCancelled, automationID, domain.ContentScheduled)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ReleaseExpired returns items whose posting lease lapsed back to
// scheduled. Called periodically by the worker pool's reaper.
func (s *ContentStore) ReleaseExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE content_items SET
			status = $1,
			claimed_by = NULL,
			claim_expires_at = NULL
		WHERE status = $2 AND claim_expires_at < $3`,
		domain.ContentScheduled, domain.ContentPosting, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *ContentStore) CountByStatus(ctx context.Context) (map[domain.ContentStatus]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT status, COUNT(*) FROM content_items GROUP BY status")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.ContentStatus]int64)
	for rows.Next() {
		var status domain.ContentStatus
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (s *ContentStore) GetByID(ctx context.Context, id int64) (*domain.ContentItem, error) {
	row := s.db.QueryRowxContext(ctx, `
		SELECT id, user_id, automation_id, social_account_id, content,
			hashtags, media_urls, scheduled_for, status, retry_count,
			error_message, claimed_by, claim_expires_at, created_at
		FROM content_items WHERE id = $1`, id)
	return scanItem(row)
}

func scanItem(row *sqlx.Row) (*domain.ContentItem, error) {
	var item domain.ContentItem
	var hashtags, mediaURLs pq.StringArray

	err := row.Scan(
		&item.ID,
		&item.UserID,
		&item.AutomationID,
		&item.SocialAccountID,
		&item.Content,
		&hashtags,
		&mediaURLs,
		&item.ScheduledFor,
		&item.Status,
		&item.RetryCount,
		&item.ErrorMessage,
		&item.ClaimedBy,
		&item.ClaimExpiresAt,
		&item.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	item.Hashtags = hashtags
	item.MediaURLs = mediaURLs
	return &item, nil
}
