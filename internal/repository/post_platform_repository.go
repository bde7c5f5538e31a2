package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/postmux/postmux/internal/models"
)

type PostPlatformRepository interface {
	Create(ctx context.Context, tx *sql.Tx, pp *models.PostPlatform) (int64, error)
	ListByPostID(ctx context.Context, postID int64) ([]*models.PostPlatform, error)
	MarkPublished(ctx context.Context, id int64, externalID string) error
	MarkFailed(ctx context.Context, id int64, errorMessage string) error
}

type postPlatformRepository struct {
	db *sql.DB
}

func NewPostPlatformRepository(db *sql.DB) PostPlatformRepository {
	return &postPlatformRepository{db: db}
}

func (r *postPlatformRepository) Create(ctx context.Context, tx *sql.Tx, pp *models.PostPlatform) (int64, error) {
	var id int64
	var err error

	query := `
		INSERT INTO post_platforms (post_id, platform, status)
		VALUES ($1, $2, $3)
		RETURNING id
	`
	if tx != nil {
		err = tx.QueryRowContext(ctx, query, pp.PostID, pp.Platform, pp.Status).Scan(&id)
	} else {
		err = r.db.QueryRowContext(ctx, query, pp.PostID, pp.Platform, pp.Status).Scan(&id)
	}

	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func (r *postPlatformRepository) ListByPostID(ctx context.Context, postID int64) ([]*models.PostPlatform, error) {
	query := `
		SELECT id, post_id, platform, status, external_id, error_message, created_at, updated_at
		FROM post_platforms
		WHERE post_id = $1
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query, postID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var targets []*models.PostPlatform
	for rows.Next() {
		var pp models.PostPlatform
		err := rows.Scan(&pp.ID, &pp.PostID, &pp.Platform, &pp.Status, &pp.ExternalID,
			&pp.ErrorMessage, &pp.CreatedAt, &pp.UpdatedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		targets = append(targets, &pp)
	}

	if err = rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return targets, nil
}

// MarkPublished is terminal: the status guard keeps a stale concurrent
// pass from touching a row that already carries an external id.
func (r *postPlatformRepository) MarkPublished(ctx context.Context, id int64, externalID string) error {
	query := `
		UPDATE post_platforms
		SET status = $1,
			external_id = $2,
			error_message = '',
			updated_at = $3
		WHERE id = $4 AND status != $1
	`
	_, err := r.db.ExecContext(ctx, query, models.TargetStatusPublished, externalID, time.Now(), id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postPlatformRepository) MarkFailed(ctx context.Context, id int64, errorMessage string) error {
	query := `
		UPDATE post_platforms
		SET status = $1,
			error_message = $2,
			updated_at = $3
		WHERE id = $4 AND status != $5
	`
	_, err := r.db.ExecContext(ctx, query, models.TargetStatusFailed, errorMessage, time.Now(), id, models.TargetStatusPublished)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
