package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/postmux/postmux/internal/models"
)

type MediaRepository interface {
	Create(ctx context.Context, tx *sql.Tx, media *models.Media) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.Media, error)
	MarkStorageDeleted(ctx context.Context, id int64) (bool, error)
}

type mediaRepository struct {
	db *sql.DB
}

func NewMediaRepository(db *sql.DB) MediaRepository {
	return &mediaRepository{db: db}
}

func (r *mediaRepository) Create(ctx context.Context, tx *sql.Tx, media *models.Media) (int64, error) {
	var id int64
	var err error

	query := `
		INSERT INTO media (user_id, file_url, storage_key, file_type, media_type)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	if tx != nil {
		err = tx.QueryRowContext(ctx, query, media.UserID, media.FileURL, media.StorageKey, media.FileType, media.MediaType).Scan(&id)
	} else {
		err = r.db.QueryRowContext(ctx, query, media.UserID, media.FileURL, media.StorageKey, media.FileType, media.MediaType).Scan(&id)
	}

	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func (r *mediaRepository) GetByID(ctx context.Context, id int64) (*models.Media, error) {
	query := `
		SELECT id, user_id, file_url, storage_key, file_type, media_type, storage_deleted, created_at
		FROM media
		WHERE id = $1
	`

	var media models.Media
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&media.ID,
		&media.UserID,
		&media.FileURL,
		&media.StorageKey,
		&media.FileType,
		&media.MediaType,
		&media.StorageDeleted,
		&media.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	return &media, nil
}

// MarkStorageDeleted claims the right to remove the storage object.
// Only the caller that flips the flag (claimed == true) may delete the
// bytes, so concurrent worker passes delete at most once.
func (r *mediaRepository) MarkStorageDeleted(ctx context.Context, id int64) (bool, error) {
	query := `
		UPDATE media
		SET storage_deleted = TRUE
		WHERE id = $1 AND storage_deleted = FALSE
	`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	return affected == 1, nil
}
