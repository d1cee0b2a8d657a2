package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/andresuchdata/fetchvault/internal/domain"
	"github.com/andresuchdata/fetchvault/internal/repository"
	"github.com/lib/pq"
)

const downloadColumns = `id, download_id, original_url, file_name, file_size, mime_type, storage_key,
	storage_url, status, progress, error, download_count, created_at, updated_at`

const uniqueViolation = "23505"

type downloadRepository struct {
	db *DB
}

func NewDownloadRepository(db *DB) repository.DownloadRepository {
	return &downloadRepository{db: db}
}

func (r *downloadRepository) Create(ctx context.Context, d *domain.Download) (*domain.Download, error) {
	query := `
		INSERT INTO downloads (
			id, download_id, original_url, file_name, file_size, mime_type,
			storage_key, storage_url, status, progress, error, download_count
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING ` + downloadColumns

	var out domain.Download
	err := r.db.QueryRowxContext(ctx, query,
		d.ID,
		d.DownloadID,
		d.SourceURL,
		d.FileName,
		d.FileSize,
		d.ContentType,
		d.StorageKey,
		d.StorageLocator,
		string(d.Status),
		d.Progress,
		d.Error,
		d.DownloadCount,
	).StructScan(&out)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return nil, domain.ErrDuplicateID
		}
		return nil, fmt.Errorf("failed to insert download: %w", err)
	}

	return &out, nil
}

func (r *downloadRepository) Get(ctx context.Context, downloadID string) (*domain.Download, error) {
	query := `SELECT ` + downloadColumns + ` FROM downloads WHERE download_id = $1`

	var out domain.Download
	if err := r.db.GetContext(ctx, &out, query, downloadID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get download: %w", err)
	}
	return &out, nil
}

func (r *downloadRepository) UpdateFields(ctx context.Context, downloadID string, update domain.DownloadUpdate) (*domain.Download, error) {
	if update.IsEmpty() {
		return r.Get(ctx, downloadID)
	}

	var sets []string
	var args []interface{}
	argCounter := 1

	add := func(column string, value interface{}) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, argCounter))
		args = append(args, value)
		argCounter++
	}

	if update.Status != nil {
		add("status", string(*update.Status))
	}
	if update.Progress != nil {
		add("progress", *update.Progress)
	}
	if update.FileSize != nil {
		add("file_size", *update.FileSize)
	}
	if update.ContentType != nil {
		add("mime_type", *update.ContentType)
	}
	if update.StorageLocator != nil {
		add("storage_url", *update.StorageLocator)
	}
	if update.Error != nil {
		add("error", *update.Error)
	}

	query := fmt.Sprintf(`UPDATE downloads SET %s, updated_at = NOW() WHERE download_id = $%d RETURNING %s`,
		strings.Join(sets, ", "), argCounter, downloadColumns)
	args = append(args, downloadID)

	var out domain.Download
	if err := r.db.QueryRowxContext(ctx, query, args...).StructScan(&out); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to update download: %w", err)
	}
	return &out, nil
}

func (r *downloadRepository) IncrementCounter(ctx context.Context, downloadID string, field domain.CounterField, delta int64, match domain.Match) (*domain.Download, error) {
	if err := repository.ValidateIncrement(field, delta); err != nil {
		return nil, err
	}

	// field is whitelisted above, so it is safe to interpolate
	query := fmt.Sprintf(`UPDATE downloads SET %[1]s = %[1]s + $1, updated_at = NOW() WHERE download_id = $2`, field)
	args := []interface{}{delta, downloadID}
	if match.Status != "" {
		query += " AND status = $3"
		args = append(args, string(match.Status))
	}
	query += " RETURNING " + downloadColumns

	var out domain.Download
	if err := r.db.QueryRowxContext(ctx, query, args...).StructScan(&out); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to increment %s: %w", field, err)
	}
	return &out, nil
}

func (r *downloadRepository) List(ctx context.Context, limit int) ([]*domain.Download, error) {
	query := `SELECT ` + downloadColumns + ` FROM downloads ORDER BY created_at DESC LIMIT $1`

	downloads := []*domain.Download{}
	if err := r.db.SelectContext(ctx, &downloads, query, repository.NormalizeLimit(limit)); err != nil {
		return nil, fmt.Errorf("failed to list downloads: %w", err)
	}
	return downloads, nil
}
