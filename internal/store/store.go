// Package store persists upload records, users, and refresh tokens in
// PostgreSQL via a pgx connection pool.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/imvu-insight/datasync/internal/classify"
)

// Store wraps a pgx pool with the queries the service needs.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store backed by the given pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// DataSyncRecord is one stored upload, including the raw file content.
type DataSyncRecord struct {
	ID          int64
	UploadedAt  time.Time
	Type        classify.DataType
	Filename    string
	Hash        string
	RecordCount int
	FileSize    int64
	Content     []byte
	UserID      *int64
}

// CreateRecord inserts a new upload record and fills in its generated ID
// and upload timestamp.
func (s *Store) CreateRecord(ctx context.Context, rec *DataSyncRecord) error {
	const q = `
		INSERT INTO data_sync_records (type, filename, hash, record_count, file_size, content, user_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, uploaded_at`

	err := s.pool.QueryRow(ctx, q,
		rec.Type.String(), rec.Filename, rec.Hash,
		rec.RecordCount, rec.FileSize, rec.Content, rec.UserID,
	).Scan(&rec.ID, &rec.UploadedAt)
	if err != nil {
		return fmt.Errorf("insert data sync record: %w", err)
	}
	return nil
}

// LatestRecordByHash returns the most recent upload with the given
// content hash, without its file content. It returns nil when no record
// matches.
func (s *Store) LatestRecordByHash(ctx context.Context, hash string) (*DataSyncRecord, error) {
	const q = `
		SELECT id, uploaded_at, type, filename, hash, record_count, file_size
		FROM data_sync_records
		WHERE hash = $1
		ORDER BY uploaded_at DESC
		LIMIT 1`

	var rec DataSyncRecord
	var typ string
	err := s.pool.QueryRow(ctx, q, hash).Scan(
		&rec.ID, &rec.UploadedAt, &typ, &rec.Filename,
		&rec.Hash, &rec.RecordCount, &rec.FileSize,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query record by hash: %w", err)
	}
	rec.Type = classify.DataType(typ)
	return &rec, nil
}

// ListRecords returns one page of upload records, newest first, plus the
// total count. typ filters by data type when non-empty. Content is never
// included.
func (s *Store) ListRecords(ctx context.Context, page, pageSize int, typ classify.DataType) ([]DataSyncRecord, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	where := ""
	args := []any{}
	if typ != "" {
		where = "WHERE type = $1"
		args = append(args, typ.String())
	}

	var total int64
	countQ := "SELECT COUNT(*) FROM data_sync_records " + where
	if err := s.pool.QueryRow(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count data sync records: %w", err)
	}

	listQ := fmt.Sprintf(`
		SELECT id, uploaded_at, type, filename, hash, record_count, file_size
		FROM data_sync_records
		%s
		ORDER BY uploaded_at DESC
		LIMIT $%d OFFSET $%d`, where, len(args)+1, len(args)+2)
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := s.pool.Query(ctx, listQ, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list data sync records: %w", err)
	}
	defer rows.Close()

	var records []DataSyncRecord
	for rows.Next() {
		var rec DataSyncRecord
		var t string
		if err := rows.Scan(&rec.ID, &rec.UploadedAt, &t, &rec.Filename,
			&rec.Hash, &rec.RecordCount, &rec.FileSize); err != nil {
			return nil, 0, fmt.Errorf("scan data sync record: %w", err)
		}
		rec.Type = classify.DataType(t)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list data sync records: %w", err)
	}
	return records, total, nil
}

// DeleteRecordsByHash removes every upload record with the given content
// hash and returns how many were deleted. Used by overwrite imports.
func (s *Store) DeleteRecordsByHash(ctx context.Context, hash string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM data_sync_records WHERE hash = $1`, hash)
	if err != nil {
		return 0, fmt.Errorf("delete data sync records by hash: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteRecord removes an upload record. It reports whether a row was
// actually deleted.
func (s *Store) DeleteRecord(ctx context.Context, id int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM data_sync_records WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete data sync record: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
