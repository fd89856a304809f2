package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"artpost/internal/domain"
	"artpost/internal/infra"
	"artpost/internal/sqlinline"
)

// MetadataRepositoryPG implements domain.MetadataRepository on PostgreSQL.
type MetadataRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewMetadataRepository constructs a PostgreSQL-backed metadata repository.
func NewMetadataRepository(sql infra.SQLExecutor) *MetadataRepositoryPG {
	return &MetadataRepositoryPG{sql: sql}
}

// Migrate creates the arts and subscriptions tables when missing.
func (r *MetadataRepositoryPG) Migrate(ctx context.Context) error {
	if _, err := r.sql.Exec(ctx, sqlinline.Schema); err != nil {
		return fmt.Errorf("migrate metadata schema: %w", err)
	}
	return nil
}

// WriteRecord upserts the record under id.
func (r *MetadataRepositoryPG) WriteRecord(ctx context.Context, id string, record domain.ArtRecord) error {
	_, err := r.sql.Exec(ctx, sqlinline.QUpsertArt,
		id,
		record.CallerID,
		record.ArtName,
		record.ArtistName,
		record.Description,
		record.ImageURL,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("write art %s: %w", id, err)
	}
	return nil
}

// GetRecord loads a record by its generated id. Ids that are not uuids can
// never have been written and report ErrNotFound.
func (r *MetadataRepositoryPG) GetRecord(ctx context.Context, id string) (*domain.ArtRecord, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrNotFound
	}
	row := r.sql.QueryRow(ctx, sqlinline.QSelectArtByID, id)
	var rec domain.ArtRecord
	if err := row.Scan(&rec.ID, &rec.CallerID, &rec.ArtName, &rec.ArtistName, &rec.Description, &rec.ImageURL, &rec.CreatedAt); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// ReadSubscriptions returns every stored subscription. An empty table yields
// an empty, non-nil snapshot.
func (r *MetadataRepositoryPG) ReadSubscriptions(ctx context.Context) (domain.Snapshot, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QListSubscriptions)
	if err != nil {
		return nil, fmt.Errorf("read subscriptions: %w", err)
	}
	defer rows.Close()

	snapshot := domain.Snapshot{}
	for rows.Next() {
		var sub domain.Subscription
		if err := rows.Scan(&sub.ID, &sub.Endpoint, &sub.Keys.Auth, &sub.Keys.P256dh); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		snapshot[sub.ID] = sub
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read subscriptions: %w", err)
	}
	return snapshot, nil
}

var _ domain.MetadataRepository = (*MetadataRepositoryPG)(nil)
