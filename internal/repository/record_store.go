package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/yohaboy/research-tracker/internal/database"
	"github.com/yohaboy/research-tracker/internal/domain"
)

// PgRecordStore commits reconciled records, one transaction per record.
type PgRecordStore struct {
	tx database.TxRunner
}

// NewPgRecordStore creates a record store running on tx.
func NewPgRecordStore(tx database.TxRunner) *PgRecordStore {
	return &PgRecordStore{tx: tx}
}

// SaveRecord upserts the publication described by rec and links authorID to
// it at rec.AuthorOrder, atomically. A unique-key race surfaces as an error
// wrapping domain.ErrStorageConflict; callers recover with AttachExisting.
func (s *PgRecordStore) SaveRecord(ctx context.Context, authorID int64, rec domain.PublicationRecord) (*SaveResult, error) {
	var res SaveResult
	err := s.tx.WithTransaction(ctx, func(tx pgx.Tx) error {
		pubs := NewPgPublicationRepository(tx)

		pub, created, err := pubs.UpsertPublication(ctx, rec)
		if err != nil {
			return err
		}
		linked, err := pubs.LinkAuthor(ctx, authorID, pub.ID, rec.AuthorOrder)
		if err != nil {
			return err
		}
		res = SaveResult{Publication: pub, Created: created, Linked: linked}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// AttachExisting links authorID to the already-stored publication with rec's
// natural key. It is the read path taken after a storage conflict.
func (s *PgRecordStore) AttachExisting(ctx context.Context, authorID int64, rec domain.PublicationRecord) (*SaveResult, error) {
	var res SaveResult
	err := s.tx.WithTransaction(ctx, func(tx pgx.Tx) error {
		pubs := NewPgPublicationRepository(tx)

		pub, err := pubs.GetByKey(ctx, rec.Title, rec.PublicationDate)
		if err != nil {
			return err
		}
		linked, err := pubs.LinkAuthor(ctx, authorID, pub.ID, rec.AuthorOrder)
		if err != nil {
			return err
		}
		res = SaveResult{Publication: pub, Linked: linked}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}
