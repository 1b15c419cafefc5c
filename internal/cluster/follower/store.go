package follower

import (
	"context"

	"github.com/yndnr/docmesh-go/internal/cluster/changes"
	"github.com/yndnr/docmesh-go/internal/core/domain"
	"github.com/yndnr/docmesh-go/internal/storage/docstore"
)

// Store is the storage used by a follower. *docstore.Store implements it.
type Store interface {
	Write(ctx context.Context, b *docstore.WriteBatch) ([]changes.Event, error)
	GetDocument(ctx context.Context, account domain.AccountID, collection domain.Collection, id domain.DocumentID) (domain.Document, error)

	GetLastLog(ctx context.Context) (domain.LogPosition, bool, error)
	Diverge(ctx context.Context, keep domain.LogPosition) ([]domain.Target, error)

	NextRollbackChange(ctx context.Context) (docstore.RollbackChange, bool, error)
	SetRollbackChange(ctx context.Context, account domain.AccountID, collection domain.Collection, m *changes.MergedChanges) error
	RemoveRollbackChange(ctx context.Context, account domain.AccountID, collection domain.Collection) error

	CurrentTerm(ctx context.Context) (uint64, error)
	SetTerm(ctx context.Context, term uint64) error
}

var _ Store = (*docstore.Store)(nil)
