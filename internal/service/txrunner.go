package service

import (
	"context"

	"clientdesk.app/identity/core/db"
	"clientdesk.app/identity/internal/store"
	"clientdesk.app/identity/internal/store/memstore"
)

// StoreProvider exposes the stores needed by an operation, bound either to the
// pool or to a transaction.
type StoreProvider interface {
	Users() store.UserStore
	Organizations() store.OrganizationStore
	Invitations() store.InvitationStore
	Customers() store.CustomerStore
	Assignments() store.AssignmentStore
}

// TxRunner runs functions within a transaction and provides stores bound to that transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(stores StoreProvider) error) error
}

type dbTxRunner struct {
	db *db.DB
}

// NewTxRunner builds a TxRunner backed by the core DB.
func NewTxRunner(db *db.DB) TxRunner {
	return &dbTxRunner{db: db}
}

func (r *dbTxRunner) WithTx(ctx context.Context, fn func(stores StoreProvider) error) error {
	return r.db.WithTx(ctx, func(tx db.DBTX) error {
		return fn(store.NewStores(tx))
	})
}

type memTxRunner struct {
	mem *memstore.Store
}

// NewMemoryTxRunner builds a TxRunner over the in-memory store.
func NewMemoryTxRunner(mem *memstore.Store) TxRunner {
	return &memTxRunner{mem: mem}
}

func (r *memTxRunner) WithTx(ctx context.Context, fn func(stores StoreProvider) error) error {
	return r.mem.WithTx(ctx, func(tx *memstore.Tx) error {
		return fn(tx)
	})
}
