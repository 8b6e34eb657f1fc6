package uow

import (
	"context"

	"gorm.io/gorm"

	"crms/internal/ports"
)

// UnitOfWork implements ports.UnitOfWork with gorm. Callbacks registered with
// ports.AfterCommit inside fn run only after the transaction commits.
type UnitOfWork struct {
	db *gorm.DB
}

func NewUnitOfWork(db *gorm.DB) *UnitOfWork {
	return &UnitOfWork{db: db}
}

func (u *UnitOfWork) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ports.TxFromContext(ctx) != nil {
		// Joined work commits with the outer transaction.
		return fn(ctx)
	}

	hookCtx, hooks := ports.WithCommitHooks(ctx)
	if err := u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ports.WithTxContext(hookCtx, tx))
	}); err != nil {
		return err
	}

	hooks.Run()
	return nil
}
