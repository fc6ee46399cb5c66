package repositories

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// TransactionManager defines methods for transaction management
type TransactionManager interface {
	// Begin starts a new database transaction
	Begin(ctx context.Context) (pgx.Tx, error)

	// Commit commits a transaction
	Commit(ctx context.Context, tx pgx.Tx) error

	// Rollback rolls back a transaction
	Rollback(ctx context.Context, tx pgx.Tx) error
}

// WorkflowRepositoryWithTx is implemented by stores that create and advance workflows inside database transactions.
type WorkflowRepositoryWithTx interface {
	WorkflowRepositoryFacade
	TransactionManager
}

// UsageRepositoryWithTx is implemented by stores that reset usage inside database transactions.
type UsageRepositoryWithTx interface {
	UsageRepositoryFacade
	TransactionManager
}
