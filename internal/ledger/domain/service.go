package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/mhminhas/thinklab/pkg/db/pagination"
	"gorm.io/datatypes"
)

// Service settles credit reservations against account balances.
//
// Reserve debits the cost and opens a Reserved record in one transaction.
// Commit and Refund resolve the record exactly once; a Refund returns the
// held credits to the account. Sweep-initiated refunds tolerate records
// that were resolved concurrently.
type Service interface {
	Reserve(ctx context.Context, accountID snowflake.ID, kind string, cost int64, input datatypes.JSON) (*ActionRecord, error)
	Commit(ctx context.Context, recordID snowflake.ID, output, metadata datatypes.JSON) (*ActionRecord, error)
	Refund(ctx context.Context, recordID snowflake.ID, initiator RefundInitiator, reason string) (*ActionRecord, error)

	Grant(ctx context.Context, accountID snowflake.ID, amount int64, reason string) error
	Balance(ctx context.Context, accountID snowflake.ID) (int64, error)

	Get(ctx context.Context, recordID snowflake.ID) (*ActionRecord, error)
	History(ctx context.Context, accountID snowflake.ID, page pagination.Pagination) ([]ActionRecord, pagination.PageInfo, error)

	// Stale lists Reserved records created before the cutoff, oldest first.
	Stale(ctx context.Context, cutoff time.Time, limit int) ([]ActionRecord, error)
	// RecordFailure annotates a Reserved record with the latest provider error.
	RecordFailure(ctx context.Context, recordID snowflake.ID, cause string) error
}
