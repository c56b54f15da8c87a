package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// ActionStatus is the settlement state of a metered action.
type ActionStatus string

const (
	StatusReserved  ActionStatus = "reserved"
	StatusCommitted ActionStatus = "committed"
	StatusRefunded  ActionStatus = "refunded"
)

// Terminal reports whether the status is a final settlement state.
func (s ActionStatus) Terminal() bool {
	return s == StatusCommitted || s == StatusRefunded
}

// RefundInitiator identifies who requested a refund.
type RefundInitiator string

const (
	// RefundInitiatorCaller is the gateway compensating a failed provider call.
	RefundInitiatorCaller RefundInitiator = "caller"
	// RefundInitiatorSweep is the reconciliation sweep resolving stale holds.
	RefundInitiatorSweep RefundInitiator = "sweep"
)

var (
	ErrInvalidAccount         = errors.New("invalid_account")
	ErrInvalidAction          = errors.New("invalid_action")
	ErrInvalidAmount          = errors.New("invalid_amount")
	ErrInvalidCursor          = errors.New("invalid_cursor")
	ErrAccountNotFound        = errors.New("account_not_found")
	ErrActionNotFound         = errors.New("action_not_found")
	ErrInsufficientBalance    = errors.New("insufficient_balance")
	ErrInvalidStateTransition = errors.New("invalid_state_transition")
)

// ActionRecord is the per-action settlement row. Each record is created
// Reserved with the cost already debited and resolves exactly once to
// Committed or Refunded.
type ActionRecord struct {
	ID          snowflake.ID   `gorm:"primaryKey" json:"id"`
	AccountID   snowflake.ID   `gorm:"not null;index:idx_action_records_account" json:"account_id"`
	Kind        string         `gorm:"type:text;not null" json:"kind"`
	Cost        int64          `gorm:"not null" json:"cost"`
	Status      ActionStatus   `gorm:"type:text;not null;default:reserved;index:idx_action_records_status_created,priority:1" json:"status"`
	Input       datatypes.JSON `gorm:"type:jsonb" json:"input,omitempty"`
	Output      datatypes.JSON `gorm:"type:jsonb" json:"output,omitempty"`
	Metadata    datatypes.JSON `gorm:"type:jsonb" json:"metadata,omitempty"`
	LastError   *string        `gorm:"type:text" json:"last_error,omitempty"`
	LastErrorAt *time.Time     `json:"last_error_at,omitempty"`
	CreatedAt   time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP;index:idx_action_records_status_created,priority:2" json:"created_at"`
	ResolvedAt  *time.Time     `json:"resolved_at,omitempty"`
}

// TableName sets the database table name.
func (ActionRecord) TableName() string { return "action_records" }

// CreditGrant is an append-only credit issuance row. The sum of grants
// minus committed spend must always equal available plus reserved balance.
type CreditGrant struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	AccountID snowflake.ID `gorm:"not null;index:idx_credit_grants_account" json:"account_id"`
	Amount    int64        `gorm:"not null" json:"amount"`
	Reason    string       `gorm:"type:text;not null;default:''" json:"reason"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (CreditGrant) TableName() string { return "credit_grants" }
