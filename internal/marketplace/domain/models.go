package domain

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

var (
	ErrInvalidTitle        = errors.New("invalid_title")
	ErrInvalidPrice        = errors.New("invalid_price")
	ErrInvalidRating       = errors.New("invalid_rating")
	ErrNotFound            = errors.New("not_found")
	ErrOwnItem             = errors.New("own_item")
	ErrInsufficientBalance = errors.New("insufficient_balance")
)

// Item is a published prompt or template offered for credits. Inactive
// items stay readable for past buyers but are delisted and cannot be
// purchased.
type Item struct {
	ID              snowflake.ID   `gorm:"primaryKey" json:"id"`
	SellerAccountID snowflake.ID   `gorm:"not null;index" json:"seller_account_id"`
	Title           string         `gorm:"type:text;not null" json:"title"`
	Description     string         `gorm:"type:text;not null;default:''" json:"description"`
	Category        string         `gorm:"type:text;not null;default:general;index:idx_marketplace_items_category" json:"category"`
	Price           int64          `gorm:"not null" json:"price"`
	TemplateData    datatypes.JSON `gorm:"type:jsonb" json:"template_data,omitempty"`
	Downloads       int64          `gorm:"not null;default:0" json:"downloads"`
	Rating          float64        `gorm:"not null;default:0" json:"rating"`
	RatingCount     int64          `gorm:"not null;default:0" json:"rating_count"`
	Active          bool           `gorm:"not null;default:true" json:"active"`
	CreatedAt       time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Item) TableName() string { return "marketplace_items" }

// Purchase records a buyer acquiring an item at its price at purchase
// time. The unique index on (item_id, buyer_account_id) is what makes a
// concurrent double purchase collapse to one row.
type Purchase struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	ItemID         snowflake.ID `gorm:"not null;uniqueIndex:ux_purchases_item_buyer,priority:1" json:"item_id"`
	BuyerAccountID snowflake.ID `gorm:"not null;index:idx_purchases_buyer;uniqueIndex:ux_purchases_item_buyer,priority:2" json:"buyer_account_id"`
	Price          int64        `gorm:"not null" json:"price"`
	Rating         *int64       `json:"rating,omitempty"`
	CreatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Purchase) TableName() string { return "purchases" }

type PublishRequest struct {
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	Category     string          `json:"category"`
	Price        int64           `json:"price"`
	TemplateData json.RawMessage `json:"template_data"`
}

type Service interface {
	Publish(ctx context.Context, sellerID snowflake.ID, req PublishRequest) (*Item, error)
	Get(ctx context.Context, itemID snowflake.ID) (*Item, error)
	// List returns active items only, optionally filtered by category.
	List(ctx context.Context, category string) ([]Item, error)
	// Delist deactivates a seller's item; past purchases are unaffected.
	Delist(ctx context.Context, sellerID, itemID snowflake.ID) error
	// Purchase transfers the item price from buyer to seller and bumps
	// the download count. Buying the same item twice is a no-op.
	Purchase(ctx context.Context, buyerID, itemID snowflake.ID) (*Purchase, error)
	Purchases(ctx context.Context, buyerID snowflake.ID) ([]Purchase, error)
	// Rate stores a buyer's 1-5 score and refreshes the item aggregate.
	Rate(ctx context.Context, buyerID, itemID snowflake.ID, score int64) (*Item, error)
}
