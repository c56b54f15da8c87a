package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/mhminhas/thinklab/internal/clock"
	marketplacedomain "github.com/mhminhas/thinklab/internal/marketplace/domain"
	"github.com/mhminhas/thinklab/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
}

func New(p Params) marketplacedomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("marketplace.service"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *Service) Publish(ctx context.Context, sellerID snowflake.ID, req marketplacedomain.PublishRequest) (*marketplacedomain.Item, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, marketplacedomain.ErrInvalidTitle
	}
	if req.Price < 0 {
		return nil, marketplacedomain.ErrInvalidPrice
	}

	category := strings.ToLower(strings.TrimSpace(req.Category))
	if category == "" {
		category = "general"
	}

	now := s.clock.Now().UTC()
	item := marketplacedomain.Item{
		ID:              s.genID.Generate(),
		SellerAccountID: sellerID,
		Title:           title,
		Description:     strings.TrimSpace(req.Description),
		Category:        category,
		Price:           req.Price,
		TemplateData:    datatypes.JSON(req.TemplateData),
		Downloads:       0,
		Active:          true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.db.WithContext(ctx).Create(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Service) Get(ctx context.Context, itemID snowflake.ID) (*marketplacedomain.Item, error) {
	var item marketplacedomain.Item
	err := s.db.WithContext(ctx).First(&item, "id = ?", itemID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, marketplacedomain.ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

func (s *Service) List(ctx context.Context, category string) ([]marketplacedomain.Item, error) {
	query := s.db.WithContext(ctx).
		Model(&marketplacedomain.Item{}).
		Where("active = ?", true)
	if category = strings.ToLower(strings.TrimSpace(category)); category != "" {
		query = query.Where("category = ?", category)
	}

	var items []marketplacedomain.Item
	if err := query.Order("created_at DESC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Service) Delist(ctx context.Context, sellerID, itemID snowflake.ID) error {
	result := s.db.WithContext(ctx).Exec(
		`UPDATE marketplace_items SET active = ?, updated_at = ?
		WHERE id = ? AND seller_account_id = ? AND active = ?`,
		false, s.clock.Now().UTC(), itemID, sellerID, true,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return marketplacedomain.ErrNotFound
	}
	return nil
}

// Purchase moves the item price from buyer to seller, records the
// purchase, and bumps the download count in one transaction. The buyer
// debit is conditional on balance so a purchase can never overdraw; the
// unique purchase index makes a concurrent duplicate roll back whole.
func (s *Service) Purchase(ctx context.Context, buyerID, itemID snowflake.ID) (*marketplacedomain.Purchase, error) {
	var purchase marketplacedomain.Purchase
	now := s.clock.Now().UTC()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item marketplacedomain.Item
		if err := tx.WithContext(ctx).First(&item, "id = ?", itemID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return marketplacedomain.ErrNotFound
			}
			return err
		}
		if !item.Active {
			return marketplacedomain.ErrNotFound
		}
		if item.SellerAccountID == buyerID {
			return marketplacedomain.ErrOwnItem
		}

		var existing marketplacedomain.Purchase
		err := tx.WithContext(ctx).
			First(&existing, "item_id = ? AND buyer_account_id = ?", itemID, buyerID).Error
		if err == nil {
			purchase = existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if item.Price > 0 {
			result := tx.WithContext(ctx).Exec(
				`UPDATE accounts SET balance = balance - ?, updated_at = ? WHERE id = ? AND balance >= ?`,
				item.Price, now, buyerID, item.Price,
			)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return marketplacedomain.ErrInsufficientBalance
			}
			if err := tx.WithContext(ctx).Exec(
				`UPDATE accounts SET balance = balance + ?, updated_at = ? WHERE id = ?`,
				item.Price, now, item.SellerAccountID,
			).Error; err != nil {
				return err
			}
		}

		purchase = marketplacedomain.Purchase{
			ID:             s.genID.Generate(),
			ItemID:         itemID,
			BuyerAccountID: buyerID,
			Price:          item.Price,
			CreatedAt:      now,
		}
		if err := tx.WithContext(ctx).Create(&purchase).Error; err != nil {
			return err
		}

		return tx.WithContext(ctx).Exec(
			`UPDATE marketplace_items SET downloads = downloads + 1, updated_at = ? WHERE id = ?`,
			now, itemID,
		).Error
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			// A concurrent purchase by the same buyer won the insert; this
			// transaction rolled back whole, so return the winner's row.
			var existing marketplacedomain.Purchase
			fetchErr := s.db.WithContext(ctx).
				First(&existing, "item_id = ? AND buyer_account_id = ?", itemID, buyerID).Error
			if fetchErr != nil {
				return nil, fetchErr
			}
			return &existing, nil
		}
		return nil, err
	}
	return &purchase, nil
}

func (s *Service) Purchases(ctx context.Context, buyerID snowflake.ID) ([]marketplacedomain.Purchase, error) {
	var purchases []marketplacedomain.Purchase
	err := s.db.WithContext(ctx).
		Where("buyer_account_id = ?", buyerID).
		Order("created_at DESC").
		Find(&purchases).Error
	if err != nil {
		return nil, err
	}
	return purchases, nil
}

// Rate stores the buyer's score on their purchase row and recomputes the
// item aggregate from all rated purchases. Re-rating overwrites the
// previous score.
func (s *Service) Rate(ctx context.Context, buyerID, itemID snowflake.ID, score int64) (*marketplacedomain.Item, error) {
	if score < 1 || score > 5 {
		return nil, marketplacedomain.ErrInvalidRating
	}

	var item marketplacedomain.Item
	now := s.clock.Now().UTC()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.WithContext(ctx).
			Model(&marketplacedomain.Purchase{}).
			Where("item_id = ? AND buyer_account_id = ?", itemID, buyerID).
			Update("rating", score)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			// Only buyers can rate.
			return marketplacedomain.ErrNotFound
		}

		if err := tx.WithContext(ctx).Exec(
			`UPDATE marketplace_items SET
				rating = (SELECT AVG(rating) FROM purchases WHERE item_id = ? AND rating IS NOT NULL),
				rating_count = (SELECT COUNT(*) FROM purchases WHERE item_id = ? AND rating IS NOT NULL),
				updated_at = ?
			WHERE id = ?`,
			itemID, itemID, now, itemID,
		).Error; err != nil {
			return err
		}

		return tx.WithContext(ctx).First(&item, "id = ?", itemID).Error
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}
