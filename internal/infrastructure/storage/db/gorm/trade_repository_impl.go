package dbgorm

import (
	"context"
	"errors"
	"fmt"

	"github.com/tdex-network/tdex-escrow/internal/core/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type tradeRepositoryImpl struct {
	db *gorm.DB
}

// NewTradeRepositoryImpl returns a new sql TradeRepository implementation.
func NewTradeRepositoryImpl(db *gorm.DB) domain.TradeRepository {
	return &tradeRepositoryImpl{db}
}

func (r *tradeRepositoryImpl) AddTrade(
	ctx context.Context, trade *domain.Trade,
) error {
	row, err := toTradeRow(*trade)
	if err != nil {
		return err
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&tradeRow{}).
			Where("id = ?", trade.ID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return domain.ErrTradeAlreadyExists
		}
		return tx.Create(row).Error
	})
}

func (r *tradeRepositoryImpl) GetTrade(
	ctx context.Context, tradeID string,
) (*domain.Trade, error) {
	var row tradeRow
	if err := r.db.WithContext(ctx).
		First(&row, "id = ?", tradeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrTradeNotFound
		}
		return nil, err
	}
	return row.toDomain()
}

func (r *tradeRepositoryImpl) GetAllTrades(
	ctx context.Context,
) ([]*domain.Trade, error) {
	return r.findTrades(r.db.WithContext(ctx))
}

func (r *tradeRepositoryImpl) GetPendingTrades(
	ctx context.Context,
) ([]*domain.Trade, error) {
	return r.findTrades(r.db.WithContext(ctx).Where(
		"phase NOT IN ?", []int{int(domain.PhaseCompleted), int(domain.PhaseFailed)},
	))
}

func (r *tradeRepositoryImpl) GetTradesByOffer(
	ctx context.Context, offerID string,
) ([]*domain.Trade, error) {
	return r.findTrades(r.db.WithContext(ctx).Where("offer_id = ?", offerID))
}

// UpdateTrade locks the trade row for the duration of updateFn, the row is
// written back only if updateFn succeeds.
func (r *tradeRepositoryImpl) UpdateTrade(
	ctx context.Context,
	tradeID string,
	updateFn func(t *domain.Trade) (*domain.Trade, error),
) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row tradeRow
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&row, "id = ?", tradeID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrTradeNotFound
			}
			return err
		}

		trade, err := row.toDomain()
		if err != nil {
			return fmt.Errorf("decoding trade %s: %w", tradeID, err)
		}
		updated, err := updateFn(trade)
		if err != nil {
			return err
		}

		updatedRow, err := toTradeRow(*updated)
		if err != nil {
			return err
		}
		return tx.Model(&tradeRow{}).Where("id = ?", tradeID).Updates(map[string]interface{}{
			"phase": updatedRow.Phase,
			"data":  updatedRow.Data,
		}).Error
	})
}

func (r *tradeRepositoryImpl) findTrades(query *gorm.DB) ([]*domain.Trade, error) {
	var rows []tradeRow
	if err := query.Order("created_at, id").Find(&rows).Error; err != nil {
		return nil, err
	}

	trades := make([]*domain.Trade, 0, len(rows))
	for _, row := range rows {
		trade, err := row.toDomain()
		if err != nil {
			return nil, fmt.Errorf("decoding trade %s: %w", row.ID, err)
		}
		trades = append(trades, trade)
	}
	return trades, nil
}
