package dbgorm

import (
	"context"
	"errors"
	"fmt"

	"github.com/tdex-network/tdex-escrow/internal/core/domain"
	"gorm.io/gorm"
)

type offerRepositoryImpl struct {
	db *gorm.DB
}

// NewOfferRepositoryImpl returns a new sql OfferRepository implementation.
func NewOfferRepositoryImpl(db *gorm.DB) domain.OfferRepository {
	return &offerRepositoryImpl{db}
}

func (r *offerRepositoryImpl) AddOffer(ctx context.Context, offer domain.Offer) error {
	row, err := toOfferRow(offer)
	if err != nil {
		return err
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&offerRow{}).
			Where("id = ?", offer.ID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return domain.ErrOfferAlreadyExists
		}
		return tx.Create(row).Error
	})
}

func (r *offerRepositoryImpl) GetOffer(
	ctx context.Context, offerID string,
) (*domain.Offer, error) {
	var row offerRow
	if err := r.db.WithContext(ctx).
		First(&row, "id = ?", offerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOfferNotFound
		}
		return nil, err
	}
	return row.toDomain()
}

func (r *offerRepositoryImpl) GetAllOffers(ctx context.Context) ([]domain.Offer, error) {
	var rows []offerRow
	if err := r.db.WithContext(ctx).
		Order("created_at, id").Find(&rows).Error; err != nil {
		return nil, err
	}

	offers := make([]domain.Offer, 0, len(rows))
	for _, row := range rows {
		offer, err := row.toDomain()
		if err != nil {
			return nil, fmt.Errorf("decoding offer %s: %w", row.ID, err)
		}
		offers = append(offers, *offer)
	}
	return offers, nil
}
