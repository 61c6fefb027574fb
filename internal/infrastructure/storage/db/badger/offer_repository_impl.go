package dbbadger

import (
	"context"
	"errors"

	"github.com/tdex-network/tdex-escrow/internal/core/domain"
	"github.com/timshannon/badgerhold/v4"
)

type offerRepositoryImpl struct {
	store *badgerhold.Store
}

// NewOfferRepositoryImpl returns a new badger OfferRepository implementation.
func NewOfferRepositoryImpl(store *badgerhold.Store) domain.OfferRepository {
	return &offerRepositoryImpl{store}
}

func (r *offerRepositoryImpl) AddOffer(_ context.Context, offer domain.Offer) error {
	if err := r.store.Insert(offer.ID, offer); err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return domain.ErrOfferAlreadyExists
		}
		return err
	}
	return nil
}

func (r *offerRepositoryImpl) GetOffer(
	_ context.Context, offerID string,
) (*domain.Offer, error) {
	var offer domain.Offer
	if err := r.store.Get(offerID, &offer); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, domain.ErrOfferNotFound
		}
		return nil, err
	}
	return &offer, nil
}

func (r *offerRepositoryImpl) GetAllOffers(_ context.Context) ([]domain.Offer, error) {
	var offers []domain.Offer
	query := (&badgerhold.Query{}).SortBy("CreatedAt", "ID")
	if err := r.store.Find(&offers, query); err != nil {
		return nil, err
	}
	if offers == nil {
		offers = make([]domain.Offer, 0)
	}
	return offers, nil
}
