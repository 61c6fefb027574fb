package dbgorm

import (
	"encoding/json"

	"github.com/tdex-network/tdex-escrow/internal/core/domain"
	"gorm.io/gorm"
)

// tradeRow stores a trade as a whole in Data, the other columns are copies
// of the trade fields used to query the table.
type tradeRow struct {
	ID        string `gorm:"primaryKey"`
	OfferID   string `gorm:"index"`
	Phase     int    `gorm:"index"`
	CreatedAt int64  `gorm:"autoCreateTime:false;index"`
	Data      []byte `gorm:"not null"`
}

func (tradeRow) TableName() string {
	return "trades"
}

type offerRow struct {
	ID        string `gorm:"primaryKey"`
	CreatedAt int64  `gorm:"autoCreateTime:false;index"`
	Data      []byte `gorm:"not null"`
}

func (offerRow) TableName() string {
	return "offers"
}

func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&tradeRow{}, &offerRow{})
}

func toTradeRow(trade domain.Trade) (*tradeRow, error) {
	data, err := json.Marshal(trade)
	if err != nil {
		return nil, err
	}
	return &tradeRow{
		ID:        trade.ID,
		OfferID:   trade.Offer.ID,
		Phase:     int(trade.Phase),
		CreatedAt: trade.Timestamp.Created,
		Data:      data,
	}, nil
}

func (r tradeRow) toDomain() (*domain.Trade, error) {
	var trade domain.Trade
	if err := json.Unmarshal(r.Data, &trade); err != nil {
		return nil, err
	}
	return &trade, nil
}

func toOfferRow(offer domain.Offer) (*offerRow, error) {
	data, err := json.Marshal(offer)
	if err != nil {
		return nil, err
	}
	return &offerRow{ID: offer.ID, CreatedAt: offer.CreatedAt, Data: data}, nil
}

func (r offerRow) toDomain() (*domain.Offer, error) {
	var offer domain.Offer
	if err := json.Unmarshal(r.Data, &offer); err != nil {
		return nil, err
	}
	return &offer, nil
}
