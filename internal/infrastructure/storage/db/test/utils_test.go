package db_test

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/tdex-network/tdex-escrow/internal/core/domain"
	"github.com/tdex-network/tdex-escrow/internal/core/ports"
	dbbadger "github.com/tdex-network/tdex-escrow/internal/infrastructure/storage/db/badger"
	dbgorm "github.com/tdex-network/tdex-escrow/internal/infrastructure/storage/db/gorm"
	"github.com/tdex-network/tdex-escrow/internal/infrastructure/storage/db/inmemory"
)

type repoManager struct {
	name string
	ports.RepoManager
}

func createRepoManagers(t *testing.T) []repoManager {
	badgerRepoManager, err := dbbadger.NewRepoManager("", nil)
	require.NoError(t, err)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", randomId())
	sqliteRepoManager, err := dbgorm.NewRepoManager(dbgorm.DriverSqlite, dsn)
	require.NoError(t, err)

	repoManagers := []repoManager{
		{"inmemory", inmemory.NewRepoManager()},
		{"badger", badgerRepoManager},
		{"sqlite", sqliteRepoManager},
	}
	t.Cleanup(func() {
		for _, r := range repoManagers {
			r.Close()
		}
	})
	return repoManagers
}

func makeRandomOffer() domain.Offer {
	return domain.Offer{
		ID:                    randomId(),
		Direction:             domain.OfferSell,
		MakerAddress:          randomAddress(),
		CounterCurrency:       "EUR",
		PaymentMethod:         "SEPA",
		Price:                 uint64(randomIntInRange(1, 100000)),
		Amount:                1000000000000,
		MinAmount:             100000000000,
		BuyerSecurityDeposit:  150000000000,
		SellerSecurityDeposit: 150000000000,
		ExtraData:             map[string]string{"capabilities": "1,2,3"},
		CreatedAt:             time.Now().Unix(),
	}
}

func makeRandomTrade(t *testing.T, offer domain.Offer) *domain.Trade {
	trade, err := domain.NewTakerTrade(
		offer, offer.Amount, 1000, 2000, offer.Price, randomAddress(),
		domain.UnknownAddress(), domain.KnownAddress(randomAddress()),
	)
	require.NoError(t, err)
	return trade
}

func randomAddress() domain.NodeAddress {
	return domain.NodeAddress{
		Host: randomHex(10) + ".onion",
		Port: randomIntInRange(1, 9999),
	}
}

func randomHex(len int) string {
	return hex.EncodeToString(randomBytes(len))
}

func randomId() string {
	return uuid.New().String()
}

func randomBytes(len int) []byte {
	b := make([]byte, len)
	//nolint
	rand.Read(b)
	return b
}

func randomIntInRange(min, max int) int {
	n, _ := rand.Int(rand.Reader, big.NewInt(int64(max)))
	return int(n.Int64()) + min
}
