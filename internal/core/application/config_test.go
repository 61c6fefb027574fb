package application_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tdex-network/tdex-escrow/internal/core/application"
	"github.com/tdex-network/tdex-escrow/internal/core/application/protocol"
	"github.com/tdex-network/tdex-escrow/internal/core/domain"
	"github.com/tdex-network/tdex-escrow/internal/infrastructure/arbitration"
	escrowwallet "github.com/tdex-network/tdex-escrow/internal/infrastructure/escrow-wallet"
	wsmessenger "github.com/tdex-network/tdex-escrow/internal/infrastructure/messenger/websocket"
	"github.com/tdex-network/tdex-escrow/internal/infrastructure/pubsub"
)

var selfAddr = domain.NodeAddress{Host: "self.onion", Port: 9999}

func newConfig(t *testing.T, dbType, dbConfig string) *application.Config {
	messenger, err := wsmessenger.NewMessenger(10, false)
	require.NoError(t, err)
	t.Cleanup(messenger.Close)

	arb, err := arbitration.NewService(messenger, selfAddr)
	require.NoError(t, err)

	wallet, err := escrowwallet.NewService("127.0.0.1:1")
	require.NoError(t, err)

	ps, err := pubsub.NewService("", nil)
	require.NoError(t, err)
	t.Cleanup(func() { ps.Close() })

	return &application.Config{
		DBType:         dbType,
		DBConfig:       dbConfig,
		Wallet:         wallet,
		Messenger:      messenger,
		Arbitration:    arb,
		PubSub:         ps,
		Network:        domain.NetworkLocal,
		Capabilities:   domain.NewCapabilities(domain.CapabilityMultisigEscrow),
		TradeTxFee:     1000,
		ProtocolConfig: protocol.DefaultConfig(selfAddr),
	}
}

func TestConfig(t *testing.T) {
	tests := []struct {
		name     string
		dbType   string
		dbConfig func(t *testing.T) string
	}{
		{"inmemory", application.DBInMemory, func(*testing.T) string { return "" }},
		{"badger", application.DBBadger, func(t *testing.T) string { return t.TempDir() }},
		{"sqlite", application.DBSqlite, func(t *testing.T) string {
			return t.TempDir() + "/escrow.db"
		}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			cfg := newConfig(t, tt.dbType, tt.dbConfig(t))
			require.NoError(t, cfg.Validate())
			t.Cleanup(cfg.RepoManager().Close)

			require.NotNil(t, cfg.RepoManager())
			require.NotNil(t, cfg.PubSubService())
			require.NotNil(t, cfg.ProtocolService())
			require.NotNil(t, cfg.TradeService())
			require.NotNil(t, cfg.OfferService())
			require.Same(t, cfg.TradeService(), cfg.TradeService())
		})
	}
}

func TestConfigInvalid(t *testing.T) {
	t.Run("unsupported db", func(t *testing.T) {
		cfg := newConfig(t, "mongodb", "")
		require.EqualError(t, cfg.Validate(), "unsupported db type mongodb")
	})

	t.Run("missing wallet", func(t *testing.T) {
		cfg := newConfig(t, application.DBInMemory, "")
		cfg.Wallet = nil
		require.EqualError(t, cfg.Validate(), "missing wallet")
	})

	t.Run("invalid protocol config", func(t *testing.T) {
		cfg := newConfig(t, application.DBInMemory, "")
		cfg.ProtocolConfig.PhaseTimeout = 0
		require.Error(t, cfg.Validate())
	})
}
