package application

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-escrow/internal/core/application/offer"
	"github.com/tdex-network/tdex-escrow/internal/core/application/protocol"
	"github.com/tdex-network/tdex-escrow/internal/core/application/pubsub"
	"github.com/tdex-network/tdex-escrow/internal/core/application/trade"
	"github.com/tdex-network/tdex-escrow/internal/core/domain"
	"github.com/tdex-network/tdex-escrow/internal/core/ports"
	"github.com/tdex-network/tdex-escrow/internal/infrastructure/offerbook"
	dbbadger "github.com/tdex-network/tdex-escrow/internal/infrastructure/storage/db/badger"
	dbgorm "github.com/tdex-network/tdex-escrow/internal/infrastructure/storage/db/gorm"
	"github.com/tdex-network/tdex-escrow/internal/infrastructure/storage/db/inmemory"
)

const (
	DBBadger   = "badger"
	DBSqlite   = "sqlite"
	DBPostgres = "postgres"
	DBInMemory = "inmemory"
)

var (
	SupportedDBType = map[string]struct{}{
		DBBadger:   {},
		DBSqlite:   {},
		DBPostgres: {},
		DBInMemory: {},
	}
)

// Config holds the adapters and the parameters required to build the
// application services of the daemon. Services are created lazily and
// shared.
type Config struct {
	// DBConfig is the db directory for badger, the dsn for sqlite and postgres.
	DBType   string
	DBConfig string

	Wallet      ports.Wallet
	Messenger   ports.Messenger
	Arbitration ports.Arbitration
	PubSub      ports.PubSub
	Clock       ports.Clock

	Network               domain.Network
	SeedNodes             []domain.NodeAddress
	TLSEnabled            bool
	Capabilities          domain.Capabilities
	MandatoryCapabilities []domain.Capability
	TradeTxFee            uint64
	TakerFeeBasisPoint    uint64
	Arbitrator            domain.MaybeAddress
	ProtocolConfig        protocol.Config

	repo      ports.RepoManager
	offerBook ports.OfferBook
	pubsub    *pubsub.Service
	protocol  *protocol.Service
	trade     *trade.Service
	offer     *offer.Service
}

func (c *Config) Validate() error {
	if _, ok := SupportedDBType[c.DBType]; !ok {
		return fmt.Errorf("unsupported db type %s", c.DBType)
	}
	if c.Wallet == nil {
		return fmt.Errorf("missing wallet")
	}
	if c.Messenger == nil {
		return fmt.Errorf("missing messenger")
	}
	if c.Arbitration == nil {
		return fmt.Errorf("missing arbitration")
	}
	if c.PubSub == nil {
		return fmt.Errorf("missing pubsub")
	}
	if _, err := c.repoManager(); err != nil {
		return err
	}
	if _, err := c.protocolService(); err != nil {
		return err
	}
	if _, err := c.tradeService(); err != nil {
		return err
	}
	if _, err := c.offerService(); err != nil {
		return err
	}
	return nil
}

func (c *Config) RepoManager() ports.RepoManager {
	repo, _ := c.repoManager()
	return repo
}

func (c *Config) PubSubService() *pubsub.Service {
	svc, _ := c.pubsubService()
	return svc
}

func (c *Config) ProtocolService() *protocol.Service {
	svc, _ := c.protocolService()
	return svc
}

func (c *Config) TradeService() *trade.Service {
	svc, _ := c.tradeService()
	return svc
}

func (c *Config) OfferService() *offer.Service {
	svc, _ := c.offerService()
	return svc
}

func (c *Config) repoManager() (ports.RepoManager, error) {
	if c.repo == nil {
		var (
			repo ports.RepoManager
			err  error
		)
		switch c.DBType {
		case DBBadger:
			repo, err = dbbadger.NewRepoManager(c.DBConfig, dbbadger.NewLogger())
		case DBSqlite:
			repo, err = dbgorm.NewRepoManager(dbgorm.DriverSqlite, c.DBConfig)
		case DBPostgres:
			repo, err = dbgorm.NewRepoManager(dbgorm.DriverPostgres, c.DBConfig)
		default:
			repo = inmemory.NewRepoManager()
		}
		if err != nil {
			return nil, err
		}
		log.Debugf("using %s trade repository", c.DBType)
		c.repo = repo
	}
	return c.repo, nil
}

func (c *Config) offerBookService() (ports.OfferBook, error) {
	if c.offerBook == nil {
		repo, err := c.repoManager()
		if err != nil {
			return nil, err
		}
		book, err := offerbook.NewService(
			repo.OfferRepository(), c.SeedNodes, c.TLSEnabled,
		)
		if err != nil {
			return nil, err
		}
		c.offerBook = book
	}
	return c.offerBook, nil
}

func (c *Config) pubsubService() (*pubsub.Service, error) {
	if c.pubsub == nil {
		svc, err := pubsub.NewService(c.PubSub)
		if err != nil {
			return nil, err
		}
		c.pubsub = svc
	}
	return c.pubsub, nil
}

func (c *Config) protocolService() (*protocol.Service, error) {
	if c.protocol == nil {
		repo, err := c.repoManager()
		if err != nil {
			return nil, err
		}
		publisher, err := c.pubsubService()
		if err != nil {
			return nil, err
		}
		svc, err := protocol.NewService(
			repo, c.Wallet, c.Messenger, c.Arbitration, publisher, c.Clock,
			c.ProtocolConfig,
		)
		if err != nil {
			return nil, err
		}
		c.protocol = svc
	}
	return c.protocol, nil
}

func (c *Config) tradeService() (*trade.Service, error) {
	if c.trade == nil {
		tradeProtocol, err := c.protocolService()
		if err != nil {
			return nil, err
		}
		book, err := c.offerBookService()
		if err != nil {
			return nil, err
		}
		repo, _ := c.repoManager()
		svc, err := trade.NewService(
			tradeProtocol, book, repo, c.Clock, trade.Config{
				Self:                  c.ProtocolConfig.Self,
				Network:               c.Network,
				Arbitrator:            c.Arbitrator,
				TxFee:                 c.TradeTxFee,
				TakerFeeBasisPoint:    c.TakerFeeBasisPoint,
				MandatoryCapabilities: c.MandatoryCapabilities,
			},
		)
		if err != nil {
			return nil, err
		}
		c.trade = svc
	}
	return c.trade, nil
}

func (c *Config) offerService() (*offer.Service, error) {
	if c.offer == nil {
		book, err := c.offerBookService()
		if err != nil {
			return nil, err
		}
		svc, err := offer.NewService(
			book, c.Clock, c.ProtocolConfig.Self, c.Network, c.Capabilities,
		)
		if err != nil {
			return nil, err
		}
		c.offer = svc
	}
	return c.offer, nil
}
