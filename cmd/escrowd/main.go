package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-escrow/internal/config"
	"github.com/tdex-network/tdex-escrow/internal/core/application"
	"github.com/tdex-network/tdex-escrow/internal/core/domain"
	"github.com/tdex-network/tdex-escrow/internal/infrastructure/arbitration"
	escrowwallet "github.com/tdex-network/tdex-escrow/internal/infrastructure/escrow-wallet"
	wsmessenger "github.com/tdex-network/tdex-escrow/internal/infrastructure/messenger/websocket"
	"github.com/tdex-network/tdex-escrow/internal/infrastructure/pubsub"
	dbbadger "github.com/tdex-network/tdex-escrow/internal/infrastructure/storage/db/badger"
	httpinterface "github.com/tdex-network/tdex-escrow/internal/interfaces/http"
	"github.com/tdex-network/tdex-escrow/pkg/stats"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	if err := config.InitConfig(); err != nil {
		log.WithError(err).Fatal("failed to load config")
	}
	log.SetLevel(log.Level(config.GetInt(config.LogLevelKey)))
	if logFile := config.GetLogFile(); logFile != "" {
		log.SetOutput(io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    50,
			MaxBackups: 5,
			MaxAge:     30,
			Compress:   true,
		}))
	}

	var (
		self          = config.GetNodeAddress()
		network       = config.GetNetwork()
		tlsEnabled    = config.GetString(config.P2PTLSCertKey) != ""
		operatorAddr  = fmt.Sprintf(":%d", config.GetInt(config.OperatorListeningPortKey))
		p2pAddr       = fmt.Sprintf(":%d", config.GetInt(config.P2PListeningPortKey))
		protocolCfg   = config.GetProtocolConfig()
		capabilities  = domain.NewCapabilities(domain.CapabilityMultisigEscrow)
		mandatoryCaps = []domain.Capability{domain.CapabilityMultisigEscrow}
	)
	if protocolCfg.ArbitratorMode || config.GetArbitrator().Known {
		capabilities = domain.NewCapabilities(
			domain.CapabilityMultisigEscrow, domain.CapabilityArbitration,
		)
	}

	messenger, err := wsmessenger.NewMessenger(
		config.GetInt(config.P2PMsgsPerSecondKey), tlsEnabled,
	)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize messenger")
	}
	arbitrationSvc, err := arbitration.NewService(messenger, self)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize arbitration")
	}
	wallet, err := escrowwallet.NewService(config.GetString(config.WalletAddrKey))
	if err != nil {
		log.WithError(err).Fatal("failed to connect to escrow wallet")
	}
	webhookPubSub, err := pubsub.NewService(
		config.GetWebhooksDatadir(), dbbadger.NewLogger(),
	)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize webhook pubsub")
	}

	appConfig := &application.Config{
		DBType:                config.GetString(config.DBTypeKey),
		DBConfig:              config.GetDBConfig(),
		Wallet:                wallet,
		Messenger:             messenger,
		Arbitration:           arbitrationSvc,
		PubSub:                webhookPubSub,
		Network:               network,
		SeedNodes:             config.GetSeedNodes(),
		TLSEnabled:            tlsEnabled,
		Capabilities:          capabilities,
		MandatoryCapabilities: mandatoryCaps,
		TradeTxFee:            config.GetUint64(config.TradeTxFeeKey),
		TakerFeeBasisPoint:    config.GetUint64(config.TakerFeeKey),
		Arbitrator:            config.GetArbitrator(),
		ProtocolConfig:        protocolCfg,
	}
	if err := appConfig.Validate(); err != nil {
		log.WithError(err).Fatal("invalid application config")
	}

	protocolSvc := appConfig.ProtocolService()
	httpSvc, err := httpinterface.NewService(httpinterface.ServiceOpts{
		OperatorAddress: operatorAddr,
		P2PAddress:      p2pAddr,
		TLSCertPath:     config.GetString(config.P2PTLSCertKey),
		TLSKeyPath:      config.GetString(config.P2PTLSKeyKey),
		TradeSvc:        appConfig.TradeService(),
		OfferSvc:        appConfig.OfferService(),
		WebhookSvc:      appConfig.PubSubService(),
		OfferRepo:       appConfig.RepoManager().OfferRepository(),
		MessageHandler:  protocolSvc,
		EnableMetrics:   config.GetBool(config.EnableMetricsKey),
	})
	if err != nil {
		log.WithError(err).Fatal("failed to initialize http interface")
	}

	ctx, cancel := context.WithCancel(context.Background())
	if interval := config.GetDuration(config.StatsIntervalKey); interval > 0 {
		reporter, err := stats.NewReporter(interval, filepath.Join(
			config.GetDatadir(), config.StatsLocation, "metrics",
		))
		if err != nil {
			log.WithError(err).Fatal("failed to initialize stats reporter")
		}
		reporter.Start(ctx)
	}

	stop := func() {
		cancel()
		httpSvc.Stop()
		protocolSvc.Stop()
		messenger.Close()
		appConfig.PubSubService().Close()
		appConfig.RepoManager().Close()
		log.Info("shutdown completed")
	}

	if err := protocolSvc.Start(ctx); err != nil {
		stop()
		log.WithError(err).Fatal("failed to start trade protocol")
	}
	if interval := config.GetDuration(config.WalletStatusIntervalKey); interval > 0 {
		wallet.Watch(ctx, interval)
	}
	if err := httpSvc.Start(); err != nil {
		stop()
		log.WithError(err).Fatal("failed to start http interface")
	}

	log.Infof(
		"escrow daemon started on %s as %s (arbitrator mode: %t)",
		network, self, protocolCfg.ArbitratorMode,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT, os.Interrupt)
	<-sigChan

	log.Info("shutting down daemon")
	stop()
}
