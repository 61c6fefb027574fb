package httpinterface

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-escrow/internal/core/domain"
	"github.com/tdex-network/tdex-escrow/internal/core/ports"
	wsmessenger "github.com/tdex-network/tdex-escrow/internal/infrastructure/messenger/websocket"
	"github.com/tdex-network/tdex-escrow/internal/infrastructure/offerbook"
	"github.com/tdex-network/tdex-escrow/internal/interfaces"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 5 * time.Second
)

type ServiceOpts struct {
	OperatorAddress string
	P2PAddress      string
	// TLSCertPath and TLSKeyPath enable TLS on the p2p listener.
	TLSCertPath string
	TLSKeyPath  string

	TradeSvc       TradeService
	OfferSvc       OfferService
	WebhookSvc     WebhookService
	OfferRepo      domain.OfferRepository
	MessageHandler ports.MessageHandler

	EnableMetrics bool
}

func (o ServiceOpts) validate() error {
	if o.OperatorAddress == "" {
		return fmt.Errorf("missing operator address")
	}
	if o.P2PAddress == "" {
		return fmt.Errorf("missing p2p address")
	}
	if (o.TLSCertPath == "") != (o.TLSKeyPath == "") {
		return fmt.Errorf("tls cert and key must be both defined or undefined")
	}
	if o.TradeSvc == nil {
		return fmt.Errorf("missing trade service")
	}
	if o.OfferSvc == nil {
		return fmt.Errorf("missing offer service")
	}
	if o.WebhookSvc == nil {
		return fmt.Errorf("missing webhook service")
	}
	if o.OfferRepo == nil {
		return fmt.Errorf("missing offer repository")
	}
	if o.MessageHandler == nil {
		return fmt.Errorf("missing message handler")
	}
	return nil
}

type service struct {
	opts           ServiceOpts
	operatorServer *http.Server
	p2pServer      *http.Server
	addresses      map[string]string
}

// NewService returns the http interface of the daemon, made of the operator
// REST api and of the p2p endpoints served to the other nodes.
func NewService(opts ServiceOpts) (interfaces.Service, error) {
	if err := opts.validate(); err != nil {
		return nil, fmt.Errorf("invalid opts: %w", err)
	}

	p2pRouter, err := newP2PRouter(opts)
	if err != nil {
		return nil, err
	}

	return &service{
		opts: opts,
		operatorServer: &http.Server{
			Handler:           newOperatorRouter(opts),
			ReadHeaderTimeout: readHeaderTimeout,
		},
		p2pServer: &http.Server{
			Handler:           p2pRouter,
			ReadHeaderTimeout: readHeaderTimeout,
		},
	}, nil
}

func (s *service) Start() error {
	operatorLis, err := net.Listen("tcp", s.opts.OperatorAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on operator address: %w", err)
	}
	p2pLis, err := net.Listen("tcp", s.opts.P2PAddress)
	if err != nil {
		operatorLis.Close()
		return fmt.Errorf("failed to listen on p2p address: %w", err)
	}
	if s.opts.TLSCertPath != "" {
		cert, err := tls.LoadX509KeyPair(s.opts.TLSCertPath, s.opts.TLSKeyPath)
		if err != nil {
			operatorLis.Close()
			p2pLis.Close()
			return fmt.Errorf("failed to load tls key pair: %w", err)
		}
		p2pLis = tls.NewListener(p2pLis, &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		})
	}

	s.addresses = map[string]string{
		"operator": operatorLis.Addr().String(),
		"p2p":      p2pLis.Addr().String(),
	}
	go serve(s.operatorServer, operatorLis, "operator")
	go serve(s.p2pServer, p2pLis, "p2p")
	log.Infof("operator interface is listening on %s", s.addresses["operator"])
	log.Infof("p2p interface is listening on %s", s.addresses["p2p"])
	return nil
}

func (s *service) Addresses() map[string]string {
	addresses := make(map[string]string, len(s.addresses))
	for name, addr := range s.addresses {
		addresses[name] = addr
	}
	return addresses
}

func (s *service) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.operatorServer.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("failed to gracefully stop operator interface")
	}
	log.Debug("stopped operator interface")
	if err := s.p2pServer.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("failed to gracefully stop p2p interface")
	}
	log.Debug("stopped p2p interface")
}

func serve(server *http.Server, lis net.Listener, name string) {
	if err := server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Errorf("%s interface stopped unexpectedly", name)
	}
}

func newOperatorRouter(opts ServiceOpts) http.Handler {
	h := &operatorHandler{opts.TradeSvc, opts.OfferSvc, opts.WebhookSvc}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if opts.EnableMetrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Route("/offers", func(r chi.Router) {
			r.Get("/", h.listOffers)
			r.Post("/", h.createOffer)
			r.Get("/{id}", h.getOffer)
			r.Post("/{id}/take", h.takeOffer)
		})
		r.Route("/trades", func(r chi.Router) {
			r.Get("/", h.listTrades)
			r.Get("/{id}", h.getTrade)
			r.Post("/{id}/payment-started", h.paymentStarted)
			r.Post("/{id}/payment-received", h.paymentReceived)
			r.Post("/{id}/cancel", h.cancel)
			r.Post("/{id}/dispute", h.requestDispute)
			r.Post("/{id}/dispute/close", h.closeDispute)
		})
		r.Route("/webhooks", func(r chi.Router) {
			r.Get("/", h.listWebhooks)
			r.Post("/", h.addWebhook)
			r.Delete("/{id}", h.removeWebhook)
		})
	})
	return r
}

func newP2PRouter(opts ServiceOpts) (http.Handler, error) {
	peerHandler, err := wsmessenger.NewHandler(opts.MessageHandler)
	if err != nil {
		return nil, err
	}
	h := &p2pHandler{opts.OfferRepo}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle(wsmessenger.PeerPath, peerHandler)
	r.Get(offerbook.OffersPath, h.listOffers)
	return r, nil
}
