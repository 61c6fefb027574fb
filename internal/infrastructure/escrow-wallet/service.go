package escrowwallet

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-escrow/internal/core/domain"
	"github.com/tdex-network/tdex-escrow/internal/core/ports"
)

const (
	methodGetStatus      = "escrow_getStatus"
	methodPublishDeposit = "escrow_publishDeposit"
	methodPublishPayout  = "escrow_publishPayout"
	methodGetTxStatus    = "escrow_getTxStatus"
)

// Service is the Wallet talking json-rpc over http with the external escrow
// wallet daemon. It also notifies the registered listeners of the changes of
// the wallet connection status while watching it.
type Service struct {
	client *client

	lock      *sync.Mutex
	listeners []ports.WalletListener
	status    connStatus
}

// NewService returns a Wallet for the escrow wallet daemon at addr. An
// unreachable wallet is not an error, the trade protocol retries its
// operations.
func NewService(addr string) (*Service, error) {
	u, err := url.Parse(addr)
	if err != nil || u.Host == "" {
		u, err = url.Parse(fmt.Sprintf("http://%s", addr))
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("invalid wallet address %q", addr)
		}
	}
	if u.Path == "" {
		u.Path = "/json_rpc"
	}

	svc := &Service{client: newClient(u.String()), lock: &sync.Mutex{}}

	status, err := svc.getStatus(context.Background())
	if err != nil {
		log.WithError(err).Warnf("escrow wallet at %s not reachable", u.Host)
	} else {
		log.Infof(
			"connected to escrow wallet %s (network %s, synced %t)",
			u.Host, status.Network, status.Synced,
		)
	}
	return svc, nil
}

// RegisterListener adds a listener of the wallet connection changes.
func (s *Service) RegisterListener(listener ports.WalletListener) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.listeners = append(s.listeners, listener)
}

// Watch checks the wallet status every interval until the context is done.
// A wallet is connected when it replies and its node is synced.
func (s *Service) Watch(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			s.checkStatus(ctx, interval)

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

func (s *Service) PublishDeposit(
	ctx context.Context, trade domain.Trade,
) (string, error) {
	params := depositParams{
		tradeParams:     newTradeParams(trade),
		SecurityDeposit: securityDepositOf(trade),
		TxFee:           trade.TxFee,
		TakerFee:        trade.TakerFee,
	}
	res := &txResult{}
	if err := s.client.call(ctx, methodPublishDeposit, params, res); err != nil {
		return "", err
	}
	if res.TxID == "" {
		return "", fmt.Errorf("%s: missing txid in result", methodPublishDeposit)
	}
	return res.TxID, nil
}

func (s *Service) ConfirmDeposit(ctx context.Context, txID string) (bool, error) {
	return s.isConfirmed(ctx, txID)
}

func (s *Service) PublishPayout(
	ctx context.Context, trade domain.Trade,
) (string, error) {
	params := payoutParams{
		tradeParams: newTradeParams(trade),
		DepositTxID: trade.ProcessModel.DepositTxID(),
	}
	if trade.Dispute.Outcome != nil {
		params.Resolution = trade.Dispute.Outcome.Resolution.String()
	} else {
		amount, err := trade.PayoutAmount()
		if err != nil {
			return "", err
		}
		params.PayoutAmount = amount
	}

	res := &txResult{}
	if err := s.client.call(ctx, methodPublishPayout, params, res); err != nil {
		return "", err
	}
	if res.TxID == "" {
		return "", fmt.Errorf("%s: missing txid in result", methodPublishPayout)
	}
	return res.TxID, nil
}

func (s *Service) ConfirmPayout(ctx context.Context, txID string) (bool, error) {
	return s.isConfirmed(ctx, txID)
}

func (s *Service) IsRetryable(err error) bool {
	return ports.IsRetryableWalletError(err)
}

func (s *Service) isConfirmed(ctx context.Context, txID string) (bool, error) {
	res := &txStatusResult{}
	if err := s.client.call(
		ctx, methodGetTxStatus, txStatusParams{txID}, res,
	); err != nil {
		return false, err
	}
	return res.Confirmed, nil
}

func (s *Service) getStatus(ctx context.Context) (*statusResult, error) {
	status := &statusResult{}
	if err := s.client.call(ctx, methodGetStatus, struct{}{}, status); err != nil {
		return nil, err
	}
	return status, nil
}

func (s *Service) checkStatus(ctx context.Context, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var cause error
	status, err := s.getStatus(ctx)
	switch {
	case err != nil:
		cause = err
	case !status.Synced:
		cause = errors.New("wallet node is not synced")
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return
	}

	next := statusConnected
	if cause != nil {
		next = statusDisconnected
	}

	s.lock.Lock()
	prev := s.status
	s.status = next
	listeners := append([]ports.WalletListener(nil), s.listeners...)
	s.lock.Unlock()

	if prev == next || (prev == statusUnknown && next == statusConnected) {
		return
	}
	for _, l := range listeners {
		if next == statusConnected {
			l.OnWalletConnected()
			continue
		}
		l.OnWalletDisconnected(cause)
	}
}

func securityDepositOf(trade domain.Trade) uint64 {
	if trade.Role == domain.RoleBuyer {
		return trade.Offer.BuyerSecurityDeposit
	}
	return trade.Offer.SellerSecurityDeposit
}
