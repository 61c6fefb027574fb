package protocol

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-escrow/internal/core/domain"
	"github.com/tdex-network/tdex-escrow/internal/core/ports"
)

const sendTimeout = 15 * time.Second

// Service drives the trades of the local node through the trade protocol.
// Every event regarding a trade (peer message, wallet result, user action,
// timeout) is queued and consumed by the single worker of that trade, which
// is the only writer of the trade record.
type Service struct {
	repoManager ports.RepoManager
	wallet      ports.Wallet
	messenger   ports.Messenger
	arbitration ports.Arbitration
	publisher   EventPublisher
	clock       ports.Clock
	cfg         Config
	metrics     *protocolMetrics

	ctx    context.Context
	cancel context.CancelFunc

	lock      *sync.Mutex
	workers   map[string]*worker
	deadlines map[string]ports.Timer
	wg        *sync.WaitGroup
	takeLock  *sync.Mutex

	walletDown  bool
	walletCause error
	paused      map[string]eventKind
}

// NewService returns a new trade protocol service. The publisher is
// optional, while clock defaults to the system one if nil.
func NewService(
	repoManager ports.RepoManager,
	wallet ports.Wallet,
	messenger ports.Messenger,
	arbitration ports.Arbitration,
	publisher EventPublisher,
	clock ports.Clock,
	cfg Config,
) (*Service, error) {
	if repoManager == nil {
		return nil, fmt.Errorf("missing repo manager")
	}
	if wallet == nil {
		return nil, fmt.Errorf("missing wallet")
	}
	if messenger == nil {
		return nil, fmt.Errorf("missing messenger")
	}
	if arbitration == nil {
		return nil, fmt.Errorf("missing arbitration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if clock == nil {
		clock = ports.SystemClock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	svc := &Service{
		repoManager: repoManager,
		wallet:      wallet,
		messenger:   messenger,
		arbitration: arbitration,
		publisher:   publisher,
		clock:       clock,
		cfg:         cfg,
		metrics:     defaultMetrics(),
		ctx:         ctx,
		cancel:      cancel,
		lock:        &sync.Mutex{},
		workers:     make(map[string]*worker),
		deadlines:   make(map[string]ports.Timer),
		wg:          &sync.WaitGroup{},
		takeLock:    &sync.Mutex{},
		paused:      make(map[string]eventKind),
	}
	if notifier, ok := wallet.(ports.WalletNotifier); ok {
		notifier.RegisterListener(svc)
	}
	return svc, nil
}

// Start restores the pending trades after a restart: the deadlines are
// re-armed from their persisted value and the pending wallet or dispute
// operations are resumed. Messages are not replayed.
func (s *Service) Start(ctx context.Context) error {
	trades, err := s.repoManager.TradeRepository().GetPendingTrades(ctx)
	if err != nil {
		return fmt.Errorf("failed to load pending trades: %w", err)
	}

	for _, trade := range trades {
		log.Debugf(
			"resuming trade %s in stage %s as %s", trade.ID, trade.Stage(), trade.Role,
		)
		s.schedule(trade, true, true)
	}
	log.Infof("trade protocol started with %d pending trade(s)", len(trades))
	return nil
}

// Stop stops all workers and timers. Pending events are dropped, the
// persisted state is enough to resume with Start.
func (s *Service) Stop() {
	s.lock.Lock()
	s.cancel()
	for id, timer := range s.deadlines {
		timer.Stop()
		delete(s.deadlines, id)
	}
	s.lock.Unlock()

	s.wg.Wait()
	log.Debug("trade protocol stopped")
}

// OpenTrade persists a trade just created by the taker, notifies the maker
// and starts the protocol.
func (s *Service) OpenTrade(ctx context.Context, trade *domain.Trade) error {
	if trade.IsMaker {
		return fmt.Errorf("only the taker opens a trade")
	}
	maker, ok := trade.Maker.Get()
	if !ok {
		return fmt.Errorf("missing maker address")
	}

	s.setDeadline(trade)
	if err := s.repoManager.TradeRepository().AddTrade(ctx, trade); err != nil {
		return err
	}
	s.afterUpdate(trade)

	msg := s.newMessage(trade, domain.MessageOfferTaken)
	msg.Amount = trade.Amount
	msg.Payload[domain.PayloadTxFee] = fmt.Sprint(trade.TxFee)
	msg.Payload[domain.PayloadTakerFee] = fmt.Sprint(trade.TakerFee)
	if arbitrator, ok := trade.Arbitrator.Get(); ok {
		msg.Payload[domain.PayloadArbitrator] = arbitrator.String()
	}
	s.sendTo(maker, msg)

	s.schedule(trade.Clone(), true, false)
	return nil
}

// HandleMessage queues a message received from a peer. Messages are
// processed asynchronously, invalid ones are logged and discarded.
func (s *Service) HandleMessage(_ context.Context, msg domain.Message) error {
	if msg.TradeID == "" {
		s.metrics.rejected.WithLabelValues("malformed").Inc()
		return fmt.Errorf("%w: missing trade id", domain.ErrProtocolViolation)
	}
	if msg.UID == "" {
		s.metrics.rejected.WithLabelValues("malformed").Inc()
		return fmt.Errorf("%w: missing message uid", domain.ErrProtocolViolation)
	}
	return s.enqueue(msg.TradeID, event{kind: eventMessage, msg: msg})
}

// Do applies an action of the local user to a trade and waits for the
// result. The action is queued behind the events already received for the
// trade, an unknown trade is reported as domain.ErrTradeNotFound.
func (s *Service) Do(ctx context.Context, tradeID string, action UserAction) error {
	switch action.Action {
	case domain.ActionStartPayment, domain.ActionConfirmPaymentReceived,
		domain.ActionRequestDispute, domain.ActionCancel,
		domain.ActionCloseDispute:
	default:
		return ErrActionNotAllowed
	}

	reply := make(chan error, 1)
	if err := s.enqueue(
		tradeID, event{kind: eventAction, action: action, reply: reply},
	); err != nil {
		return err
	}

	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
		return ErrServiceStopped
	}
}

func (s *Service) enqueue(tradeID string, ev event) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	// Checked under lock so that no worker is added to the wait group once
	// Stop is waiting on it.
	if s.ctx.Err() != nil {
		return ErrServiceStopped
	}

	w, ok := s.workers[tradeID]
	if !ok {
		w = newWorker(tradeID)
		s.workers[tradeID] = w
		s.metrics.activeWorkers.Inc()
		s.wg.Add(1)
		go s.run(w)
	}
	w.pending = append(w.pending, ev)

	select {
	case w.notify <- struct{}{}:
	default:
	}
	return nil
}

// enqueueAfter queues the event once the delay has elapsed.
func (s *Service) enqueueAfter(d time.Duration, tradeID string, ev event) {
	s.clock.AfterFunc(d, func() {
		//nolint
		s.enqueue(tradeID, ev)
	})
}

func (s *Service) run(w *worker) {
	defer s.wg.Done()
	defer s.metrics.activeWorkers.Dec()

	idle := time.NewTimer(s.cfg.WorkerIdleTimeout)
	defer idle.Stop()

	for {
		s.lock.Lock()
		if len(w.pending) > 0 {
			ev := w.pending[0]
			w.pending = w.pending[1:]
			s.lock.Unlock()

			s.process(w.tradeID, ev)
			continue
		}
		s.lock.Unlock()

		if !idle.Stop() {
			select {
			case <-idle.C:
			default:
			}
		}
		idle.Reset(s.cfg.WorkerIdleTimeout)

		select {
		case <-s.ctx.Done():
			s.lock.Lock()
			delete(s.workers, w.tradeID)
			s.lock.Unlock()
			return
		case <-w.notify:
		case <-idle.C:
			s.lock.Lock()
			if len(w.pending) == 0 {
				delete(s.workers, w.tradeID)
				s.lock.Unlock()
				return
			}
			s.lock.Unlock()
		}
	}
}

func (s *Service) process(tradeID string, ev event) {
	if s.ctx.Err() != nil {
		if ev.reply != nil {
			ev.reply <- ErrServiceStopped
		}
		return
	}

	switch ev.kind {
	case eventMessage:
		s.handleMessage(ev.msg)
	case eventAction:
		ev.reply <- s.handleAction(tradeID, ev.action)
	case eventPublishDeposit:
		s.publishDeposit(tradeID, ev.attempt)
	case eventPollDeposit:
		s.pollDeposit(tradeID, ev.attempt)
	case eventPublishPayout:
		s.publishPayout(tradeID, ev.attempt)
	case eventPollPayout:
		s.pollPayout(tradeID, ev.attempt)
	case eventOpenDispute:
		s.openDispute(tradeID, ev.attempt)
	case eventTimeout:
		s.handleTimeout(tradeID, ev.phase)
	case eventWalletReconnected:
		s.handleWalletReconnected(tradeID)
	default:
		log.Warnf("trade %s: unknown event %d", tradeID, ev.kind)
	}
}

// update applies fn to the stored trade and persists the result only if fn
// reports a change. It returns a snapshot of the trade after fn and whether
// it was persisted. On change, the phase deadline is reset and the next
// protocol steps are scheduled.
func (s *Service) update(
	tradeID string, fn func(t *domain.Trade) (bool, error),
) (*domain.Trade, bool, error) {
	var (
		snapshot       *domain.Trade
		phaseChanged   bool
		disputeChanged bool
	)

	err := s.repoManager.TradeRepository().UpdateTrade(
		s.ctx, tradeID, func(t *domain.Trade) (*domain.Trade, error) {
			phase, dispute := t.Phase, t.Dispute.Code

			changed, err := fn(t)
			if err != nil {
				return nil, err
			}
			snapshot = t.Clone()
			if !changed {
				return nil, errUnchanged
			}

			phaseChanged = t.Phase != phase
			disputeChanged = t.Dispute.Code != dispute
			if phaseChanged || disputeChanged {
				s.setDeadline(t)
				snapshot = t.Clone()
			}
			return t, nil
		},
	)
	if errors.Is(err, errUnchanged) {
		return snapshot, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	s.afterUpdate(snapshot)
	if phaseChanged || disputeChanged {
		s.schedule(snapshot, phaseChanged, disputeChanged)
	}
	return snapshot, true, nil
}

func (s *Service) afterUpdate(trade *domain.Trade) {
	s.metrics.transitions.WithLabelValues(trade.Stage()).Inc()
	if trade.Stall.IsStalled() {
		log.Warnf(
			"trade %s stalled in stage %s (%s): %s",
			trade.ID, trade.Stage(), trade.Stall.Kind, trade.Stall.Detail,
		)
	}

	if s.publisher == nil {
		return
	}

	s.lock.Lock()
	if s.ctx.Err() != nil {
		s.lock.Unlock()
		return
	}
	s.wg.Add(1)
	s.lock.Unlock()

	snapshot := *trade.Clone()
	go func() {
		defer s.wg.Done()
		if err := s.publisher.PublishTradeUpdate(snapshot); err != nil {
			log.WithError(err).Warnf(
				"failed to publish update of trade %s", snapshot.ID,
			)
		}
	}()
}

// setDeadline sets the deadline for the phase the trade just entered. No
// deadline is set for terminal phases and while a dispute is live, since
// the arbitrator is then in charge of the trade.
func (s *Service) setDeadline(t *domain.Trade) {
	t.Deadline = 0
	if t.Phase.IsTerminal() || t.Dispute.IsLive() {
		return
	}

	timeout := s.cfg.PhaseTimeout
	if t.Phase == domain.PhaseDepositPublished ||
		t.Phase == domain.PhasePayoutPublished {
		timeout = s.cfg.WalletConfirmTimeout
	}
	t.Deadline = s.clock.Now().Add(timeout).Unix()
}

func (s *Service) armDeadline(t *domain.Trade) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if timer, ok := s.deadlines[t.ID]; ok {
		timer.Stop()
		delete(s.deadlines, t.ID)
	}
	if t.Deadline <= 0 || s.ctx.Err() != nil {
		return
	}

	d := time.Unix(t.Deadline, 0).Sub(s.clock.Now())
	if d < 0 {
		d = 0
	}
	tradeID, phase := t.ID, t.Phase
	s.deadlines[tradeID] = s.clock.AfterFunc(d, func() {
		//nolint
		s.enqueue(tradeID, event{kind: eventTimeout, phase: phase})
	})
}

// schedule arms the phase deadline and queues the operations the local
// party must perform in the current phase. Wallet operations that move
// funds are not started while a dispute is live, confirmations are still
// tracked.
func (s *Service) schedule(t *domain.Trade, phaseChanged, disputeChanged bool) {
	s.armDeadline(t)
	if t.Phase.IsTerminal() {
		return
	}

	if disputeChanged && t.Dispute.Code == domain.DisputeRequested &&
		requestedLocally(t) {
		//nolint
		s.enqueue(t.ID, event{kind: eventOpenDispute})
	}

	if !phaseChanged {
		return
	}

	for _, msg := range t.ProcessModel.DeferredMessages {
		//nolint
		s.enqueue(t.ID, event{kind: eventMessage, msg: msg})
	}

	switch t.Phase {
	case domain.PhaseOfferTaken:
		if !t.Dispute.IsLive() && t.CanInitiate(domain.ActionPublishDeposit) {
			//nolint
			s.enqueue(t.ID, event{kind: eventPublishDeposit})
		}
	case domain.PhaseDepositPublished:
		//nolint
		s.enqueue(t.ID, event{kind: eventPollDeposit})
	case domain.PhasePaymentReceivedConfirmed:
		if !t.Dispute.IsLive() && t.CanInitiate(domain.ActionPublishPayout) {
			//nolint
			s.enqueue(t.ID, event{kind: eventPublishPayout})
		}
	case domain.PhasePayoutPublished:
		//nolint
		s.enqueue(t.ID, event{kind: eventPollPayout})
	}
}

func (s *Service) handleTimeout(tradeID string, phase domain.Phase) {
	now := s.clock.Now().Unix()
	trade, _, err := s.update(tradeID, func(t *domain.Trade) (bool, error) {
		if t.Phase != phase || t.Deadline <= 0 || now < t.Deadline {
			return false, nil
		}
		return t.MarkStalled(domain.StallTimeout, timeoutDetail(t)), nil
	})
	if err != nil {
		log.WithError(err).Warnf("trade %s: failed to handle timeout", tradeID)
		return
	}
	if trade.Stall.Kind == domain.StallTimeout && trade.Stall.Phase == phase {
		s.metrics.stalls.WithLabelValues(domain.StallTimeout.String()).Inc()
	}
}

// stall surfaces a stalled-trade condition on the trade.
func (s *Service) stall(tradeID string, kind domain.StallKind, cause error) {
	_, changed, err := s.update(tradeID, func(t *domain.Trade) (bool, error) {
		return t.MarkStalled(kind, cause.Error()), nil
	})
	if err != nil {
		log.WithError(err).Warnf("trade %s: failed to mark as stalled", tradeID)
		return
	}
	if changed {
		s.metrics.stalls.WithLabelValues(kind.String()).Inc()
	}
}

func (s *Service) getTrade(tradeID string) (*domain.Trade, error) {
	return s.repoManager.TradeRepository().GetTrade(s.ctx, tradeID)
}

func (s *Service) newMessage(
	t *domain.Trade, msgType domain.MessageType,
) domain.Message {
	msg := domain.NewMessage(t.ID, msgType, t.Role, s.cfg.Self)
	msg.OfferID = t.Offer.ID
	return msg
}

// sendToCounterparty is best effort: a lost message makes the counterparty
// stall on timeout, which is recoverable through a dispute.
func (s *Service) sendToCounterparty(t *domain.Trade, msg domain.Message) {
	addr, ok := t.Counterparty().Get()
	if !ok {
		log.Warnf(
			"trade %s: counterparty address unknown, %s not sent", t.ID, msg.Type,
		)
		s.metrics.sentMessages.WithLabelValues(string(msg.Type), "skipped").Inc()
		return
	}
	s.sendTo(addr, msg)
}

func (s *Service) sendTo(addr domain.NodeAddress, msg domain.Message) {
	ctx, cancel := context.WithTimeout(s.ctx, sendTimeout)
	defer cancel()

	if err := s.messenger.Send(ctx, addr, msg); err != nil {
		log.WithError(err).Warnf(
			"trade %s: failed to send %s to %s", msg.TradeID, msg.Type, addr,
		)
		s.metrics.sentMessages.WithLabelValues(string(msg.Type), "failed").Inc()
		return
	}
	s.metrics.sentMessages.WithLabelValues(string(msg.Type), "sent").Inc()
}

func requestedLocally(t *domain.Trade) bool {
	e, ok := t.ProcessModel.Get(domain.StepDisputeRequest)
	return ok && string(e.Blob) == t.Role.String()
}

func timeoutDetail(t *domain.Trade) string {
	return fmt.Sprintf("no progress in phase %s before deadline", t.Phase)
}
