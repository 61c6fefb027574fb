package protocol_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/tdex-network/tdex-escrow/internal/core/domain"
	"github.com/tdex-network/tdex-escrow/internal/core/ports"
)

// **** Wallet ****

type mockWallet struct {
	mock.Mock

	lock            sync.Mutex
	walletListener  ports.WalletListener
	confirmDeposits atomic.Int32
}

func (m *mockWallet) RegisterListener(listener ports.WalletListener) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.walletListener = listener
}

func (m *mockWallet) listener() ports.WalletListener {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.walletListener
}

func (m *mockWallet) PublishDeposit(
	ctx context.Context, trade domain.Trade,
) (string, error) {
	args := m.Called(ctx, trade)
	return args.String(0), args.Error(1)
}

func (m *mockWallet) ConfirmDeposit(ctx context.Context, txID string) (bool, error) {
	m.confirmDeposits.Add(1)
	args := m.Called(ctx, txID)
	return args.Bool(0), args.Error(1)
}

func (m *mockWallet) PublishPayout(
	ctx context.Context, trade domain.Trade,
) (string, error) {
	args := m.Called(ctx, trade)
	return args.String(0), args.Error(1)
}

func (m *mockWallet) ConfirmPayout(ctx context.Context, txID string) (bool, error) {
	args := m.Called(ctx, txID)
	return args.Bool(0), args.Error(1)
}

func (m *mockWallet) IsRetryable(err error) bool {
	return ports.IsRetryableWalletError(err)
}

// **** Arbitration ****

type mockArbitration struct {
	mock.Mock
}

func (m *mockArbitration) OpenDispute(
	ctx context.Context, trade domain.Trade, reason string,
) error {
	args := m.Called(ctx, trade, reason)
	return args.Error(0)
}

func (m *mockArbitration) CloseDispute(
	ctx context.Context, trade domain.Trade, outcome domain.DisputeOutcome,
) error {
	args := m.Called(ctx, trade, outcome)
	return args.Error(0)
}

// **** Network ****

// network delivers messages in process to the handlers of the joined nodes
// and keeps track of everything sent.
type network struct {
	lock  sync.Mutex
	nodes map[domain.NodeAddress]ports.MessageHandler
	sent  []sentMessage
	drop  func(msg domain.Message) bool
}

type sentMessage struct {
	to  domain.NodeAddress
	msg domain.Message
}

func newNetwork() *network {
	return &network{nodes: make(map[domain.NodeAddress]ports.MessageHandler)}
}

func (n *network) join(addr domain.NodeAddress, handler ports.MessageHandler) {
	n.lock.Lock()
	defer n.lock.Unlock()
	n.nodes[addr] = handler
}

func (n *network) dropIf(fn func(msg domain.Message) bool) {
	n.lock.Lock()
	defer n.lock.Unlock()
	n.drop = fn
}

func (n *network) Send(
	ctx context.Context, to domain.NodeAddress, msg domain.Message,
) error {
	n.lock.Lock()
	n.sent = append(n.sent, sentMessage{to, msg})
	handler, ok := n.nodes[to]
	drop := n.drop
	n.lock.Unlock()

	if drop != nil && drop(msg) {
		return nil
	}
	if !ok {
		return nil
	}
	//nolint
	handler.HandleMessage(ctx, msg)
	return nil
}

func (n *network) sentOfType(msgType domain.MessageType) []sentMessage {
	n.lock.Lock()
	defer n.lock.Unlock()

	res := make([]sentMessage, 0)
	for _, s := range n.sent {
		if s.msg.Type == msgType {
			res = append(res, s)
		}
	}
	return res
}

// **** Clock ****

// fakeClock only moves forward when told to, firing the timers that
// expired.
type fakeClock struct {
	lock   sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) ports.Timer {
	c.lock.Lock()
	defer c.lock.Unlock()

	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the clock forward and fires the expired timers in order.
func (c *fakeClock) Advance(d time.Duration) {
	c.lock.Lock()
	c.now = c.now.Add(d)
	expired := make([]*fakeTimer, 0)
	pending := make([]*fakeTimer, 0)
	for _, t := range c.timers {
		if t.stopped {
			continue
		}
		if !t.at.After(c.now) {
			t.stopped = true
			expired = append(expired, t)
			continue
		}
		pending = append(pending, t)
	}
	c.timers = pending
	c.lock.Unlock()

	sort.SliceStable(expired, func(i, j int) bool {
		return expired[i].at.Before(expired[j].at)
	})
	for _, t := range expired {
		t.f()
	}
}

func (c *fakeClock) pendingTimers() int {
	c.lock.Lock()
	defer c.lock.Unlock()

	count := 0
	for _, t := range c.timers {
		if !t.stopped {
			count++
		}
	}
	return count
}

func (t *fakeTimer) Stop() bool {
	t.clock.lock.Lock()
	defer t.clock.lock.Unlock()

	if t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// **** Publisher ****

type recordingPublisher struct {
	lock     sync.Mutex
	updates  []domain.Trade
	delay    time.Duration
	inFlight atomic.Int32
}

func (p *recordingPublisher) PublishTradeUpdate(trade domain.Trade) error {
	p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	time.Sleep(p.delay)

	p.lock.Lock()
	defer p.lock.Unlock()
	p.updates = append(p.updates, trade)
	return nil
}

func (p *recordingPublisher) stages(tradeID string) []string {
	p.lock.Lock()
	defer p.lock.Unlock()

	stages := make([]string, 0)
	for _, t := range p.updates {
		if t.ID == tradeID {
			stages = append(stages, t.Stage())
		}
	}
	return stages
}

var errWalletUnavailable = fmt.Errorf("%w: node unavailable", ports.ErrWalletRetryable)
