package escrowwallet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"
	"github.com/tdex-network/tdex-escrow/internal/core/ports"
	"github.com/tdex-network/tdex-escrow/pkg/circuitbreaker"
)

const (
	jsonRPCVersion = "2.0"
	requestTimeout = 30 * time.Second

	// Implementation defined server errors of json-rpc 2.0, used by the
	// wallet daemon for transient conditions (wallet busy, node syncing).
	minServerErrCode = -32099
	maxServerErrCode = -32000
)

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      uint64      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("wallet error %d: %s", e.Code, e.Message)
}

func (e *rpcError) isTransient() bool {
	return e.Code >= minServerErrCode && e.Code <= maxServerErrCode
}

type client struct {
	url    string
	http   *http.Client
	cb     *gobreaker.CircuitBreaker
	nextID uint64
}

func newClient(url string) *client {
	return &client{
		url:  url,
		http: &http.Client{Timeout: requestTimeout},
		cb:   circuitbreaker.NewCircuitBreaker("escrow-wallet"),
	}
}

// call invokes the given method and decodes its result into res. Transient
// failures are wrapped with ports.ErrWalletRetryable.
func (c *client) call(
	ctx context.Context, method string, params, res interface{},
) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: jsonRPCVersion,
		ID:      atomic.AddUint64(&c.nextID, 1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return err
	}

	result, err := c.cb.Execute(func() (interface{}, error) {
		return c.post(ctx, body)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) ||
			errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%w: %s: %s", ports.ErrWalletRetryable, method, err)
		}
		return fmt.Errorf("%s: %w", method, err)
	}

	resp := result.(*rpcResponse)
	if resp.Error != nil {
		if resp.Error.isTransient() {
			return fmt.Errorf("%w: %s: %s", ports.ErrWalletRetryable, method, resp.Error)
		}
		return fmt.Errorf("%s: %w", method, resp.Error)
	}
	if res == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Result, res); err != nil {
		return fmt.Errorf("%s: invalid result: %w", method, err)
	}
	return nil
}

// post performs the http round trip. Only transport and server failures are
// returned as errors, so that they count against the circuit breaker.
func (c *client) post(ctx context.Context, body []byte) (*rpcResponse, error) {
	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.url, bytes.NewReader(body),
	)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	rs, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ports.ErrWalletRetryable, err)
	}
	defer rs.Body.Close()

	buf, err := io.ReadAll(io.LimitReader(rs.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ports.ErrWalletRetryable, err)
	}
	if rs.StatusCode >= http.StatusInternalServerError ||
		rs.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf(
			"%w: wallet replied %d", ports.ErrWalletRetryable, rs.StatusCode,
		)
	}

	resp := &rpcResponse{}
	if err := json.Unmarshal(buf, resp); err != nil {
		return nil, fmt.Errorf("invalid response (status %d): %w", rs.StatusCode, err)
	}
	return resp, nil
}
