// Package solana fetches Solana staking rewards, either live over the
// JSON-RPC API or from a SolScan CSV export.
//
// The public mainnet RPC endpoint enforces aggressive request-rate
// limits, so every RPC call goes through a batch scheduler: concurrent
// epoch queries are coalesced into fixed-size bursts separated by a
// cooldown instead of being fired at once.
package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	boff "github.com/Andrej220/go-utils/backoff"

	"github.com/me/staketax/internal/batch"
)

const (
	DefaultRPCURL = "https://api.mainnet-beta.solana.com"

	// The public endpoint tolerates bursts of ~40 requests; 38 per batch
	// with a 10s cooldown stays under its limiter.
	DefaultBatchSize = 38
	DefaultCooldown  = 10 * time.Second

	defaultHTTPTimeout  = 30 * time.Second
	defaultAttempts     = 3
	defaultRetryInitial = 500 * time.Millisecond
	defaultRetryMax     = 8 * time.Second
)

// Config configures a Client. Zero values fall back to the defaults
// above.
type Config struct {
	URL           string
	BatchSize     int
	Cooldown      time.Duration
	HTTPTimeout   time.Duration
	RetryAttempts int
}

func (c *Config) fillDefaults() {
	if c.URL == "" {
		c.URL = DefaultRPCURL
	}
	if c.BatchSize == 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Cooldown == 0 {
		c.Cooldown = DefaultCooldown
	}
	if c.HTTPTimeout == 0 {
		c.HTTPTimeout = defaultHTTPTimeout
	}
	if c.RetryAttempts == 0 {
		c.RetryAttempts = defaultAttempts
	}
}

// Client is a rate-limited Solana JSON-RPC client.
type Client struct {
	url      string
	http     *http.Client
	sched    *batch.Scheduler[json.RawMessage]
	attempts int
	logger   *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	cfg.fillDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	sched, err := batch.New[json.RawMessage](batch.Options{
		BatchSize: cfg.BatchSize,
		Cooldown:  cfg.Cooldown,
	})
	if err != nil {
		return nil, err
	}
	return &Client{
		url:      cfg.URL,
		http:     &http.Client{Timeout: cfg.HTTPTimeout},
		sched:    sched,
		attempts: cfg.RetryAttempts,
		logger:   logger.With("component", "solana"),
	}, nil
}

// Close tears down the scheduler; in-flight submissions resolve with an
// error.
func (c *Client) Close() { c.sched.Stop() }

type rpcRequest struct {
	Jsonrpc string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcEnvelope struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// RPCError is a JSON-RPC error object returned by the node.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("solana: rpc error %d: %s", e.Code, e.Message)
}

// transientError marks failures worth retrying: transport errors, 429s
// and 5xx statuses.
type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// call schedules one JSON-RPC request; it blocks until the batch
// scheduler has executed it.
func (c *Client) call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	return c.sched.Submit(ctx, func(ctx context.Context) (json.RawMessage, error) {
		return c.do(ctx, method, params)
	})
}

// do performs the HTTP exchange with backoff on transient failures.
func (c *Client) do(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	body, err := json.Marshal(rpcRequest{
		Jsonrpc: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("solana: marshal request: %w", err)
	}

	bo := boff.New(defaultRetryInitial, defaultRetryMax, time.Now().UnixNano())
	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		if attempt > 1 {
			delay := bo.Next()
			c.logger.Warn("retrying rpc request",
				"method", method, "attempt", attempt, "delay", delay, "error", lastErr)
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			}
		}

		raw, err := c.doOnce(ctx, body)
		if err == nil {
			return raw, nil
		}
		lastErr = err
		var te *transientError
		if !errors.As(err, &te) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) doOnce(ctx context.Context, body []byte) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("solana: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &transientError{err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		io.Copy(io.Discard, resp.Body)
		return nil, &transientError{err: fmt.Errorf("solana: rpc status %s", resp.Status)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("solana: rpc status %s", resp.Status)
	}

	var env rpcEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("solana: decode response: %w", err)
	}
	if env.Error != nil {
		return nil, env.Error
	}
	return env.Result, nil
}
