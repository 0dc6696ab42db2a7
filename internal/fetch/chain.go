package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pfrederiksen/shuttle-schedule/internal/logger"
	"github.com/pfrederiksen/shuttle-schedule/internal/parser"
	"github.com/pfrederiksen/shuttle-schedule/internal/schedule"
)

const (
	DefaultTimeout       = 15 * time.Second
	DefaultMinBodyLength = 100
)

var (
	// ErrTimeout is recorded when a strategy exceeds its time budget
	ErrTimeout = errors.New("timeout")

	// ErrBodyTooShort is recorded for bodies too small to be the schedule page,
	// typically relay error pages served with 200 OK
	ErrBodyTooShort = errors.New("body too short")

	// ErrNoStrategies is returned by a chain with nothing to try
	ErrNoStrategies = errors.New("no fetch strategies configured")
)

// TransportError wraps a failure to obtain a usable body from one strategy
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

// Attempt records why one strategy failed
type Attempt struct {
	Source string
	Err    error
}

// Reason returns the failure reason as text
func (a Attempt) Reason() string {
	if a.Err == nil {
		return ""
	}
	return a.Err.Error()
}

// AcquisitionError is returned when every strategy failed
type AcquisitionError struct {
	Attempts []Attempt
}

func (e *AcquisitionError) Error() string {
	if len(e.Attempts) == 0 {
		return ErrNoStrategies.Error()
	}
	reasons := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		reasons = append(reasons, fmt.Sprintf("%s: %s", a.Source, a.Reason()))
	}
	return fmt.Sprintf("all %d sources failed (%s)", len(e.Attempts), strings.Join(reasons, " | "))
}

// Unwrap exposes every per-strategy error to errors.Is and errors.As
func (e *AcquisitionError) Unwrap() []error {
	if len(e.Attempts) == 0 {
		return []error{ErrNoStrategies}
	}
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		errs = append(errs, a.Err)
	}
	return errs
}

// Config holds the chain's limits
type Config struct {
	Timeout       time.Duration // per strategy
	MinBodyLength int
}

// Chain tries strategies in order until one yields a snapshot with records
type Chain struct {
	strategies    []Strategy
	fetcher       Fetcher
	parser        *parser.Parser
	timeout       time.Duration
	minBodyLength int
	log           *logger.Logger
	metrics       *logger.Metrics
}

// NewChain creates a Chain. Zero config values select the defaults.
func NewChain(strategies []Strategy, fetcher Fetcher, p *parser.Parser, cfg Config) *Chain {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MinBodyLength <= 0 {
		cfg.MinBodyLength = DefaultMinBodyLength
	}
	return &Chain{
		strategies:    strategies,
		fetcher:       fetcher,
		parser:        p,
		timeout:       cfg.Timeout,
		minBodyLength: cfg.MinBodyLength,
		log:           logger.Nop(),
		metrics:       logger.DefaultMetrics(),
	}
}

// WithLogger sets the logger for attempt diagnostics
func (c *Chain) WithLogger(l *logger.Logger) *Chain {
	c.log = l
	return c
}

// WithMetrics sets the metrics tracker
func (c *Chain) WithMetrics(m *logger.Metrics) *Chain {
	c.metrics = m
	return c
}

// Strategies returns the configured strategies in priority order
func (c *Chain) Strategies() []Strategy {
	return c.strategies
}

// AcquireLive runs the strategies sequentially and returns the first non-empty snapshot.
// Strategy failures are recorded and never stop the chain; only cancellation of ctx
// does. When all strategies fail the error is an *AcquisitionError listing each one.
func (c *Chain) AcquireLive(ctx context.Context) (*schedule.Snapshot, error) {
	if len(c.strategies) == 0 {
		return nil, &AcquisitionError{}
	}

	attempts := make([]Attempt, 0, len(c.strategies))
	for _, s := range c.strategies {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("acquisition cancelled: %w", err)
		}

		start := time.Now()
		snap, err := c.try(ctx, s)
		c.metrics.RecordTiming("fetch.strategy."+s.Label, time.Since(start))
		c.metrics.IncrCounter("fetch.attempts")

		if err == nil {
			c.log.Info("Strategy succeeded", logger.Fields{
				"source":   s.Label,
				"records":  len(snap.Records),
				"for_date": snap.ForDate,
			})
			return snap, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("acquisition cancelled: %w", ctxErr)
		}

		c.metrics.IncrCounter("fetch.failures")
		c.log.Warn("Strategy failed", logger.Fields{"source": s.Label}, err)
		attempts = append(attempts, Attempt{Source: s.Label, Err: err})
	}

	return nil, &AcquisitionError{Attempts: attempts}
}

// try runs one strategy through fetch, unwrap, length check and parse.
// Bodies of at most minBodyLength characters are rejected.
func (c *Chain) try(ctx context.Context, s Strategy) (*schedule.Snapshot, error) {
	body, err := c.fetchWithTimeout(ctx, s)
	if err != nil {
		return nil, &TransportError{Err: err}
	}

	if s.EnvelopeField != "" {
		body, err = unwrapEnvelope(body, s.EnvelopeField)
		if err != nil {
			return nil, &TransportError{Err: err}
		}
	}

	payload := string(body)
	if n := utf8.RuneCountInString(strings.TrimSpace(payload)); n <= c.minBodyLength {
		return nil, &TransportError{Err: fmt.Errorf("%w: %d characters", ErrBodyTooShort, n)}
	}

	snap, err := c.parser.ParseAuto(payload)
	if err != nil {
		return nil, err
	}
	if snap.IsEmpty() {
		return nil, parser.ErrNoRecords
	}
	return snap, nil
}

// fetchWithTimeout bounds one fetch by the chain timeout. A fetcher that ignores its
// context is abandoned when the timeout fires; its late result is discarded.
func (c *Chain) fetchWithTimeout(ctx context.Context, s Strategy) ([]byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	type result struct {
		body []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		body, err := c.fetcher.Fetch(attemptCtx, s)
		done <- result{body: body, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrTimeout, c.timeout)
		}
		return r.body, r.err
	case <-attemptCtx.Done():
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w after %s", ErrTimeout, c.timeout)
	}
}

// unwrapEnvelope extracts the page body from a relay's JSON envelope
func unwrapEnvelope(body []byte, field string) ([]byte, error) {
	var envelope map[string]interface{}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decoding envelope: %w", err)
	}
	contents, ok := envelope[field].(string)
	if !ok {
		return nil, fmt.Errorf("envelope field %q missing or not a string", field)
	}
	return []byte(contents), nil
}
