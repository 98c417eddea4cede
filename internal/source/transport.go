package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/jpillora/backoff"
	"golang.org/x/time/rate"

	"chainflow/config"
	"chainflow/logger"
)

// retryableStatus lists the HTTP statuses that are retried.
var retryableStatus = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// StatusError is a non-200 response.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.Code, e.URL)
}

// Transport is the HTTP side shared by all sources: one client, one pacing
// limiter and the retry policy.
type Transport struct {
	client  *http.Client
	limiter *rate.Limiter
	retry   config.RetryConfig
	log     *logger.Entry
}

func NewTransport(cfg config.ReaderConfig) *Transport {
	limit := rate.Inf
	if cfg.RequestDelay > 0 {
		limit = rate.Every(cfg.RequestDelay)
	}
	return &Transport{
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, 1),
		retry:   cfg.Retry,
		log:     logger.GetLogger().WithComponent("transport"),
	}
}

// HTTPClient exposes the client so SDK based sources share its timeout.
func (t *Transport) HTTPClient() *http.Client { return t.client }

// Do runs fn once per attempt until it succeeds, fails with a non retryable
// error or the retry budget is spent. Every attempt waits for the limiter.
func (t *Transport) Do(ctx context.Context, op string, retryable func(error) bool, fn func() error) error {
	b := &backoff.Backoff{
		Min:    t.retry.BaseDelay,
		Max:    t.retry.MaxDelay,
		Factor: t.retry.BackoffMultiplier,
		Jitter: true,
	}
	if b.Factor <= 0 {
		b.Factor = 2
	}

	var err error
	for attempt := 0; ; attempt++ {
		if werr := t.limiter.Wait(ctx); werr != nil {
			return werr
		}
		err = fn()
		if err == nil {
			return nil
		}
		if attempt >= t.retry.MaxAttempts || !retryable(err) || ctx.Err() != nil {
			return err
		}

		delay := b.Duration()
		t.log.WithError(err).WithFields(logger.Fields{
			"op":       op,
			"attempt":  attempt + 1,
			"delay_ms": delay.Milliseconds(),
		}).Warn("request failed, retrying")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// GetJSON fetches url and decodes a 200 response into out.
func (t *Transport) GetJSON(ctx context.Context, url string, header http.Header, out interface{}) error {
	return t.Do(ctx, url, isRetryableHTTP, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}

		resp, err := t.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			io.Copy(io.Discard, resp.Body)
			return &StatusError{Code: resp.StatusCode, URL: url}
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	})
}

func isRetryableHTTP(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return retryableStatus[se.Code]
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF)
}
