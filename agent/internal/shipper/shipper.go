package shipper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cardiosense/cardiosense/agent/internal/config"
	"github.com/cardiosense/cardiosense/agent/internal/source"
	"github.com/cardiosense/cardiosense/pkg/types"
)

const (
	backoffInitial    = 1 * time.Second
	backoffMax        = 60 * time.Second
	backoffMultiplier = 2.0
	sendTimeout       = 10 * time.Second

	analyzePath = "/api/v1/analyze"
)

// errPermanent marks a sample the server will never accept.
var errPermanent = errors.New("permanent")

// Shipper buffers samples and posts them to cardiosense-server for scoring.
// Ship() is non-blocking; when the buffer is full the oldest sample is evicted.
// Run() must be called in a goroutine to drain the buffer and handle retries.
type Shipper struct {
	target atomic.Pointer[target]
	buf    chan source.Sample

	initialBackoff time.Duration // injectable for tests
}

// target is where and how samples are posted. It is replaced as a whole on
// Reconfigure.
type target struct {
	endpoint string
	url      string
	auth     config.AuthConfig
	client   *http.Client
}

func newTarget(cfg config.AgentConfig) (*target, error) {
	tlsCfg, err := source.TLSConfig(cfg.ServerAuth, false)
	if err != nil {
		return nil, fmt.Errorf("shipper: build tls config: %w", err)
	}
	return &target{
		endpoint: cfg.ServerEndpoint,
		url:      strings.TrimRight(cfg.ServerEndpoint, "/") + analyzePath,
		auth:     cfg.ServerAuth,
		client: &http.Client{
			Transport: &http.Transport{TLSClientConfig: tlsCfg},
			Timeout:   sendTimeout,
		},
	}, nil
}

// New creates a Shipper using the given agent config.
func New(cfg config.AgentConfig) (*Shipper, error) {
	t, err := newTarget(cfg)
	if err != nil {
		return nil, err
	}
	size := cfg.BufferSize
	if size <= 0 {
		size = config.DefaultBufferSize
	}
	s := &Shipper{
		buf:            make(chan source.Sample, size),
		initialBackoff: backoffInitial,
	}
	s.target.Store(t)
	return s, nil
}

// Reconfigure points the shipper at cfg's server endpoint and auth. Buffered
// samples are kept and sent to the new target. The buffer size is fixed at
// New.
func (s *Shipper) Reconfigure(cfg config.AgentConfig) error {
	t, err := newTarget(cfg)
	if err != nil {
		return err
	}
	prev := s.target.Swap(t)
	if prev.endpoint != t.endpoint {
		slog.Info("shipper: endpoint changed", "from", prev.endpoint, "to", t.endpoint)
	}
	return nil
}

// Ship enqueues a sample. If the buffer is full the oldest entry is evicted
// to make room.
func (s *Shipper) Ship(sample source.Sample) {
	select {
	case s.buf <- sample:
	default:
		select {
		case <-s.buf:
			slog.Warn("shipper: buffer full, evicted oldest sample",
				"source", sample.SourceID, "buffer_cap", cap(s.buf))
		default:
		}
		select {
		case s.buf <- sample:
		default:
		}
	}
}

// Pending returns the number of buffered samples.
func (s *Shipper) Pending() int { return len(s.buf) }

// Run drains the buffer, posting samples to the server. Transient failures
// re-queue the sample and back off exponentially. Run blocks until ctx is
// cancelled.
func (s *Shipper) Run(ctx context.Context) {
	bo := newBackoff(s.initialBackoff)

	for {
		select {
		case <-ctx.Done():
			return

		case sample := <-s.buf:
			err := s.send(ctx, sample)
			if err == nil {
				bo.reset()
				continue
			}
			if errors.Is(err, errPermanent) {
				slog.Error("shipper: server rejected sample, discarding",
					"source", sample.SourceID, "err", err)
				continue
			}
			if ctx.Err() != nil {
				return
			}

			// Put the sample back if there's room; otherwise newer data wins.
			select {
			case s.buf <- sample:
			default:
			}

			wait := bo.next()
			slog.Warn("shipper: send failed, will retry",
				"endpoint", s.target.Load().endpoint,
				"err", err,
				"retry_in", wait)
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
		}
	}
}

// send posts one sample. Errors wrapping errPermanent must not be retried.
func (s *Shipper) send(ctx context.Context, sample source.Sample) error {
	t := s.target.Load()
	body, err := json.Marshal(types.AnalyzeRequest{
		PatientID:   sample.PatientID,
		VitalSample: sample.Vitals,
	})
	if err != nil {
		return fmt.Errorf("%w: encode: %v", errPermanent, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build request: %v", errPermanent, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if t.auth.Mode == "apikey" && t.auth.KeyEnv != "" {
		req.Header.Set(t.auth.EffectiveHeader(), t.auth.Key())
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("server status %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", errPermanent, resp.StatusCode, bytes.TrimSpace(msg))
	}

	var out types.AnalyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		slog.Warn("shipper: undecodable response", "source", sample.SourceID, "err", err)
		return nil
	}
	if out.Emergency {
		slog.Warn("shipper: emergency reading",
			"source", sample.SourceID,
			"patient_id", out.PatientID,
			"reading_id", out.ID,
			"score", out.Score,
			"triggered", out.Triggered)
	} else {
		slog.Debug("shipper: sample delivered",
			"source", sample.SourceID, "level", out.Level, "score", out.Score)
	}
	return nil
}

// backoff implements truncated exponential backoff with jitter.
type backoff struct {
	initial time.Duration
	current time.Duration
}

func newBackoff(initial time.Duration) *backoff {
	return &backoff{initial: initial, current: initial}
}

// next returns the current backoff duration and advances the internal state.
func (b *backoff) next() time.Duration {
	d := b.current
	// ±25 % jitter.
	jitter := time.Duration(float64(b.current) * 0.25 * (rand.Float64()*2 - 1)) //nolint:gosec // not crypto
	d += jitter
	if d < 0 {
		d = 0
	}

	b.current = time.Duration(float64(b.current) * backoffMultiplier)
	if b.current > backoffMax {
		b.current = backoffMax
	}
	return d
}

func (b *backoff) reset() {
	b.current = b.initial
}
