package connector

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math"
	"math/rand"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"cms-browser/internal/infra/logx"
)

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

// Limit defines a simple rate limit: RPS with a burst capacity.
type Limit struct {
	RPS   float64
	Burst int
}

// TransportOptions configures the retrying, rate-limited transport.
type TransportOptions struct {
	RetryMax    int
	BackoffBase time.Duration
	BackoffCap  time.Duration
	JitterFn    func(base time.Duration, attempt int) time.Duration
	Clock       Clock
	Metrics     *Metrics

	// Host-specific limits (by req.URL.Host). If missing, DefaultLimit applies.
	HostLimits   map[string]Limit
	DefaultLimit Limit
}

func envFloat(key string, def float64) float64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			return f
		}
	}
	return def
}

func envInt(key string, def, min int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= min {
			return n
		}
	}
	return def
}

// DefaultTransportOptionsFromEnv returns defaults for talking to a CMS
// connector, tunable through CMS_RPS, CMS_BURST, CMS_RETRY_MAX,
// CMS_RETRY_BASE_MS and CMS_RETRY_CAP_MS.
func DefaultTransportOptionsFromEnv() TransportOptions {
	lim := Limit{
		RPS:   envFloat("CMS_RPS", 10),
		Burst: envInt("CMS_BURST", 10, 1),
	}
	return TransportOptions{
		RetryMax:    envInt("CMS_RETRY_MAX", 3, 0),
		BackoffBase: time.Duration(envInt("CMS_RETRY_BASE_MS", 250, 0)) * time.Millisecond,
		BackoffCap:  time.Duration(envInt("CMS_RETRY_CAP_MS", 5000, 1)) * time.Millisecond,
		Clock:       realClock{},
		JitterFn: func(base time.Duration, attempt int) time.Duration {
			if base <= 0 {
				return 0
			}
			return time.Duration(rand.Int63n(base.Nanoseconds()))
		},
		Metrics:      NewMetrics(),
		DefaultLimit: lim,
	}
}

// hostLimiter paces requests to one connector host. Reservations are taken
// against the injected clock so pacing stays testable.
type hostLimiter struct {
	lim   *rate.Limiter
	ceil  rate.Limit
	clock Clock
}

func newHostLimiter(l Limit, clock Clock) *hostLimiter {
	if l.RPS <= 0 {
		l.RPS = 10
	}
	return &hostLimiter{
		lim:   rate.NewLimiter(rate.Limit(l.RPS), max(1, l.Burst)),
		ceil:  rate.Limit(l.RPS),
		clock: clock,
	}
}

// wait blocks until a token is available, polling ctx in 5ms slices.
func (h *hostLimiter) wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := h.clock.Now()
	r := h.lim.ReserveN(now, 1)
	if !r.OK() {
		return errors.New("connector: rate limit burst is zero")
	}
	deadline := now.Add(r.DelayFrom(now))
	for h.clock.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			r.CancelAt(h.clock.Now())
			return err
		}
		h.clock.Sleep(min(5*time.Millisecond, deadline.Sub(h.clock.Now())))
	}
	return nil
}

// nudge moves the rate by delta within [1, configured rate].
func (h *hostLimiter) nudge(delta float64) {
	next := math.Max(1, math.Min(float64(h.ceil), float64(h.lim.Limit())+delta))
	h.lim.SetLimitAt(h.clock.Now(), rate.Limit(next))
}

// RetryingLimiterTransport wraps a base RoundTripper with host-based rate limiting and retries.
type RetryingLimiterTransport struct {
	Base     http.RoundTripper
	Opts     TransportOptions
	limMu    sync.Mutex
	limiters map[string]*hostLimiter
}

func NewRetryingLimiterTransport(opts TransportOptions) *RetryingLimiterTransport {
	return &RetryingLimiterTransport{Opts: opts, limiters: make(map[string]*hostLimiter)}
}

func (t *RetryingLimiterTransport) limitFor(host string) Limit {
	if lim, ok := t.Opts.HostLimits[host]; ok && lim.RPS > 0 {
		return lim
	}
	if t.Opts.DefaultLimit.RPS > 0 {
		return t.Opts.DefaultLimit
	}
	return Limit{RPS: 10, Burst: 10}
}

func (t *RetryingLimiterTransport) limiter(host string) *hostLimiter {
	t.limMu.Lock()
	defer t.limMu.Unlock()
	hl, ok := t.limiters[host]
	if !ok {
		hl = newHostLimiter(t.limitFor(host), t.clock())
		t.limiters[host] = hl
	}
	return hl
}

func (t *RetryingLimiterTransport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *RetryingLimiterTransport) clock() Clock {
	if t.Opts.Clock != nil {
		return t.Opts.Clock
	}
	return realClock{}
}

func (t *RetryingLimiterTransport) jitter(base time.Duration, attempt int) time.Duration {
	if t.Opts.JitterFn != nil {
		return t.Opts.JitterFn(base, attempt)
	}
	return 0
}

// ensureGetBody guarantees the request body is replayable across retries.
// Uploads are buffered once here.
func ensureGetBody(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return nil
	}
	buf, err := io.ReadAll(req.Body)
	if err != nil {
		return err
	}
	req.Body.Close()
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(buf)), nil
	}
	req.Body = io.NopCloser(bytes.NewReader(buf))
	return nil
}

func (t *RetryingLimiterTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := ensureGetBody(req); err != nil {
		return nil, err
	}

	host := req.URL.Host
	lim := t.limiter(host)
	if t.Opts.Metrics != nil {
		t.Opts.Metrics.IncRequest(host, req.Method)
	}
	rc := getRetryCounters(req.Context())

	attempts := max(1, t.Opts.RetryMax+1)
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := lim.wait(req.Context()); err != nil {
			return nil, err
		}

		if attempt > 0 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, err
			}
			req.Body = body
		}

		resp, err := t.base().RoundTrip(req)
		if err != nil {
			if isTransientNetErr(err) && attempt < attempts-1 {
				lastErr = err
				if rc != nil {
					rc.Total++
					rc.Net++
				}
				if t.Opts.Metrics != nil {
					t.Opts.Metrics.IncRetry()
				}
				logx.Debugf("connector: transient error on %s %s, retrying: %v", req.Method, req.URL.Path, err)
				t.sleepBackoff(attempt)
				lim.nudge(-0.1)
				continue
			}
			return nil, err
		}

		if t.Opts.Metrics != nil {
			t.Opts.Metrics.IncStatus(resp.StatusCode)
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			lim.nudge(0.02)
		}

		if shouldRetryStatus(resp.StatusCode) && attempt < attempts-1 {
			resp.Body.Close()
			if rc != nil {
				rc.Total++
				if resp.StatusCode == http.StatusTooManyRequests {
					rc.Status429++
				} else {
					rc.Status5xx++
				}
			}
			if t.Opts.Metrics != nil {
				t.Opts.Metrics.IncRetry()
			}
			lim.nudge(-0.3)
			if ra := parseRetryAfter(resp.Header.Get("Retry-After"), t.clock().Now()); ra > 0 {
				d := minDur(ra, t.Opts.BackoffCap)
				if t.Opts.Metrics != nil {
					t.Opts.Metrics.AddBackoff(d)
				}
				t.clock().Sleep(d)
				continue
			}
			t.sleepBackoff(attempt)
			continue
		}

		return resp, nil
	}
	if lastErr == nil {
		lastErr = errors.New("max retries exceeded")
	}
	return nil, lastErr
}

func (t *RetryingLimiterTransport) sleepBackoff(attempt int) {
	base := t.Opts.BackoffBase
	if base <= 0 {
		base = 250 * time.Millisecond
	}
	cap := t.Opts.BackoffCap
	if cap <= 0 {
		cap = 5 * time.Second
	}
	delay := minDur(time.Duration(float64(base)*math.Pow(2, float64(attempt))), cap)
	d := minDur(delay+t.jitter(delay, attempt), cap)
	t.clock().Sleep(d)
	if t.Opts.Metrics != nil {
		t.Opts.Metrics.AddBackoff(d)
	}
}

func isTransientNetErr(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "temporary") || strings.Contains(msg, "connection reset")
}

func shouldRetryStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable || code == http.StatusGatewayTimeout
}

func parseRetryAfter(h string, now time.Time) time.Duration {
	h = strings.TrimSpace(h)
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(h); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if when, err := http.ParseTime(h); err == nil {
		if d := when.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func minDur(a, b time.Duration) time.Duration {
	if b > 0 && b < a {
		return b
	}
	return a
}
