package orchestrator

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
)

// LivenessProbe checks whether a URL is still reachable before archivers
// spend real work on it. Only a definite 404/410 counts as dead: network
// errors, timeouts and server errors are treated as "maybe alive" so a
// flaky origin never suppresses an archive attempt.
type LivenessProbe struct {
	client  *http.Client
	perHost float64
	logger  arbor.ILogger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewLivenessProbe creates a probe with a per-host request rate cap.
func NewLivenessProbe(timeout time.Duration, perHost float64, logger arbor.ILogger) *LivenessProbe {
	if perHost <= 0 {
		perHost = 1
	}
	return &LivenessProbe{
		client: &http.Client{
			Timeout: timeout,
			// Redirects are fine - a moved page is still alive.
		},
		perHost:  perHost,
		logger:   logger,
		limiters: make(map[string]*rate.Limiter),
	}
}

// IsGone reports whether target is definitively dead.
func (p *LivenessProbe) IsGone(ctx context.Context, target string) bool {
	dead, _ := p.Gone(ctx, target)
	return dead
}

// Gone reports whether target is definitively dead along with the HTTP
// status that proved it. Inconclusive probes report (false, 0). HEAD
// first; origins that reject HEAD get a ranged GET so we never download
// full bodies.
func (p *LivenessProbe) Gone(ctx context.Context, target string) (bool, int) {
	parsed, err := url.Parse(target)
	if err != nil || parsed.Host == "" {
		return false, 0
	}

	if err := p.limiter(parsed.Hostname()).Wait(ctx); err != nil {
		return false, 0
	}

	status, err := p.request(ctx, http.MethodHead, target)
	if err == nil && status != http.StatusMethodNotAllowed && status != http.StatusNotImplemented {
		return verdict(status)
	}

	status, err = p.request(ctx, http.MethodGet, target)
	if err != nil {
		p.logger.Debug().
			Err(err).
			Str("url", target).
			Msg("Liveness probe inconclusive")
		return false, 0
	}
	return verdict(status)
}

func (p *LivenessProbe) request(ctx context.Context, method, target string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; hoard-probe/1.0)")
	if method == http.MethodGet {
		req.Header.Set("Range", "bytes=0-0")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

func (p *LivenessProbe) limiter(host string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	l, ok := p.limiters[host]
	if !ok {
		l = rate.NewLimiter(rate.Limit(p.perHost), 1)
		p.limiters[host] = l
	}
	return l
}

func verdict(status int) (bool, int) {
	if status == http.StatusNotFound || status == http.StatusGone {
		return true, status
	}
	return false, 0
}
