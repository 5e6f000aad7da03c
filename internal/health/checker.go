// Package health runs periodic reachability probes against webhook
// subscription endpoints and deactivates subscriptions whose endpoints stay
// dead, so the dispatcher stops burning retries on them.
package health

import (
	"context"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Config holds health check configuration.
type Config struct {
	CheckInterval time.Duration
	ProbeTimeout  time.Duration
	FailThreshold int
}

// Endpoint is the minimal data needed for a probe.
type Endpoint struct {
	ID      uuid.UUID
	Account string
	URL     string
}

// EndpointLister returns the active webhook endpoints to probe.
type EndpointLister interface {
	ListActiveEndpoints(ctx context.Context) ([]Endpoint, error)
}

// StatusUpdater deactivates a subscription whose endpoint is dead.
type StatusUpdater interface {
	Deactivate(ctx context.Context, id uuid.UUID) error
}

// MetricsRecordFunc is an optional callback for recording probe results.
type MetricsRecordFunc func(success bool)

// Checker runs periodic endpoint health probes.
type Checker struct {
	lister     EndpointLister
	updater    StatusUpdater
	httpClient *http.Client
	failCounts map[uuid.UUID]int
	mu         sync.Mutex
	cfg        Config
	onMetrics  MetricsRecordFunc
	logger     *zap.Logger
}

// New creates a Checker.
func New(lister EndpointLister, updater StatusUpdater, cfg Config, logger *zap.Logger) *Checker {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = 5 * time.Minute
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 10 * time.Second
	}
	if cfg.FailThreshold == 0 {
		cfg.FailThreshold = 3
	}

	return &Checker{
		lister:     lister,
		updater:    updater,
		httpClient: &http.Client{Timeout: cfg.ProbeTimeout},
		failCounts: make(map[uuid.UUID]int),
		cfg:        cfg,
		logger:     logger,
	}
}

// SetMetricsRecord configures the metrics recording callback.
func (c *Checker) SetMetricsRecord(fn MetricsRecordFunc) {
	c.onMetrics = fn
}

// Start runs the health check loop until quit is signalled.
func (c *Checker) Start(quit <-chan os.Signal) {
	ticker := time.NewTicker(c.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), c.cfg.CheckInterval-time.Second)
			c.CheckAll(ctx)
			cancel()
		case <-quit:
			return
		}
	}
}

// CheckAll probes all active webhook endpoints with bounded concurrency.
func (c *Checker) CheckAll(ctx context.Context) {
	endpoints, err := c.lister.ListActiveEndpoints(ctx)
	if err != nil {
		c.logger.Error("health: list endpoints", zap.Error(err))
		return
	}

	sem := make(chan struct{}, 10)
	var wg sync.WaitGroup

	for _, e := range endpoints {
		wg.Add(1)
		go func(ep Endpoint) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			success := c.probeEndpoint(ctx, ep.URL)

			if c.onMetrics != nil {
				c.onMetrics(success)
			}

			c.mu.Lock()
			if success {
				delete(c.failCounts, ep.ID)
			} else {
				c.failCounts[ep.ID]++
			}
			count := c.failCounts[ep.ID]
			c.mu.Unlock()

			if count == c.cfg.FailThreshold {
				if err := c.updater.Deactivate(ctx, ep.ID); err != nil {
					c.logger.Warn("health: deactivate subscription", zap.Error(err))
					return
				}
				c.logger.Warn("health: subscription deactivated, endpoint unreachable",
					zap.String("account", ep.Account),
					zap.String("url", ep.URL),
					zap.Int("fail_count", count),
				)
			}
		}(e)
	}

	wg.Wait()
}

// probeEndpoint attempts HEAD then GET, returning true on any response that
// is not a server error. Webhook receivers commonly reject non-POST methods
// with 4xx; that still proves the endpoint is alive.
func (c *Checker) probeEndpoint(ctx context.Context, url string) bool {
	for _, method := range []string{http.MethodHead, http.MethodGet} {
		req, err := http.NewRequestWithContext(ctx, method, url, nil)
		if err != nil {
			return false
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			continue
		}
		resp.Body.Close()
		if resp.StatusCode < 500 {
			return true
		}
	}
	return false
}
