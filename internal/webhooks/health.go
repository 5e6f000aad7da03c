package webhooks

import (
	"context"

	"github.com/google/uuid"

	"github.com/goalstash/goalstash/internal/health"
)

// Prober adapts a Repository to the health checker's interfaces so dead
// subscription endpoints get deactivated instead of retried forever.
type Prober struct {
	repo Repository
}

// NewProber creates a Prober over repo.
func NewProber(repo Repository) *Prober {
	return &Prober{repo: repo}
}

// ListActiveEndpoints implements health.EndpointLister.
func (p *Prober) ListActiveEndpoints(ctx context.Context) ([]health.Endpoint, error) {
	subs, err := p.repo.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	endpoints := make([]health.Endpoint, 0, len(subs))
	for _, sub := range subs {
		endpoints = append(endpoints, health.Endpoint{
			ID:      sub.ID,
			Account: sub.Account,
			URL:     sub.URL,
		})
	}
	return endpoints, nil
}

// Deactivate implements health.StatusUpdater.
func (p *Prober) Deactivate(ctx context.Context, id uuid.UUID) error {
	return p.repo.SetActive(ctx, id, false)
}
