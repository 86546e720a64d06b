// Package scheduler runs the background status poll that keeps every
// service's container snapshot fresh between explicit requests.
package scheduler

import (
	"context"
	"log"
	"time"
)

// Refresher re-probes a set of services. Implemented by the lifecycle
// manager.
type Refresher interface {
	RefreshAll(ctx context.Context, serviceIDs []string) error
}

// ServiceLister names the services to poll. Implemented by the registry.
type ServiceLister func() []string

// Poller re-probes every catalog service on a fixed interval.
type Poller struct {
	refresher Refresher
	services  ServiceLister
	interval  time.Duration
	ticker    *time.Ticker
	stop      chan bool
	running   bool
}

// New creates a poller. A non-positive interval falls back to 10s.
func New(refresher Refresher, services ServiceLister, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Poller{
		refresher: refresher,
		services:  services,
		interval:  interval,
		stop:      make(chan bool),
	}
}

// Start begins the poll loop
func (p *Poller) Start(ctx context.Context) {
	if p.running {
		log.Println("Status poller already running")
		return
	}

	p.running = true
	p.ticker = time.NewTicker(p.interval)

	log.Printf("Status poller started - refreshing every %s", p.interval)

	go func() {
		// Refresh immediately on start
		p.refresh(ctx)

		for {
			select {
			case <-p.ticker.C:
				p.refresh(ctx)
			case <-p.stop:
				p.ticker.Stop()
				p.running = false
				log.Println("Status poller stopped")
				return
			case <-ctx.Done():
				p.ticker.Stop()
				p.running = false
				return
			}
		}
	}()
}

// Stop halts the poller
func (p *Poller) Stop() {
	if p.running {
		p.stop <- true
	}
}

func (p *Poller) refresh(ctx context.Context) {
	ids := p.services()
	if len(ids) == 0 {
		return
	}
	if err := p.refresher.RefreshAll(ctx, ids); err != nil {
		log.Printf("Status refresh failed: %v", err)
	}
}
