package cluster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/ushadow/orchestrator/models"
)

var (
	ErrUnknownNode     = errors.New("unknown node")
	ErrLeaderProtected = errors.New("cannot remove the leader node")
)

// RosterClient talks to the fleet roster. Node liveness comes from it
// and is relayed as observed, never derived locally.
type RosterClient interface {
	FetchNodes(ctx context.Context) ([]models.Node, error)
	RemoveNode(ctx context.Context, hostname string) error
}

// Roster polls the fleet roster on a fixed interval and serves the
// latest snapshot. Every snapshot can be stale by up to one interval.
type Roster struct {
	client   RosterClient
	interval time.Duration

	mu        sync.RWMutex
	nodes     []models.Node
	fetchedAt time.Time

	stop    chan struct{}
	running bool
}

func NewRoster(client RosterClient, interval time.Duration) *Roster {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Roster{
		client:   client,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Start begins the polling loop. A refresh runs immediately, then on
// every tick until Stop. A stopped roster can be started again.
func (r *Roster) Start(ctx context.Context) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		log.Println("Roster poller already running")
		return
	}
	r.running = true
	r.stop = make(chan struct{})
	stop := r.stop
	r.mu.Unlock()

	log.Printf("Roster poller started - refreshing every %s", r.interval)

	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		r.refresh(ctx)
		for {
			select {
			case <-ticker.C:
				r.refresh(ctx)
			case <-stop:
				log.Println("Roster poller stopped")
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the polling loop.
func (r *Roster) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		r.running = false
		close(r.stop)
	}
}

func (r *Roster) refresh(ctx context.Context) {
	nodes, err := r.client.FetchNodes(ctx)
	if err != nil {
		// Keep the previous snapshot; the next tick retries.
		log.Printf("Roster refresh failed: %v", err)
		return
	}

	r.mu.Lock()
	r.nodes = nodes
	r.fetchedAt = time.Now().UTC()
	r.mu.Unlock()
}

// Refresh forces an immediate roster fetch outside the tick schedule.
func (r *Roster) Refresh(ctx context.Context) error {
	nodes, err := r.client.FetchNodes(ctx)
	if err != nil {
		return fmt.Errorf("roster fetch: %w", err)
	}
	r.mu.Lock()
	r.nodes = nodes
	r.fetchedAt = time.Now().UTC()
	r.mu.Unlock()
	return nil
}

// Nodes returns the latest relayed snapshot and when it was fetched.
func (r *Roster) Nodes() ([]models.Node, time.Time) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Node, len(r.nodes))
	copy(out, r.nodes)
	return out, r.fetchedAt
}

// RemoveNode deregisters a node from the fleet. The leader cannot be
// removed.
func (r *Roster) RemoveNode(ctx context.Context, hostname string) error {
	r.mu.RLock()
	var found *models.Node
	for idx := range r.nodes {
		if r.nodes[idx].Hostname == hostname {
			found = &r.nodes[idx]
			break
		}
	}
	r.mu.RUnlock()

	if found == nil {
		return fmt.Errorf("%w: %s", ErrUnknownNode, hostname)
	}
	if found.Role == models.RoleLeader {
		return ErrLeaderProtected
	}

	if err := r.client.RemoveNode(ctx, hostname); err != nil {
		return fmt.Errorf("failed to remove node %s: %w", hostname, err)
	}

	// Drop it from the snapshot right away; the next poll confirms.
	r.mu.Lock()
	kept := r.nodes[:0]
	for _, node := range r.nodes {
		if node.Hostname != hostname {
			kept = append(kept, node)
		}
	}
	r.nodes = kept
	r.mu.Unlock()

	log.Printf("Removed node %s from the fleet", hostname)
	return nil
}

// HTTPRosterClient fetches the roster from a backend's node endpoints.
type HTTPRosterClient struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPRosterClient(baseURL string) *HTTPRosterClient {
	return &HTTPRosterClient{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 5 * time.Second},
	}
}

func (c *HTTPRosterClient) FetchNodes(ctx context.Context) ([]models.Node, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/api/unodes", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("roster returned status %d", resp.StatusCode)
	}

	var nodes []models.Node
	if err := json.NewDecoder(resp.Body).Decode(&nodes); err != nil {
		return nil, fmt.Errorf("failed to decode roster: %w", err)
	}
	return nodes, nil
}

func (c *HTTPRosterClient) RemoveNode(ctx context.Context, hostname string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.BaseURL+"/api/unodes/"+hostname, nil)
	if err != nil {
		return err
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("roster returned status %d", resp.StatusCode)
	}
	return nil
}
