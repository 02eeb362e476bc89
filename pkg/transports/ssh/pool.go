package ssh

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/rs/zerolog"
)

// Pool shares one connection per user@host:port across callers.
type Pool struct {
	base   *Config
	logger zerolog.Logger

	mu      sync.Mutex
	clients map[string]*Client
}

// NewPool creates a pool. base supplies credentials and timeouts; each
// location supplies host, port and optionally user.
func NewPool(base *Config, logger zerolog.Logger) *Pool {
	if base == nil {
		base = DefaultConfig("", "")
	}
	return &Pool{
		base:    base,
		logger:  logger,
		clients: make(map[string]*Client),
	}
}

// Client returns a connected client for the host named by location.
func (p *Pool) Client(ctx context.Context, location *url.URL) (*Client, error) {
	cfg, err := p.base.ForLocation(location)
	if err != nil {
		return nil, err
	}
	key := cfg.Key()

	p.mu.Lock()
	c, ok := p.clients[key]
	if !ok {
		c, err = NewClient(cfg, p.logger)
		if err != nil {
			p.mu.Unlock()
			return nil, fmt.Errorf("ssh %s: %w", key, err)
		}
		p.clients[key] = c
	}
	p.mu.Unlock()

	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Len returns the number of pooled clients.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}

// Close closes every pooled connection.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	for key, c := range p.clients {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
		delete(p.clients, key)
	}
	return errors.Join(errs...)
}
