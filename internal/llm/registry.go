package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// ErrProviderNotConfigured is returned when no client exists for a provider.
var ErrProviderNotConfigured = errors.New("provider not configured")

// providerOrder fixes the listing order of Providers.
var providerOrder = []Provider{ProviderOpenAI, ProviderGemini}

// Registry holds one client per configured provider. It is built once at
// startup and is read-only afterwards.
type Registry struct {
	clients map[Provider]Client
}

// NewRegistry creates a registry from clients. A later client for the same
// provider replaces an earlier one.
func NewRegistry(clients ...Client) *Registry {
	r := &Registry{clients: make(map[Provider]Client, len(clients))}
	for _, c := range clients {
		if c != nil {
			r.clients[c.Provider()] = c
		}
	}
	return r
}

// OpenRegistry creates clients for every config that carries an API key.
// Configs without a key are skipped. Already opened clients are closed if
// one fails.
func OpenRegistry(ctx context.Context, log logrus.FieldLogger, configs ...*Config) (*Registry, error) {
	clients := make([]Client, 0, len(configs))
	for _, cfg := range configs {
		if cfg == nil || cfg.APIKey == "" {
			continue
		}
		client, err := NewClient(ctx, cfg, log)
		if err != nil {
			for _, c := range clients {
				_ = c.Close()
			}
			return nil, fmt.Errorf("failed to create %s client: %w", cfg.Provider, err)
		}
		clients = append(clients, client)
	}
	return NewRegistry(clients...), nil
}

// Get returns the client for p.
func (r *Registry) Get(p Provider) (Client, error) {
	if c, ok := r.clients[p]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrProviderNotConfigured, p)
}

// Has reports whether p is configured.
func (r *Registry) Has(p Provider) bool {
	_, ok := r.clients[p]
	return ok
}

// Providers lists configured providers in a stable order.
func (r *Registry) Providers() []Provider {
	out := make([]Provider, 0, len(r.clients))
	for _, p := range providerOrder {
		if _, ok := r.clients[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Close closes every client and returns the joined errors.
func (r *Registry) Close() error {
	var errs []error
	for _, p := range r.Providers() {
		if err := r.clients[p].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
