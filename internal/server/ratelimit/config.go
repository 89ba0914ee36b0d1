package ratelimit

import (
	"net/http"
	"time"
)

// Paths with their own limits
const (
	StreamPath = "/brochures/stream"
	LinksPath  = "/links"
)

// EndpointConfig represents rate limiting configuration for a specific endpoint.
type EndpointConfig struct {
	Path   string        // Endpoint path pattern (supports prefix matching)
	Method string        // HTTP method (GET, POST, etc.)
	Limit  int           // Maximum requests per window
	Window time.Duration // Time window
	Burst  int           // Burst capacity (defaults to Limit if 0)
}

// NewConfig returns an enabled configuration with a default limit per window
// and a stricter limit for brochure streams. A zero limit disables limiting.
func NewConfig(limit int, window time.Duration, streamLimit int, streamWindow time.Duration) *Config {
	return &Config{
		Enabled:         limit > 0 || streamLimit > 0,
		DefaultLimit:    limit,
		DefaultWindow:   window,
		CleanupInterval: 5 * time.Minute,
		IdleTTL:         DefaultIdleTTL,
		Whitelist:       make(map[string]bool),
		Blacklist:       make(map[string]bool),
		EndpointConfigs: DefaultEndpointConfigs(streamLimit, streamWindow),
	}
}

// DefaultEndpointConfigs returns the endpoint-specific configurations.
func DefaultEndpointConfigs(streamLimit int, streamWindow time.Duration) []EndpointConfig {
	burst := streamLimit / 5
	if burst < 1 {
		burst = 1
	}
	return []EndpointConfig{
		// Generation is the expensive operation: strictest limits
		{Path: StreamPath, Method: http.MethodPost, Limit: streamLimit, Window: streamWindow, Burst: burst},
		// Link suggestions make one LLM call
		{Path: LinksPath, Method: http.MethodPost, Limit: streamLimit * 3, Window: streamWindow, Burst: burst * 3},
	}
}
