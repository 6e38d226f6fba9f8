package sse

import "time"

// Config holds configuration for SSE connections
type Config struct {
	// KeepAliveInterval is how often to send keep-alive pings. Agent turns
	// can sit in an LLM call for tens of seconds, so pings keep proxies from
	// cutting the stream.
	KeepAliveInterval time.Duration
}

// DefaultConfig returns the default SSE configuration. 10 seconds is safe
// for most proxies.
func DefaultConfig() *Config {
	return &Config{
		KeepAliveInterval: 10 * time.Second,
	}
}
