package gateway

import "time"

// Config bounds the provider call and the compensating refund retries.
type Config struct {
	// ProviderTimeout caps a single upstream invocation.
	ProviderTimeout time.Duration
	// RefundAttempts is the number of inline refund tries after a
	// provider failure before the reconciliation sweep takes over.
	RefundAttempts int
	// RefundBackoff is the initial delay between refund tries. Each
	// subsequent try doubles it.
	RefundBackoff time.Duration
}

func (c Config) withDefaults() Config {
	if c.ProviderTimeout <= 0 {
		c.ProviderTimeout = 120 * time.Second
	}
	if c.RefundAttempts <= 0 {
		c.RefundAttempts = 4
	}
	if c.RefundBackoff <= 0 {
		c.RefundBackoff = 100 * time.Millisecond
	}
	return c
}
