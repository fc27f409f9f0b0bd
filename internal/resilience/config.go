package resilience

import "time"

// Breaker tuning.
const (
	DefaultThreshold         = 5
	DefaultResetTimeout      = 30 * time.Second
	DefaultHalfOpenSuccesses = 2

	// Translation providers trip sooner: a dead endpoint should fall back to source text quickly.
	TranslationThreshold         = 3
	TranslationResetTimeout      = 15 * time.Second
	TranslationHalfOpenSuccesses = 1
)

// Config holds circuit breaker settings.
type Config struct {
	Name              string        // used in log records
	Threshold         int           // consecutive failures before opening
	ResetTimeout      time.Duration // wait before a half-open trial
	HalfOpenSuccesses int           // trial successes needed to close
}

// DefaultConfig returns general purpose settings.
func DefaultConfig() Config {
	return Config{
		Name:              "default",
		Threshold:         DefaultThreshold,
		ResetTimeout:      DefaultResetTimeout,
		HalfOpenSuccesses: DefaultHalfOpenSuccesses,
	}
}

// TranslationConfig returns settings for remote translation providers.
func TranslationConfig(name string) Config {
	return Config{
		Name:              name,
		Threshold:         TranslationThreshold,
		ResetTimeout:      TranslationResetTimeout,
		HalfOpenSuccesses: TranslationHalfOpenSuccesses,
	}
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = DefaultResetTimeout
	}
	if c.HalfOpenSuccesses <= 0 {
		c.HalfOpenSuccesses = DefaultHalfOpenSuccesses
	}
	return c
}
