package ratelimit

import (
	"sync"
	"time"
)

// Provider names used as registry keys, matching the provider chains in
// configuration.
const (
	Primary     = "primary"
	Audnexus    = "audnexus"
	OpenLibrary = "openlibrary"
	GoogleBooks = "googlebooks"
	Hardcover   = "hardcover"
	OpenRouter  = "openrouter"
	Gemini      = "gemini"
)

type defaults struct {
	minDelay    time.Duration
	maxFailures int
	cooldown    time.Duration
}

// providerDefaults holds the §4.2 per-provider min_delay and breaker
// defaults.
var providerDefaults = map[string]defaults{
	Primary:     {1 * time.Second, 5, 120 * time.Second},
	Audnexus:    {2 * time.Second, 3, 300 * time.Second},
	OpenLibrary: {1500 * time.Millisecond, 5, 120 * time.Second},
	GoogleBooks: {1 * time.Second, 5, 120 * time.Second},
	Hardcover:   {1500 * time.Millisecond, 5, 120 * time.Second},
	OpenRouter:  {5 * time.Second, 3, 600 * time.Second},
	Gemini:      {7 * time.Second, 3, 300 * time.Second},
}

// Guard pairs a provider's Limiter and Breaker; adapters call Wait and
// report outcomes through RecordSuccess/RecordFailure.
type Guard struct {
	Limiter *Limiter
	Breaker *Breaker
}

// Registry is the process-wide, mutex-guarded table of per-provider guards
// described in §5 ("the rate-limit and circuit-breaker tables are
// process-wide state guarded by one mutex" — here, one Guard per provider,
// each independently synchronized).
type Registry struct {
	mu     sync.Mutex
	guards map[string]*Guard
}

// NewRegistry builds a Registry with the §4.2 defaults for the seven known
// providers.
func NewRegistry() *Registry {
	r := &Registry{guards: make(map[string]*Guard)}
	for name, d := range providerDefaults {
		r.guards[name] = &Guard{
			Limiter: NewLimiter(d.minDelay),
			Breaker: NewBreaker(d.maxFailures, d.cooldown),
		}
	}
	return r
}

// Guard returns the Guard for a named provider, creating a permissive
// default one if the name is unrecognized (used in tests and for
// future/unlisted providers).
func (r *Registry) Guard(provider string) *Guard {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.guards[provider]; ok {
		return g
	}
	g := &Guard{Limiter: NewLimiter(time.Second), Breaker: NewBreaker(5, 2*time.Minute)}
	r.guards[provider] = g
	return g
}
