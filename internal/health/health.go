// Package health provides a registry of named subsystem health checkers.
//
// Required checkers (the database) decide readiness. Optional checkers
// (the reasoning backend) are reported but never fail readiness, because
// the engine keeps answering rules-only without them.
package health

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/snair2001/WalletRiskAgentWithIExec/internal/circuitbreaker"
)

// Status represents the health of a single subsystem.
type Status struct {
	Name     string `json:"name"`
	Healthy  bool   `json:"healthy"`
	Optional bool   `json:"optional,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// Checker is a function that checks the health of a subsystem.
type Checker func(ctx context.Context) Status

// Registry holds named health checkers and runs them on demand.
type Registry struct {
	mu       sync.RWMutex
	checkers []namedChecker
}

type namedChecker struct {
	name     string
	optional bool
	check    Checker
}

// NewRegistry creates a new health check registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a named health checker that gates readiness.
func (r *Registry) Register(name string, check Checker) {
	r.add(namedChecker{name: name, check: check})
}

// RegisterOptional adds a checker whose failure is reported only.
func (r *Registry) RegisterOptional(name string, check Checker) {
	r.add(namedChecker{name: name, optional: true, check: check})
}

func (r *Registry) add(nc namedChecker) {
	r.mu.Lock()
	r.checkers = append(r.checkers, nc)
	r.mu.Unlock()
}

// CheckAll runs all registered checkers and returns the aggregate health
// status plus individual subsystem results.
func (r *Registry) CheckAll(ctx context.Context) (healthy bool, statuses []Status) {
	r.mu.RLock()
	checkers := make([]namedChecker, len(r.checkers))
	copy(checkers, r.checkers)
	r.mu.RUnlock()

	healthy = true
	statuses = make([]Status, len(checkers))

	for i, nc := range checkers {
		statuses[i] = nc.check(ctx)
		if statuses[i].Name == "" {
			statuses[i].Name = nc.name
		}
		statuses[i].Optional = nc.optional
		if !statuses[i].Healthy && !nc.optional {
			healthy = false
		}
	}

	return healthy, statuses
}

// Database pings db with a short timeout.
func Database(db *sql.DB) Checker {
	return func(ctx context.Context) Status {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			return Status{Name: "database", Healthy: false, Detail: err.Error()}
		}
		return Status{Name: "database", Healthy: true}
	}
}

// Breaker reports the circuit state for a reasoning backend.
func Breaker(b *circuitbreaker.Breaker, key string) Checker {
	return func(context.Context) Status {
		snap := b.Snapshot(key)
		detail := fmt.Sprintf("%s circuit %s", key, snap.State)
		if snap.State == circuitbreaker.StateOpen {
			detail += fmt.Sprintf(" after %d failures, probing at %s", snap.Failures, snap.RetryAt.Format(time.RFC3339))
		}
		return Status{
			Name:    "reasoner",
			Healthy: snap.State != circuitbreaker.StateOpen,
			Detail:  detail,
		}
	}
}
