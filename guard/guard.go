package guard

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/access"
	"github.com/MrEthical07/goGuard/snapshot"
)

// Render is what a guarded region shows.
type Render uint8

const (
	RenderLoading Render = iota
	RenderDenied
	RenderAllowed
)

func (r Render) String() string {
	switch r {
	case RenderAllowed:
		return "allowed"
	case RenderDenied:
		return "denied"
	default:
		return "loading"
	}
}

// Options configure a guard. Required and All need every name, Any needs one.
type Options struct {
	Required []string
	Any      []string
	All      []string

	// Fallback is served instead of a bare 403 on denial.
	Fallback http.Handler
	// ShowAlert renders the denial message.
	ShowAlert bool
	// ShowLoading is the caller's preference for a loading state. The
	// optimistic guard grants instead of loading when it is false.
	ShowLoading bool
	// Loading is served instead of the default 202 while resolving.
	Loading http.Handler
	// Wait bounds how long the HTTP adapters block on a running resolution
	// before rendering loading. Zero never blocks.
	Wait time.Duration
}

// Requirement returns the access requirement described by o.
func (o Options) Requirement() access.Requirement {
	return access.Requirement{Required: o.Required, Any: o.Any, All: o.All}
}

// Outcome is a guard's render decision.
type Outcome struct {
	Render   Render
	Decision access.Decision
	// LightLoading marks a loading state over a stale cached snapshot, which
	// renders lighter to avoid flicker.
	LightLoading bool
	// Stale marks an allowed render served from a snapshot that is still
	// being refreshed.
	Stale bool
	// Alert is the message to show, if any.
	Alert string
}

// Equal compares outcomes including the decision's missing names.
func (o Outcome) Equal(other Outcome) bool {
	return o.Render == other.Render &&
		o.LightLoading == other.LightLoading &&
		o.Stale == other.Stale &&
		o.Alert == other.Alert &&
		o.Decision.Equal(other.Decision)
}

type memoKey struct {
	key       snapshot.Key
	snap      *snapshot.Snapshot
	rd        access.Readiness
	cacheUsed bool
	failed    bool
}

// Guard evaluates one requirement under one policy.
type Guard struct {
	engine *goGuard.Engine
	policy access.Policy
	opts   Options

	deniedMsg      string
	unavailableMsg string
	retryAfter     time.Duration

	mu          sync.Mutex
	req         access.Requirement
	memo        memoKey
	memoOK      bool
	outcome     Outcome
	evaluations atomic.Uint64
}

// NewStrict returns a guard that never grants before resolution completes.
func NewStrict(engine *goGuard.Engine, opts Options) *Guard {
	return newGuard(engine, access.PolicyStrict, opts)
}

// NewOptimistic returns a guard that may grant from a stale snapshot, or
// without one when opts.ShowLoading is false.
func NewOptimistic(engine *goGuard.Engine, opts Options) *Guard {
	return newGuard(engine, access.PolicyOptimistic, opts)
}

func newGuard(engine *goGuard.Engine, policy access.Policy, opts Options) *Guard {
	g := &Guard{
		engine:         engine,
		policy:         policy,
		opts:           opts,
		req:            opts.Requirement(),
		deniedMsg:      "you do not have access to this resource",
		unavailableMsg: "unable to verify permissions",
		retryAfter:     time.Second,
	}
	if engine != nil {
		cfg := engine.Config().Guard
		if cfg.DeniedMessage != "" {
			g.deniedMsg = cfg.DeniedMessage
		}
		if cfg.UnavailableMessage != "" {
			g.unavailableMsg = cfg.UnavailableMessage
		}
		if cfg.RetryAfter > 0 {
			g.retryAfter = cfg.RetryAfter
		}
	}
	return g
}

// Policy returns the guard's policy.
func (g *Guard) Policy() access.Policy {
	return g.policy
}

// Requirement returns the current requirement.
func (g *Guard) Requirement() access.Requirement {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.req
}

// SetRequirement replaces the requirement. A different requirement forces
// the next Decide to re-evaluate.
func (g *Guard) SetRequirement(req access.Requirement) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.req.Equal(req) {
		return
	}
	g.req = req
	g.memoOK = false
}

// Evaluations returns how many times Decide actually evaluated.
func (g *Guard) Evaluations() uint64 {
	return g.evaluations.Load()
}

// Decide returns the outcome for st, reusing the previous one when the key,
// snapshot, readiness and requirement are unchanged. Changes that only toggle
// Loading do not re-evaluate.
func (g *Guard) Decide(ctx context.Context, st goGuard.PermissionState) Outcome {
	mk := memoKey{
		key:       st.Key(),
		snap:      st.Snapshot,
		rd:        st.Readiness(g.opts.ShowLoading),
		cacheUsed: st.CacheUsed,
		failed:    st.Err != nil,
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.memoOK && g.memo == mk {
		return g.outcome
	}
	g.evaluations.Add(1)
	out := g.evaluate(ctx, st, g.req)
	g.memo, g.outcome, g.memoOK = mk, out, true
	return out
}

func (g *Guard) evaluate(ctx context.Context, st goGuard.PermissionState, req access.Requirement) Outcome {
	rd := st.Readiness(g.opts.ShowLoading)

	var d access.Decision
	if g.engine != nil {
		d = g.engine.Decide(ctx, st.Snapshot, st.Key(), req, rd, g.policy)
	} else {
		d = access.Decision{Reason: access.ReasonNotInitialized}
	}

	switch {
	case d.Granted:
		return Outcome{
			Render:   RenderAllowed,
			Decision: d,
			Stale:    d.Reason == access.ReasonCacheUsed,
		}
	case d.Reason.Loading():
		return Outcome{
			Render:       RenderLoading,
			Decision:     d,
			LightLoading: st.Snapshot != nil && st.CacheUsed,
		}
	}

	out := Outcome{Render: RenderDenied, Decision: d}
	switch {
	case st.Err != nil:
		out.Alert = g.unavailableMsg
	case g.opts.ShowAlert:
		out.Alert = g.deniedMsg
	}
	return out
}

// Watch evaluates g against every state of tr and calls fn with the first
// outcome and each one that differs from its predecessor. It returns when ctx
// ends.
func Watch(ctx context.Context, g *Guard, tr *goGuard.Tracker, fn func(Outcome)) {
	var (
		last  Outcome
		first = true
	)
	for {
		changed := tr.Changed()
		out := g.Decide(ctx, tr.State())
		if first || !out.Equal(last) {
			fn(out)
			last, first = out, false
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return
		}
	}
}
