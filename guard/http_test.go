package guard

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/jwt"
	"github.com/MrEthical07/goGuard/source"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
})

func serve(h http.Handler, userID, orgID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if userID != "" || orgID != "" {
		req = req.WithContext(goGuard.WithIdentity(req.Context(), goGuard.Identity{
			UserID:         userID,
			OrganizationID: orgID,
		}))
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRequireWithoutIdentity(t *testing.T) {
	e := newTestEngine(t, agentSource(), nil)
	h := RequireStrict(e, Options{Required: []string{"conversations.view"}})(okHandler)

	if rr := serve(h, "", ""); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if rr := serve(h, "u1", ""); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for partial identity, got %d", rr.Code)
	}
}

func TestRequireStrictLoadingThenAllowed(t *testing.T) {
	src := agentSource()
	e := newTestEngine(t, src, nil)
	h := RequireStrict(e, Options{Required: []string{"conversations.view"}})(okHandler)

	rr := serve(h, "u1", "o1")
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") != "1" {
		t.Fatalf("expected Retry-After 1, got %q", rr.Header().Get("Retry-After"))
	}
	if rr.Header().Get("X-Guard-Stale") != "" {
		t.Fatal("strict loading must not be marked stale")
	}

	if _, err := e.Resolve(context.Background(), "u1", "o1"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if rr := serve(h, "u1", "o1"); rr.Code != http.StatusOK {
		t.Fatalf("expected 200 after resolution, got %d", rr.Code)
	}
}

func TestRequireWaitsForResolution(t *testing.T) {
	e := newTestEngine(t, agentSource(), nil)
	h := RequireStrict(e, Options{Required: []string{"conversations.view"}, Wait: time.Second})(okHandler)

	if rr := serve(h, "u1", "o1"); rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestRequireWaitTimeout(t *testing.T) {
	src := agentSource()
	src.release = make(chan struct{})
	e := newTestEngine(t, src, nil)
	t.Cleanup(func() { close(src.release) })

	h := RequireStrict(e, Options{Required: []string{"conversations.view"}, Wait: 20 * time.Millisecond})(okHandler)
	if rr := serve(h, "u1", "o1"); rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202 after wait timeout, got %d", rr.Code)
	}
}

func TestRequireOptimisticLoading(t *testing.T) {
	e := newTestEngine(t, agentSource(), nil)

	shown := RequireOptimistic(e, Options{Required: []string{"conversations.view"}, ShowLoading: true})(okHandler)
	rr := serve(shown, "u1", "o1")
	if rr.Code != http.StatusAccepted || rr.Header().Get("X-Guard-Stale") != "" {
		t.Fatalf("expected full loading 202 without cache, got %d %v", rr.Code, rr.Header())
	}

	custom := RequireOptimistic(e, Options{
		Required:    []string{"conversations.view"},
		ShowLoading: true,
		Loading: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}),
	})(okHandler)
	if rr := serve(custom, "u2", "o1"); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected custom loading handler, got %d", rr.Code)
	}

	hidden := RequireOptimistic(e, Options{Required: []string{"billing"}, ShowLoading: false})(okHandler)
	if rr := serve(hidden, "u3", "o1"); rr.Code != http.StatusOK {
		t.Fatalf("expected optimistic grant without loading, got %d", rr.Code)
	}
}

func TestRequireServesStale(t *testing.T) {
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	e := newTestEngine(t, agentSource(), clock)

	if _, err := e.Resolve(context.Background(), "u1", "o1"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	clock.Advance(2 * time.Minute)

	h := RequireOptimistic(e, Options{Required: []string{"billing"}, ShowLoading: true})(okHandler)
	rr := serve(h, "u1", "o1")
	if rr.Code != http.StatusOK || rr.Header().Get("X-Guard-Stale") != "1" {
		t.Fatalf("expected stale 200, got %d %v", rr.Code, rr.Header())
	}
}

func TestRequireStrictLightLoadingOverStaleCache(t *testing.T) {
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	src := agentSource()
	e := newTestEngine(t, src, clock)

	if _, err := e.Resolve(context.Background(), "u1", "o1"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	clock.Advance(2 * time.Minute)
	src.release = make(chan struct{})
	t.Cleanup(func() { close(src.release) })

	h := RequireStrict(e, Options{Required: []string{"conversations.view"}})(okHandler)
	rr := serve(h, "u1", "o1")
	if rr.Code != http.StatusAccepted || rr.Header().Get("X-Guard-Stale") != "1" {
		t.Fatalf("expected light loading 202 over stale cache, got %d %v", rr.Code, rr.Header())
	}
}

func TestRequireDenied(t *testing.T) {
	e := newTestEngine(t, agentSource(), nil)
	if _, err := e.Resolve(context.Background(), "u1", "o1"); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	bare := RequireStrict(e, Options{Required: []string{"billing"}})(okHandler)
	rr := serve(bare, "u1", "o1")
	if rr.Code != http.StatusForbidden || rr.Body.Len() != 0 {
		t.Fatalf("expected bare 403, got %d %q", rr.Code, rr.Body.String())
	}

	alert := RequireStrict(e, Options{Required: []string{"billing"}, ShowAlert: true})(okHandler)
	rr = serve(alert, "u1", "o1")
	if rr.Code != http.StatusForbidden || !strings.Contains(rr.Body.String(), e.Config().Guard.DeniedMessage) {
		t.Fatalf("expected alert 403, got %d %q", rr.Code, rr.Body.String())
	}

	fallback := RequireStrict(e, Options{
		Required: []string{"billing"},
		Fallback: http.NotFoundHandler(),
	})(okHandler)
	if rr := serve(fallback, "u1", "o1"); rr.Code != http.StatusNotFound {
		t.Fatalf("expected fallback 404, got %d", rr.Code)
	}
}

func TestRequireResolutionFailure(t *testing.T) {
	e := newTestEngine(t, &gateSource{err: source.ErrSourceUnavailable}, nil)
	h := RequireStrict(e, Options{Required: []string{"conversations.view"}, Wait: time.Second})(okHandler)

	rr := serve(h, "u1", "o1")
	if rr.Code != http.StatusForbidden || !strings.Contains(rr.Body.String(), "unable to verify permissions") {
		t.Fatalf("expected unavailable 403, got %d %q", rr.Code, rr.Body.String())
	}
}

func TestAuthenticate(t *testing.T) {
	jm, err := jwt.NewManager(jwt.Config{
		TTL:           time.Minute,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte(strings.Repeat("k", 32)),
	})
	if err != nil {
		t.Fatalf("jwt manager: %v", err)
	}

	var seen goGuard.Identity
	h := Authenticate(jm)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = goGuard.IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	token, err := jm.CreateIdentity("u1", "o1", "agent")
	if err != nil {
		t.Fatalf("create identity: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if seen.UserID != "u1" || seen.OrganizationID != "o1" || seen.Role != "agent" {
		t.Fatalf("unexpected identity %+v", seen)
	}

	for _, header := range []string{"", "Bearer ", "Basic abc", "Bearer not-a-token"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: expected 401, got %d", header, rr.Code)
		}
	}
}

func TestRetryAfterSeconds(t *testing.T) {
	cases := map[time.Duration]string{
		0:                       "1",
		500 * time.Millisecond:  "1",
		time.Second:             "1",
		1500 * time.Millisecond: "2",
		30 * time.Second:        "30",
	}
	for d, want := range cases {
		if got := retryAfterSeconds(d); got != want {
			t.Fatalf("retryAfterSeconds(%s) = %q, want %q", d, got, want)
		}
	}
}
