package guard

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/jwt"
)

// RequireStrict returns middleware enforcing opts with the strict policy.
func RequireStrict(engine *goGuard.Engine, opts Options) func(http.Handler) http.Handler {
	return Require(NewStrict(engine, opts))
}

// RequireOptimistic returns middleware enforcing opts with the optimistic policy.
func RequireOptimistic(engine *goGuard.Engine, opts Options) func(http.Handler) http.Handler {
	return Require(NewOptimistic(engine, opts))
}

// Require adapts g to net/http. Requests without an identity are rejected with
// 401. While permissions are resolving the response is opts.Loading or a 202
// with Retry-After; a denial serves opts.Fallback or a 403.
func Require(g *Guard) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if g == nil || g.engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			id, ok := goGuard.IdentityFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			st := g.state(r.Context(), id)
			out := g.evaluate(r.Context(), st, g.Requirement())

			switch out.Render {
			case RenderAllowed:
				if out.Stale {
					w.Header().Set("X-Guard-Stale", "1")
				}
				next.ServeHTTP(w, r)
			case RenderLoading:
				g.serveLoading(w, r, out)
			default:
				g.serveDenied(w, r, out)
			}
		})
	}
}

// state returns the permission state for id, waiting up to opts.Wait for a
// running resolution. Without a wait the resolution continues in the
// background so a retry hits the cache.
func (g *Guard) state(ctx context.Context, id goGuard.Identity) goGuard.PermissionState {
	tr := g.engine.Track(id.UserID, id.OrganizationID)
	defer tr.Close()

	st := tr.State()
	if st.Initialized || !st.Identified {
		return st
	}

	if g.opts.Wait <= 0 {
		g.engine.Prefetch(id.UserID, id.OrganizationID)
		return st
	}

	waitCtx, cancel := context.WithTimeout(ctx, g.opts.Wait)
	defer cancel()
	_ = tr.Load(waitCtx)
	return tr.State()
}

func (g *Guard) serveLoading(w http.ResponseWriter, r *http.Request, out Outcome) {
	if out.LightLoading {
		w.Header().Set("X-Guard-Stale", "1")
	}
	if g.opts.Loading != nil {
		g.opts.Loading.ServeHTTP(w, r)
		return
	}
	w.Header().Set("Retry-After", retryAfterSeconds(g.retryAfter))
	w.WriteHeader(http.StatusAccepted)
}

func (g *Guard) serveDenied(w http.ResponseWriter, r *http.Request, out Outcome) {
	if g.opts.Fallback != nil {
		g.opts.Fallback.ServeHTTP(w, r)
		return
	}
	if out.Alert != "" {
		http.Error(w, out.Alert, http.StatusForbidden)
		return
	}
	w.WriteHeader(http.StatusForbidden)
}

func retryAfterSeconds(d time.Duration) string {
	s := int(d.Seconds())
	if float64(s) < d.Seconds() {
		s++
	}
	if s < 1 {
		s = 1
	}
	return strconv.Itoa(s)
}

// Authenticate verifies a bearer identity token and attaches its identity to
// the request context. Missing or invalid tokens get a 401.
func Authenticate(jm *jwt.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if jm == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := jm.ParseIdentity(token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := goGuard.WithIdentity(r.Context(), goGuard.Identity{
				UserID:         claims.UID,
				OrganizationID: claims.OID,
				Role:           claims.Role,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
