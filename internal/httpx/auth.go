package httpx

import (
	"github.com/ariefcatur/go-order-reconciler/internal/auth"
	"github.com/ariefcatur/go-order-reconciler/internal/orders"
	"net/http"
	"strings"
)

type TokenVerifier interface {
	Verify(token string) (auth.Principal, error)
}

// Authenticate resolves the bearer token into a principal on the request context.
func Authenticate(v TokenVerifier, writeErr func(w http.ResponseWriter, r *http.Request, err error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(h, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" || v == nil {
				writeErr(w, r, auth.ErrInvalidToken)
				return
			}
			p, err := v.Verify(strings.TrimSpace(token))
			if err != nil {
				writeErr(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
		})
	}
}

// requireRole is the capability check at the top of admin handlers.
func requireRole(p auth.Principal, roles ...auth.Role) error {
	if !p.HasRole(roles...) {
		return orders.ErrForbidden
	}
	return nil
}

func principal(r *http.Request) auth.Principal {
	p, _ := auth.FromContext(r.Context())
	return p
}
