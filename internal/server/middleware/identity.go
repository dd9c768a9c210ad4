package middleware

import (
	"net/http"
	"strings"

	"github.com/alanyoungcy/parimarket/internal/domain"
	"github.com/alanyoungcy/parimarket/internal/identity"
)

// Identity modes.
const (
	IdentityToken  = "token"
	IdentityHeader = "header"
)

// PrincipalHeader carries the caller in header mode.
const PrincipalHeader = "X-Principal"

// TokenVerifier turns a bearer token into a principal.
type TokenVerifier interface {
	Verify(token string) (domain.Principal, error)
}

// Identity returns middleware that attaches the caller's principal to the
// request context. Requests without credentials pass through anonymously;
// handlers decide whether a principal is required. Credentials that are
// present but invalid are rejected with 401.
//
// In token mode the principal is the subject of a bearer token checked by
// verifier. In header mode it is read from X-Principal as-is, which is only
// suitable behind a trusted proxy or in development.
func Identity(mode string, verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var (
				p   domain.Principal
				err error
			)
			switch mode {
			case IdentityHeader:
				raw := r.Header.Get(PrincipalHeader)
				if raw == "" {
					next.ServeHTTP(w, r)
					return
				}
				p, err = identity.Canonicalize(raw)
			default:
				token := bearerToken(r)
				if token == "" || verifier == nil {
					next.ServeHTTP(w, r)
					return
				}
				p, err = verifier.Verify(token)
			}
			if err != nil {
				writeUnauthorized(w, "invalid credentials")
				return
			}
			recordPrincipal(w, p)
			next.ServeHTTP(w, r.WithContext(identity.WithPrincipal(r.Context(), p)))
		})
	}
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(auth, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
