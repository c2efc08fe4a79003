package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"
	"sync"

	"github.com/colmadogutierrez/debtbook/api/responses"
	pkgerrors "github.com/colmadogutierrez/debtbook/pkg/errors"
	"github.com/colmadogutierrez/debtbook/pkg/logger"
	"github.com/colmadogutierrez/debtbook/pkg/security"
)

// APIKey requires "Authorization: Bearer <key>" matching the Argon2id hash.
// An empty hash disables the check. The digest of the last accepted key is
// remembered so that repeated requests skip the Argon2 work.
func APIKey(keyHash string, logg *logger.Logger) func(http.Handler) http.Handler {
	guard := &keyGuard{hash: keyHash}
	return func(next http.Handler) http.Handler {
		if keyHash == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			token := raw
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing api key"))
				return
			}

			ok, err := guard.verify(token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify api key"))
				return
			}
			if !ok {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid api key"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type keyGuard struct {
	hash string

	mu       sync.Mutex
	accepted []byte
}

func (g *keyGuard) verify(token string) (bool, error) {
	digest := sha256.Sum256([]byte(token))

	g.mu.Lock()
	accepted := g.accepted
	g.mu.Unlock()
	if accepted != nil && subtle.ConstantTimeCompare(accepted, digest[:]) == 1 {
		return true, nil
	}

	ok, err := security.VerifyAPIKey(token, g.hash)
	if err != nil || !ok {
		return ok, err
	}
	g.mu.Lock()
	g.accepted = digest[:]
	g.mu.Unlock()
	return true, nil
}
