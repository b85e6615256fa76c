package middleware

import (
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

// InternalSecretHeader carries the shared secret the host platform presents
// when calling the internal hook endpoints.
const InternalSecretHeader = "X-Internal-Secret"

// RequireInternalSecret gates internal endpoints behind a shared secret.
// Only the bcrypt hash of the secret lives in configuration; an empty hash
// disables the endpoints entirely rather than leaving them open.
func RequireInternalSecret(secretHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secretHash == "" {
				writeJSONError(w, http.StatusNotFound, "not found")
				return
			}
			secret := r.Header.Get(InternalSecretHeader)
			if secret == "" {
				writeJSONError(w, http.StatusUnauthorized, "missing internal secret")
				return
			}
			if err := bcrypt.CompareHashAndPassword([]byte(secretHash), []byte(secret)); err != nil {
				writeJSONError(w, http.StatusUnauthorized, "invalid internal secret")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
