package httpserver

import (
	"crypto/subtle"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/fairyhunter13/ai-assessment-engine/internal/domain"
)

// sessionTokenHeader carries the candidate session token.
const sessionTokenHeader = "x-session-token"

// sessionToken reads the candidate session token from the header, falling
// back to a body-extracted value the handler already decoded.
func sessionToken(r *http.Request, bodyToken string) string {
	if tok := r.Header.Get(sessionTokenHeader); tok != "" {
		return tok
	}
	return bodyToken
}

// AdminAuth guards the recruiter/admin surface with HTTP Basic Auth. The
// configured password is a bcrypt hash; username comparison is constant-time.
func AdminAuth(username, passwordHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok {
				w.Header().Set("WWW-Authenticate", `Basic realm="admin"`)
				writeError(w, r, domain.ErrAuthMissing)
				return
			}
			userOK := subtle.ConstantTimeCompare([]byte(user), []byte(username)) == 1
			passOK := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(pass)) == nil
			if !userOK || !passOK {
				w.Header().Set("WWW-Authenticate", `Basic realm="admin"`)
				writeError(w, r, domain.ErrAuthInvalid)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// adminActor returns the authenticated admin username for audit entries.
func adminActor(r *http.Request) string {
	user, _, _ := r.BasicAuth()
	return user
}
