// Package api exposes the HTTP surface: session lifecycle, input and
// resize, and scrollback reads.
package api

import (
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/user/scrollterm/internal/db"
	"github.com/user/scrollterm/internal/term"
)

type handler struct {
	backend     *term.Backend
	sessionRepo *db.SessionRepo
	shell       string
}

// NewRouter builds the API handler. conn may be nil in tests that do not
// touch session metadata.
func NewRouter(backend *term.Backend, conn *sql.DB, token string, shell string) http.Handler {
	h := &handler{
		backend: backend,
		shell:   shell,
	}
	if conn != nil {
		h.sessionRepo = db.NewSessionRepo(conn)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/sessions", h.createSession)
	mux.HandleFunc("GET /api/sessions", h.listSessions)
	mux.HandleFunc("GET /api/sessions/{id}", h.getSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", h.deleteSession)
	mux.HandleFunc("POST /api/sessions/{id}/input", h.sendInput)
	mux.HandleFunc("POST /api/sessions/{id}/resize", h.resizeSession)

	mux.HandleFunc("GET /api/sessions/{id}/scrollback", h.getScrollback)
	mux.HandleFunc("GET /api/sessions/{id}/scrollback/before", h.getScrollbackBefore)
	mux.HandleFunc("GET /api/sessions/{id}/scrollback/stats", h.getScrollbackStats)

	return authMiddleware(token)(jsonMiddleware(corsMiddleware(mux)))
}

func authMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
			if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
				if strings.TrimSpace(authHeader[7:]) == token {
					next.ServeHTTP(w, r)
					return
				}
			}

			if r.URL.Query().Get("token") == token {
				next.ServeHTTP(w, r)
				return
			}

			jsonError(w, http.StatusUnauthorized, "unauthorized")
		})
	}
}

func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization,Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return io.ErrUnexpectedEOF
	}
	return nil
}
