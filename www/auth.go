package www

import (
	"context"
	"net/http"

	"github.com/gorilla/sessions"
	"golang.org/x/crypto/bcrypt"

	"linehaul/store"
)

const sessionName = "linehaul-session"

func newSessionStore(secret string) *sessions.CookieStore {
	if secret == "" {
		secret = "linehaul-default-secret-change-me"
	}
	s := sessions.NewCookieStore([]byte(secret))
	s.Options.Path = "/"
	s.Options.HttpOnly = true
	s.Options.SameSite = http.SameSiteLaxMode
	return s
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(hash), err
}

func checkPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func (h *Handlers) isAuthenticated(r *http.Request) bool {
	session, err := h.sessions.Get(r, sessionName)
	if err != nil {
		return false
	}
	auth, ok := session.Values["authenticated"].(bool)
	return ok && auth
}

func (h *Handlers) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.isAuthenticated(r) {
			h.jsonError(w, http.StatusUnauthorized, codeUnauthorized, "login required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// actor names the logged-in user for audit rows.
func (h *Handlers) actor(r *http.Request) string {
	session, err := h.sessions.Get(r, sessionName)
	if err != nil {
		return "unknown"
	}
	username, _ := session.Values["username"].(string)
	if username == "" {
		return "unknown"
	}
	return username
}

// ensureDefaultAdmin creates admin/admin on an empty user table.
func (h *Handlers) ensureDefaultAdmin(ctx context.Context, db *store.DB) {
	exists, err := db.AdminUserExists(ctx)
	if err != nil || exists {
		return
	}
	hash, err := hashPassword("admin")
	if err != nil {
		return
	}
	if err := db.CreateAdminUser(ctx, "admin", hash); err != nil {
		h.log.Warn().Err(err).Msg("create default admin")
		return
	}
	h.log.Warn().Msg("created default admin user; change its password")
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handlers) apiLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}
	user, err := h.engine.DB().GetAdminUser(r.Context(), req.Username)
	if err != nil || !checkPassword(user.PasswordHash, req.Password) {
		h.jsonError(w, http.StatusUnauthorized, codeUnauthorized, "invalid username or password")
		return
	}

	session, _ := h.sessions.Get(r, sessionName)
	session.Values["authenticated"] = true
	session.Values["username"] = user.Username
	if err := session.Save(r, w); err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.jsonOK(w, map[string]string{"username": user.Username})
}

func (h *Handlers) apiLogout(w http.ResponseWriter, r *http.Request) {
	session, _ := h.sessions.Get(r, sessionName)
	session.Values["authenticated"] = false
	session.Values["username"] = ""
	session.Options.MaxAge = -1
	if err := session.Save(r, w); err != nil {
		h.log.Warn().Err(err).Msg("session save on logout")
	}
	w.WriteHeader(http.StatusNoContent)
}
