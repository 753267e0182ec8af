package www

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"linehaul/dispatch"
	"linehaul/store"
)

// Error codes outside the dispatch lifecycle.
const (
	codeBadRequest   = "BAD_REQUEST"
	codeNotFound     = "NOT_FOUND"
	codeConflict     = "CONFLICT"
	codeUnauthorized = "UNAUTHORIZED"
	codeInternal     = "INTERNAL_ERROR"
)

type errorBody struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Allowed []string `json:"allowed,omitempty"`
}

func (h *Handlers) jsonOK(w http.ResponseWriter, data any) {
	h.jsonStatus(w, http.StatusOK, data)
}

func (h *Handlers) jsonStatus(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Warn().Err(err).Msg("encode response")
	}
}

func (h *Handlers) jsonError(w http.ResponseWriter, status int, code, msg string) {
	h.jsonStatus(w, status, map[string]errorBody{"error": {Code: code, Message: msg}})
}

// writeErr renders err with the status its type implies. Unknown errors are
// logged and hidden behind a 500.
func (h *Handlers) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	var de *dispatch.Error
	switch {
	case errors.As(err, &de):
		h.jsonStatus(w, de.Status, map[string]errorBody{"error": {Code: de.Code, Message: de.Message, Allowed: de.Allowed}})
	case errors.Is(err, store.ErrNotFound):
		h.jsonError(w, http.StatusNotFound, codeNotFound, "not found")
	case errors.Is(err, store.ErrDuplicate):
		h.jsonError(w, http.StatusConflict, codeConflict, "already exists")
	default:
		h.log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).
			Str("request_id", middleware.GetReqID(r.Context())).Msg("request failed")
		h.jsonError(w, http.StatusInternalServerError, codeInternal, "internal error")
	}
}

func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(dst); err != nil {
		h.jsonError(w, http.StatusBadRequest, codeBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// pathID parses a chi URL parameter as an int64 id.
func (h *Handlers) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		h.jsonError(w, http.StatusBadRequest, codeBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}

// queryID parses an optional int64 query parameter. Missing means 0.
func (h *Handlers) queryID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return 0, true
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id < 0 {
		h.jsonError(w, http.StatusBadRequest, codeBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}

func queryLimit(r *http.Request, def int) int {
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			return n
		}
	}
	return def
}

// requestLogger logs one line per request at debug, errors at warn.
func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			ev := log.Debug()
			if ww.Status() >= 500 {
				ev = log.Warn()
			}
			ev.Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("elapsed", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("http")
		})
	}
}
