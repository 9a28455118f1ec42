package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/allaspectsdev/provswitch/internal/endpoint"
	"github.com/allaspectsdev/provswitch/internal/provider"
	"github.com/allaspectsdev/provswitch/internal/session"
	"github.com/allaspectsdev/provswitch/internal/store"
)

// errBadRequest marks client errors raised by the handlers themselves.
var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		endpoint.IsInvalid(err),
		errors.Is(err, session.ErrUnsupportedSlot),
		errors.Is(err, provider.ErrUnknownApp):
		return http.StatusBadRequest
	case errors.Is(err, endpoint.ErrDuplicateURL),
		errors.Is(err, session.ErrTestInProgress):
		return http.StatusConflict
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, session.ErrSessionClosed):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= 500 {
		log.Error().Err(err).Msg("api request failed")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write JSON response")
	}
}

// decodeBody reads at most s.opts.MaxBodySize bytes of JSON into v. An empty
// body leaves v untouched.
func (s *Server) decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, s.opts.MaxBodySize+1))
	if err != nil {
		return badRequest("failed to read body")
	}
	if int64(len(body)) > s.opts.MaxBodySize {
		return badRequest("body exceeds %d bytes", s.opts.MaxBodySize)
	}
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return badRequest("invalid JSON")
	}
	return nil
}

func queryInt(r *http.Request, key string, defaultVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return n
}
