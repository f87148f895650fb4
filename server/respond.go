package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/stokaro/trustboard/core/apperr"
	"github.com/stokaro/trustboard/session"
)

const (
	maxJSONBody = 1 << 20

	msgBadRequest = "잘못된 요청 형식입니다."
)

// envelope is the JSON body of every API response. success is added by the
// writers.
type envelope map[string]any

func (s *Server) writeJSON(w http.ResponseWriter, status int, body envelope) {
	if body == nil {
		body = envelope{}
	}
	body["success"] = status < http.StatusBadRequest

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		s.logger.Error("Failed to encode response", "error", err)
		http.Error(w, `{"success":false,"error":"`+apperr.MsgInternal+`"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (s *Server) ok(w http.ResponseWriter, body envelope) {
	s.writeJSON(w, http.StatusOK, body)
}

// writeError renders err as {success:false,error}. Internal failures are
// logged with their cause and shown with a generic message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.Status(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	s.writeJSON(w, status, envelope{"error": apperr.Message(err)})
}

// decodeJSON reads a JSON request body into dst. An empty body leaves dst
// untouched so that field validation reports what is missing.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return apperr.Validation(msgBadRequest)
	}
	return nil
}

// pathID parses the {id} wildcard. msg is the message for malformed ids.
func pathID(r *http.Request, msg string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation(msg)
	}
	return id, nil
}

// currentUser returns the session user, if any.
func currentUser(r *http.Request) (session.User, bool) {
	return session.FromContext(r.Context())
}

// flexInt accepts a JSON number, a numeric string or null.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid number %q", s)
	}
	*f = flexInt(n)
	return nil
}

func (f *flexInt) ptr() *int {
	if f == nil {
		return nil
	}
	v := int(*f)
	return &v
}

// requestOrigin returns scheme://host of the request, honouring a proxy's
// X-Forwarded-Proto.
func requestOrigin(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
		scheme = proto
	}
	return scheme + "://" + r.Host
}
