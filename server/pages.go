package server

import (
	"bytes"
	"io"
	"net/http"
	"strconv"

	"github.com/stokaro/trustboard/core/apperr"
	"github.com/stokaro/trustboard/directory"
	"github.com/stokaro/trustboard/seo"
)

func (s *Server) robots(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, seo.Robots(s.baseURL(r)))
}

func (s *Server) sitemap(w http.ResponseWriter, r *http.Request) {
	set, err := seo.BuildSitemap(r.Context(), s.deps.Sitemap, s.baseURL(r), s.clock.Now())
	if err != nil {
		s.logger.Error("Failed to build sitemap", "error", err)
		http.Error(w, apperr.MsgInternal, http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := seo.WriteSitemap(&buf, set); err != nil {
		s.logger.Error("Failed to encode sitemap", "error", err)
		http.Error(w, apperr.MsgInternal, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = buf.WriteTo(w)
}

func (s *Server) companyPage(w http.ResponseWriter, r *http.Request) {
	id, ok := pageID(r)
	if !ok {
		s.notFoundPage(w)
		return
	}
	company, reviews, err := s.deps.Directory.Get(r.Context(), id)
	if err != nil {
		s.pageError(w, r, err)
		return
	}
	s.renderPage(w, func(out io.Writer) error {
		return s.deps.Pages.Company(out, company, reviews,
			directory.CategoryLabel(company.Category), directory.TypeLabel(company.Type))
	})
}

func (s *Server) postPage(w http.ResponseWriter, r *http.Request) {
	id, ok := pageID(r)
	if !ok {
		s.notFoundPage(w)
		return
	}
	post, comments, err := s.deps.Forum.Get(r.Context(), id)
	if err != nil {
		s.pageError(w, r, err)
		return
	}
	s.renderPage(w, func(out io.Writer) error {
		return s.deps.Pages.Post(out, post, comments)
	})
}

func pageID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil && id > 0
}

func (s *Server) pageError(w http.ResponseWriter, r *http.Request, err error) {
	if apperr.KindOf(err) == apperr.KindNotFound {
		s.notFoundPage(w)
		return
	}
	s.logger.Error("Failed to load page", "path", r.URL.Path, "error", err)
	http.Error(w, apperr.MsgInternal, http.StatusInternalServerError)
}

func (s *Server) notFoundPage(w http.ResponseWriter) {
	var buf bytes.Buffer
	if err := s.deps.Pages.NotFound(&buf); err != nil {
		s.logger.Error("Failed to render not found page", "error", err)
		http.NotFound(w, nil)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	_, _ = buf.WriteTo(w)
}

// renderPage buffers the page before anything is written.
func (s *Server) renderPage(w http.ResponseWriter, render func(io.Writer) error) {
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		s.logger.Error("Failed to render page", "error", err)
		http.Error(w, apperr.MsgInternal, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}
