package seo

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/stokaro/trustboard/core/sanitize"
	"github.com/stokaro/trustboard/store"
)

// SiteName is shown in page titles.
const SiteName = "업체정보 커뮤니티"

const descriptionMaxLen = 160

//go:embed templates/*.html
var templateFS embed.FS

var funcs = template.FuncMap{
	"deref": func(p *int) int {
		if p == nil {
			return 0
		}
		return *p
	},
}

// Renderer renders the HTML detail pages.
type Renderer struct {
	baseURL  string
	company  *template.Template
	post     *template.Template
	notFound *template.Template
}

// NewRenderer parses the page templates. Canonical links are absolute when
// baseURL is set.
func NewRenderer(baseURL string) (*Renderer, error) {
	parse := func(page string) (*template.Template, error) {
		t, err := template.New(page).Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+page)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", page, err)
		}
		return t, nil
	}

	r := &Renderer{baseURL: strings.TrimRight(baseURL, "/")}
	var err error
	if r.company, err = parse("company.html"); err != nil {
		return nil, err
	}
	if r.post, err = parse("post.html"); err != nil {
		return nil, err
	}
	if r.notFound, err = parse("notfound.html"); err != nil {
		return nil, err
	}
	return r, nil
}

type page struct {
	SiteName    string
	Title       string
	Description string
	Canonical   string
	OGType      string
	JSONLD      template.JS
	Data        any
}

type companyData struct {
	Company       store.Company
	Reviews       []store.Review
	CategoryLabel string
	TypeLabel     string
}

type postData struct {
	Post     store.Post
	Comments []store.Comment
}

// Company renders a company page. The labels are display names for the
// company's category and type.
func (r *Renderer) Company(w io.Writer, c store.Company, reviews []store.Review, categoryLabel, typeLabel string) error {
	canonical := r.url(fmt.Sprintf("/companies/%d", c.ID))
	ld, err := jsonLD(CompanyLD(c, reviews, canonical))
	if err != nil {
		return err
	}
	desc := c.Description
	if desc == "" {
		desc = fmt.Sprintf("%s %s 정보와 리뷰", c.Name, typeLabel)
	}
	return render(w, r.company, page{
		SiteName:    SiteName,
		Title:       c.Name,
		Description: sanitize.Truncate(desc, descriptionMaxLen),
		Canonical:   canonical,
		OGType:      "website",
		JSONLD:      ld,
		Data:        companyData{Company: c, Reviews: reviews, CategoryLabel: categoryLabel, TypeLabel: typeLabel},
	})
}

// Post renders a forum post page.
func (r *Renderer) Post(w io.Writer, p store.Post, comments []store.Comment) error {
	canonical := r.url(fmt.Sprintf("/posts/%d", p.ID))
	ld, err := jsonLD(PostLD(p, canonical))
	if err != nil {
		return err
	}
	return render(w, r.post, page{
		SiteName:    SiteName,
		Title:       p.Title,
		Description: sanitize.Truncate(p.Content, descriptionMaxLen),
		Canonical:   canonical,
		OGType:      "article",
		JSONLD:      ld,
		Data:        postData{Post: p, Comments: comments},
	})
}

// NotFound renders the page shown for missing or hidden entities.
func (r *Renderer) NotFound(w io.Writer) error {
	return render(w, r.notFound, page{
		SiteName:    SiteName,
		Title:       "페이지를 찾을 수 없습니다",
		Description: "요청하신 페이지를 찾을 수 없습니다.",
		OGType:      "website",
	})
}

func (r *Renderer) url(path string) string {
	if r.baseURL == "" {
		return ""
	}
	return r.baseURL + path
}

// render executes into a buffer so a failed template never leaves a partial
// page on the wire.
func render(w io.Writer, t *template.Template, p page) error {
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", p); err != nil {
		return fmt.Errorf("failed to render page: %w", err)
	}
	_, err := buf.WriteTo(w)
	return err
}

// jsonLD encodes structured data for a script element. encoding/json
// escapes <, > and &, so the output cannot close the element early.
func jsonLD(v any) (template.JS, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode structured data: %w", err)
	}
	return template.JS(b), nil
}

// CompanyLD returns schema.org FinancialService data for a company. The
// aggregate rating is present only when rated reviews exist.
func CompanyLD(c store.Company, reviews []store.Review, url string) map[string]any {
	ld := map[string]any{
		"@context": "https://schema.org",
		"@type":    "FinancialService",
		"name":     c.Name,
	}
	if c.Description != "" {
		ld["description"] = c.Description
	}
	if url != "" {
		ld["url"] = url
	}
	if c.Phone != "" {
		ld["telephone"] = c.Phone
	}
	if c.Website != "" {
		ld["sameAs"] = c.Website
	}

	var sum, n int
	for _, r := range reviews {
		if r.Rating != nil {
			sum += *r.Rating
			n++
		}
	}
	if n > 0 {
		ld["aggregateRating"] = map[string]any{
			"@type":       "AggregateRating",
			"ratingValue": fmt.Sprintf("%.1f", float64(sum)/float64(n)),
			"reviewCount": n,
			"bestRating":  5,
			"worstRating": 1,
		}
	}
	return ld
}

// PostLD returns schema.org BlogPosting data for a post.
func PostLD(p store.Post, url string) map[string]any {
	ld := map[string]any{
		"@context":      "https://schema.org",
		"@type":         "BlogPosting",
		"headline":      p.Title,
		"articleBody":   sanitize.Truncate(p.Content, 500),
		"datePublished": p.Created.UTC().Format(time.RFC3339),
		"author": map[string]any{
			"@type": "Person",
			"name":  p.Writer,
		},
		"commentCount": p.CommentCount,
	}
	if url != "" {
		ld["url"] = url
		ld["mainEntityOfPage"] = url
	}
	return ld
}
