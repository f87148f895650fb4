// Package seo renders the crawler facing documents: robots.txt, the XML
// sitemap and the HTML detail pages.
package seo

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stokaro/trustboard/store"
)

const sitemapNS = "http://www.sitemaps.org/schemas/sitemap/0.9"

// Source provides the entries listed in the sitemap.
type Source interface {
	SitemapPosts(ctx context.Context, limit int) ([]store.SitemapEntry, error)
	SitemapCompanies(ctx context.Context, limit int) ([]store.SitemapEntry, error)
}

// URL is one sitemap entry.
type URL struct {
	Loc        string  `xml:"loc"`
	LastMod    string  `xml:"lastmod,omitempty"`
	ChangeFreq string  `xml:"changefreq"`
	Priority   float64 `xml:"priority"`
}

// URLSet is the sitemap document.
type URLSet struct {
	XMLName xml.Name `xml:"urlset"`
	XMLNS   string   `xml:"xmlns,attr"`
	URLs    []URL    `xml:"url"`
}

// BuildSitemap collects the static pages, companies and visible posts. The
// two entity queries run concurrently.
func BuildSitemap(ctx context.Context, src Source, baseURL string, now time.Time) (URLSet, error) {
	baseURL = strings.TrimRight(baseURL, "/")

	var companies, posts []store.SitemapEntry
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		companies, err = src.SitemapCompanies(gctx, store.MaxSitemapEntries)
		return err
	})
	g.Go(func() error {
		var err error
		posts, err = src.SitemapPosts(gctx, store.MaxSitemapEntries)
		return err
	})
	if err := g.Wait(); err != nil {
		return URLSet{}, fmt.Errorf("failed to collect sitemap entries: %w", err)
	}

	today := lastMod(now)
	set := URLSet{XMLNS: sitemapNS, URLs: make([]URL, 0, 2+len(companies)+len(posts))}
	set.URLs = append(set.URLs,
		URL{Loc: baseURL + "/", LastMod: today, ChangeFreq: "daily", Priority: 1.0},
		URL{Loc: baseURL + "/trending", LastMod: today, ChangeFreq: "hourly", Priority: 0.95},
	)
	for _, e := range companies {
		set.URLs = append(set.URLs, URL{
			Loc:        fmt.Sprintf("%s/companies/%d", baseURL, e.ID),
			LastMod:    lastMod(e.Created),
			ChangeFreq: "weekly",
			Priority:   0.8,
		})
	}
	for _, e := range posts {
		set.URLs = append(set.URLs, URL{
			Loc:        fmt.Sprintf("%s/posts/%d", baseURL, e.ID),
			LastMod:    lastMod(e.Created),
			ChangeFreq: "daily",
			Priority:   0.7,
		})
	}
	return set, nil
}

// WriteSitemap encodes set as an XML document.
func WriteSitemap(w io.Writer, set URLSet) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(set); err != nil {
		return fmt.Errorf("failed to encode sitemap: %w", err)
	}
	return enc.Close()
}

func lastMod(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.DateOnly)
}

// Robots returns robots.txt for a site rooted at baseURL.
func Robots(baseURL string) string {
	baseURL = strings.TrimRight(baseURL, "/")

	var b strings.Builder
	for _, agent := range []string{"*", "Googlebot", "Bingbot", "Yeti", "Daum"} {
		fmt.Fprintf(&b, "User-agent: %s\nAllow: /\nDisallow: /api/\n\n", agent)
	}
	fmt.Fprintf(&b, "Sitemap: %s/sitemap.xml\n", baseURL)
	return b.String()
}
