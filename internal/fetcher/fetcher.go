// Package fetcher turns a captured URL into fragment text: the page title, the link and
// a readable excerpt of the body.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

const (
	maxBody    = 5 * 1024 * 1024
	maxExcerpt = 2 * 1024
)

var skipTags = map[string]bool{
	"script": true, "style": true, "nav": true,
	"header": true, "footer": true, "aside": true,
	"noscript": true, "iframe": true, "svg": true,
}

var blockTags = map[string]bool{
	"p": true, "div": true, "li": true, "br": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

// Page is the readable part of a fetched document
type Page struct {
	URL   string
	Title string
	Text  string
}

// Fragment renders the page as fragment content
func (p Page) Fragment() string {
	var sb strings.Builder
	if p.Title != "" {
		sb.WriteString(p.Title)
		sb.WriteString("\n")
	}
	sb.WriteString(p.URL)
	if p.Text != "" {
		sb.WriteString("\n")
		sb.WriteString(p.Text)
	}
	return sb.String()
}

// Fetcher downloads pages
type Fetcher struct {
	client    *http.Client
	userAgent string
}

// New creates a Fetcher with a request timeout
func New(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Fetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: "braindump/1.0",
	}
}

// Fetch retrieves rawURL and extracts its title and readable text
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (Page, error) {
	u, err := Normalize(rawURL)
	if err != nil {
		return Page{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Page{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("fetch %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Page{}, fmt.Errorf("fetch %s: HTTP %d", u, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return Page{}, fmt.Errorf("read body: %w", err)
	}

	title, text, err := extract(string(body))
	if err != nil {
		return Page{}, fmt.Errorf("parse %s: %w", u, err)
	}
	if title == "" && text == "" {
		return Page{}, fmt.Errorf("fetch %s: no text content found", u)
	}
	return Page{URL: u, Title: title, Text: text}, nil
}

// Normalize validates a captured URL, defaulting the scheme to https
func Normalize(rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if strings.HasPrefix(rawURL, "www.") {
		rawURL = "https://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme: %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid URL %q: missing host", rawURL)
	}
	return u.String(), nil
}

// IsURL checks if a string looks like a URL
func IsURL(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "http://") ||
		strings.HasPrefix(s, "https://") ||
		strings.HasPrefix(s, "www.")
}

// extract returns the document title and its body text, one block per line
func extract(doc string) (string, string, error) {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return "", "", err
	}

	var title string
	var lines []string
	var cur strings.Builder
	flush := func() {
		if line := strings.Join(strings.Fields(cur.String()), " "); line != "" {
			lines = append(lines, line)
		}
		cur.Reset()
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if skipTags[n.Data] {
				return
			}
			if n.Data == "title" {
				if title == "" && n.FirstChild != nil {
					title = strings.Join(strings.Fields(n.FirstChild.Data), " ")
				}
				return
			}
		}
		if n.Type == html.TextNode {
			cur.WriteString(n.Data)
			cur.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockTags[n.Data] {
			flush()
		}
	}
	walk(root)
	flush()

	text := strings.Join(lines, "\n")
	if len(text) > maxExcerpt {
		cut := strings.LastIndexAny(text[:maxExcerpt], " \n")
		if cut <= 0 {
			cut = maxExcerpt
		}
		text = text[:cut] + "..."
	}
	return title, text, nil
}
