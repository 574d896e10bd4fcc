package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const page = `<html><head><title> Sourdough  basics </title><style>p{}</style></head>
<body>
<nav>Home | Recipes</nav>
<h1>Starter</h1>
<p>Feed the starter   twice a day.</p>
<script>track()</script>
<ul><li>flour</li><li>water</li></ul>
<footer>copyright</footer>
</body></html>`

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "braindump/1.0", r.Header.Get("User-Agent"))
		w.Write([]byte(page))
	}))
	defer srv.Close()

	p, err := New(time.Second).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "Sourdough basics", p.Title)
	assert.Equal(t, "Starter\nFeed the starter twice a day.\nflour\nwater", p.Text)
	assert.NotContains(t, p.Text, "track")
	assert.NotContains(t, p.Text, "Recipes")

	frag := p.Fragment()
	assert.True(t, strings.HasPrefix(frag, "Sourdough basics\n"+srv.URL))
}

func TestFetchErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/empty" {
			w.Write([]byte("<html><body><script>x()</script></body></html>"))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := New(time.Second)
	_, err := f.Fetch(context.Background(), srv.URL+"/missing")
	assert.ErrorContains(t, err, "HTTP 404")

	_, err = f.Fetch(context.Background(), srv.URL+"/empty")
	assert.ErrorContains(t, err, "no text content")

	_, err = f.Fetch(context.Background(), "ftp://example.com/file")
	assert.ErrorContains(t, err, "unsupported scheme")
}

func TestFetchHonorsContext(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := New(5*time.Second).Fetch(ctx, srv.URL)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNormalize(t *testing.T) {
	u, err := Normalize("www.example.com/a")
	require.NoError(t, err)
	assert.Equal(t, "https://www.example.com/a", u)

	_, err = Normalize("https://")
	assert.Error(t, err)
	_, err = Normalize("notes about stuff")
	assert.Error(t, err)
}

func TestIsURL(t *testing.T) {
	assert.True(t, IsURL(" https://example.com"))
	assert.True(t, IsURL("www.example.com"))
	assert.False(t, IsURL("buy milk"))
}

func TestExcerptIsTruncated(t *testing.T) {
	long := "<p>" + strings.Repeat("word ", 1000) + "</p>"
	_, text, err := extract(long)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(text), maxExcerpt+3)
	assert.True(t, strings.HasSuffix(text, "..."))
}
