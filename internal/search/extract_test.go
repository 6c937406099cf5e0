package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func TestPageTextExtractsContent(t *testing.T) {
	page := `<html><head><title>Fix</title><style>p{}</style></head><body>
		<nav>Home | Docs</nav>
		<article>
			<h1>Fixing the build</h1>
			<p>Pin the dependency to version 2.1.</p>
			<pre>pip install foo==2.1</pre>
		</article>
		<script>analytics()</script>
		<footer>copyright</footer>
	</body></html>`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(page))
	}))
	defer server.Close()

	e := NewExtractor(5*time.Second, 2000)
	text, err := e.PageText(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("PageText failed: %v", err)
	}
	for _, want := range []string{"Fixing the build", "Pin the dependency", "pip install foo==2.1"} {
		if !strings.Contains(text, want) {
			t.Errorf("missing %q in extract:\n%s", want, text)
		}
	}
	for _, unwanted := range []string{"Home | Docs", "analytics", "copyright"} {
		if strings.Contains(text, unwanted) {
			t.Errorf("chrome %q leaked into extract", unwanted)
		}
	}
}

func TestPageTextBounded(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("<html><body>")
	for i := 0; i < 500; i++ {
		sb.WriteString("<p>some repeated paragraph text</p>")
	}
	sb.WriteString("</body></html>")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sb.String()))
	}))
	defer server.Close()

	e := NewExtractor(5*time.Second, 300)
	text, err := e.PageText(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("PageText failed: %v", err)
	}
	if len(text) > 300 {
		t.Errorf("extract exceeds bound: %d chars", len(text))
	}
}

func TestPageTextBoundIsRuneSafe(t *testing.T) {
	page := "<html><body><p>" + strings.Repeat("対処方法", 200) + "</p></body></html>"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(page))
	}))
	defer server.Close()

	e := NewExtractor(5*time.Second, 100)
	text, err := e.PageText(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("PageText failed: %v", err)
	}
	if !utf8.ValidString(text) {
		t.Errorf("extract splits a rune at the bound: %q", text)
	}
	if len(text) > 100 {
		t.Errorf("extract exceeds bound: %d chars", len(text))
	}
}

func TestPageTextHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	e := NewExtractor(5*time.Second, 2000)
	if _, err := e.PageText(context.Background(), server.URL); err == nil {
		t.Fatal("expected error on 404")
	}
}
