package ingestion

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/natalia/scriptforge/internal/types"
)

// minArticleLength is the shortest extracted text considered a successful
// plain-HTTP fetch; anything shorter suggests a JavaScript-rendered page.
const minArticleLength = 500

const defaultUserAgent = "scriptforge/1.0 (+https://github.com/natalia/scriptforge)"

// ArticleFetcher fetches news article URLs over HTTP and extracts the body
// text. When the extracted text is suspiciously short it can fall back to a
// headless browser render.
type ArticleFetcher struct {
	client     *http.Client
	userAgent  string
	useBrowser bool
}

// ArticleFetcherConfig holds fetcher options.
type ArticleFetcherConfig struct {
	Timeout    time.Duration
	UserAgent  string
	UseBrowser bool
}

// NewArticleFetcher creates an ArticleFetcher.
func NewArticleFetcher(cfg *ArticleFetcherConfig) *ArticleFetcher {
	if cfg == nil {
		cfg = &ArticleFetcherConfig{}
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &ArticleFetcher{
		client:     &http.Client{Timeout: timeout},
		userAgent:  userAgent,
		useBrowser: cfg.UseBrowser,
	}
}

// Fetch retrieves the article at ref and extracts title and body text.
func (f *ArticleFetcher) Fetch(ctx context.Context, ref string) (*types.SourceContent, error) {
	html, status, err := f.get(ctx, ref)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound || status == http.StatusGone {
		return nil, &Error{Ref: ref, Message: fmt.Sprintf("article not found (status %d)", status), Retryable: false}
	}
	if status >= 400 {
		return nil, &Error{Ref: ref, Message: fmt.Sprintf("unexpected status %d", status), Retryable: status >= 500}
	}

	title, text, err := ExtractArticle(html)
	if err != nil {
		return nil, &Error{Ref: ref, Message: "failed to parse HTML", Retryable: false, Cause: err}
	}

	if f.useBrowser && len(strings.TrimSpace(text)) < minArticleLength {
		rendered, browserErr := RenderWithBrowser(ctx, ref, 30*time.Second)
		if browserErr == nil {
			if t2, x2, err2 := ExtractArticle(rendered); err2 == nil && len(x2) > len(text) {
				title, text = t2, x2
			}
		}
	}

	return &types.SourceContent{
		Ref:       ref,
		Type:      types.ContentTypeNews,
		Title:     title,
		Text:      CleanText(text),
		SourceURL: ref,
	}, nil
}

func (f *ArticleFetcher) get(ctx context.Context, url string) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", 0, &Error{Ref: url, Message: "invalid URL", Retryable: false, Cause: err}
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", 0, &Error{Ref: url, Message: "request failed", Retryable: true, Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", resp.StatusCode, &Error{Ref: url, Message: "failed to read body", Retryable: true, Cause: err}
	}
	html, err := doc.Html()
	if err != nil {
		return "", resp.StatusCode, &Error{Ref: url, Message: "failed to serialize body", Retryable: false, Cause: err}
	}
	return html, resp.StatusCode, nil
}

// ExtractArticle pulls the title and body text out of article HTML. The body
// is taken from <article> when present, otherwise from all paragraph tags.
func ExtractArticle(html string) (title, text string, err error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", "", err
	}

	// Title: og:title wins over <title>.
	if og, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok && strings.TrimSpace(og) != "" {
		title = strings.TrimSpace(og)
	} else {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	doc.Find("script, style, nav, header, footer, aside").Remove()

	var paragraphs []string
	collect := func(_ int, s *goquery.Selection) {
		if p := strings.TrimSpace(s.Text()); p != "" {
			paragraphs = append(paragraphs, p)
		}
	}

	article := doc.Find("article")
	if article.Length() > 0 {
		article.Find("p, h2, h3, li").Each(collect)
	} else {
		doc.Find("p").Each(collect)
	}

	return title, strings.Join(paragraphs, "\n\n"), nil
}
