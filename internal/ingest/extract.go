package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// maxExtractedContent caps extracted article text before analysis.
const maxExtractedContent = 15000

// Extractor fetches and cleans article content from URLs. Plain text
// submissions pass through untouched.
type Extractor struct {
	client *http.Client
}

// NewExtractor creates a content extractor.
func NewExtractor(timeout time.Duration) *Extractor {
	return &Extractor{client: &http.Client{Timeout: timeout}}
}

var (
	scriptRe  = regexp.MustCompile(`(?is)<script\b.*?</script>`)
	styleRe   = regexp.MustCompile(`(?is)<style\b.*?</style>`)
	articleRe = regexp.MustCompile(`(?is)<article[^>]*>(.*?)</article>`)
	mainRe    = regexp.MustCompile(`(?is)<main[^>]*>(.*?)</main>`)
	tagRe     = regexp.MustCompile(`<[^>]+>`)
	spaceRe   = regexp.MustCompile(`\s+`)
)

// FromURL fetches a page and extracts readable article text: scripts and
// styles are dropped, the <article> or <main> region is preferred when
// present, remaining tags are stripped, and the result is capped.
func (e *Extractor) FromURL(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}

	html, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", url, err)
	}
	return ExtractText(string(html)), nil
}

// ExtractText strips HTML down to readable text.
func ExtractText(html string) string {
	text := scriptRe.ReplaceAllString(html, "")
	text = styleRe.ReplaceAllString(text, "")

	if m := articleRe.FindStringSubmatch(text); m != nil {
		text = m[1]
	} else if m := mainRe.FindStringSubmatch(text); m != nil {
		text = m[1]
	}

	text = tagRe.ReplaceAllString(text, " ")
	text = strings.NewReplacer(
		"&nbsp;", " ",
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#039;", "'",
	).Replace(text)
	text = strings.TrimSpace(spaceRe.ReplaceAllString(text, " "))

	if len(text) > maxExtractedContent {
		text = text[:maxExtractedContent]
	}
	return text
}
