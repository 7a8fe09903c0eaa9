// Package extractor strips a fetched HTML page down to its main content.
// It leans on a readability-style heuristic first, then validates the
// result against two checks that matter specifically for technical
// documentation: the extraction must not be empty, and it must not have
// thrown away most of the page's code blocks. When either check fails, a
// chain of semantic-tag fallbacks is tried before giving up and keeping
// the original HTML untouched.
package extractor

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	docerrors "github.com/docrag/docrag/internal/errors"
)

// minExtractedBytes is the emptiness threshold: extractions shorter than
// this are treated as failures, per spec.
const minExtractedBytes = 100

// minCodeSurvivalRatio is the fraction of <pre>/<code> tags that must
// still be present after extraction for it to be considered successful.
const minCodeSurvivalRatio = 0.5

// Result is the outcome of extracting a single page.
type Result struct {
	// HTML is the cleaned main-content HTML (or the original page HTML if
	// every fallback also failed).
	HTML string

	// UsedFallback records which fallback tag the result came from, empty
	// when readability succeeded directly.
	UsedFallback string
}

// Extract reduces pageHTML to its main content. pageURL is used by
// readability to resolve relative links and pick a base for metadata; it
// may be nil for extraction-only use.
func Extract(pageHTML string, pageURL *url.URL) (*Result, error) {
	if pageURL == nil {
		pageURL = &url.URL{Scheme: "https", Host: "localhost"}
	}

	article, readErr := readability.FromReader(strings.NewReader(pageHTML), pageURL)
	if readErr == nil && validate(pageHTML, article.Content) {
		return &Result{HTML: article.Content}, nil
	}

	fallbackHTML, tag := fallbackExtract(pageHTML)
	if fallbackHTML != "" {
		return &Result{HTML: fallbackHTML, UsedFallback: tag}, nil
	}

	// No semantic fallback exists either; keep the original HTML so no
	// content is silently dropped.
	return &Result{HTML: pageHTML, UsedFallback: "none"}, nil
}

// validate applies the emptiness and code-block-preservation checks.
func validate(original, extracted string) bool {
	if len(strings.TrimSpace(extracted)) < minExtractedBytes {
		return false
	}
	return codeSurvivalRatio(original, extracted) >= minCodeSurvivalRatio
}

// codeSurvivalRatio counts <pre>/<code> elements in original vs extracted
// HTML and returns the fraction that survived. A document with no code
// blocks at all trivially survives at ratio 1.0.
func codeSurvivalRatio(original, extracted string) float64 {
	before := countCodeNodes(original)
	if before == 0 {
		return 1.0
	}
	after := countCodeNodes(extracted)
	return float64(after) / float64(before)
}

func countCodeNodes(htmlStr string) int {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlStr))
	if err != nil {
		return 0
	}
	return doc.Find("pre, code").Length()
}

// fallbackExtract tries, in order: the deepest div whose class contains
// "mdxContent", <article>, then <main>. Returns ("", "") if none exist.
func fallbackExtract(pageHTML string) (string, string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return "", ""
	}

	if sel := deepestMDXContent(doc); sel != nil {
		if h, err := goquery.OuterHtml(sel); err == nil && h != "" {
			return h, "mdxContent"
		}
	}
	if sel := doc.Find("article").First(); sel.Length() > 0 {
		if h, err := goquery.OuterHtml(sel); err == nil && h != "" {
			return h, "article"
		}
	}
	if sel := doc.Find("main").First(); sel.Length() > 0 {
		if h, err := goquery.OuterHtml(sel); err == nil && h != "" {
			return h, "main"
		}
	}
	return "", ""
}

// deepestMDXContent returns the most deeply nested div whose class
// attribute contains "mdxContent", matching documentation-site generators
// (Docusaurus et al.) that nest the real content several layers in.
func deepestMDXContent(doc *goquery.Document) *goquery.Selection {
	var deepest *goquery.Selection
	deepestDepth := -1

	doc.Find(`div[class*="mdxContent"]`).Each(func(_ int, sel *goquery.Selection) {
		depth := 0
		for p := sel; p.Length() > 0; p = p.Parent() {
			depth++
		}
		if depth > deepestDepth {
			deepestDepth = depth
			deepest = sel
		}
	})
	return deepest
}

// ExtractError wraps an extraction failure as a DocError. Extraction
// itself never returns an error from Extract (it always falls back to
// the original HTML), but callers that want to surface a hard failure
// (e.g. malformed input ahead of readability) can use this constructor.
func ExtractError(message string, cause error) error {
	return docerrors.New(docerrors.ErrCodeExtractFailed, message, cause)
}
