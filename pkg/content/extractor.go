package content

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/markusmobius/go-trafilatura"
)

// ErrNoContent returned when a document has no extractable main text
var ErrNoContent = errors.New("no content extracted")

// Extractor pulls the main article text out of an HTML document using trafilatura,
// falling back to sanitizing the whole document when trafilatura finds nothing.
type Extractor struct {
	maxLen int
}

// NewExtractor makes an extractor limiting extracted text to maxLen characters, 0 means no limit
func NewExtractor(maxLen int) *Extractor {
	return &Extractor{maxLen: maxLen}
}

// Extract returns the sanitized main text of the HTML document fetched from pageURL
func (e *Extractor) Extract(doc []byte, pageURL string) (string, error) {
	if len(bytes.TrimSpace(doc)) == 0 {
		return "", ErrNoContent
	}

	parsedURL, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("parse URL: %w", err)
	}

	opts := trafilatura.Options{
		EnableFallback:  true,
		ExcludeComments: true,
		ExcludeTables:   false,
		IncludeImages:   false,
		IncludeLinks:    false,
		Deduplicate:     true,
		OriginalURL:     parsedURL,
	}

	if result, terr := trafilatura.Extract(bytes.NewReader(doc), opts); terr == nil && result != nil {
		if text := strings.TrimSpace(result.ContentText); text != "" {
			// trafilatura already returns text, sanitizing normalizes punctuation and whitespace
			return Sanitize(text, e.maxLen), nil
		}
	}

	// fallback to the whole document without boilerplate
	if text := Sanitize(string(doc), e.maxLen); text != "" {
		return text, nil
	}
	return "", fmt.Errorf("extract content from %s: %w", pageURL, ErrNoContent)
}
