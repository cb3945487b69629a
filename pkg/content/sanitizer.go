package content

import (
	"html"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

// DefaultExcerptLength is the excerpt limit used when none is given
const DefaultExcerptLength = 320

const ellipsis = "..."

// boilerplate elements removed with their content
const boilerplateSelector = "script,style,noscript,template,iframe,nav,header,footer,aside,form"

// block level elements which start a new line in plain text
const blockSelector = "p,div,section,article,li,ul,ol,h1,h2,h3,h4,h5,h6,blockquote,pre,tr,table,dd,dt,figcaption"

var (
	strictPolicy = bluemonday.StrictPolicy()

	smartPunct = strings.NewReplacer(
		"\u2018", "'", "\u2019", "'", "\u201a", "'", "\u201b", "'",
		"\u201c", `"`, "\u201d", `"`, "\u201e", `"`, "\u201f", `"`,
		"\u2013", "-", "\u2014", "-", "\u2212", "-",
		"\u2026", "...",
		"\u00a0", " ", "\u2009", " ", "\u202f", " ", "\u200a", " ",
		"\u200b", "",
	)

	horizontalSpace = regexp.MustCompile(`[ \t\f\v\r]+`)
	blankLines      = regexp.MustCompile(`\n{3,}`)
	sentenceEnd     = regexp.MustCompile(`[.!?]\s`)
)

// Sanitize converts an HTML fragment or document into clean plain text.
// Boilerplate elements are dropped, block elements become line breaks, entities are decoded
// and smart punctuation is mapped to ASCII. When maxLen > 0 the text is truncated to at most
// maxLen characters, preferring a sentence boundary.
func Sanitize(src string, maxLen int) string {
	if strings.TrimSpace(src) == "" {
		return ""
	}

	text := src
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(src)); err == nil {
		doc.Find(boilerplateSelector).Remove()
		doc.Find("br").ReplaceWithHtml("\n")
		doc.Find(blockSelector).Each(func(_ int, s *goquery.Selection) {
			s.PrependHtml("\n")
			s.AppendHtml("\n")
		})
		if body, herr := doc.Find("body").Html(); herr == nil {
			text = body
		}
	}

	text = strictPolicy.Sanitize(text)
	text = html.UnescapeString(text)
	text = smartPunct.Replace(text)
	text = collapseWhitespace(text)

	if maxLen > 0 {
		text = TruncateSentence(text, maxLen)
	}
	return text
}

// Excerpt returns a short preview of text, at most maxLen characters including the ellipsis.
// DefaultExcerptLength is used for maxLen <= 0.
func Excerpt(text string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultExcerptLength
	}
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= maxLen {
		return text
	}
	if maxLen <= len(ellipsis) {
		return string([]rune(text)[:maxLen])
	}

	cut := string([]rune(text)[:maxLen-len(ellipsis)])
	// prefer not to break a word if there is a space close enough
	if idx := strings.LastIndex(cut, " "); idx > len(cut)/2 {
		cut = cut[:idx]
	}
	cut = strings.TrimRight(cut, " ,;:-")
	return cut + ellipsis
}

// TruncateSentence limits text to maxLen characters, cutting after the last complete sentence
// inside the limit or, if there is none, at the limit itself.
func TruncateSentence(text string, maxLen int) string {
	if maxLen <= 0 || utf8.RuneCountInString(text) <= maxLen {
		return text
	}
	runes := []rune(text)
	window := string(runes[:maxLen])

	// punctuation at the very end of the window ends a sentence only if whitespace follows it in text
	if strings.ContainsRune(".!?", runes[maxLen-1]) && unicode.IsSpace(runes[maxLen]) {
		return strings.TrimSpace(window)
	}
	locs := sentenceEnd.FindAllStringIndex(window, -1)
	if len(locs) == 0 {
		return strings.TrimSpace(window)
	}
	last := locs[len(locs)-1]
	return strings.TrimSpace(window[:last[0]+1])
}

func collapseWhitespace(text string) string {
	text = horizontalSpace.ReplaceAllString(text, " ")
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	text = strings.Join(lines, "\n")
	text = blankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
