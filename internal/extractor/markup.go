package extractor

import (
	"encoding/json"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/html"

	"github.com/Rorqualx/clipharvest/internal/selectors"
)

// maxMarkupLen bounds how much rendered markup is scanned.
const maxMarkupLen = 8 << 20

// maxCaptionLen matches the longest caption the platform allows.
const maxCaptionLen = 1000

var (
	fieldPatternsMu sync.Mutex
	fieldPatterns   = map[string]*regexp.Regexp{}
)

// fieldPattern returns a regexp matching `"<field>": "<json string>"` and
// capturing the raw (still escaped) string body.
func fieldPattern(field string, maxLen int) *regexp.Regexp {
	key := field + "/" + strconv.Itoa(maxLen)
	fieldPatternsMu.Lock()
	defer fieldPatternsMu.Unlock()
	if re, ok := fieldPatterns[key]; ok {
		return re
	}
	body := `(?:[^"\\]|\\.)+`
	if maxLen > 0 {
		body = `(?:[^"\\]|\\.){1,` + strconv.Itoa(maxLen) + `}`
	}
	re := regexp.MustCompile(`"` + regexp.QuoteMeta(field) + `"\s*:\s*"(` + body + `)"`)
	fieldPatterns[key] = re
	return re
}

// unescapeJSON decodes the body of a JSON string literal. Markup embeds
// URLs with \u002F for slashes and captions with \uXXXX for emoji.
func unescapeJSON(raw string) string {
	var s string
	if err := json.Unmarshal([]byte(`"`+raw+`"`), &s); err == nil {
		return s
	}
	return strings.NewReplacer(`\u002F`, "/", `\u002f`, "/", `\/`, "/").Replace(raw)
}

// scanEmbeddedURL finds the first fetchable URL in the page's embedded JSON,
// trying fields in order. Local blob handles and script URLs are rejected.
func scanEmbeddedURL(markup string, sel *selectors.Selectors) (string, bool) {
	if len(markup) > maxMarkupLen {
		markup = markup[:maxMarkupLen]
	}
	for _, field := range sel.EmbeddedURLFields {
		for _, m := range fieldPattern(field, 0).FindAllStringSubmatch(markup, -1) {
			u := unescapeJSON(m[1])
			if strings.HasPrefix(u, "//") {
				u = "https:" + u
			}
			if fetchable(u) {
				return u, true
			}
		}
	}
	return "", false
}

// fetchable reports whether u is an absolute http(s) URL whose path does
// not name a script.
func fetchable(u string) bool {
	parsed, err := url.Parse(u)
	if err != nil || parsed.Host == "" {
		return false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}
	return path.Ext(strings.ToLower(parsed.Path)) != ".js"
}

// pageMetadata is what can be scraped from a rendered page.
type pageMetadata struct {
	Caption  string
	Nickname string
}

// scrapeMetadata reads caption and nickname from embedded JSON first and
// falls back to visible DOM elements, then the meta description.
func scrapeMetadata(markup string, sel *selectors.Selectors) pageMetadata {
	if len(markup) > maxMarkupLen {
		markup = markup[:maxMarkupLen]
	}
	var md pageMetadata
	md.Caption = firstField(markup, sel.CaptionFields, maxCaptionLen)
	md.Nickname = firstField(markup, sel.NicknameFields, 0)

	if md.Caption != "" && md.Nickname != "" {
		return md
	}

	root, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		log.Debug().Err(err).Msg("Failed to parse page markup for metadata")
		return md
	}
	doc := goquery.NewDocumentFromNode(root)

	if md.Caption == "" {
		md.Caption = firstText(doc, sel.CaptionSelectors)
	}
	if md.Caption == "" {
		if desc, ok := doc.Find(`meta[name="description"]`).First().Attr("content"); ok {
			md.Caption = strings.TrimSpace(desc)
		}
	}
	if md.Nickname == "" {
		md.Nickname = firstText(doc, sel.NicknameSelectors)
	}
	return md
}

func firstField(markup string, fields []string, maxLen int) string {
	for _, f := range fields {
		if m := fieldPattern(f, maxLen).FindStringSubmatch(markup); m != nil {
			if v := strings.TrimSpace(unescapeJSON(m[1])); v != "" {
				return v
			}
		}
	}
	return ""
}

func firstText(doc *goquery.Document, selectorList []string) string {
	for _, s := range selectorList {
		if t := strings.TrimSpace(doc.Find(s).First().Text()); t != "" {
			return t
		}
	}
	return ""
}
