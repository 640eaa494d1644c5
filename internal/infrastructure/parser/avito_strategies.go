package parser

import (
	"regexp"
	"strings"

	"AvitoMonitor/internal/domain"
	"AvitoMonitor/internal/jsontree"
	"AvitoMonitor/internal/scanner"
)

// fallbackLimit bounds the number of records synthesized from bare links.
const fallbackLimit = 50

var (
	listingMarkers = []string{"itemId", "itemListElement", "avito.ru/item/"}

	blobPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?s)__initialData__\s*=\s*(\{.*?\});?\s*(?:</script>|$)`),
		regexp.MustCompile(`(?s)"itemListElement"\s*:\s*(\[[^\]]*(?:\{[^\]]*\}[^\]]*)*\])`),
		regexp.MustCompile(`(?s)"items"\s*:\s*(\[[^\]]*(?:\{[^\]]*\}[^\]]*)*\])`),
	}

	itemLinkExpr = regexp.MustCompile(`avito\.ru/item/(\d+)`)
)

// looksLikeAd checks key presence only; the normalizer enforces the digit-only id.
func looksLikeAd(obj *jsontree.Object) bool {
	hasID := obj.Has("itemId") || obj.Has("id")
	hasTitle := obj.Has("title") || obj.Has("name") || obj.Has("value")
	return hasID && hasTitle
}

func findAds(raw string) []*jsontree.Object {
	node, err := jsontree.Parse([]byte(raw))
	if err != nil {
		return nil
	}
	return jsontree.FindRecords(node, looksLikeAd)
}

// typedScriptStrategy scans <script type="application/json"> blocks.
type typedScriptStrategy struct{}

func (typedScriptStrategy) Name() string { return "typed-script" }

func (typedScriptStrategy) Scan(page *scanner.Page) ([]*jsontree.Object, bool) {
	for _, body := range page.Scripts(`script[type="application/json"]`) {
		if records := findAds(body); len(records) > 0 {
			return records, true
		}
	}
	return nil, false
}

// patternBlobStrategy looks for JSON blobs embedded in listing scripts.
type patternBlobStrategy struct{}

func (patternBlobStrategy) Name() string { return "pattern-blob" }

func (patternBlobStrategy) Scan(page *scanner.Page) ([]*jsontree.Object, bool) {
	for _, body := range page.Scripts("script") {
		if !containsAny(body, listingMarkers) {
			continue
		}
		for _, expr := range blobPatterns {
			m := expr.FindStringSubmatch(body)
			if m == nil {
				continue
			}
			if records := findAds(m[1]); len(records) > 0 {
				return records, true
			}
		}
	}
	return nil, false
}

// itemLinkStrategy synthesizes placeholder records from item links.
type itemLinkStrategy struct{}

func (itemLinkStrategy) Name() string { return "item-links" }

func (itemLinkStrategy) Scan(page *scanner.Page) ([]*jsontree.Object, bool) {
	seen := map[string]struct{}{}
	var records []*jsontree.Object
	for _, m := range itemLinkExpr.FindAllStringSubmatch(page.HTML, -1) {
		id := m[1]
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		records = append(records, jsontree.NewObject(
			"itemId", id,
			"title", domain.FallbackTitle,
			"price", domain.PlaceholderPrice,
			"url", domain.ItemURL(id),
		))
		if len(records) == fallbackLimit {
			break
		}
	}
	return records, len(records) > 0
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
