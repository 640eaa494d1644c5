package parser

import (
	"strings"

	"AvitoMonitor/internal/domain"
	"AvitoMonitor/internal/jsontree"
)

// Normalize maps a loosely-typed record onto an Ad.
// Records without a purely numeric id are rejected.
func Normalize(raw *jsontree.Object) (domain.Ad, bool) {
	if raw == nil {
		return domain.Ad{}, false
	}

	id := firstText(raw, "itemId", "id", "value")
	if !isDigits(id) {
		return domain.Ad{}, false
	}

	title := strings.TrimSpace(firstText(raw, "title", "name", "titlePrefix"))
	if title == "" {
		title = domain.PlaceholderTitle
	}

	return domain.Ad{
		ID:    id,
		Title: title,
		Price: resolvePrice(raw),
		URL:   resolveURL(raw, id),
	}, true
}

func resolvePrice(raw *jsontree.Object) string {
	node, ok := jsontree.FirstTruthy(raw, "price", "priceStr")
	if !ok {
		return domain.PlaceholderPrice
	}

	var price string
	if nested, isObj := node.(*jsontree.Object); isObj {
		price = firstText(nested, "value", "price")
	} else {
		price, _ = jsontree.Text(node)
	}
	if price == "" {
		return domain.PlaceholderPrice
	}
	return price
}

func resolveURL(raw *jsontree.Object, id string) string {
	link := firstText(raw, "url", "link")
	switch {
	case link == "":
		return domain.ItemURL(id)
	case strings.HasPrefix(link, "http"):
		return link
	case strings.HasPrefix(link, "/"):
		return domain.SiteOrigin + link
	default:
		return domain.SiteOrigin + "/" + link
	}
}

func firstText(obj *jsontree.Object, keys ...string) string {
	node, ok := jsontree.FirstTruthy(obj, keys...)
	if !ok {
		return ""
	}
	text, _ := jsontree.Text(node)
	return text
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
