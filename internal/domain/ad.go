package domain

import "time"

const (
	// SiteOrigin is the canonical origin used to absolutize ad links.
	SiteOrigin = "https://www.avito.ru"

	// PlaceholderTitle is used when a record carries no usable title.
	PlaceholderTitle = "Без названия"
	// PlaceholderPrice is used when a record carries no usable price.
	PlaceholderPrice = "—"
	// FallbackTitle labels records synthesized from bare item links.
	FallbackTitle = "Объявление"
)

// Ad is one normalized listing extracted from a search results page.
// ID is the identity of the ad within a search.
type Ad struct {
	ID    string
	Title string
	Price string
	URL   string
}

// ItemURL builds the canonical item link for an ad identifier.
func ItemURL(id string) string {
	return SiteOrigin + "/item/" + id
}

// Notification carries a freshly discovered ad to its owner.
type Notification struct {
	OwnerID      int64
	SearchName   string
	Ad           Ad
	DiscoveredAt time.Time
}
