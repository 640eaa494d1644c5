package usecase

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"AvitoMonitor/internal/domain"
	"AvitoMonitor/internal/ports"
)

// DefaultSearchName is used when a search is registered without a name.
const DefaultSearchName = "Поиск"

const maxSearchNameLen = 200

var (
	ErrInvalidURL       = errors.New("invalid search url")
	ErrUnsupportedHost  = errors.New("only avito search links are supported")
	ErrMissingMaxPrice  = errors.New("search url has no maximum price")
	ErrNonPositivePrice = errors.New("maximum price must be greater than zero")
	ErrInvalidOwner     = errors.New("telegram id must be positive")
	ErrSearchLimit      = domain.ErrSearchLimit
)

var avitoHosts = []string{"avito.ru", "www.avito.ru", "m.avito.ru"}

// Avito packs filters into the f parameter; a base64 JSON object starts with "eyJ".
var filterBlobExpr = regexp.MustCompile(`eyJ[A-Za-z0-9+/=_-]+`)

// IsValidationError reports whether err was caused by bad user input.
func IsValidationError(err error) bool {
	for _, target := range []error{ErrInvalidURL, ErrUnsupportedHost, ErrMissingMaxPrice, ErrNonPositivePrice, ErrInvalidOwner} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// ValidateSearchURL checks that raw is an Avito search link and returns its maximum price.
func ValidateSearchURL(raw string) (float64, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return 0, fmt.Errorf("%w: scheme must be http or https", ErrInvalidURL)
	}
	if !isAvitoHost(u.Hostname()) {
		return 0, ErrUnsupportedHost
	}

	query := u.Query()
	price, ok := priceParam(query)
	if !ok {
		price, ok = filterMaxPrice(query.Get("f"))
	}
	if !ok {
		return 0, ErrMissingMaxPrice
	}
	if price <= 0 {
		return 0, ErrNonPositivePrice
	}
	return price, nil
}

func isAvitoHost(host string) bool {
	host = strings.ToLower(host)
	for _, d := range avitoHosts {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

func priceParam(query url.Values) (float64, bool) {
	for _, key := range []string{"maxPrice", "max_price"} {
		v, ok := query[key]
		if !ok || len(v) == 0 {
			continue
		}
		cleaned := strings.ReplaceAll(strings.ReplaceAll(v[0], " ", ""), ",", ".")
		price, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return 0, false
		}
		return price, true
	}
	return 0, false
}

func filterMaxPrice(f string) (float64, bool) {
	if f == "" {
		return 0, false
	}
	blob := filterBlobExpr.FindString(strings.ReplaceAll(f, "~", ""))
	if blob == "" {
		return 0, false
	}
	blob = strings.TrimRight(blob, "=")

	var decoded []byte
	for _, enc := range []*base64.Encoding{base64.RawStdEncoding, base64.RawURLEncoding} {
		if b, err := enc.DecodeString(blob); err == nil {
			decoded = b
			break
		}
	}
	if decoded == nil {
		return 0, false
	}

	var filter map[string]json.RawMessage
	if err := json.Unmarshal(decoded, &filter); err != nil {
		return 0, false
	}
	raw, ok := filter["to"]
	if !ok {
		return 0, false
	}

	var num float64
	if err := json.Unmarshal(raw, &num); err == nil {
		return num, true
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		if v, err := strconv.ParseFloat(strings.TrimSpace(text), 64); err == nil {
			return v, true
		}
	}
	return 0, false
}

// Registration creates searches on behalf of Telegram users.
type Registration struct {
	writer      ports.SearchWriter
	maxSearches int
	logger      *slog.Logger
}

// NewRegistration builds the registration flow; maxSearches <= 0 disables the global limit.
func NewRegistration(writer ports.SearchWriter, maxSearches int, logger *slog.Logger) *Registration {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registration{writer: writer, maxSearches: maxSearches, logger: logger}
}

// Register validates rawURL and stores a new active search for telegramID.
func (r *Registration) Register(ctx context.Context, telegramID int64, rawURL, name string) (domain.Search, error) {
	if telegramID <= 0 {
		return domain.Search{}, ErrInvalidOwner
	}
	maxPrice, err := ValidateSearchURL(rawURL)
	if err != nil {
		return domain.Search{}, err
	}

	user, err := r.writer.EnsureUser(ctx, telegramID)
	if err != nil {
		return domain.Search{}, fmt.Errorf("ensure user: %w", err)
	}

	search, err := r.writer.CreateSearch(ctx, domain.Search{
		UserID:   user.ID,
		URL:      strings.TrimSpace(rawURL),
		Name:     searchName(name),
		MaxPrice: maxPrice,
		Active:   true,
	}, r.maxSearches)
	if errors.Is(err, domain.ErrSearchLimit) {
		return domain.Search{}, fmt.Errorf("%w (%d)", ErrSearchLimit, r.maxSearches)
	}
	if err != nil {
		return domain.Search{}, fmt.Errorf("create search: %w", err)
	}

	r.logger.Info("search registered",
		"search_id", search.ID,
		"telegram_id", telegramID,
		"max_price", maxPrice,
	)
	return search, nil
}

func searchName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultSearchName
	}
	if runes := []rune(name); len(runes) > maxSearchNameLen {
		name = string(runes[:maxSearchNameLen])
	}
	return name
}
