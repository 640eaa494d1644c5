package parser

import (
	"log/slog"

	"AvitoMonitor/internal/domain"
	"AvitoMonitor/internal/jsontree"
	"AvitoMonitor/internal/ports"
	"AvitoMonitor/internal/scanner"
)

// AvitoParser extracts ads from Avito search result pages.
type AvitoParser struct {
	chain  *scanner.Chain
	logger *slog.Logger
}

var _ ports.AdExtractor = (*AvitoParser)(nil)

// NewAvitoParser registers the extraction strategies in priority order:
// typed JSON scripts, marker-scoped blobs, then bare item links.
func NewAvitoParser(logger *slog.Logger) *AvitoParser {
	chain := scanner.NewChain()
	for _, s := range []scanner.Strategy{
		typedScriptStrategy{},
		patternBlobStrategy{},
		itemLinkStrategy{},
	} {
		_ = chain.Register(s)
	}
	p := &AvitoParser{chain: chain, logger: logger}
	p.debug("strategies registered", "order", chain.Names())
	return p
}

// Records returns the raw ad-like records found on the page.
func (p *AvitoParser) Records(html string) []*jsontree.Object {
	records, strategy := p.chain.Run(scanner.NewPage(html))
	p.debug("extracted records", "strategy", strategy, "count", len(records))
	return records
}

// Extract returns normalized ads in page order; malformed records are dropped.
func (p *AvitoParser) Extract(html string) []domain.Ad {
	records := p.Records(html)
	ads := make([]domain.Ad, 0, len(records))
	for _, raw := range records {
		if ad, ok := Normalize(raw); ok {
			ads = append(ads, ad)
		}
	}
	return ads
}

func (p *AvitoParser) debug(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Debug(msg, args...)
	}
}
