package scanner

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"AvitoMonitor/internal/jsontree"
)

// Page is the markup under inspection together with its parsed document.
type Page struct {
	HTML string
	Doc  *goquery.Document
}

// NewPage parses markup once so strategies can share the document.
// A nil Doc is valid: strategies that need it simply find nothing.
func NewPage(html string) *Page {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		doc = nil
	}
	return &Page{HTML: html, Doc: doc}
}

// Scripts returns the raw text of every script block matching selector.
func (p *Page) Scripts(selector string) []string {
	if p == nil || p.Doc == nil {
		return nil
	}
	var out []string
	p.Doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		if text := s.Text(); text != "" {
			out = append(out, text)
		}
	})
	return out
}

// Strategy is one way of recovering ad-like records from a page.
// Strategies never fail: ok=false means "nothing found, try the next one".
type Strategy interface {
	Name() string
	Scan(page *Page) (records []*jsontree.Object, ok bool)
}

// Chain runs strategies in registration order; the first success wins.
type Chain struct {
	strategies []Strategy
	names      map[string]struct{}
}

// NewChain builds an empty chain.
func NewChain() *Chain {
	return &Chain{names: map[string]struct{}{}}
}

// Register appends a strategy. Names must be unique.
func (c *Chain) Register(strategy Strategy) error {
	if c.names == nil {
		c.names = map[string]struct{}{}
	}
	if _, dup := c.names[strategy.Name()]; dup {
		return fmt.Errorf("strategy %s is already registered", strategy.Name())
	}
	c.names[strategy.Name()] = struct{}{}
	c.strategies = append(c.strategies, strategy)
	return nil
}

// Names lists registered strategies in execution order.
func (c *Chain) Names() []string {
	names := make([]string, 0, len(c.strategies))
	for _, s := range c.strategies {
		names = append(names, s.Name())
	}
	return names
}

// Run returns the first non-empty result and the name of the strategy
// that produced it. An empty name means no strategy matched.
func (c *Chain) Run(page *Page) ([]*jsontree.Object, string) {
	for _, s := range c.strategies {
		if records, ok := s.Scan(page); ok && len(records) > 0 {
			return records, s.Name()
		}
	}
	return nil, ""
}
