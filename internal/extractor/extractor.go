// Package extractor pulls embedded machine-readable pricing data out of a
// retailer's product page HTML.
//
// Two formats are supported, tried in priority order: a JSON-LD Product block
// and an inline JavaScript variable holding the site's proprietary JSON blob.
// Both yield a format-tagged Payload consumed by the offers package.
package extractor

import (
	"bytes"
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ErrNoStructuredData indicates the page was fetched but neither supported
// embedded-data format was present. Usually site format drift.
var ErrNoStructuredData = errors.New("no structured pricing data found in page")

// Format tags which embedded-data shape a Payload carries.
type Format string

const (
	// FormatJSONLD is a schema.org Product with an AggregateOffer.
	FormatJSONLD Format = "json-ld"
	// FormatInline is the site's proprietary inline script-variable blob.
	FormatInline Format = "inline"
)

// Payload is the extracted structured data, tagged by format. Exactly one of
// Product and Page is set, matching Format.
type Payload struct {
	Format  Format
	Product *LDProduct
	Page    *GamePage
}

// LDProduct is the JSON-LD Product shape.
type LDProduct struct {
	Type            string             `json:"@type"`
	Name            string             `json:"name"`
	AggregateRating *LDAggregateRating `json:"aggregateRating"`
	Offers          *LDAggregateOffer  `json:"offers"`
}

// LDAggregateRating is the JSON-LD aggregateRating shape.
type LDAggregateRating struct {
	RatingValue FlexFloat `json:"ratingValue"`
	RatingCount FlexInt   `json:"ratingCount"`
}

// LDAggregateOffer is the JSON-LD AggregateOffer shape.
type LDAggregateOffer struct {
	Type       string    `json:"@type"`
	LowPrice   FlexFloat `json:"lowPrice"`
	HighPrice  FlexFloat `json:"highPrice"`
	OfferCount FlexInt   `json:"offerCount"`
	Currency   string    `json:"priceCurrency"`
	Offers     []LDOffer `json:"offers"`
}

// LDOffer is a single JSON-LD offer entry.
type LDOffer struct {
	Price        FlexFloat `json:"price"`
	Seller       LDSeller  `json:"seller"`
	Availability string    `json:"availability"`
}

// LDSeller tolerates both a bare seller name and a nested Organization object.
type LDSeller struct {
	Name string
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *LDSeller) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		s.Name = name
		return nil
	}
	var org struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &org); err != nil {
		return err
	}
	s.Name = org.Name
	return nil
}

// GamePage is the proprietary inline-variable shape.
type GamePage struct {
	Name   string       `json:"name"`
	Prices []PriceEntry `json:"prices"`
}

// PriceEntry is one seller's line in the proprietary prices array.
type PriceEntry struct {
	Price       FlexFloat  `json:"price"`
	PriceCard   *FlexFloat `json:"priceCard"`
	PricePaypal *FlexFloat `json:"pricePaypal"`
	Merchant    string     `json:"merchant"`
	InStock     *bool      `json:"inStock"`
	Account     FlexBool   `json:"account"`
}

// gamePageVar matches the inline variable assignment holding the JSON blob.
// Non-greedy up to the terminating "};".
var gamePageVar = regexp.MustCompile(`(?s)var\s+gamePageTrans\s*=\s*(\{.*?\});`)

// Extract parses html and returns the first usable structured payload.
// JSON-LD is preferred; malformed JSON-LD blocks do not abort the scan.
func Extract(html []byte) (Payload, error) {
	if product := extractJSONLD(html); product != nil {
		return Payload{Format: FormatJSONLD, Product: product}, nil
	}
	if page := extractInline(html); page != nil {
		return Payload{Format: FormatInline, Page: page}, nil
	}
	return Payload{}, ErrNoStructuredData
}

func extractJSONLD(html []byte) *LDProduct {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil
	}

	var product *LDProduct
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !strings.EqualFold(strings.TrimSpace(s.AttrOr("type", "")), "application/ld+json") {
			return true
		}
		if p := productFromBlock([]byte(s.Text())); p != nil {
			product = p
			return false
		}
		return true
	})
	return product
}

// productFromBlock accepts a top-level Product object or the first Product
// inside a @graph array. Anything else, including malformed JSON, yields nil.
func productFromBlock(data []byte) *LDProduct {
	var p LDProduct
	if err := json.Unmarshal(data, &p); err == nil && p.Type == "Product" {
		return &p
	}

	var g struct {
		Graph []json.RawMessage `json:"@graph"`
	}
	if err := json.Unmarshal(data, &g); err != nil {
		return nil
	}
	for _, raw := range g.Graph {
		var gp LDProduct
		if err := json.Unmarshal(raw, &gp); err == nil && gp.Type == "Product" {
			return &gp
		}
	}
	return nil
}

func extractInline(html []byte) *GamePage {
	m := gamePageVar.FindSubmatch(html)
	if m == nil {
		return nil
	}
	var page GamePage
	if err := json.Unmarshal(m[1], &page); err != nil {
		return nil
	}
	return &page
}
