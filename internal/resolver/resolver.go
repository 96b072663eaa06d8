// Package resolver builds product page URLs from a tracked product's identity.
package resolver

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/FaserF/keyprice-scraper/internal/models"
)

// ErrNoIdentifier indicates that no usable slug could be derived from the
// product reference. Permanent until the product is reconfigured.
var ErrNoIdentifier = errors.New("no usable identifier to build a product URL")

const (
	// eurTemplate is the German site, used for EUR tracking.
	eurTemplate = "https://www.keyforsteam.de/%s-key-kaufen-preisvergleich/"
	// intlTemplate is the international site, used for all other currencies.
	intlTemplate = "https://www.allkeyshop.com/blog/buy-%s-cd-key-compare-prices/"
)

var (
	nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)
	numeric  = regexp.MustCompile(`^[0-9]+$`)
)

// Slugify lowercases s and replaces every run of non-alphanumeric characters
// with a single hyphen, trimming leading and trailing hyphens.
func Slugify(s string) string {
	slug := nonAlnum.ReplaceAllString(strings.ToLower(s), "-")
	return strings.Trim(slug, "-")
}

// Resolve returns the product page URL for ref.
//
// Slug priority: the configured slug, then a slug derived from the name, then
// a slug derived from a non-numeric product id. A purely numeric product id
// carries no page identity and fails with ErrNoIdentifier.
//
// Host selection is a fixed lookup: EUR routes to the German site, all other
// supported currencies to the international one. This mirrors which site
// serves which currency today, not a general rule.
func Resolve(ref models.ProductRef) (string, error) {
	slug := ref.Slug
	if slug == "" && ref.Name != "" {
		slug = Slugify(ref.Name)
	}
	if slug == "" && ref.ProductID != "" && !numeric.MatchString(ref.ProductID) {
		slug = Slugify(ref.ProductID)
	}
	if slug == "" {
		return "", fmt.Errorf("product %s: %w", ref.ProductID, ErrNoIdentifier)
	}

	if ref.Currency == models.CurrencyEUR {
		return fmt.Sprintf(eurTemplate, slug), nil
	}
	return fmt.Sprintf(intlTemplate, slug), nil
}
