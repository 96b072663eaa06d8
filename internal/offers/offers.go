// Package offers normalizes extracted page payloads into a canonical price
// snapshot, applying the payment-method price selection policy.
package offers

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/FaserF/keyprice-scraper/internal/extractor"
	"github.com/FaserF/keyprice-scraper/internal/models"
)

// Normalize converts payload into a PriceSnapshot for ref.
//
// Offers flagged as account transfers are dropped unless allowAccounts is
// set. Each retained offer gets an effective price per policy, the offer list
// is sorted ascending by it, and the snapshot aggregates are derived from the
// sorted list (or taken from the payload's own aggregate where it supplies
// one).
func Normalize(payload extractor.Payload, ref models.ProductRef, policy models.PaymentMethodPolicy, allowAccounts bool) models.PriceSnapshot {
	snapshot := models.PriceSnapshot{
		Currency:  ref.Currency,
		FetchedAt: time.Now(),
	}

	var raw []models.Offer
	var aggregateHigh *float64

	switch payload.Format {
	case extractor.FormatJSONLD:
		raw, aggregateHigh = fromJSONLD(payload.Product)
		snapshot.Rating = ratingFromJSONLD(payload.Product)
	case extractor.FormatInline:
		raw = fromInline(payload.Page)
	}

	retained := raw[:0]
	for _, offer := range raw {
		if offer.IsAccount && !allowAccounts {
			continue
		}
		offer.EffectivePrice = effectivePrice(offer, policy)
		retained = append(retained, offer)
	}

	sort.SliceStable(retained, func(i, j int) bool {
		return retained[i].EffectivePrice < retained[j].EffectivePrice
	})

	snapshot.Offers = retained
	snapshot.OfferCount = len(retained)

	if len(retained) > 0 {
		low := retained[0].EffectivePrice
		snapshot.LowPrice = &low

		if aggregateHigh != nil {
			snapshot.HighPrice = aggregateHigh
		} else {
			high := retained[len(retained)-1].EffectivePrice
			snapshot.HighPrice = &high
		}
	}

	return snapshot
}

// effectivePrice selects the comparison price for one offer.
//
// CARD and PAYPAL fall back to the listed price when their fee field is
// absent. LOWEST_FEES takes the minimum of the fee fields that are present
// and falls back to the listed price only when both are absent.
func effectivePrice(offer models.Offer, policy models.PaymentMethodPolicy) float64 {
	switch policy {
	case models.PolicyCard:
		if offer.PriceCardFee != nil {
			return *offer.PriceCardFee
		}
	case models.PolicyPaypal:
		if offer.PricePaypalFee != nil {
			return *offer.PricePaypalFee
		}
	case models.PolicyLowestFees:
		best := math.Inf(1)
		if offer.PriceCardFee != nil && *offer.PriceCardFee < best {
			best = *offer.PriceCardFee
		}
		if offer.PricePaypalFee != nil && *offer.PricePaypalFee < best {
			best = *offer.PricePaypalFee
		}
		if !math.IsInf(best, 1) {
			return best
		}
	}
	return offer.Price
}

func fromJSONLD(product *extractor.LDProduct) ([]models.Offer, *float64) {
	if product == nil || product.Offers == nil {
		return nil, nil
	}

	agg := product.Offers
	result := make([]models.Offer, 0, len(agg.Offers))
	for _, entry := range agg.Offers {
		result = append(result, models.Offer{
			Price:        entry.Price.Float(),
			Seller:       entry.Seller.Name,
			Availability: availabilityFromSchema(entry.Availability),
		})
	}

	var high *float64
	if v := agg.HighPrice.Float(); v > 0 {
		high = &v
	}
	return result, high
}

func fromInline(page *extractor.GamePage) []models.Offer {
	if page == nil {
		return nil
	}

	result := make([]models.Offer, 0, len(page.Prices))
	for _, entry := range page.Prices {
		offer := models.Offer{
			Price:        entry.Price.Float(),
			Seller:       entry.Merchant,
			Availability: models.AvailabilityUnknown,
			IsAccount:    entry.Account.Bool(),
		}
		// Fee fields have shipped as explicit zeros on some page
		// generations, which means "not offered" there.
		if entry.PriceCard != nil && entry.PriceCard.Float() > 0 {
			v := entry.PriceCard.Float()
			offer.PriceCardFee = &v
		}
		if entry.PricePaypal != nil && entry.PricePaypal.Float() > 0 {
			v := entry.PricePaypal.Float()
			offer.PricePaypalFee = &v
		}
		if entry.InStock != nil && *entry.InStock {
			offer.Availability = models.AvailabilityInStock
		}
		result = append(result, offer)
	}
	return result
}

func ratingFromJSONLD(product *extractor.LDProduct) *models.Rating {
	if product == nil || product.AggregateRating == nil {
		return nil
	}
	rating := product.AggregateRating
	if rating.RatingValue.Float() == 0 && rating.RatingCount.Int() == 0 {
		return nil
	}
	return &models.Rating{
		Value: rating.RatingValue.Float(),
		Count: rating.RatingCount.Int(),
	}
}

// availabilityFromSchema maps schema.org availability URIs onto the snapshot
// enum. Anything that is not an InStock variant is reported as unknown.
func availabilityFromSchema(s string) models.Availability {
	if strings.Contains(strings.ToLower(s), "instock") {
		return models.AvailabilityInStock
	}
	return models.AvailabilityUnknown
}
