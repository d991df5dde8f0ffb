package catalog

import (
	"context"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrItemNotFound means neither the global catalog nor any pharmacy
	// inventory carries the medicine. Order creation is all-or-nothing, so
	// one unresolvable item aborts the whole cart.
	ErrItemNotFound = errors.New("medicine not found")

	// ErrInvalidPrice means the source entry carries a non-finite or
	// unparseable price. This must fail the order rather than default to 0.
	ErrInvalidPrice = errors.New("invalid price on catalog entry")
)

// ResolvedItem is the authoritative pricing answer for one cart line.
type ResolvedItem struct {
	MedicineID           string
	Name                 string
	UnitPrice            float64
	RequiresPrescription bool
	PharmacyID           *string
}

// PriceSource resolves a medicine id to its authoritative price and
// prescription requirement. Implementations: the global catalog and the
// pharmacy-scoped inventories. The assembler only ever sees this interface.
type PriceSource interface {
	Resolve(ctx context.Context, medicineID string) (*ResolvedItem, error)
}

// ChainSource tries each source in order, keeping the lookup fallback
// (global catalog first, pharmacy inventories second) out of the assembler.
type ChainSource struct {
	sources []PriceSource
}

func NewChainSource(sources ...PriceSource) *ChainSource {
	return &ChainSource{sources: sources}
}

func (c *ChainSource) Resolve(ctx context.Context, medicineID string) (*ResolvedItem, error) {
	for _, src := range c.sources {
		item, err := src.Resolve(ctx, medicineID)
		if err == nil {
			return item, nil
		}
		if !errors.Is(err, ErrItemNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrItemNotFound, medicineID)
}

// effectivePrice picks the discounted price only when it is present and
// actually lower than the list price.
func effectivePrice(list float64, discount *float64) float64 {
	if discount != nil && *discount < list {
		return *discount
	}
	return list
}

// checkPrice rejects NaN/Inf/negative prices so they never silently become 0.
func checkPrice(price float64) error {
	if math.IsNaN(price) || math.IsInf(price, 0) || price < 0 {
		return ErrInvalidPrice
	}
	return nil
}
