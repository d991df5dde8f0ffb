package catalog

import (
	"context"
	"errors"
	"math"
	"testing"
)

type stubSource struct {
	item *ResolvedItem
	err  error
}

func (s *stubSource) Resolve(_ context.Context, _ string) (*ResolvedItem, error) {
	return s.item, s.err
}

func TestChainSource_FallsThroughOnNotFound(t *testing.T) {
	want := &ResolvedItem{MedicineID: "m1", Name: "Paracetamol", UnitPrice: 50}
	chain := NewChainSource(
		&stubSource{err: ErrItemNotFound},
		&stubSource{item: want},
	)

	got, err := chain.Resolve(context.Background(), "m1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Fatalf("expected second source's item, got %+v", got)
	}
}

func TestChainSource_StopsOnHardError(t *testing.T) {
	chain := NewChainSource(
		&stubSource{err: ErrInvalidPrice},
		&stubSource{item: &ResolvedItem{MedicineID: "m1", UnitPrice: 50}},
	)

	_, err := chain.Resolve(context.Background(), "m1")
	if !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice, got %v", err)
	}
}

func TestChainSource_AllMiss(t *testing.T) {
	chain := NewChainSource(
		&stubSource{err: ErrItemNotFound},
		&stubSource{err: ErrItemNotFound},
	)

	_, err := chain.Resolve(context.Background(), "m-missing")
	if !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}
}

func TestEffectivePrice(t *testing.T) {
	lower := 80.0
	higher := 120.0

	if got := effectivePrice(100, nil); got != 100 {
		t.Fatalf("no discount: got %v", got)
	}
	if got := effectivePrice(100, &lower); got != 80 {
		t.Fatalf("lower discount should win: got %v", got)
	}
	// A "discount" above list price is ignored.
	if got := effectivePrice(100, &higher); got != 100 {
		t.Fatalf("higher discount should be ignored: got %v", got)
	}
}

func TestCheckPrice(t *testing.T) {
	if err := checkPrice(49.5); err != nil {
		t.Fatalf("valid price rejected: %v", err)
	}
	for _, bad := range []float64{math.NaN(), math.Inf(1), math.Inf(-1), -1} {
		if err := checkPrice(bad); !errors.Is(err, ErrInvalidPrice) {
			t.Fatalf("price %v should be invalid", bad)
		}
	}
}
