package main

import (
	"context"
	"fmt"
	"strings"

	"pickline/internal/store"
)

type pair struct {
	key   string
	value string
}

// seedList collects directory rows passed on the command line.
type seedList struct {
	pickers  []pair
	barcodes []pair
}

func splitPair(raw, what string) (pair, error) {
	key, value, _ := strings.Cut(raw, "=")
	key = strings.TrimSpace(key)
	if key == "" {
		return pair{}, fmt.Errorf("%s %q: expected key=value", what, raw)
	}
	return pair{key: key, value: strings.TrimSpace(value)}, nil
}

func (s *seedList) addPicker(raw string) error {
	p, err := splitPair(raw, "picker")
	if err != nil {
		return err
	}
	s.pickers = append(s.pickers, p)
	return nil
}

func (s *seedList) addBarcode(raw string) error {
	p, err := splitPair(raw, "barcode")
	if err != nil {
		return err
	}
	if p.value == "" {
		return fmt.Errorf("barcode %q: sku is required", raw)
	}
	s.barcodes = append(s.barcodes, p)
	return nil
}

func parseSeeds(pickers, barcodes []string) (seedList, error) {
	var seed seedList
	for _, raw := range pickers {
		if err := seed.addPicker(raw); err != nil {
			return seedList{}, err
		}
	}
	for _, raw := range barcodes {
		if err := seed.addBarcode(raw); err != nil {
			return seedList{}, err
		}
	}
	return seed, nil
}

// apply upserts every seeded row. Existing rows are updated in place.
func (s seedList) apply(ctx context.Context, st *store.Store) error {
	for _, p := range s.pickers {
		if err := st.UpsertPicker(ctx, p.key, p.value); err != nil {
			return fmt.Errorf("seed picker %s: %w", p.key, err)
		}
	}
	for _, b := range s.barcodes {
		if err := st.UpsertBarcode(ctx, b.key, b.value); err != nil {
			return fmt.Errorf("seed barcode %s: %w", b.key, err)
		}
	}
	return nil
}
