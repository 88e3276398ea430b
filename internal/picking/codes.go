package picking

import (
	"context"
	"strings"
)

// MatchType describes how a manually entered code was accepted.
type MatchType string

const (
	MatchExact   MatchType = "exact"
	MatchBarcode MatchType = "barcode"
)

// BarcodeLookup resolves secondary barcodes registered for a SKU.
type BarcodeLookup interface {
	BarcodeMatches(ctx context.Context, code, sku string) (bool, error)
}

// CodeResult is the outcome of a manual code check.
type CodeResult struct {
	Valid     bool      `json:"valid"`
	MatchType MatchType `json:"matchType,omitempty"`
}

// MatchManualCode compares a typed code with the expected SKU. The exact
// comparison ignores surrounding whitespace; anything else falls through to
// the barcode table.
func MatchManualCode(ctx context.Context, input, expectedSKU string, barcodes BarcodeLookup) (CodeResult, error) {
	code := strings.TrimSpace(input)
	sku := strings.TrimSpace(expectedSKU)
	if code == sku {
		return CodeResult{Valid: true, MatchType: MatchExact}, nil
	}
	if barcodes == nil {
		return CodeResult{}, nil
	}
	ok, err := barcodes.BarcodeMatches(ctx, code, sku)
	if err != nil {
		return CodeResult{}, err
	}
	if ok {
		return CodeResult{Valid: true, MatchType: MatchBarcode}, nil
	}
	return CodeResult{}, nil
}
