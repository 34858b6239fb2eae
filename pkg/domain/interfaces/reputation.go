package interfaces

import (
	"context"
	"encoding/json"
	"io"
)

// ReputationService looks up samples in a file reputation database
type ReputationService interface {
	// Hash returns the lowercase hex digest used as lookup identifier
	Hash(r io.Reader) (string, error)

	// Lookup fetches the raw report for identifier
	Lookup(ctx context.Context, identifier, apiKey string) (json.RawMessage, error)

	// Normalize renders a raw report as fixed-section text. It never fails.
	Normalize(raw []byte) string
}
