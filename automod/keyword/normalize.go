package keyword

import (
	"log/slog"

	"golang.org/x/text/cases"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Canonical form used for case-insensitive matching: Unicode case folding, with NFC composition before and after.
//
// Composed and decomposed spellings of the same text (eg, "café" written with a combining accent) normalize identically.
func Normalize(text string) string {
	// transformers carry state, so the chain is built per call
	chain := transform.Chain(norm.NFC, cases.Fold(), norm.NFC)
	out, _, err := transform.String(chain, text)
	if err != nil {
		slog.Warn("unicode normalization error", "err", err)
		return text
	}
	return out
}
