package keyword

import (
	"strings"
)

// Phrases blocked when no blocklist is configured.
var DefaultBlocklist = []string{
	"free nitro",
	"discord.gg/",
	"steam giveaway",
	"crypto scam",
}

// Case-insensitive substring matcher over a fixed list of phrases. Immutable after construction, and safe for concurrent use.
type Filter struct {
	phrases    []string
	normalized []string
}

// Empty phrases (and duplicates, after normalization) are dropped. Order is preserved, and determines which phrase Match reports.
func NewFilter(phrases []string) *Filter {
	f := &Filter{}
	seen := make(map[string]bool, len(phrases))
	for _, p := range phrases {
		n := Normalize(p)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		f.phrases = append(f.phrases, p)
		f.normalized = append(f.normalized, n)
	}
	return f
}

// Returns the first blocked phrase contained in the text.
func (f *Filter) Match(text string) (string, bool) {
	if len(f.normalized) == 0 || text == "" {
		return "", false
	}
	norm := Normalize(text)
	for i, p := range f.normalized {
		if strings.Contains(norm, p) {
			return f.phrases[i], true
		}
	}
	return "", false
}

func (f *Filter) Matches(text string) bool {
	_, ok := f.Match(text)
	return ok
}

func (f *Filter) Len() int {
	return len(f.phrases)
}
