package keyword

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultBlocklist(t *testing.T) {
	assert := assert.New(t)
	f := NewFilter(DefaultBlocklist)

	fixtures := []struct {
		text   string
		phrase string
	}{
		{text: "FREE NITRO now", phrase: "free nitro"},
		{text: "join us at Discord.GG/abc123", phrase: "discord.gg/"},
		{text: "huge Steam Giveaway today!!", phrase: "steam giveaway"},
		{text: "this is a crypto scam", phrase: "crypto scam"},
		{text: "hello world", phrase: ""},
		{text: "free  nitro", phrase: ""},
		{text: "", phrase: ""},
	}

	for _, fix := range fixtures {
		phrase, ok := f.Match(fix.text)
		assert.Equal(fix.phrase != "", ok, fix.text)
		assert.Equal(fix.phrase, phrase, fix.text)
		assert.Equal(ok, f.Matches(fix.text), fix.text)
	}
}

func TestFilterNormalization(t *testing.T) {
	assert := assert.New(t)

	// decomposed "é" in the text, composed in the phrase
	f := NewFilter([]string{"café scam"})
	assert.True(f.Matches("CAFE\u0301 SCAM incoming"))

	f = NewFilter([]string{"ΣΟΦΙΑ"})
	assert.True(f.Matches("hi σοφια"))
}

func TestFilterEmptyAndDuplicatePhrases(t *testing.T) {
	assert := assert.New(t)

	f := NewFilter([]string{"", "spam", "SPAM", ""})
	assert.Equal(1, f.Len())
	phrase, ok := f.Match("SPAM here")
	assert.True(ok)
	assert.Equal("spam", phrase)
	// an empty phrase would otherwise match every text
	assert.False(f.Matches("hello"))

	empty := NewFilter(nil)
	assert.False(empty.Matches("free nitro"))
	assert.Equal(0, empty.Len())
}

func TestFilterFirstMatchWins(t *testing.T) {
	f := NewFilter([]string{"giveaway", "steam giveaway"})
	phrase, ok := f.Match("steam giveaway")
	assert.True(t, ok)
	assert.Equal(t, "giveaway", phrase)
}

func TestFilterConcurrentUse(t *testing.T) {
	f := NewFilter(DefaultBlocklist)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				assert.True(t, f.Matches("FREE NITRO"))
				assert.False(t, f.Matches("nothing to see"))
			}
		}()
	}
	wg.Wait()
}

func TestNormalize(t *testing.T) {
	assert := assert.New(t)
	assert.Equal("hello, world", Normalize("Hello, WORLD"))
	assert.Equal(Normalize("é"), Normalize("É"))
	assert.Equal("", Normalize(""))
}
