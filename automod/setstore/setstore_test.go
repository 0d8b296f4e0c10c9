package setstore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadJSON(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	s := NewMemSetStore()
	err := s.LoadJSON(strings.NewReader(`{"blocklist": ["steam giveaway", "free nitro", "free nitro"], "other": []}`))
	require.NoError(t, err)

	members, err := s.Members(ctx, BlocklistSet)
	assert.NoError(err)
	assert.Equal([]string{"free nitro", "steam giveaway"}, members)

	members, err = s.Members(ctx, "missing")
	assert.NoError(err)
	assert.Nil(members)

	assert.Error(s.LoadJSON(strings.NewReader(`["not", "an", "object"]`)))
}

func TestLoadFromFileJSON(t *testing.T) {
	p := filepath.Join(t.TempDir(), "sets.json")
	require.NoError(t, os.WriteFile(p, []byte(`{"blocklist": ["crypto scam"]}`), 0o644))

	s := NewMemSetStore()
	require.NoError(t, s.LoadFromFileJSON(p))
	members, err := s.Members(context.Background(), BlocklistSet)
	assert.NoError(t, err)
	assert.Equal(t, []string{"crypto scam"}, members)

	assert.Error(t, s.LoadFromFileJSON(filepath.Join(t.TempDir(), "nope.json")))
}
