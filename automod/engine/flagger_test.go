package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/horizon-devs/warden/automod/event"
	"github.com/horizon-devs/warden/automod/flagstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreFlaggerAlertsOnce(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	var mu sync.Mutex
	var alerts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body SlackWebhookBody
		assert.NoError(json.NewDecoder(r.Body).Decode(&body))
		mu.Lock()
		alerts = append(alerts, body.Text)
		mu.Unlock()
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	flags := flagstore.NewMemFlagStore()
	f := StoreFlagger{
		Store: flags,
		Slack: &SlackNotifier{SlackWebhookURL: srv.URL, Client: srv.Client()},
	}
	actor := event.ActorKey{Community: "guild1", User: "u1"}

	assert.NoError(f.FlagActor(ctx, actor, FlagBurst))
	assert.NoError(f.FlagActor(ctx, actor, FlagBurst))
	assert.NoError(f.FlagActor(ctx, actor, FlagBlockedPhrase))

	stored, err := flags.Get(ctx, actor)
	require.NoError(t, err)
	assert.ElementsMatch([]string{FlagBurst, FlagBlockedPhrase}, stored)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, alerts, 2)
	assert.Contains(alerts[0], "`burst`")
	assert.Contains(alerts[1], "`blocked-phrase`")
}

func TestStoreFlaggerSlackFailureIsBestEffort(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	flags := flagstore.NewMemFlagStore()
	f := StoreFlagger{
		Store: flags,
		Slack: &SlackNotifier{SlackWebhookURL: srv.URL, Client: srv.Client()},
	}
	actor := event.ActorKey{Community: "guild1", User: "u2"}

	assert.NoError(f.FlagActor(ctx, actor, FlagBurst))
	stored, err := flags.Get(ctx, actor)
	require.NoError(t, err)
	assert.Equal([]string{FlagBurst}, stored)
}

func TestStoreFlaggerConcurrentFirstFlagAlertsOnce(t *testing.T) {
	ctx := context.Background()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := StoreFlagger{
		Store: flagstore.NewMemFlagStore(),
		Slack: &SlackNotifier{SlackWebhookURL: srv.URL, Client: srv.Client()},
	}
	actor := event.ActorKey{Community: "guild1", User: "u3"}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.FlagActor(ctx, actor, FlagBurst))
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), hits.Load())
}
