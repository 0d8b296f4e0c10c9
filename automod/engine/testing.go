package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/horizon-devs/warden/automod/event"
	"github.com/horizon-devs/warden/automod/flagstore"
	"github.com/horizon-devs/warden/automod/promote"
	"github.com/horizon-devs/warden/automod/schedule"
	"github.com/horizon-devs/warden/pkg/clock"
)

type AppliedRestriction struct {
	Actor  event.ActorKey
	Kind   schedule.RestrictionType
	Reason string
	Until  time.Time
}

type LiftedRestriction struct {
	Actor event.ActorKey
	Kind  schedule.RestrictionType
}

type SentMessage struct {
	Actor       event.ActorKey
	Destination string
	Text        string
}

type Promotion struct {
	Content event.ContentID
	Tally   promote.Tally
}

// In-memory implementation of every outbound capability, recording calls for inspection by tests.
type MockCapabilities struct {
	mu sync.Mutex

	Applied    []AppliedRestriction
	Lifted     []LiftedRestriction
	Removed    []event.MessageRef
	Reminders  []SentMessage
	Notices    []SentMessage
	Promotions []Promotion

	// when set, the corresponding calls fail with this error
	ApplyErr   error
	LiftErr    error
	RemoveErr  error
	NotifyErr  error
	PromoteErr error
}

var (
	_ Moderator        = (*MockCapabilities)(nil)
	_ Notifier         = (*MockCapabilities)(nil)
	_ promote.Promoter = (*MockCapabilities)(nil)
)

func (m *MockCapabilities) ApplyTemporaryRestriction(ctx context.Context, actor event.ActorKey, kind schedule.RestrictionType, reason string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ApplyErr != nil {
		return m.ApplyErr
	}
	m.Applied = append(m.Applied, AppliedRestriction{Actor: actor, Kind: kind, Reason: reason, Until: until})
	return nil
}

func (m *MockCapabilities) LiftRestriction(ctx context.Context, actor event.ActorKey, kind schedule.RestrictionType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LiftErr != nil {
		return m.LiftErr
	}
	m.Lifted = append(m.Lifted, LiftedRestriction{Actor: actor, Kind: kind})
	return nil
}

func (m *MockCapabilities) RemoveContent(ctx context.Context, ref event.MessageRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RemoveErr != nil {
		return m.RemoveErr
	}
	m.Removed = append(m.Removed, ref)
	return nil
}

func (m *MockCapabilities) DeliverReminder(ctx context.Context, requester event.ActorKey, destination, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.NotifyErr != nil {
		return m.NotifyErr
	}
	m.Reminders = append(m.Reminders, SentMessage{Actor: requester, Destination: destination, Text: text})
	return nil
}

func (m *MockCapabilities) PostNotice(ctx context.Context, destination string, subject event.ActorKey, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.NotifyErr != nil {
		return m.NotifyErr
	}
	m.Notices = append(m.Notices, SentMessage{Actor: subject, Destination: destination, Text: text})
	return nil
}

func (m *MockCapabilities) PromoteContent(ctx context.Context, content event.ContentID, tally promote.Tally) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Promotions = append(m.Promotions, Promotion{Content: content, Tally: tally})
	return m.PromoteErr
}

// Runs `fn` with the mock locked, for reading recorded calls.
func (m *MockCapabilities) Inspect(fn func(m *MockCapabilities)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m)
}

// Engine with default config, a mock clock, mock capabilities, and an in-memory flag store.
func EngineTestFixture(start time.Time) (*Engine, *MockCapabilities, *flagstore.MemFlagStore, *clock.MockClock) {
	clk := clock.NewMockClock(start)
	caps := &MockCapabilities{}
	flags := flagstore.NewMemFlagStore()

	config := DefaultConfig()
	config.Clock = clk
	config.Logger = slog.Default()
	eng, err := NewEngine(config, Capabilities{
		Moderator: caps,
		Flagger:   &StoreFlagger{Store: flags},
		Notifier:  caps,
		Promoter:  caps,
	})
	if err != nil {
		panic(err)
	}
	return eng, caps, flags, clk
}
