package event

import (
	"fmt"
	"strings"
	"time"
)

// Identifies whose behavior is being tracked: a user within a specific community (eg, a Discord guild).
//
// Only ever used as a map key or foreign reference; no component owns actors.
type ActorKey struct {
	Community string
	User      string
}

func (a ActorKey) String() string {
	return a.Community + "/" + a.User
}

// Parses the "community/user" form produced by ActorKey.String.
func ParseActorKey(raw string) (ActorKey, error) {
	parts := strings.SplitN(raw, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return ActorKey{}, fmt.Errorf("invalid actor key: %q", raw)
	}
	return ActorKey{Community: parts[0], User: parts[1]}, nil
}

// Opaque identifier of a piece of votable content (eg, "channel/message").
type ContentID string

// References a single message in a community, for removal or linking.
type MessageRef struct {
	Community string
	Channel   string
	Message   string
}

type Direction int

const (
	Up Direction = iota + 1
	Down
)

func (d Direction) String() string {
	switch d {
	case Up:
		return "up"
	case Down:
		return "down"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

func ParseDirection(raw string) (Direction, error) {
	switch strings.ToLower(raw) {
	case "up":
		return Up, nil
	case "down":
		return Down, nil
	default:
		return 0, fmt.Errorf("invalid vote direction: %q", raw)
	}
}

// Represents a single unit of actor activity, such as a message being sent.
type ActivityEvent struct {
	Actor ActorKey
	// Time the activity happened. Expected to be non-decreasing per actor.
	Time time.Time
	// Free-form text of the activity, checked against the content filter. May be empty.
	Text string
	// Where the activity happened. Optional; only used for content removal and notices.
	Message *MessageRef
}

// A single up or down vote (or retraction) on a piece of content.
type VoteEvent struct {
	Content   ContentID
	Voter     string
	Direction Direction
}
