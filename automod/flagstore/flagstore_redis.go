package flagstore

import (
	"context"
	"fmt"
	"slices"

	"github.com/horizon-devs/warden/automod/event"

	"github.com/redis/go-redis/v9"
)

var redisFlagPrefix string = "warden/flags/"

// Index of flagged users, one set per community.
var redisFlaggedPrefix string = "warden/flagged/"

// Stores each actor's flags as a redis set, plus a per-community set of the users holding any flag.
type RedisFlagStore struct {
	Client *redis.Client
}

var _ FlagStore = (*RedisFlagStore)(nil)

func NewRedisFlagStore(redisURL string) (*RedisFlagStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	// check redis connection
	_, err = rdb.Ping(context.TODO()).Result()
	if err != nil {
		return nil, err
	}
	return &RedisFlagStore{
		Client: rdb,
	}, nil
}

func flagsKey(actor event.ActorKey) string {
	return redisFlagPrefix + actor.String()
}

func flaggedKey(community string) string {
	return redisFlaggedPrefix + community
}

func toArgs(flags []string) []any {
	vals := make([]any, len(flags))
	for i, f := range flags {
		vals[i] = f
	}
	return vals
}

func (s *RedisFlagStore) Get(ctx context.Context, actor event.ActorKey) ([]string, error) {
	l, err := s.Client.SMembers(ctx, flagsKey(actor)).Result()
	if err == redis.Nil {
		return []string{}, nil
	} else if err != nil {
		return nil, err
	}
	slices.Sort(l)
	return l, nil
}

// One SADD per flag inside a MULTI, so each reply says whether that flag was new.
func (s *RedisFlagStore) Add(ctx context.Context, actor event.ActorKey, flags ...string) ([]string, error) {
	if len(flags) == 0 {
		return nil, nil
	}
	cmds := make([]*redis.IntCmd, len(flags))
	_, err := s.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, f := range flags {
			cmds[i] = pipe.SAdd(ctx, flagsKey(actor), f)
		}
		pipe.SAdd(ctx, flaggedKey(actor.Community), actor.User)
		return nil
	})
	if err != nil {
		return nil, err
	}
	var added []string
	for i, cmd := range cmds {
		if cmd.Val() > 0 {
			added = append(added, flags[i])
		}
	}
	return added, nil
}

// The community index entry is dropped once the actor has no flags left. A concurrent Add may race with that check; the index then lags until the actor's next Remove.
func (s *RedisFlagStore) Remove(ctx context.Context, actor event.ActorKey, flags ...string) error {
	if len(flags) == 0 {
		return nil
	}
	if err := s.Client.SRem(ctx, flagsKey(actor), toArgs(flags)...).Err(); err != nil {
		return err
	}
	n, err := s.Client.SCard(ctx, flagsKey(actor)).Result()
	if err != nil {
		return fmt.Errorf("counting remaining flags: %w", err)
	}
	if n == 0 {
		return s.Client.SRem(ctx, flaggedKey(actor.Community), actor.User).Err()
	}
	return nil
}

func (s *RedisFlagStore) Flagged(ctx context.Context, community string) ([]event.ActorKey, error) {
	users, err := s.Client.SMembers(ctx, flaggedKey(community)).Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}
	slices.Sort(users)
	out := make([]event.ActorKey, 0, len(users))
	for _, u := range users {
		out = append(out, event.ActorKey{Community: community, User: u})
	}
	return out, nil
}
