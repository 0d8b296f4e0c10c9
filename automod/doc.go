// Moderation engine for chat communities.
//
// The packages under `github.com/horizon-devs/warden/automod` detect bursts of activity from a single user (`ratelimit`), match message text against a phrase blocklist (`keyword`), run deferred one-shot actions such as restriction expiry and reminders (`schedule`), and promote content once enough distinct users up-vote it (`promote`). The `engine` package connects inbound events to these components and their outcomes to outbound capabilities, which `discord` implements for Discord guilds.
//
// Persistent side-state (flags, cooldowns, configured sets) lives in `flagstore`, `cachestore`, and `setstore`, each with in-process and redis-backed implementations where it matters. Core engine state (rate windows, pending actions, tallies) is in-memory only.
//
// See `cmd/warden` for a daemon built on these packages.
package automod
