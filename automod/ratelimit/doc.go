// Automod component tracking per-actor sliding windows of recent activity, used to detect bursts (eg, message spam).
//
// All state is in-process memory. A window is created on an actor's first event, pruned on every insert, and garbage-collected by the janitor once it has gone quiet.
package ratelimit
