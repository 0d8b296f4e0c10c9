// Discord adapter for the automod engine.
//
// Actions implements the engine's outbound capabilities (timeouts, bans, message removal, notices, reminders, and starboard promotion) over the Discord REST API. Consumer feeds gateway events (messages and reactions) in to the engine.
package discord
