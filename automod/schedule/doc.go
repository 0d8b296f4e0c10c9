// Automod component holding deferred one-shot actions (restriction expiry, reminder delivery), executed exactly once by a periodic sweep.
//
// Pending actions live only in process memory; nothing survives a restart. Execution is best-effort: a failed action is logged and dropped, never retried.
package schedule
