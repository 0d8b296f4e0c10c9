// Short-lived values and claims with a store-wide TTL.
//
// The engine's flag cooldown is a Cooldown over one of these stores: in-process (expirable LRU) for a single daemon, or redis so the cooldown survives restarts.
package cachestore
