// Package cache owns the current and previous schedule generations.
//
// The Manager decides where today's schedule comes from (bundled snapshot,
// live acquisition, or the durable cache) and is the only writer of cached
// state. Accept calls are serialized and every accepted snapshot is persisted
// before the in-memory state changes.
package cache
