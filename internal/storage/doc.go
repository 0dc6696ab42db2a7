// Package storage persists schedule generations and reads the bundled snapshot file.
//
// Durable stores keep two independently keyed records, "current" and "previous".
// FileStore writes one JSON file per generation under a data directory
// (default ~/.local/share/shuttle-schedule/), PostgresStore keeps them in a single
// table, and MemoryStore serves tests. Bundle reads and writes the pre-fetched
// snapshot produced by the offline scrape job.
package storage
