// Package cli implements the command-line interface for shuttle-schedule.
//
// The cli package provides the Cobra-based CLI with commands to show today's
// or the previous day's departures (filtered, sorted, and written as text, JSON
// or iCalendar), force a live refresh, run the bundle scrape job, and inspect
// the cache. It wires config, storage, the fetch chain and the cache manager
// for each invocation.
package cli
