// Package freshness decides whether a previously acquired schedule can still be trusted.
//
// A snapshot is stale when its capture time is unknown or too old, or when the date
// it declares is neither today nor tomorrow. The upstream publishes the next day's
// schedule in the evening, so tomorrow's date is acceptable.
package freshness
