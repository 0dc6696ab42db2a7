// Package parser converts the upstream schedule page into schedule snapshots.
//
// The upstream publishes one HTML table whose columns are positional: time, route,
// bus numbers, then any number of free-text description columns. When a relay
// returns a text extraction of the page instead of markup, the parser falls back
// to reading "HH:MM route (buses) – description" lines. Both modes share the same
// bus-number extraction and produce the same Snapshot shape.
package parser
