// Package schedule provides the shuttle-bus schedule data model.
//
// A Record is one scheduled departure parsed from a row of the upstream table.
// A Snapshot is one full capture of that table, and State holds the two cached
// generations (current and previous day). Each record carries a lowercase search
// index that is always derived from its other fields, never set independently.
package schedule
