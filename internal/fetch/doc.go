// Package fetch retrieves the upstream schedule page through an ordered chain of strategies.
//
// A Strategy is plain data: a label, the address to request, and an optional JSON
// envelope field holding the page body. The Chain tries strategies strictly in
// order, each under its own timeout, and returns the first snapshot with records.
// When every strategy fails, the error lists each attempt.
package fetch
