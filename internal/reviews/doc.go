// Package reviews turns clue sources into clue records: it fetches each
// review page, parses it field by field, and resolves every source of an
// entry concurrently.
package reviews
