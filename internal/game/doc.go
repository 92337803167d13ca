// Package game defines the core types shared by the daily puzzle pipeline:
// catalog entries, clue sources, clue records, the daily payload, and the
// collaborator interfaces the pipeline depends on.
package game
