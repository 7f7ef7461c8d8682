package models

import "github.com/google/uuid"

// StagedEntry is a word waiting in the staging area for approval
type StagedEntry struct {
	ID uuid.UUID `json:"id"`
	NewWord
}

// NewStagedEntry wraps w with a fresh identifier
func NewStagedEntry(w NewWord) StagedEntry {
	return StagedEntry{ID: uuid.New(), NewWord: w}
}
