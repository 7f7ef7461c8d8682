package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/lehmann314159/palabrabox/internal/models"
)

var (
	ErrEmptyStaging    = errors.New("staging area is empty")
	ErrNothingApproved = errors.New("no approved entries")
	ErrIndexOutOfRange = errors.New("index out of range")
	ErrStaleVersion    = errors.New("staging area changed since it was read")
	ErrInvalidEntry    = errors.New("invalid entry")
	ErrEntryNotFound   = errors.New("no staged entry with that id")
)

// WordInserter is the part of the repository a staging session commits to
type WordInserter interface {
	InsertWords(ctx context.Context, entries []models.NewWord) ([]int64, error)
}

// StagingSession holds words collected by the user before they are saved.
// Entries wait in the staging list until approved; approved entries are
// written to the store by Commit. Entries are addressed either by their ID or
// by position; every mutation bumps Version, and positional calls must quote
// the version they were computed against.
//
// A StagingSession is not safe for concurrent use.
type StagingSession struct {
	staged   []models.StagedEntry
	approved []models.StagedEntry
	version  uint64
}

// NewStagingSession creates an empty session
func NewStagingSession() *StagingSession {
	return &StagingSession{}
}

// Version returns the current revision of the session
func (s *StagingSession) Version() uint64 { return s.version }

// Staged returns a copy of the staged entries in order
func (s *StagingSession) Staged() []models.StagedEntry { return slices.Clone(s.staged) }

// Approved returns a copy of the approved entries in order
func (s *StagingSession) Approved() []models.StagedEntry { return slices.Clone(s.approved) }

// Add appends a new entry to the staging list
func (s *StagingSession) Add(w models.NewWord) (models.StagedEntry, error) {
	w, err := normalizeEntry(w)
	if err != nil {
		return models.StagedEntry{}, err
	}
	entry := models.NewStagedEntry(w)
	s.staged = append(s.staged, entry)
	s.version++
	return entry, nil
}

// Edit replaces the content of the staged entry at index, keeping its ID
func (s *StagingSession) Edit(version uint64, index int, w models.NewWord) (models.StagedEntry, error) {
	if err := s.check(version, index); err != nil {
		return models.StagedEntry{}, err
	}
	return s.EditEntry(s.staged[index].ID, w)
}

// EditEntry replaces the content of the staged entry with the given ID
func (s *StagingSession) EditEntry(id uuid.UUID, w models.NewWord) (models.StagedEntry, error) {
	i, err := s.find(id)
	if err != nil {
		return models.StagedEntry{}, err
	}
	w, err = normalizeEntry(w)
	if err != nil {
		return models.StagedEntry{}, err
	}
	s.staged[i].NewWord = w
	s.version++
	return s.staged[i], nil
}

// Delete removes the staged entry at index
func (s *StagingSession) Delete(version uint64, index int) (models.StagedEntry, error) {
	if err := s.check(version, index); err != nil {
		return models.StagedEntry{}, err
	}
	return s.DeleteEntry(s.staged[index].ID)
}

// DeleteEntry removes the staged entry with the given ID
func (s *StagingSession) DeleteEntry(id uuid.UUID) (models.StagedEntry, error) {
	i, err := s.find(id)
	if err != nil {
		return models.StagedEntry{}, err
	}
	entry := s.staged[i]
	s.staged = slices.Delete(s.staged, i, i+1)
	s.version++
	return entry, nil
}

// DeleteMany removes every valid index in one step. Invalid indexes are
// returned rather than failing the whole call.
func (s *StagingSession) DeleteMany(version uint64, indexes []int) (deleted []models.StagedEntry, invalid []int, err error) {
	if len(s.staged) == 0 {
		return nil, nil, ErrEmptyStaging
	}
	if version != s.version {
		return nil, nil, ErrStaleVersion
	}

	var ids []uuid.UUID
	for _, idx := range indexes {
		if idx < 0 || idx >= len(s.staged) {
			invalid = append(invalid, idx)
			continue
		}
		ids = append(ids, s.staged[idx].ID)
	}
	slices.Sort(invalid)
	invalid = slices.Compact(invalid)

	deleted, _ = s.DeleteEntries(ids)
	return deleted, invalid, nil
}

// DeleteEntries removes every staged entry whose ID is in ids. Deleted
// entries come back in staging order; IDs that match nothing are returned
// as missing.
func (s *StagingSession) DeleteEntries(ids []uuid.UUID) (deleted []models.StagedEntry, missing []uuid.UUID) {
	wanted := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}

	kept := s.staged[:0]
	for _, e := range s.staged {
		if wanted[e.ID] {
			deleted = append(deleted, e)
			delete(wanted, e.ID)
			continue
		}
		kept = append(kept, e)
	}
	clear(s.staged[len(kept):])
	s.staged = kept

	for _, id := range ids {
		if wanted[id] {
			missing = append(missing, id)
			delete(wanted, id)
		}
	}

	if len(deleted) > 0 {
		s.version++
	}
	return deleted, missing
}

// Approve moves the staged entry at index to the approved list
func (s *StagingSession) Approve(version uint64, index int) (models.StagedEntry, error) {
	if err := s.check(version, index); err != nil {
		return models.StagedEntry{}, err
	}
	return s.ApproveEntry(s.staged[index].ID)
}

// ApproveEntry moves the staged entry with the given ID to the approved list
func (s *StagingSession) ApproveEntry(id uuid.UUID) (models.StagedEntry, error) {
	i, err := s.find(id)
	if err != nil {
		return models.StagedEntry{}, err
	}
	entry := s.staged[i]
	s.staged = slices.Delete(s.staged, i, i+1)
	s.approved = append(s.approved, entry)
	s.version++
	return entry, nil
}

// Commit writes the approved entries as one batch. The approved list is only
// cleared when the whole batch was stored.
func (s *StagingSession) Commit(ctx context.Context, repo WordInserter) ([]int64, error) {
	if len(s.approved) == 0 {
		return nil, ErrNothingApproved
	}

	batch := make([]models.NewWord, len(s.approved))
	for i, e := range s.approved {
		batch[i] = e.NewWord
	}

	ids, err := repo.InsertWords(ctx, batch)
	if err != nil {
		return nil, err
	}

	s.approved = nil
	s.version++
	return ids, nil
}

func (s *StagingSession) check(version uint64, index int) error {
	if len(s.staged) == 0 {
		return ErrEmptyStaging
	}
	if version != s.version {
		return ErrStaleVersion
	}
	if index < 0 || index >= len(s.staged) {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	return nil
}

func (s *StagingSession) find(id uuid.UUID) (int, error) {
	i := slices.IndexFunc(s.staged, func(e models.StagedEntry) bool { return e.ID == id })
	if i < 0 {
		return -1, fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	return i, nil
}

func normalizeEntry(w models.NewWord) (models.NewWord, error) {
	w.SourceText = strings.TrimSpace(w.SourceText)
	w.TargetText = strings.TrimSpace(w.TargetText)
	w.PartOfSpeech = models.ParsePartOfSpeech(string(w.PartOfSpeech))

	if w.SourceText == "" {
		return w, fmt.Errorf("%w: word or phrase is required", ErrInvalidEntry)
	}
	if w.TargetText == "" {
		return w, fmt.Errorf("%w: translation is required", ErrInvalidEntry)
	}
	return w, nil
}
