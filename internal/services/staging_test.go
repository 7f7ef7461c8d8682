package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lehmann314159/palabrabox/internal/models"
)

type fakeInserter struct {
	calls  [][]models.NewWord
	err    error
	nextID int64
}

func (f *fakeInserter) InsertWords(_ context.Context, entries []models.NewWord) ([]int64, error) {
	f.calls = append(f.calls, entries)
	if f.err != nil {
		return nil, f.err
	}
	ids := make([]int64, len(entries))
	for i := range entries {
		f.nextID++
		ids[i] = f.nextID
	}
	return ids, nil
}

func newWord(source, target string) models.NewWord {
	return models.NewWord{SourceText: source, TargetText: target, PartOfSpeech: models.Noun, DifficultyLevel: 1}
}

func stagedSources(entries []models.StagedEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.SourceText
	}
	return out
}

func sessionWith(t *testing.T, sources ...string) *StagingSession {
	t.Helper()
	s := NewStagingSession()
	for _, src := range sources {
		_, err := s.Add(newWord(src, src+"-en"))
		require.NoError(t, err)
	}
	return s
}

func TestStagingSession_Add(t *testing.T) {
	tests := []struct {
		name    string
		word    models.NewWord
		wantErr bool
	}{
		{name: "valid entry", word: newWord("casa", "house")},
		{name: "trims and lowercases", word: models.NewWord{SourceText: "  libro ", TargetText: " book ", PartOfSpeech: " NOUN "}},
		{name: "missing source", word: newWord("  ", "house"), wantErr: true},
		{name: "missing target", word: newWord("casa", ""), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStagingSession()
			entry, err := s.Add(tt.word)
			if (err != nil) != tt.wantErr {
				t.Errorf("Add() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidEntry)
				assert.Empty(t, s.Staged())
				assert.Zero(t, s.Version())
				return
			}
			assert.NotEqual(t, uuid.Nil, entry.ID)
			assert.Equal(t, uint64(1), s.Version())
			require.Len(t, s.Staged(), 1)
			assert.NotContains(t, entry.SourceText, " ")
			assert.True(t, entry.PartOfSpeech == "" || entry.PartOfSpeech.Valid())
		})
	}
}

func TestStagingSession_Edit(t *testing.T) {
	s := sessionWith(t, "uno", "dos")
	before := s.Staged()[1]

	entry, err := s.Edit(s.Version(), 1, newWord("tres", "three"))
	require.NoError(t, err)
	assert.Equal(t, before.ID, entry.ID, "edit keeps the entry identity")
	assert.Equal(t, []string{"uno", "tres"}, stagedSources(s.Staged()))

	_, err = s.Edit(s.Version(), 0, newWord("", "x"))
	assert.ErrorIs(t, err, ErrInvalidEntry)
	assert.Equal(t, "uno", s.Staged()[0].SourceText)
}

func TestStagingSession_PositionChecks(t *testing.T) {
	tests := []struct {
		name    string
		sources []string
		stale   bool
		index   int
		wantErr error
	}{
		{name: "empty staging", index: 0, wantErr: ErrEmptyStaging},
		{name: "stale version", sources: []string{"a", "b"}, stale: true, index: 0, wantErr: ErrStaleVersion},
		{name: "negative index", sources: []string{"a"}, index: -1, wantErr: ErrIndexOutOfRange},
		{name: "index past end", sources: []string{"a", "b"}, index: 2, wantErr: ErrIndexOutOfRange},
	}

	ops := map[string]func(s *StagingSession, version uint64, index int) error{
		"Edit": func(s *StagingSession, v uint64, i int) error {
			_, err := s.Edit(v, i, newWord("x", "y"))
			return err
		},
		"Delete": func(s *StagingSession, v uint64, i int) error {
			_, err := s.Delete(v, i)
			return err
		},
		"Approve": func(s *StagingSession, v uint64, i int) error {
			_, err := s.Approve(v, i)
			return err
		},
	}

	for opName, op := range ops {
		for _, tt := range tests {
			t.Run(opName+"/"+tt.name, func(t *testing.T) {
				s := sessionWith(t, tt.sources...)
				version := s.Version()
				if tt.stale {
					version--
				}
				before := s.Staged()

				err := op(s, version, tt.index)
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, before, s.Staged(), "failed call must not change the staging list")
			})
		}
	}
}

func TestStagingSession_Delete(t *testing.T) {
	s := sessionWith(t, "a", "b", "c")
	v := s.Version()

	entry, err := s.Delete(v, 1)
	require.NoError(t, err)
	assert.Equal(t, "b", entry.SourceText)
	assert.Equal(t, []string{"a", "c"}, stagedSources(s.Staged()))
	assert.Greater(t, s.Version(), v)

	_, err = s.Delete(v, 0)
	assert.ErrorIs(t, err, ErrStaleVersion, "the old version is no longer valid")
}

func TestStagingSession_DeleteMany(t *testing.T) {
	tests := []struct {
		name        string
		indexes     []int
		wantDeleted []string
		wantInvalid []int
		wantLeft    []string
	}{
		{
			name:        "several valid",
			indexes:     []int{0, 2},
			wantDeleted: []string{"a", "c"},
			wantLeft:    []string{"b", "d"},
		},
		{
			name:        "unordered with repeats",
			indexes:     []int{3, 1, 3},
			wantDeleted: []string{"b", "d"},
			wantLeft:    []string{"a", "c"},
		},
		{
			name:        "mixed valid and invalid",
			indexes:     []int{7, 1, -2},
			wantDeleted: []string{"b"},
			wantInvalid: []int{-2, 7},
			wantLeft:    []string{"a", "c", "d"},
		},
		{
			name:        "all invalid",
			indexes:     []int{4, 10},
			wantInvalid: []int{4, 10},
			wantLeft:    []string{"a", "b", "c", "d"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := sessionWith(t, "a", "b", "c", "d")
			v := s.Version()

			deleted, invalid, err := s.DeleteMany(v, tt.indexes)
			require.NoError(t, err)

			var gotDeleted []string
			if len(deleted) > 0 {
				gotDeleted = stagedSources(deleted)
			}
			assert.Equal(t, tt.wantDeleted, gotDeleted)
			assert.Equal(t, tt.wantInvalid, invalid)
			assert.Equal(t, tt.wantLeft, stagedSources(s.Staged()))

			if len(tt.wantDeleted) > 0 {
				assert.Greater(t, s.Version(), v)
			} else {
				assert.Equal(t, v, s.Version())
			}
		})
	}
}

func TestStagingSession_DeleteMany_Errors(t *testing.T) {
	_, _, err := NewStagingSession().DeleteMany(0, []int{0})
	assert.ErrorIs(t, err, ErrEmptyStaging)

	s := sessionWith(t, "a")
	_, _, err = s.DeleteMany(s.Version()+1, []int{0})
	assert.ErrorIs(t, err, ErrStaleVersion)
	assert.Len(t, s.Staged(), 1)
}

func TestStagingSession_Approve(t *testing.T) {
	s := sessionWith(t, "a", "b", "c")

	_, err := s.Approve(s.Version(), 2)
	require.NoError(t, err)
	_, err = s.Approve(s.Version(), 0)
	require.NoError(t, err)

	assert.Equal(t, []string{"b"}, stagedSources(s.Staged()))
	assert.Equal(t, []string{"c", "a"}, stagedSources(s.Approved()))
}

func TestStagingSession_Commit(t *testing.T) {
	ctx := context.Background()

	t.Run("nothing approved", func(t *testing.T) {
		s := sessionWith(t, "a")
		repo := &fakeInserter{}
		_, err := s.Commit(ctx, repo)
		assert.ErrorIs(t, err, ErrNothingApproved)
		assert.Empty(t, repo.calls)
	})

	t.Run("success clears approved", func(t *testing.T) {
		s := sessionWith(t, "a", "b", "c")
		_, err := s.Approve(s.Version(), 0)
		require.NoError(t, err)
		_, err = s.Approve(s.Version(), 0)
		require.NoError(t, err)

		repo := &fakeInserter{}
		ids, err := s.Commit(ctx, repo)
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 2}, ids)
		require.Len(t, repo.calls, 1)
		assert.Equal(t, "a", repo.calls[0][0].SourceText)
		assert.Equal(t, "b", repo.calls[0][1].SourceText)
		assert.Empty(t, s.Approved())
		assert.Equal(t, []string{"c"}, stagedSources(s.Staged()))
	})

	t.Run("failure keeps approved", func(t *testing.T) {
		s := sessionWith(t, "a")
		_, err := s.Approve(s.Version(), 0)
		require.NoError(t, err)
		v := s.Version()

		boom := errors.New("boom")
		_, err = s.Commit(ctx, &fakeInserter{err: boom})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, []string{"a"}, stagedSources(s.Approved()))
		assert.Equal(t, v, s.Version())

		ids, err := s.Commit(ctx, &fakeInserter{})
		require.NoError(t, err)
		assert.Len(t, ids, 1)
	})
}

func TestStagingSession_ReturnsCopies(t *testing.T) {
	s := sessionWith(t, "a")
	staged := s.Staged()
	staged[0].SourceText = "changed"
	assert.Equal(t, "a", s.Staged()[0].SourceText)
}

func TestStagingSession_ByID(t *testing.T) {
	s := sessionWith(t, "a", "b", "c")
	b := s.Staged()[1]

	// Positions shift after a deletion; the ID still finds the same entry
	_, err := s.Delete(s.Version(), 0)
	require.NoError(t, err)

	entry, err := s.EditEntry(b.ID, newWord("be", "bee"))
	require.NoError(t, err)
	assert.Equal(t, b.ID, entry.ID)
	assert.Equal(t, []string{"be", "c"}, stagedSources(s.Staged()))

	approved, err := s.ApproveEntry(b.ID)
	require.NoError(t, err)
	assert.Equal(t, "be", approved.SourceText)
	assert.Equal(t, []string{"c"}, stagedSources(s.Staged()))

	_, err = s.ApproveEntry(b.ID)
	assert.ErrorIs(t, err, ErrEntryNotFound, "approved entries leave the staging list")

	c := s.Staged()[0]
	deleted, err := s.DeleteEntry(c.ID)
	require.NoError(t, err)
	assert.Equal(t, "c", deleted.SourceText)
	assert.Empty(t, s.Staged())

	_, err = s.EditEntry(uuid.New(), newWord("x", "y"))
	assert.ErrorIs(t, err, ErrEntryNotFound)
	_, err = s.DeleteEntry(uuid.New())
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestStagingSession_DeleteEntries(t *testing.T) {
	s := sessionWith(t, "a", "b", "c", "d")
	staged := s.Staged()
	v := s.Version()
	unknown := uuid.New()

	deleted, missing := s.DeleteEntries([]uuid.UUID{staged[3].ID, unknown, staged[1].ID, staged[3].ID})
	assert.Equal(t, []string{"b", "d"}, stagedSources(deleted))
	assert.Equal(t, []uuid.UUID{unknown}, missing)
	assert.Equal(t, []string{"a", "c"}, stagedSources(s.Staged()))
	assert.Greater(t, s.Version(), v)

	v = s.Version()
	deleted, missing = s.DeleteEntries([]uuid.UUID{unknown})
	assert.Empty(t, deleted)
	assert.Equal(t, []uuid.UUID{unknown}, missing)
	assert.Equal(t, v, s.Version())
}
