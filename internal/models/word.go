package models

import (
	"strings"
	"time"
)

// PartOfSpeech is the grammatical category of a vocabulary entry
type PartOfSpeech string

const (
	Noun         PartOfSpeech = "noun"
	Verb         PartOfSpeech = "verb"
	Adjective    PartOfSpeech = "adjective"
	Adverb       PartOfSpeech = "adverb"
	Preposition  PartOfSpeech = "preposition"
	Conjunction  PartOfSpeech = "conjunction"
	Pronoun      PartOfSpeech = "pronoun"
	Interjection PartOfSpeech = "interjection"
)

// PartsOfSpeech lists every value the words table accepts
var PartsOfSpeech = []PartOfSpeech{
	Noun, Verb, Adjective, Adverb, Preposition, Conjunction, Pronoun, Interjection,
}

// ParsePartOfSpeech normalizes user input. Unknown values are returned as-is
// so the store can reject them.
func ParsePartOfSpeech(s string) PartOfSpeech {
	return PartOfSpeech(strings.ToLower(strings.TrimSpace(s)))
}

// Valid reports whether p is one of PartsOfSpeech
func (p PartOfSpeech) Valid() bool {
	for _, v := range PartsOfSpeech {
		if p == v {
			return true
		}
	}
	return false
}

const (
	MinDifficulty = 1
	MaxDifficulty = 5
)

// Word represents a persisted vocabulary entry
type Word struct {
	ID              int64        `json:"id"`
	SourceText      string       `json:"source_text"`
	TargetText      string       `json:"target_text"`
	PartOfSpeech    PartOfSpeech `json:"part_of_speech"`
	DifficultyLevel int          `json:"difficulty_level"`
	DateAdded       time.Time    `json:"date_added"`
}

// NewWord is one entry of a batch passed to InsertWords
type NewWord struct {
	SourceText      string       `json:"source_text"`
	TargetText      string       `json:"target_text"`
	PartOfSpeech    PartOfSpeech `json:"part_of_speech"`
	DifficultyLevel int          `json:"difficulty_level"`
}

// WordDetail holds the optional 1:1 extension of a word
type WordDetail struct {
	WordID          int64   `json:"word_id"`
	ExampleSentence *string `json:"example_sentence,omitempty"`
	Pronunciation   *string `json:"pronunciation,omitempty"`
	Etymology       *string `json:"etymology,omitempty"`
	UsageNotes      *string `json:"usage_notes,omitempty"`
}

// Category groups words; linked many-to-many through word_categories
type Category struct {
	ID          int64   `json:"id"`
	Name        string  `json:"category_name"`
	Description *string `json:"description,omitempty"`
}

// CategoryAssignment links a word to a category by name, creating the
// category if it does not exist yet
type CategoryAssignment struct {
	WordID       int64
	CategoryName string
}

// WordFilter represents query parameters for filtering words
type WordFilter struct {
	Search       string
	PartOfSpeech PartOfSpeech
	Difficulty   int
	Category     string
	Limit        int
	Offset       int
}
