package repository

import (
	"context"

	"github.com/lehmann314159/palabrabox/internal/models"
)

// WordRepository defines the interface for vocabulary persistence operations
type WordRepository interface {
	// CreateSchema creates the vocabulary tables if they do not exist
	CreateSchema(ctx context.Context) error

	// InsertWords inserts a batch atomically and returns the generated IDs in
	// the same order as entries
	InsertWords(ctx context.Context, entries []models.NewWord) ([]int64, error)

	// GetWord retrieves a word by its ID
	GetWord(ctx context.Context, id int64) (*models.Word, error)

	// GetWordByText retrieves a word by its (source, target) pair
	GetWordByText(ctx context.Context, source, target string) (*models.Word, error)

	// ListWords retrieves words with optional filtering
	ListWords(ctx context.Context, filter models.WordFilter) ([]*models.Word, error)

	// CountWords returns the number of words matching the filter
	CountWords(ctx context.Context, filter models.WordFilter) (int64, error)

	// SaveWordDetail inserts or replaces the details of a word
	SaveWordDetail(ctx context.Context, detail *models.WordDetail) error

	// GetWordDetail retrieves the details of a word
	GetWordDetail(ctx context.Context, wordID int64) (*models.WordDetail, error)

	// CreateCategory inserts a new category and returns its ID
	CreateCategory(ctx context.Context, name string, description *string) (int64, error)

	// AssignCategories links words to categories by name, creating missing
	// categories; returns the category IDs in assignment order
	AssignCategories(ctx context.Context, assignments []models.CategoryAssignment) ([]int64, error)

	// ListCategories returns the categories a word belongs to
	ListCategories(ctx context.Context, wordID int64) ([]*models.Category, error)

	// Tables lists the tables present in the database
	Tables(ctx context.Context) ([]string, error)
}
