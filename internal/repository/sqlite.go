package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lehmann314159/palabrabox/internal/models"
)

const wordColumns = `id, source_text, target_text, part_of_speech, difficulty_level,
	strftime('%Y-%m-%dT%H:%M:%SZ', date_added)`

const insertWordSQL = `INSERT INTO words (source_text, target_text, part_of_speech, difficulty_level)
	VALUES (?, ?, ?, ?)`

// SQLiteRepository implements WordRepository using SQLite. Each method
// acquires its own connection and releases it before returning.
type SQLiteRepository struct {
	conns  *ConnectionManager
	schema *SchemaManager
	logger *slog.Logger
}

// NewSQLiteRepository creates a new SQLite repository
func NewSQLiteRepository(conns *ConnectionManager) *SQLiteRepository {
	return &SQLiteRepository{
		conns:  conns,
		schema: NewSchemaManager(conns.Driver(), conns.Logger()),
		logger: conns.Logger(),
	}
}

// withConn runs fn on a fresh connection with the schema in place
func (r *SQLiteRepository) withConn(ctx context.Context, fn func(db *sql.DB) error) error {
	db, err := r.conns.Acquire(ctx)
	if err != nil {
		return err
	}
	defer r.conns.Release(db)

	if err := r.schema.CreateSchema(ctx, db); err != nil {
		return err
	}
	return fn(db)
}

// CreateSchema creates the vocabulary tables if they do not exist
func (r *SQLiteRepository) CreateSchema(ctx context.Context) error {
	return r.withConn(ctx, func(*sql.DB) error { return nil })
}

// InsertWords inserts all entries in one transaction. Every row's ID is taken
// from its own insert result, so ids[i] always belongs to entries[i], even
// when several entries share a source text.
func (r *SQLiteRepository) InsertWords(ctx context.Context, entries []models.NewWord) ([]int64, error) {
	if len(entries) == 0 {
		return []int64{}, nil
	}

	ids := make([]int64, len(entries))
	err := r.withConn(ctx, func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return &InsertionError{Index: -1, Err: fmt.Errorf("failed to begin transaction: %w", err)}
		}
		defer tx.Rollback()

		stmt, err := tx.PrepareContext(ctx, insertWordSQL)
		if err != nil {
			return &InsertionError{Index: -1, Err: fmt.Errorf("failed to prepare statement: %w", err)}
		}
		defer stmt.Close()

		for i, e := range entries {
			result, err := stmt.ExecContext(ctx, e.SourceText, e.TargetText, string(e.PartOfSpeech), e.DifficultyLevel)
			if err != nil {
				return newInsertionError(i, fmt.Errorf("failed to insert %q: %w", e.SourceText, err))
			}
			id, err := result.LastInsertId()
			if err != nil {
				return &InsertionError{Index: i, Err: fmt.Errorf("failed to get last insert id: %w", err)}
			}
			ids[i] = id
		}

		if err := tx.Commit(); err != nil {
			return &InsertionError{Index: -1, Err: fmt.Errorf("failed to commit transaction: %w", err)}
		}
		return nil
	})
	if err != nil {
		var ie *InsertionError
		if errors.As(err, &ie) {
			r.logger.Error("word insertion failed", "entries", len(entries), "index", ie.Index, "kind", ie.Kind, "error", ie.Err)
		}
		return nil, err
	}

	r.logger.Info("inserted words", "count", len(ids))
	return ids, nil
}

// GetWord retrieves a word by its ID
func (r *SQLiteRepository) GetWord(ctx context.Context, id int64) (*models.Word, error) {
	var word *models.Word
	err := r.withConn(ctx, func(db *sql.DB) error {
		row := db.QueryRowContext(ctx, `SELECT `+wordColumns+` FROM words WHERE id = ?`, id)
		var err error
		word, err = scanWord(row)
		return err
	})
	return word, err
}

// GetWordByText retrieves a word by its (source, target) pair
func (r *SQLiteRepository) GetWordByText(ctx context.Context, source, target string) (*models.Word, error) {
	var word *models.Word
	err := r.withConn(ctx, func(db *sql.DB) error {
		row := db.QueryRowContext(ctx,
			`SELECT `+wordColumns+` FROM words WHERE source_text = ? AND target_text = ?`, source, target,
		)
		var err error
		word, err = scanWord(row)
		return err
	})
	return word, err
}

// ListWords retrieves words with optional filtering
func (r *SQLiteRepository) ListWords(ctx context.Context, filter models.WordFilter) ([]*models.Word, error) {
	var words []*models.Word
	err := r.withConn(ctx, func(db *sql.DB) error {
		query, args := buildListQuery(filter, false)
		rows, err := db.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to query words: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			word, err := scanWord(rows)
			if err != nil {
				return err
			}
			words = append(words, word)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("error iterating rows: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return words, nil
}

// CountWords returns the number of words matching the filter
func (r *SQLiteRepository) CountWords(ctx context.Context, filter models.WordFilter) (int64, error) {
	var count int64
	err := r.withConn(ctx, func(db *sql.DB) error {
		query, args := buildListQuery(filter, true)
		if err := db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
			return fmt.Errorf("failed to count words: %w", err)
		}
		return nil
	})
	return count, err
}

// SaveWordDetail inserts or replaces the details of a word
func (r *SQLiteRepository) SaveWordDetail(ctx context.Context, detail *models.WordDetail) error {
	return r.withConn(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO word_details (word_id, example_sentence, pronunciation, etymology, usage_notes)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(word_id) DO UPDATE SET
				example_sentence = excluded.example_sentence,
				pronunciation = excluded.pronunciation,
				etymology = excluded.etymology,
				usage_notes = excluded.usage_notes`,
			detail.WordID, ptrToNull(detail.ExampleSentence), ptrToNull(detail.Pronunciation),
			ptrToNull(detail.Etymology), ptrToNull(detail.UsageNotes),
		)
		if err != nil {
			return newInsertionError(0, fmt.Errorf("failed to save word detail: %w", err))
		}
		return nil
	})
}

// GetWordDetail retrieves the details of a word
func (r *SQLiteRepository) GetWordDetail(ctx context.Context, wordID int64) (*models.WordDetail, error) {
	var detail *models.WordDetail
	err := r.withConn(ctx, func(db *sql.DB) error {
		var example, pronunciation, etymology, notes sql.NullString
		err := db.QueryRowContext(ctx, `
			SELECT example_sentence, pronunciation, etymology, usage_notes
			FROM word_details WHERE word_id = ?`, wordID,
		).Scan(&example, &pronunciation, &etymology, &notes)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to query word detail: %w", err)
		}
		detail = &models.WordDetail{
			WordID:          wordID,
			ExampleSentence: nullToPtr(example),
			Pronunciation:   nullToPtr(pronunciation),
			Etymology:       nullToPtr(etymology),
			UsageNotes:      nullToPtr(notes),
		}
		return nil
	})
	return detail, err
}

// CreateCategory inserts a new category and returns its ID
func (r *SQLiteRepository) CreateCategory(ctx context.Context, name string, description *string) (int64, error) {
	var id int64
	err := r.withConn(ctx, func(db *sql.DB) error {
		result, err := db.ExecContext(ctx,
			`INSERT INTO categories (category_name, description) VALUES (?, ?)`,
			strings.TrimSpace(name), ptrToNull(description),
		)
		if err != nil {
			return newInsertionError(0, fmt.Errorf("failed to insert category: %w", err))
		}
		id, err = result.LastInsertId()
		if err != nil {
			return &InsertionError{Index: 0, Err: fmt.Errorf("failed to get last insert id: %w", err)}
		}
		return nil
	})
	return id, err
}

// AssignCategories links words to categories in one transaction. Categories
// are matched by name and created on first use.
func (r *SQLiteRepository) AssignCategories(ctx context.Context, assignments []models.CategoryAssignment) ([]int64, error) {
	if len(assignments) == 0 {
		return []int64{}, nil
	}

	categoryIDs := make([]int64, len(assignments))
	err := r.withConn(ctx, func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return &InsertionError{Index: -1, Err: fmt.Errorf("failed to begin transaction: %w", err)}
		}
		defer tx.Rollback()

		for i, a := range assignments {
			name := strings.TrimSpace(a.CategoryName)
			if name == "" {
				return &InsertionError{Index: i, Err: errors.New("category name is empty")}
			}

			var categoryID int64
			err := tx.QueryRowContext(ctx, `
				INSERT INTO categories (category_name) VALUES (?)
				ON CONFLICT(category_name) DO UPDATE SET category_name = excluded.category_name
				RETURNING id`, name,
			).Scan(&categoryID)
			if err != nil {
				return newInsertionError(i, fmt.Errorf("failed to upsert category %q: %w", name, err))
			}

			if _, err := tx.ExecContext(ctx,
				`INSERT INTO word_categories (word_id, category_id) VALUES (?, ?) ON CONFLICT DO NOTHING`,
				a.WordID, categoryID,
			); err != nil {
				return newInsertionError(i, fmt.Errorf("failed to link word %d to %q: %w", a.WordID, name, err))
			}
			categoryIDs[i] = categoryID
		}

		if err := tx.Commit(); err != nil {
			return &InsertionError{Index: -1, Err: fmt.Errorf("failed to commit transaction: %w", err)}
		}
		return nil
	})
	if err != nil {
		r.logger.Error("category assignment failed", "assignments", len(assignments), "error", err)
		return nil, err
	}
	return categoryIDs, nil
}

// ListCategories returns the categories a word belongs to, ordered by name
func (r *SQLiteRepository) ListCategories(ctx context.Context, wordID int64) ([]*models.Category, error) {
	var categories []*models.Category
	err := r.withConn(ctx, func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx, `
			SELECT c.id, c.category_name, c.description
			FROM categories c
			JOIN word_categories wc ON wc.category_id = c.id
			WHERE wc.word_id = ?
			ORDER BY c.category_name`, wordID,
		)
		if err != nil {
			return fmt.Errorf("failed to query categories: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var c models.Category
			var description sql.NullString
			if err := rows.Scan(&c.ID, &c.Name, &description); err != nil {
				return fmt.Errorf("failed to scan category: %w", err)
			}
			c.Description = nullToPtr(description)
			categories = append(categories, &c)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return categories, nil
}

// Tables lists the user tables present in the database
func (r *SQLiteRepository) Tables(ctx context.Context) ([]string, error) {
	var tables []string
	err := r.withConn(ctx, func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx,
			`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`,
		)
		if err != nil {
			return fmt.Errorf("failed to list tables: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				return fmt.Errorf("failed to scan table name: %w", err)
			}
			tables = append(tables, name)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return tables, nil
}

// buildListQuery constructs the SQL query for listing words
func buildListQuery(filter models.WordFilter, countOnly bool) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	if filter.Search != "" {
		conditions = append(conditions, "(source_text LIKE ? OR target_text LIKE ?)")
		pattern := "%" + filter.Search + "%"
		args = append(args, pattern, pattern)
	}

	if filter.PartOfSpeech != "" {
		conditions = append(conditions, "part_of_speech = ?")
		args = append(args, string(filter.PartOfSpeech))
	}

	if filter.Difficulty > 0 {
		conditions = append(conditions, "difficulty_level = ?")
		args = append(args, filter.Difficulty)
	}

	if filter.Category != "" {
		conditions = append(conditions, `EXISTS (
			SELECT 1 FROM word_categories wc
			JOIN categories c ON c.id = wc.category_id
			WHERE wc.word_id = words.id AND c.category_name = ?)`)
		args = append(args, filter.Category)
	}

	var query string
	if countOnly {
		query = "SELECT COUNT(*) FROM words"
	} else {
		query = "SELECT " + wordColumns + " FROM words"
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	if !countOnly {
		query += " ORDER BY id"

		// SQLite only accepts OFFSET after a LIMIT; -1 means no limit
		switch {
		case filter.Limit > 0:
			query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		case filter.Offset > 0:
			query += " LIMIT -1"
		}

		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	return query, args
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanWord scans a row selected with wordColumns into a Word
func scanWord(row rowScanner) (*models.Word, error) {
	var word models.Word
	var partOfSpeech, dateAdded sql.NullString
	var difficulty sql.NullInt64

	err := row.Scan(&word.ID, &word.SourceText, &word.TargetText, &partOfSpeech, &difficulty, &dateAdded)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan word: %w", err)
	}

	if partOfSpeech.Valid {
		word.PartOfSpeech = models.PartOfSpeech(partOfSpeech.String)
	}
	if difficulty.Valid {
		word.DifficultyLevel = int(difficulty.Int64)
	}
	if dateAdded.Valid {
		word.DateAdded, err = time.Parse(time.RFC3339, dateAdded.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse date_added: %w", err)
		}
	}

	return &word, nil
}

// nullToPtr converts sql.NullString to *string
func nullToPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// ptrToNull converts *string to sql.NullString
func ptrToNull(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
