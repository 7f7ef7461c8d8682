package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/lehmann314159/palabrabox/internal/models"
	"github.com/lehmann314159/palabrabox/internal/repository"
)

// csvHeader is written by ExportCSV and accepted by ImportCSV
var csvHeader = []string{"source_text", "target_text", "part_of_speech", "difficulty_level", "category"}

// categorySeparator joins several categories in one CSV cell
const categorySeparator = ";"

// headerAliases maps alternative column names onto canonical ones
var headerAliases = map[string]string{
	"word/phrase": "source_text",
	"word":        "source_text",
	"translation": "target_text",
	"difficulty":  "difficulty_level",
	"categories":  "category",
}

// WordService provides CSV import and export on top of a WordRepository
type WordService struct {
	repo   repository.WordRepository
	logger *slog.Logger
}

// NewWordService creates a new word service
func NewWordService(repo repository.WordRepository, logger *slog.Logger) *WordService {
	if logger == nil {
		logger = slog.Default()
	}
	return &WordService{repo: repo, logger: logger}
}

// ImportResult contains the results of a CSV import operation
type ImportResult struct {
	File       string         `json:"file,omitempty"`
	Imported   int            `json:"imported"`
	Skipped    int            `json:"skipped"`
	Duplicates int            `json:"duplicates"`
	Categories map[string]int `json:"categories,omitempty"`
	Errors     []string       `json:"errors,omitempty"`
	IDs        []int64        `json:"ids,omitempty"`

	// CategoriesFailed is set when words were stored but linking their
	// categories failed
	CategoriesFailed bool `json:"categories_failed,omitempty"`
}

type importRow struct {
	line       int
	word       models.NewWord
	categories []string
}

type parsedCSV struct {
	rows   []importRow
	result *ImportResult
}

// ImportCSV imports words from a CSV reader. Malformed lines are reported and
// skipped; the remaining rows are inserted as a single batch.
func (s *WordService) ImportCSV(ctx context.Context, r io.Reader) (*ImportResult, error) {
	parsed, err := parseCSV(r)
	if err != nil {
		return nil, err
	}
	return s.importParsed(ctx, parsed)
}

// ImportFiles parses the given CSV files concurrently, then imports them one
// after another, one batch per file.
func (s *WordService) ImportFiles(ctx context.Context, paths ...string) ([]*ImportResult, error) {
	parsed := make([]*parsedCSV, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		g.Go(func() error {
			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", path, err)
			}
			defer f.Close()

			p, err := parseCSV(f)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			p.result.File = path
			parsed[i] = p
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	results := make([]*ImportResult, 0, len(parsed))
	for _, p := range parsed {
		result, err := s.importParsed(ctx, p)
		if err != nil {
			return append(results, result), fmt.Errorf("failed to import %s: %w", p.result.File, err)
		}
		results = append(results, result)
	}
	return results, nil
}

func (s *WordService) importParsed(ctx context.Context, parsed *parsedCSV) (*ImportResult, error) {
	result := parsed.result

	// Rows already in the store would fail the whole batch on the unique
	// constraint. Their categories are still linked, which repairs an earlier
	// import whose category step failed.
	var rows []importRow
	var assignments []models.CategoryAssignment
	for _, row := range parsed.rows {
		existing, err := s.repo.GetWordByText(ctx, row.word.SourceText, row.word.TargetText)
		if err == nil {
			result.Errors = append(result.Errors,
				fmt.Sprintf("line %d: word '%s' already exists", row.line, row.word.SourceText))
			result.Skipped++
			for _, category := range row.categories {
				assignments = append(assignments, models.CategoryAssignment{WordID: existing.ID, CategoryName: category})
			}
			continue
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return result, err
		}
		rows = append(rows, row)
	}

	if len(rows) > 0 {
		batch := make([]models.NewWord, len(rows))
		for i, row := range rows {
			batch[i] = row.word
		}

		ids, err := s.repo.InsertWords(ctx, batch)
		if err != nil {
			var ie *repository.InsertionError
			if errors.As(err, &ie) && ie.Index >= 0 {
				return result, fmt.Errorf("line %d: %w", rows[ie.Index].line, err)
			}
			return result, err
		}
		result.Imported = len(ids)
		result.IDs = ids

		for i, row := range rows {
			for _, category := range row.categories {
				assignments = append(assignments, models.CategoryAssignment{WordID: ids[i], CategoryName: category})
				if result.Categories == nil {
					result.Categories = make(map[string]int)
				}
				result.Categories[category]++
			}
		}
	}

	if _, err := s.repo.AssignCategories(ctx, assignments); err != nil {
		// The words are committed at this point; only their links are missing
		result.CategoriesFailed = true
		result.Errors = append(result.Errors,
			"categories were not linked; import the file again to link them")
		return result, fmt.Errorf("failed to assign categories: %w", err)
	}

	s.logger.Info("csv import finished",
		"file", result.File, "imported", result.Imported, "skipped", result.Skipped, "duplicates", result.Duplicates)
	return result, nil
}

// parseCSV reads and validates every line without touching the store
func parseCSV(r io.Reader) (*parsedCSV, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	// Read header
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	// Map column names to indices
	colIndex := make(map[string]int)
	for i, col := range header {
		name := strings.ToLower(strings.TrimSpace(col))
		if alias, ok := headerAliases[name]; ok {
			name = alias
		}
		if _, seen := colIndex[name]; !seen {
			colIndex[name] = i
		}
	}

	// Validate required columns
	requiredCols := []string{"source_text", "target_text", "part_of_speech", "difficulty_level"}
	for _, col := range requiredCols {
		if _, ok := colIndex[col]; !ok {
			return nil, fmt.Errorf("missing required column: %s", col)
		}
	}

	parsed := &parsedCSV{result: &ImportResult{}}
	result := parsed.result
	seen := make(map[[2]string]bool)
	lineNum := 1 // Header is line 1

	field := func(record []string, col string) string {
		idx, ok := colIndex[col]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	for {
		lineNum++
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: %v", lineNum, err))
			result.Skipped++
			continue
		}

		row, problem := parseRecord(record, field)
		if problem != "" {
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: %s", lineNum, problem))
			result.Skipped++
			continue
		}
		row.line = lineNum

		key := [2]string{row.word.SourceText, row.word.TargetText}
		if seen[key] {
			result.Duplicates++
			continue
		}
		seen[key] = true

		parsed.rows = append(parsed.rows, row)
	}

	return parsed, nil
}

func parseRecord(record []string, field func([]string, string) string) (importRow, string) {
	row := importRow{
		word: models.NewWord{
			SourceText:   field(record, "source_text"),
			TargetText:   field(record, "target_text"),
			PartOfSpeech: models.ParsePartOfSpeech(field(record, "part_of_speech")),
		},
	}

	var missing []string
	if row.word.SourceText == "" {
		missing = append(missing, "source_text")
	}
	if row.word.TargetText == "" {
		missing = append(missing, "target_text")
	}
	if row.word.PartOfSpeech == "" {
		missing = append(missing, "part_of_speech")
	}
	level := field(record, "difficulty_level")
	if level == "" {
		missing = append(missing, "difficulty_level")
	}
	if len(missing) > 0 {
		return row, "missing " + strings.Join(missing, ", ")
	}

	if !row.word.PartOfSpeech.Valid() {
		return row, fmt.Sprintf("unknown part of speech %q", row.word.PartOfSpeech)
	}

	n, err := strconv.Atoi(level)
	if err != nil {
		return row, fmt.Sprintf("difficulty_level %q is not a number", level)
	}
	if n < models.MinDifficulty || n > models.MaxDifficulty {
		return row, fmt.Sprintf("difficulty_level %d out of range %d-%d", n, models.MinDifficulty, models.MaxDifficulty)
	}
	row.word.DifficultyLevel = n

	for _, c := range strings.Split(field(record, "category"), categorySeparator) {
		if c = strings.TrimSpace(c); c != "" {
			row.categories = append(row.categories, c)
		}
	}

	return row, ""
}

// ExportCSV exports all words to CSV format
func (s *WordService) ExportCSV(ctx context.Context, w io.Writer) error {
	words, err := s.repo.ListWords(ctx, models.WordFilter{})
	if err != nil {
		return fmt.Errorf("failed to fetch words: %w", err)
	}

	writer := csv.NewWriter(w)

	// Write header
	if err := writer.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	// Write records
	for _, word := range words {
		categories, err := s.repo.ListCategories(ctx, word.ID)
		if err != nil {
			return fmt.Errorf("failed to fetch categories for word %d: %w", word.ID, err)
		}
		names := make([]string, len(categories))
		for i, c := range categories {
			names[i] = c.Name
		}

		record := []string{
			word.SourceText,
			word.TargetText,
			string(word.PartOfSpeech),
			strconv.Itoa(word.DifficultyLevel),
			strings.Join(names, categorySeparator),
		}

		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}
