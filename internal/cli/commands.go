// Package cli implements the palabrabox command line: one-shot subcommands
// and the interactive staging menu.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/lehmann314159/palabrabox/internal/config"
	"github.com/lehmann314159/palabrabox/internal/models"
	"github.com/lehmann314159/palabrabox/internal/repository"
	"github.com/lehmann314159/palabrabox/internal/services"
)

const usage = `Usage: palabrabox [-config file] [-db path] [-driver sqlite3|sqlite] <command> [args]

Commands:
  init [-save-config]  create the database schema, optionally writing the config
  tables               list the tables in the database
  import <file.csv>... import vocabulary from CSV files
  export [-o file]     write all words as CSV
  list [flags]         list stored words
  stage                open the interactive staging area
`

// App wires configuration, logging and storage for one invocation
type App struct {
	Config *config.Config
	Logger *slog.Logger
	Repo   repository.WordRepository
	Words  *services.WordService

	// configPath is the file the config was read from, if any
	configPath string

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// Run executes the command line in args (without the program name) and
// returns the process exit code
func Run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("palabrabox", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	configPath := fs.String("config", "", "path to config file")
	dbPath := fs.String("db", "", "path to SQLite database (overrides config)")
	driver := fs.String("driver", "", "SQLite driver: sqlite3 (cgo) or sqlite (pure Go)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	cfg, cfgPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}
	if *driver != "" {
		cfg.Database.Driver = *driver
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	app := NewApp(cfg, stdin, stdout, stderr)
	app.configPath = cfgPath

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "init":
		err = app.Init(ctx, rest)
	case "tables":
		err = app.Tables(ctx)
	case "import":
		err = app.Import(ctx, rest)
	case "export":
		err = app.Export(ctx, rest)
	case "list":
		err = app.List(ctx, rest)
	case "stage":
		err = NewMenu(services.NewStagingSession(), app.Repo, app.stdin, app.stdout).Run(ctx)
	case "help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", cmd)
		fs.Usage()
		return 2
	}

	if err != nil {
		fmt.Fprintf(stderr, "Error: %s\n", describeError(err, nil))
		return 1
	}
	return 0
}

// NewApp builds the storage stack described by cfg
func NewApp(cfg *config.Config, stdin io.Reader, stdout, stderr io.Writer) *App {
	logger := cfg.NewLogger(stderr)
	conns := repository.NewConnectionManager(cfg.Database.Path,
		repository.WithDriver(cfg.Database.Driver),
		repository.WithLockTimeout(cfg.Database.LockTimeout),
		repository.WithLogger(logger),
	)
	repo := repository.NewSQLiteRepository(conns)

	return &App{
		Config: cfg,
		Logger: logger,
		Repo:   repo,
		Words:  services.NewWordService(repo, logger),
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
	}
}

// loadConfig reads an explicit config file, or searches the usual places.
// A missing explicit file is not an error; init may be about to write it.
func loadConfig(path string) (*config.Config, string, error) {
	if path == "" {
		return config.Load()
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		cfg, _, err := config.Load()
		return cfg, path, err
	}
	return config.LoadFromPath(path)
}

// Init creates the schema. With -save-config it also writes the settings in
// effect to the config file, so later runs find the same database.
func (a *App) Init(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	save := fs.Bool("save-config", false, "write the current settings to the config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := a.Repo.CreateSchema(ctx); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Database initialized at %s\n", a.Config.Database.Path)

	if !*save {
		return nil
	}
	path := a.configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	if err := a.Config.Save(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	fmt.Fprintf(a.stdout, "Config written to %s\n", path)
	return nil
}

// Tables prints the tables found in the database
func (a *App) Tables(ctx context.Context) error {
	tables, err := a.Repo.Tables(ctx)
	if err != nil {
		return err
	}
	if len(tables) == 0 {
		fmt.Fprintln(a.stdout, "No tables found in the database.")
		return nil
	}
	fmt.Fprintln(a.stdout, "Tables in database:")
	for _, t := range tables {
		fmt.Fprintf(a.stdout, "  %s\n", t)
	}
	return nil
}

// Import loads every CSV file named in args
func (a *App) Import(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("import needs at least one CSV file")
	}

	results, err := a.Words.ImportFiles(ctx, args...)
	for _, r := range results {
		printImportResult(a.stdout, r)
	}
	return err
}

func printImportResult(w io.Writer, r *services.ImportResult) {
	fmt.Fprintf(w, "%s: imported %d entries, skipped %d, dropped %d duplicates\n",
		r.File, r.Imported, r.Skipped, r.Duplicates)

	names := make([]string, 0, len(r.Categories))
	for name := range r.Categories {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-20s %d\n", name, r.Categories[name])
	}
	for _, msg := range r.Errors {
		fmt.Fprintf(w, "  %s\n", msg)
	}
}

// Export writes every word as CSV to stdout or the -o file
func (a *App) Export(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	out := fs.String("o", "", "output file (default stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *out == "" {
		return a.Words.ExportCSV(ctx, a.stdout)
	}

	f, err := os.Create(*out)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", *out, err)
	}
	if err := a.Words.ExportCSV(ctx, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// List prints stored words matching the flags in args
func (a *App) List(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	search := fs.String("search", "", "substring of the word or its translation")
	pos := fs.String("pos", "", "part of speech")
	level := fs.Int("level", 0, "difficulty level (1-5)")
	category := fs.String("category", "", "category name")
	limit := fs.Int("limit", 0, "maximum number of words")
	offset := fs.Int("offset", 0, "number of words to skip")
	if err := fs.Parse(args); err != nil {
		return err
	}

	filter := models.WordFilter{
		Search:       *search,
		PartOfSpeech: models.ParsePartOfSpeech(*pos),
		Difficulty:   *level,
		Category:     *category,
		Limit:        *limit,
		Offset:       *offset,
	}

	words, err := a.Repo.ListWords(ctx, filter)
	if err != nil {
		return err
	}
	total, err := a.Repo.CountWords(ctx, filter)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tWORD\tTRANSLATION\tPOS\tLEVEL\tADDED")
	for _, w := range words {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%s\n",
			w.ID, w.SourceText, w.TargetText, w.PartOfSpeech, w.DifficultyLevel, w.DateAdded.Format("2006-01-02"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "%d of %d words\n", len(words), total)
	return nil
}

// describeError turns repository errors into a sentence for the terminal.
// entry, when set, names the batch entry an InsertionError points at.
func describeError(err error, entry func(int) string) string {
	var (
		ce *repository.ConnectionError
		se *repository.SchemaError
		ie *repository.InsertionError
	)
	switch {
	case errors.As(err, &ce):
		return fmt.Sprintf("could not open database %s: %v", ce.Path, ce.Err)
	case errors.As(err, &se):
		return fmt.Sprintf("could not create the database schema: %v", se.Err)
	case errors.As(err, &ie):
		var b strings.Builder
		name := ""
		if entry != nil {
			name = entry(ie.Index)
		}
		if name == "" && ie.Index >= 0 {
			name = fmt.Sprintf("entry %d", ie.Index+1)
		}
		if name != "" {
			b.WriteString(name + " was rejected")
		} else {
			b.WriteString("the batch was rejected")
		}
		switch ie.Kind {
		case repository.ConstraintUnique:
			b.WriteString(": it is already in the database")
		case repository.ConstraintCheck:
			b.WriteString(": part of speech or difficulty level is not allowed")
		case repository.ConstraintNotNull:
			b.WriteString(": a required field is missing")
		case repository.ConstraintForeignKey:
			b.WriteString(": it refers to a missing word or category")
		default:
			fmt.Fprintf(&b, ": %v", ie.Err)
		}
		return b.String()
	}
	return err.Error()
}
