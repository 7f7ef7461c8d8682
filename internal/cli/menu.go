package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/lehmann314159/palabrabox/internal/models"
	"github.com/lehmann314159/palabrabox/internal/services"
)

var errQuit = errors.New("quit")

// Menu is the interactive staging area
type Menu struct {
	session *services.StagingSession
	repo    services.WordInserter
	in      *bufio.Scanner
	out     io.Writer
}

// NewMenu creates a menu over session that saves approved entries to repo
func NewMenu(session *services.StagingSession, repo services.WordInserter, in io.Reader, out io.Writer) *Menu {
	return &Menu{
		session: session,
		repo:    repo,
		in:      bufio.NewScanner(in),
		out:     out,
	}
}

// Run loops until the user exits or input ends
func (m *Menu) Run(ctx context.Context) error {
	for {
		m.displayMenu()
		choice, err := m.prompt("Choose an option (1-9): ")
		if err != nil {
			return nil
		}

		switch choice {
		case "1":
			err = m.add()
		case "2":
			m.viewStaging()
		case "3":
			err = m.edit()
		case "4":
			err = m.approve()
		case "5":
			m.viewApproved()
		case "6":
			err = m.delete()
		case "7":
			err = m.deleteMany()
		case "8":
			m.save(ctx)
		case "9":
			m.println("Goodbye!")
			return nil
		default:
			m.println("Invalid choice. Please try again.")
		}

		if errors.Is(err, errQuit) {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

func (m *Menu) displayMenu() {
	m.println("\n--- PalabraBox ---")
	m.println("1. Add a word or phrase to the staging area")
	m.println("2. View staging area")
	m.println("3. Edit a word/phrase in the staging area")
	m.println("4. Approve a word/phrase")
	m.println("5. View approved entries")
	m.println("6. Delete a word/phrase from the staging area")
	m.println("7. Delete multiple words/phrases from the staging area")
	m.println("8. Save approved entries to the database")
	m.println("9. Exit")
}

func (m *Menu) add() error {
	w, err := m.readEntry(nil)
	if err != nil {
		return err
	}
	entry, err := m.session.Add(w)
	if err != nil {
		m.printf("Could not add entry: %v\n", err)
		return nil
	}
	m.printf("'%s' has been added to the staging area.\n", entry.SourceText)
	return nil
}

func (m *Menu) viewStaging() {
	staged := m.session.Staged()
	if len(staged) == 0 {
		m.println("The staging area is empty.")
		return
	}
	m.println("\nStaging Area:")
	printEntries(m.out, staged)
}

func (m *Menu) viewApproved() {
	approved := m.session.Approved()
	if len(approved) == 0 {
		m.println("No entries have been approved yet.")
		return
	}
	m.println("\nApproved:")
	printEntries(m.out, approved)
}

func (m *Menu) edit() error {
	current, ok, err := m.pickStaged("edit")
	if err != nil || !ok {
		return err
	}
	m.println("Press enter to keep the current value.")
	w, err := m.readEntry(&current.NewWord)
	if err != nil {
		return err
	}
	entry, err := m.session.EditEntry(current.ID, w)
	if err != nil {
		m.printf("Could not edit entry: %v\n", err)
		return nil
	}
	m.printf("'%s' has been updated.\n", entry.SourceText)
	return nil
}

func (m *Menu) approve() error {
	current, ok, err := m.pickStaged("approve")
	if err != nil || !ok {
		return err
	}
	entry, err := m.session.ApproveEntry(current.ID)
	if err != nil {
		m.printf("Could not approve entry: %v\n", err)
		return nil
	}
	m.printf("'%s' has been approved.\n", entry.SourceText)
	return nil
}

func (m *Menu) delete() error {
	current, ok, err := m.pickStaged("delete")
	if err != nil || !ok {
		return err
	}
	entry, err := m.session.DeleteEntry(current.ID)
	if err != nil {
		m.printf("Could not delete entry: %v\n", err)
		return nil
	}
	m.printf("'%s' has been deleted.\n", entry.SourceText)
	return nil
}

func (m *Menu) deleteMany() error {
	staged := m.session.Staged()
	if len(staged) == 0 {
		m.println("The staging area is empty.")
		return nil
	}
	m.println("\nStaging Area:")
	printEntries(m.out, staged)

	line, err := m.prompt("\nEnter the numbers of the words/phrases to delete (comma separated): ")
	if err != nil {
		return errQuit
	}

	var ids []uuid.UUID
	var invalid []int
	for _, part := range strings.Split(line, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			m.println("Please enter valid numbers.")
			return nil
		}
		if n < 1 || n > len(staged) {
			invalid = append(invalid, n)
			continue
		}
		ids = append(ids, staged[n-1].ID)
	}

	deleted, _ := m.session.DeleteEntries(ids)
	for _, e := range deleted {
		m.printf("'%s' has been deleted.\n", e.SourceText)
	}
	for _, n := range invalid {
		m.printf("Invalid index %d.\n", n)
	}
	return nil
}

func (m *Menu) save(ctx context.Context) {
	approved := m.session.Approved()
	ids, err := m.session.Commit(ctx, m.repo)
	if err != nil {
		if errors.Is(err, services.ErrNothingApproved) {
			m.println("There are no approved entries to save.")
			return
		}
		m.printf("Nothing was saved: %s\n", describeError(err, func(i int) string {
			if i >= 0 && i < len(approved) {
				return fmt.Sprintf("entry %d ('%s')", i+1, approved[i].SourceText)
			}
			return ""
		}))
		return
	}
	m.printf("Saved %d entries to the database.\n", len(ids))
	for i, id := range ids {
		m.printf("  #%d %s\n", id, approved[i].SourceText)
	}
}

// pickStaged shows the staging list and asks for a 1-based position. The
// answer is resolved to the entry shown at that position; ok is false when
// the answer was unusable.
func (m *Menu) pickStaged(action string) (entry models.StagedEntry, ok bool, err error) {
	staged := m.session.Staged()
	if len(staged) == 0 {
		m.println("The staging area is empty.")
		return entry, false, nil
	}
	m.println("\nStaging Area:")
	printEntries(m.out, staged)

	line, err := m.prompt(fmt.Sprintf("\nEnter the number of the word/phrase to %s: ", action))
	if err != nil {
		return entry, false, errQuit
	}
	n, err := strconv.Atoi(line)
	if err != nil {
		m.println("Please enter a valid number.")
		return entry, false, nil
	}
	if n < 1 || n > len(staged) {
		m.println("Invalid choice.")
		return entry, false, nil
	}
	return staged[n-1], true, nil
}

// readEntry prompts for every field. With a non-nil current, empty answers
// keep the existing value.
func (m *Menu) readEntry(current *models.NewWord) (models.NewWord, error) {
	var w models.NewWord
	if current != nil {
		w = *current
	}

	fields := []struct {
		label string
		value func() string
		set   func(string) bool
	}{
		{
			label: "Enter a word or phrase",
			value: func() string { return w.SourceText },
			set:   func(s string) bool { w.SourceText = s; return true },
		},
		{
			label: "Enter the translation",
			value: func() string { return w.TargetText },
			set:   func(s string) bool { w.TargetText = s; return true },
		},
		{
			label: "Part of speech",
			value: func() string { return string(w.PartOfSpeech) },
			set:   func(s string) bool { w.PartOfSpeech = models.ParsePartOfSpeech(s); return true },
		},
		{
			label: "Difficulty (1-5)",
			value: func() string { return strconv.Itoa(w.DifficultyLevel) },
			set: func(s string) bool {
				n, err := strconv.Atoi(s)
				if err != nil {
					m.println("Please enter a valid number.")
					return false
				}
				w.DifficultyLevel = n
				return true
			},
		},
	}

	for _, f := range fields {
		label := f.label + ": "
		if current != nil {
			label = f.label + " [" + f.value() + "]: "
		}
		for {
			answer, err := m.prompt(label)
			if err != nil {
				return w, errQuit
			}
			if answer == "" && current != nil {
				break
			}
			if f.set(answer) {
				break
			}
		}
	}
	return w, nil
}

func (m *Menu) prompt(label string) (string, error) {
	fmt.Fprint(m.out, label)
	if !m.in.Scan() {
		if err := m.in.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(m.in.Text()), nil
}

func (m *Menu) println(s string) { fmt.Fprintln(m.out, s) }

func (m *Menu) printf(format string, args ...any) { fmt.Fprintf(m.out, format, args...) }

func printEntries(w io.Writer, entries []models.StagedEntry) {
	for i, e := range entries {
		fmt.Fprintf(w, "%d. %s -> %s (%s, level %d)\n",
			i+1, e.SourceText, e.TargetText, e.PartOfSpeech, e.DifficultyLevel)
	}
}
