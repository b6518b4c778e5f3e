// Package tui implements the interactive terminal user interface using Bubble Tea.
package tui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mkramers/gb/internal/aggregate"
	"github.com/mkramers/gb/internal/types"
)

// --- Styles ---
var (
	docStyle           = lipgloss.NewStyle().Margin(1, 2)
	selectedStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
	cursorStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	helpStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	headingStyle       = lipgloss.NewStyle().Bold(true)
	confirmPromptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	warningStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("202"))
	successStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("78"))
	errorStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	spinnerStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	deletableStyle     = lipgloss.NewStyle().Faint(true)
	reasonStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	currentStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("84"))
	pinStyle           = lipgloss.NewStyle().Foreground(lipgloss.Color("228"))
	worktreeStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("117"))
	aheadStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("84"))
	behindStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	trackColumn        = lipgloss.NewStyle().Width(8)
)

// ViewState represents the different views the TUI can be in.
type ViewState int

const (
	// StateBrowsing is the branch list.
	StateBrowsing ViewState = iota
	// StateConfirming asks before a deletion that could lose work.
	StateConfirming
	// StateDeleting is shown while a deletion runs.
	StateDeleting

	maxConfirmEntries = 20
	// Lines around the branch list: title, blank line, footer and margins.
	chromeLines = 7
)

// Engine is what the model needs from the running collection engine.
type Engine interface {
	View() *aggregate.View
	Updates() <-chan struct{}
	SetFocus(f aggregate.Focus)
	Refresh()
	PauseRefresh()
	ResumeRefresh()
	TogglePin(repo types.Repository, branch string) (bool, error)
	Delete(ctx context.Context, repo types.Repository, branch types.ClassifiedBranch, force bool) types.DeleteOutcome
}

// Selection is the branch chosen with enter.
type Selection struct {
	// Dir is the branch's worktree, or the repository when the branch has none.
	Dir    string
	Branch string
	// Checkout is set when the branch still has to be checked out in Dir.
	Checkout bool
}

// --- Messages ---

// viewUpdatedMsg tells the model that the engine published a new view.
type viewUpdatedMsg struct{}

// deleteResultMsg carries the outcome of one deletion attempt.
type deleteResultMsg struct {
	item    item
	outcome types.DeleteOutcome
	forced  bool
}

// item is one selectable branch row.
type item struct {
	repo   types.Repository
	branch types.ClassifiedBranch
}

func (i item) key() string {
	return i.repo.Path + "\x00" + i.branch.Name
}

// --- Model ---

// Model represents the state of the TUI application.
type Model struct {
	Ctx       context.Context
	Cursor    int
	ViewState ViewState
	Message   string
	Spinner   spinner.Model
	Width     int
	Height    int

	engine     Engine
	view       *aggregate.View
	generation uint64
	items      []item
	spinning   bool
	pending    *deleteResultMsg
	selection  *Selection
	now        func() time.Time
}

// InitialModel creates the starting model for the TUI.
func InitialModel(ctx context.Context, engine Engine) Model {
	s := spinner.New()
	s.Style = spinnerStyle
	s.Spinner = spinner.Dot

	m := Model{
		Ctx:       ctx,
		ViewState: StateBrowsing,
		Spinner:   s,
		engine:    engine,
		spinning:  true, // Init starts the tick chain
		now:       time.Now,
	}
	m.applyView(engine.View())
	return m
}

// Init is the first command that runs when the Bubble Tea program starts.
func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForUpdate(m.engine.Updates()), m.Spinner.Tick)
}

// Selected returns the branch chosen with enter, if any.
func (m Model) Selected() (Selection, bool) {
	if m.selection == nil {
		return Selection{}, false
	}
	return *m.selection, true
}

// waitForUpdate turns the next engine update into a message. A closed channel ends the
// chain.
func waitForUpdate(updates <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-updates; !ok {
			return nil
		}
		return viewUpdatedMsg{}
	}
}

// performDeletionCmd runs one deletion off the event loop.
func performDeletionCmd(ctx context.Context, engine Engine, it item, force bool) tea.Cmd {
	return func() tea.Msg {
		outcome := engine.Delete(ctx, it.repo, it.branch, force)
		return deleteResultMsg{item: it, outcome: outcome, forced: force}
	}
}

// applyView rebuilds the rows when the view generation changed. The cursor stays on the
// same branch when it is still listed.
func (m *Model) applyView(v *aggregate.View) bool {
	if v == nil || (m.view != nil && v.Generation == m.generation) {
		return false
	}
	var selectedKey string
	if m.Cursor < len(m.items) {
		selectedKey = m.items[m.Cursor].key()
	}

	m.view = v
	m.generation = v.Generation
	m.items = nil
	for _, snap := range v.Visible() {
		for _, b := range snap.Branches {
			m.items = append(m.items, item{repo: snap.Repo, branch: b})
		}
	}

	m.Cursor = min(m.Cursor, max(len(m.items)-1, 0))
	for i, it := range m.items {
		if it.key() == selectedKey {
			m.Cursor = i
			break
		}
	}
	return true
}

func (m Model) busy() bool {
	return m.ViewState == StateDeleting || (m.view != nil && m.view.Busy())
}

// startSpinner restarts the spinner tick chain when something is loading.
func (m *Model) startSpinner() tea.Cmd {
	if m.spinning || !m.busy() {
		return nil
	}
	m.spinning = true
	return m.Spinner.Tick
}

func (m Model) current() (item, bool) {
	if m.Cursor < 0 || m.Cursor >= len(m.items) {
		return item{}, false
	}
	return m.items[m.Cursor], true
}

// --- Update Logic ---

// Update handles messages and updates the model accordingly.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		return m, nil

	case viewUpdatedMsg:
		m.applyView(m.engine.View())
		return m, tea.Batch(waitForUpdate(m.engine.Updates()), m.startSpinner())

	case deleteResultMsg:
		return m.handleDeleteResult(msg)

	case spinner.TickMsg:
		if !m.busy() {
			m.spinning = false
			return m, nil
		}
		var cmd tea.Cmd
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		switch m.ViewState {
		case StateBrowsing:
			return m.updateBrowsing(msg)
		case StateConfirming:
			return m.updateConfirming(msg)
		case StateDeleting:
			return m, nil
		}
	}

	return m, nil
}

// updateBrowsing handles key presses on the branch list.
func (m Model) updateBrowsing(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc":
		return m, tea.Quit

	case "up", "k":
		if m.Cursor > 0 {
			m.Cursor--
		}
	case "down", "j":
		if m.Cursor < len(m.items)-1 {
			m.Cursor++
		}

	case "a":
		if m.view == nil || m.view.Current == "" {
			m.Message = "Not inside a configured repository"
			return m, nil
		}
		focus := aggregate.FocusAll
		if m.view.Focus == aggregate.FocusAll {
			focus = aggregate.FocusCurrent
		}
		m.engine.SetFocus(focus)

	case "r":
		m.engine.Refresh()
		m.Message = "Refreshing..."

	case "p":
		it, ok := m.current()
		if !ok {
			break
		}
		pinned, err := m.engine.TogglePin(it.repo, it.branch.Name)
		switch {
		case err != nil:
			m.Message = errorStyle.Render(fmt.Sprintf("Could not save pin: %v", err))
		case pinned:
			m.Message = fmt.Sprintf("Pinned %s", it.branch.Name)
		default:
			m.Message = fmt.Sprintf("Unpinned %s", it.branch.Name)
		}

	case "d":
		it, ok := m.current()
		if !ok {
			break
		}
		m.ViewState = StateDeleting
		m.Message = ""
		return m, tea.Batch(performDeletionCmd(m.Ctx, m.engine, it, false), m.startSpinner())

	case "enter":
		it, ok := m.current()
		if !ok {
			break
		}
		sel := Selection{Dir: it.repo.Path, Branch: it.branch.Name, Checkout: true}
		if it.branch.HasWorktree && it.branch.WorktreePath != "" {
			sel.Dir = it.branch.WorktreePath
			sel.Checkout = false
		}
		m.selection = &sel
		return m, tea.Quit
	}

	return m, nil
}

// updateConfirming handles key presses while a deletion waits for confirmation.
func (m Model) updateConfirming(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "n", "N", "esc":
		m.pending = nil
		m.ViewState = StateBrowsing
		m.Message = "Deletion cancelled"
		m.engine.ResumeRefresh()
		return m, nil
	case "y", "Y":
		it := m.pending.item
		m.pending = nil
		m.ViewState = StateDeleting
		m.engine.ResumeRefresh()
		return m, tea.Batch(performDeletionCmd(m.Ctx, m.engine, it, true), m.startSpinner())
	}
	return m, nil
}

func (m Model) handleDeleteResult(msg deleteResultMsg) (tea.Model, tea.Cmd) {
	o := msg.outcome
	if o.Kind == types.OutcomeNeedsConfirmation && !msg.forced {
		m.pending = &msg
		m.ViewState = StateConfirming
		m.engine.PauseRefresh()
		return m, nil
	}

	m.ViewState = StateBrowsing
	switch o.Kind {
	case types.OutcomeDeleted:
		m.Message = successStyle.Render(o.Message())
	case types.OutcomeRejected:
		m.Message = warningStyle.Render(o.Message())
	default:
		m.Message = errorStyle.Render(o.Message())
	}
	return m, nil
}

// --- View Helper Functions ---

// formatAge renders the time since t as minutes, hours, days or weeks.
func formatAge(now, t time.Time) string {
	delta := now.Sub(t)
	if delta < 0 {
		delta = 0
	}
	switch {
	case delta < time.Hour:
		return fmt.Sprintf("%dm", int(delta/time.Minute))
	case delta < 24*time.Hour:
		return fmt.Sprintf("%dh", int(delta/time.Hour))
	case delta < 7*24*time.Hour:
		return fmt.Sprintf("%dd", int(delta/(24*time.Hour)))
	default:
		return fmt.Sprintf("%dw", int(delta/(7*24*time.Hour)))
	}
}

// formatAheadBehind renders commits ahead of and behind a reference, e.g. "↑2↓1".
func formatAheadBehind(ahead, behind int) string {
	var b strings.Builder
	if ahead > 0 {
		b.WriteString(aheadStyle.Render(fmt.Sprintf("↑%d", ahead)))
	}
	if behind > 0 {
		b.WriteString(behindStyle.Render(fmt.Sprintf("↓%d", behind)))
	}
	return b.String()
}

// shortenPath replaces the home directory prefix with ~.
func shortenPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return path
	}
	if rel, err := filepath.Rel(home, path); err == nil && rel != "." && !strings.HasPrefix(rel, "..") {
		return "~/" + rel
	}
	return path
}

func (m Model) renderHeader(snap types.RepositorySnapshot) string {
	line := headingStyle.Render(snap.Repo.Name)
	if snap.Status == types.StatusPending || snap.Loading {
		line += " " + m.Spinner.View()
	}
	switch snap.Status {
	case types.StatusFailed:
		line += " " + errorStyle.Render("failed: "+snap.Reason)
	case types.StatusPartial:
		line += " " + warningStyle.Render("incomplete: "+snap.Reason)
	}
	return line
}

func (m Model) renderBranch(it item, nameWidth int, selected bool) string {
	b := it.branch

	icon := " "
	switch {
	case b.IsCurrent:
		icon = currentStyle.Render("◉")
	case b.Pinned:
		icon = pinStyle.Render("⚑")
	case b.HasWorktree && b.WorktreePath != it.repo.Path:
		icon = worktreeStyle.Render("⎇")
	}

	name := b.Name
	if b.Protected {
		name = "◆ " + name
	}

	status := helpStyle.Render("-")
	if b.HasWorktree {
		status = " "
		if b.Dirty {
			status = warningStyle.Render("*")
		}
	}

	path := ""
	if b.HasWorktree {
		path = shortenPath(b.WorktreePath)
	}

	// Upstream counts, then counts against the default branch.
	line := fmt.Sprintf("%-*s %4s %s %s %s %s", nameWidth, name, formatAge(m.now(), b.LastCommitDate), status,
		trackColumn.Render(formatAheadBehind(b.Ahead, b.Behind)),
		trackColumn.Render(formatAheadBehind(b.AheadDefault, b.BehindDefault)), path)
	switch {
	case selected:
		line = selectedStyle.Render(line)
	case b.IsDeletable():
		line = deletableStyle.Render(line)
	}
	if b.IsDeletable() {
		line += " " + reasonStyle.Render("✕ "+string(b.Deletable))
	}

	cursor := " "
	if selected {
		cursor = cursorStyle.Render(">")
	}
	return cursor + " " + icon + " " + line
}

// renderBrowsingState renders the branch list, scrolled so that the cursor stays visible.
func (m Model) renderBrowsingState(b *strings.Builder) {
	title := "Branches"
	if m.view != nil && m.view.Focus == aggregate.FocusAll {
		title = "Branches (all repositories)"
	}
	b.WriteString(headingStyle.Render(title) + "\n\n")

	nameWidth := 0
	for _, it := range m.items {
		w := len(it.branch.Name)
		if it.branch.Protected {
			w += 2
		}
		nameWidth = max(nameWidth, w)
	}

	var lines []string
	cursorLine := 0
	index := 0
	if m.view != nil {
		for _, snap := range m.view.Visible() {
			lines = append(lines, m.renderHeader(snap))
			for range snap.Branches {
				if index >= len(m.items) {
					break
				}
				if index == m.Cursor {
					cursorLine = len(lines)
				}
				lines = append(lines, m.renderBranch(m.items[index], nameWidth, index == m.Cursor))
				index++
			}
			if len(snap.Branches) == 0 && snap.Status != types.StatusPending {
				lines = append(lines, helpStyle.Render("  (no recent branches)"))
			}
		}
	}
	if len(lines) == 0 {
		lines = append(lines, helpStyle.Render("No repositories configured."))
	}

	if window := m.Height - chromeLines; window > 0 && len(lines) > window {
		start := min(max(cursorLine-window/2, 0), len(lines)-window)
		lines = lines[start : start+window]
	}
	b.WriteString(strings.Join(lines, "\n") + "\n")

	if m.Message != "" {
		b.WriteString("\n" + m.Message + "\n")
	}
	footer := "\nenter: open | d: delete | p: pin | a: this/all repos | r: refresh | q: quit\n"
	b.WriteString(helpStyle.Render(footer))
}

// renderConfirmingState renders the confirmation prompt for a pending deletion.
func (m Model) renderConfirmingState(b *strings.Builder) {
	p := m.pending
	b.WriteString(confirmPromptStyle.Render(fmt.Sprintf("Delete '%s'?", p.item.branch.Name)) + "\n")
	if p.item.branch.HasWorktree {
		b.WriteString(shortenPath(p.item.branch.WorktreePath) + "\n")
	}
	b.WriteString("\n")
	for _, reason := range p.outcome.Reasons {
		b.WriteString(warningStyle.Render("  "+reason) + "\n")
	}
	if len(p.outcome.Entries) > 0 {
		b.WriteString("\n")
		for i, entry := range p.outcome.Entries {
			if i == maxConfirmEntries {
				b.WriteString(helpStyle.Render(fmt.Sprintf("  ... and %d more", len(p.outcome.Entries)-maxConfirmEntries)) + "\n")
				break
			}
			b.WriteString("  " + entry + "\n")
		}
	}
	b.WriteString("\n" + confirmPromptStyle.Render("Proceed? (y/N) "))
}

// renderDeletingState renders the deletion in progress view.
func (m Model) renderDeletingState(b *strings.Builder) {
	b.WriteString(m.Spinner.View())
	b.WriteString(" Deleting...")
}

// View renders the UI based on the model's state.
func (m Model) View() string {
	var b strings.Builder

	switch m.ViewState {
	case StateBrowsing:
		m.renderBrowsingState(&b)
	case StateConfirming:
		m.renderConfirmingState(&b)
	case StateDeleting:
		m.renderDeletingState(&b)
	}

	return docStyle.Render(b.String())
}
