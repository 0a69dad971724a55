// Package ui implements the full-screen terminal view of a compile run.
package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/stackvity/asset-compiler/internal/cli/hooks"
	"github.com/stackvity/asset-compiler/pkg/dispatch"
)

const (
	// listHeightMargin covers the header, progress line and footer.
	listHeightMargin = 4
	// listRefreshInterval caps list rebuilds at roughly 20 per second.
	listRefreshInterval = 50 * time.Millisecond

	phaseInitializing = "Initializing..."
	phaseComplete     = "Complete"
)

// Model represents the state of the TUI application. Bubble Tea calls
// Update and View from a single goroutine, so the model needs no locking.
type Model struct {
	list     list.Model
	spinner  spinner.Model
	progress progress.Model

	width       int
	height      int
	initialized bool
	version     string

	// fileItems holds one entry per file seen in a status update, in order
	// of first appearance. itemMap indexes it by relative path.
	fileItems []listItem
	itemMap   map[string]int

	summary       Summary
	percent       float64
	phaseMessage  string
	quitting      bool
	done          bool
	updatePending bool

	// cancel aborts the run when the user quits before it completes.
	cancel func()
}

// listItem represents a single file in the TUI list.
type listItem struct {
	path     string
	status   dispatch.Status
	message  string
	duration time.Duration
}

// Summary holds the aggregated counts displayed in the TUI footer. The
// counts mirror the work queue buckets of the running round.
type Summary struct {
	Total       int
	Converted   int
	Failed      int
	OutOfMemory int
	Pending     int
	StartTime   time.Time
}

// refreshListMsg asks the model to rebuild the list component's items.
type refreshListMsg struct{}

// NewModel creates the initial model for the TUI. cancel is invoked when
// the user quits early and may be nil.
func NewModel(version string, cancel func()) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(ColorStatusProcessing)

	delegate := list.NewDefaultDelegate()
	delegate.SetSpacing(0)
	delegate.ShowDescription = true
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.
		Foreground(ColorSelectedFg).
		Background(ColorSelectedBg).
		Bold(true).
		Padding(0, 0, 0, 1)
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.
		Foreground(ColorSelectedDescFg).
		Background(ColorSelectedBg).
		Padding(0, 0, 0, 1)
	delegate.Styles.NormalTitle = delegate.Styles.NormalTitle.
		Foreground(ColorNormalFg).Padding(0, 0, 0, 1)
	delegate.Styles.NormalDesc = delegate.Styles.NormalDesc.
		Foreground(ColorNormalDescFg).Padding(0, 0, 0, 1)

	l := list.New([]list.Item{}, delegate, 0, 0)
	l.SetShowHelp(false)
	l.SetShowStatusBar(false)
	l.SetShowTitle(false)
	l.SetShowFilter(false)
	l.SetFilteringEnabled(false)
	l.DisableQuitKeybindings()

	if version == "" {
		version = "dev"
	}
	return Model{
		list:         l,
		spinner:      s,
		progress:     progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		version:      version,
		summary:      Summary{StartTime: time.Now()},
		phaseMessage: phaseInitializing,
		fileItems:    make([]listItem, 0, 256),
		itemMap:      make(map[string]int),
		cancel:       cancel,
	}
}

// Init starts the spinner.
func (m *Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles user input and the messages sent by hooks.CLIHooks.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(m.width, max(m.height-listHeightMargin, 1))
		m.progress.Width = max(m.width-2, 10)
		m.initialized = true

	case tea.KeyMsg:
		if m.quitting {
			return m, nil
		}
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			if !m.done && m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}
		var listCmd tea.Cmd
		m.list, listCmd = m.list.Update(msg)
		cmds = append(cmds, listCmd)

	case spinner.TickMsg:
		if m.quitting || m.done {
			return m, nil
		}
		var spinnerCmd tea.Cmd
		m.spinner, spinnerCmd = m.spinner.Update(msg)
		cmds = append(cmds, spinnerCmd)

	case hooks.RoundStartMsg:
		if msg.Round > 1 {
			m.phaseMessage = fmt.Sprintf("Retrying %d %s file(s) out of memory on %d thread", msg.Files, msg.Converter, msg.Threads)
		} else {
			m.phaseMessage = fmt.Sprintf("Converting %d %s file(s) on %d thread(s)", msg.Files, msg.Converter, msg.Threads)
		}

	case hooks.ProgressMsg:
		p := msg.Progress
		m.summary.Total = p.Total
		m.summary.Converted = p.Snapshot.Converted
		m.summary.Failed = p.Snapshot.Failed
		m.summary.OutOfMemory = p.Snapshot.OutOfMemory
		m.summary.Pending = p.Snapshot.Pending
		m.percent = p.Percent() / 100

	case hooks.FileStatusUpdateMsg:
		if idx, ok := m.itemMap[msg.Path]; ok {
			item := &m.fileItems[idx]
			item.status = msg.Status
			item.message = msg.Message
			item.duration = msg.Duration
		} else {
			m.fileItems = append(m.fileItems, listItem{path: msg.Path, status: msg.Status, message: msg.Message, duration: msg.Duration})
			m.itemMap[msg.Path] = len(m.fileItems) - 1
		}
		cmds = append(cmds, m.scheduleListRefresh())

	case hooks.RunCompleteMsg:
		s := msg.Report.Summary
		m.done = true
		m.phaseMessage = phaseComplete
		m.summary.Total = s.TotalFiles
		m.summary.Converted = s.ConvertedCount
		m.summary.Failed = s.FailedCount
		m.summary.OutOfMemory = 0
		m.summary.Pending = 0
		m.percent = 1
		m.rebuildList()
		return m, tea.Quit

	case refreshListMsg:
		m.updatePending = false
		cmds = append(cmds, m.rebuildList())
	}

	return m, tea.Batch(cmds...)
}

// scheduleListRefresh coalesces bursts of status updates into one list
// rebuild per refresh interval.
func (m *Model) scheduleListRefresh() tea.Cmd {
	if m.updatePending {
		return nil
	}
	m.updatePending = true
	return tea.Tick(listRefreshInterval, func(time.Time) tea.Msg { return refreshListMsg{} })
}

func (m *Model) rebuildList() tea.Cmd {
	items := make([]list.Item, len(m.fileItems))
	for i, item := range m.fileItems {
		items[i] = item
	}
	return m.list.SetItems(items)
}

// View renders the current state of the TUI model.
func (m *Model) View() string {
	if m.quitting {
		return "Exiting...\n"
	}
	if !m.initialized {
		return phaseInitializing
	}

	headerLeft := fmt.Sprintf("Asset Compiler v%s", m.version)
	headerRight := m.phaseMessage
	if !m.done && m.phaseMessage != phaseInitializing {
		headerRight = m.spinner.View() + " " + m.phaseMessage
	}
	header := HeaderStyle.Width(m.width).Render(spread(m.width, headerLeft, headerRight))

	elapsed := time.Since(m.summary.StartTime).Round(time.Millisecond)
	summaryText := fmt.Sprintf(
		"Converted: %d | Failed: %d | Out of memory: %d | Pending: %d | Total: %d | Elapsed: %s",
		m.summary.Converted,
		m.summary.Failed,
		m.summary.OutOfMemory,
		m.summary.Pending,
		m.summary.Total,
		elapsed,
	)
	footer := FooterStyle.Width(m.width).Render(spread(m.width, summaryText, "q: quit"))

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		" "+m.progress.ViewAs(m.percent),
		m.list.View(),
		footer,
	)
}

// spread places left and right at the edges of a line of the given width.
func spread(width int, left, right string) string {
	gap := width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		gap = 1
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, left, lipgloss.PlaceHorizontal(gap, lipgloss.Center, " "), right)
}

// FilterValue implements the list.Item interface.
func (i listItem) FilterValue() string { return i.path }

// Title implements the list.Item interface.
func (i listItem) Title() string { return i.path }

// Description implements the list.Item interface.
func (i listItem) Description() string {
	var style lipgloss.Style
	icon := " "
	details := ""
	switch i.status {
	case dispatch.StatusSuccess:
		style, icon = StatusStyleSuccess, "✓"
		details = formatDuration(i.duration)
	case dispatch.StatusFailed:
		style, icon = StatusStyleFailed, "✗"
		details = i.message
	case dispatch.StatusCancelled:
		style, icon = StatusStyleFailed, "-"
		details = "cancelled"
	case dispatch.StatusOutOfMemory:
		style, icon = StatusStyleOutOfMemory, "M"
		details = "out of memory, will retry"
	case dispatch.StatusProcessing:
		style, icon = StatusStyleProcessing, "…"
	case dispatch.StatusPending:
		style = StatusStylePending
		details = i.message
	default:
		style = StatusStylePending
	}
	return fmt.Sprintf("%s %s", style.Render("["+icon+"]"), details)
}

// formatDuration formats duration for display. Zero renders as empty.
func formatDuration(d time.Duration) string {
	switch {
	case d == 0:
		return ""
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	default:
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
}

// --- Styles ---

const (
	ColorHeaderFg = lipgloss.Color("252")
	ColorHeaderBg = lipgloss.Color("62")

	ColorFooterFg = lipgloss.Color("252")
	ColorFooterBg = lipgloss.Color("56")

	ColorNormalFg     = lipgloss.Color("250")
	ColorNormalDescFg = lipgloss.Color("244")

	ColorSelectedFg     = lipgloss.Color("255")
	ColorSelectedBg     = lipgloss.Color("56")
	ColorSelectedDescFg = lipgloss.Color("248")

	ColorStatusSuccess     = lipgloss.Color("40")
	ColorStatusFailed      = lipgloss.Color("196")
	ColorStatusOutOfMemory = lipgloss.Color("214")
	ColorStatusPending     = lipgloss.Color("244")
	ColorStatusProcessing  = lipgloss.Color("205")
)

var (
	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorHeaderFg).
			Background(ColorHeaderBg).
			Padding(0, 1)

	FooterStyle = lipgloss.NewStyle().
			Foreground(ColorFooterFg).
			Background(ColorFooterBg).
			Padding(0, 1)

	StatusStyleSuccess     = lipgloss.NewStyle().Foreground(ColorStatusSuccess)
	StatusStyleFailed      = lipgloss.NewStyle().Foreground(ColorStatusFailed)
	StatusStyleOutOfMemory = lipgloss.NewStyle().Foreground(ColorStatusOutOfMemory)
	StatusStylePending     = lipgloss.NewStyle().Foreground(ColorStatusPending)
	StatusStyleProcessing  = lipgloss.NewStyle().Foreground(ColorStatusProcessing)
)
