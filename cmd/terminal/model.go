package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mergemate/mergemate/internal/storage"
)

const asciiLogo = `
╔══════════════════════════════════════════════════════════════╗
║                                                              ║
║   ███╗   ███╗███████╗██████╗  ██████╗ ███████╗               ║
║   ████╗ ████║██╔════╝██╔══██╗██╔════╝ ██╔════╝               ║
║   ██╔████╔██║█████╗  ██████╔╝██║  ███╗█████╗                 ║
║   ██║╚██╔╝██║██╔══╝  ██╔══██╗██║   ██║██╔══╝                 ║
║   ██║ ╚═╝ ██║███████╗██║  ██║╚██████╔╝███████╗ MATE          ║
║   ╚═╝     ╚═╝╚══════╝╚═╝  ╚═╝ ╚═════╝ ╚══════╝               ║
║                                                              ║
║                 AI REVIEW BROWSER                            ║
║                                                              ║
╚══════════════════════════════════════════════════════════════╝
`

type model struct {
	styles styles

	store   storage.Store
	cleanup func()

	// UI Components
	viewport  viewport.Model
	textarea  textarea.Model
	spinner   spinner.Model
	isLoading bool

	// Session State
	reviews     []storage.ReviewRecord
	selectedKey string
	history     []string
	width       int
}

func initialModel(theme ThemeName) *model {
	styles := GetTheme(theme)
	ta := textarea.New()
	ta.Placeholder = "Enter command, e.g. /list or /show <key>..."
	ta.Focus()
	ta.Prompt = styles.prompt.Render("► ")
	ta.CharLimit = 200
	ta.SetWidth(50)
	ta.SetHeight(1)
	ta.ShowLineNumbers = false

	sp := spinner.New()
	sp.Spinner = spinner.Points
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("51"))

	return &model{
		styles:    styles,
		textarea:  ta,
		spinner:   sp,
		isLoading: true,
		width:     80,
		history:   []string{styles.ascii.Render(asciiLogo), "", "Connecting to the review archive..."},
	}
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(connectStoreCmd(), m.spinner.Tick)
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		spCmd tea.Cmd
	)

	m.textarea, tiCmd = m.textarea.Update(msg)
	m.viewport, vpCmd = m.viewport.Update(msg)
	m.spinner, spCmd = m.spinner.Update(msg)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			if m.cleanup != nil {
				m.cleanup()
			}
			return m, tea.Quit
		case tea.KeyEnter:
			input := strings.TrimSpace(m.textarea.Value())
			if input == "" {
				return m, nil
			}

			m.textarea.Reset()
			return m, m.processCommand(input)
		}

	case storeConnectedMsg:
		m.isLoading = false
		if msg.err != nil {
			m.appendHistory(m.styles.error.Render("Could not connect to the database: " + msg.err.Error()))
			return m, nil
		}
		m.store = msg.store
		m.cleanup = msg.cleanup
		m.isLoading = true
		// Connected, load the first page right away.
		return m, tea.Batch(m.spinner.Tick, loadReviewsCmd(m.store))

	case reviewsLoadedMsg:
		m.isLoading = false
		if msg.err != nil {
			m.appendHistory(m.styles.error.Render("Could not load reviews: " + msg.err.Error()))
			return m, nil
		}
		m.reviews = msg.reviews
		m.appendHistory(m.styles.success.Render("✓ ARCHIVE ONLINE"), m.renderReviewList())
		m.appendHistory("", "Type /help for commands.")
		return m, nil

	case reviewRenderedMsg:
		m.isLoading = false
		if msg.err != nil {
			m.appendHistory(m.styles.error.Render("Could not render review: " + msg.err.Error()))
			return m, nil
		}
		m.selectedKey = msg.requestKey
		m.appendHistory(msg.content)
		return m, nil

	case errorMsg:
		m.isLoading = false
		m.appendHistory("", m.styles.error.Render("⚠ "+msg.err.Error()))
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.styles.header.Width(msg.Width - 4)
		m.viewport.Width = msg.Width - 4
		m.viewport.Height = msg.Height - 10
		m.textarea.SetWidth(msg.Width - 10)
		m.viewport.SetContent(strings.Join(m.history, "\n"))
	}

	return m, tea.Batch(tiCmd, vpCmd, spCmd)
}

func (m *model) View() string {
	if m.store == nil && m.isLoading {
		return fmt.Sprintf("\n  %s CONNECTING...\n\n", m.spinner.View())
	}

	var statusParts []string
	statusParts = append(statusParts, fmt.Sprintf("REVIEWS: %d", len(m.reviews)))
	if m.selectedKey != "" {
		statusParts = append(statusParts, fmt.Sprintf("VIEWING: %s", shortKeyStatus(m.selectedKey)))
	}

	status := m.styles.inactive.Render(strings.Join(statusParts, " │ "))

	var loadingIndicator string
	if m.isLoading {
		loadingIndicator = " " + m.spinner.View() + " " + m.styles.success.Render("WORKING...")
	}

	return m.styles.app.Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.styles.viewport.Render(m.viewport.View()),
			"",
			m.styles.footer.Render(
				lipgloss.JoinHorizontal(lipgloss.Left,
					m.textarea.View(),
					loadingIndicator,
				),
			),
			status,
		),
	)
}

// appendHistory adds lines to the scrollback and keeps the viewport pinned to
// the bottom.
func (m *model) appendHistory(lines ...string) {
	m.history = append(m.history, "")
	m.history = append(m.history, lines...)
	m.viewport.SetContent(strings.Join(m.history, "\n"))
	m.viewport.GotoBottom()
}

func (m *model) renderReviewList() string {
	if len(m.reviews) == 0 {
		return m.styles.inactive.Render("No reviews have been delivered yet.")
	}

	var b strings.Builder
	b.WriteString(m.styles.success.Render(fmt.Sprintf("RECENT REVIEWS (%d):", len(m.reviews))))
	for _, rev := range m.reviews {
		repo := rev.RepoFullName
		if repo == "" {
			repo = "(upload)"
		}
		b.WriteString(fmt.Sprintf("\n  %s  %-14s %-30s %s  %s",
			m.styles.prompt.Render(shortKeyStatus(rev.RequestKey)),
			rev.Source,
			repo,
			rev.Recommended,
			m.styles.inactive.Render(rev.CreatedAt.Format("2006-01-02 15:04")),
		))
	}
	b.WriteString("\n\n" + m.styles.inactive.Render("Use '/show [key]' to open one."))
	return b.String()
}

func (m *model) processCommand(input string) tea.Cmd {
	m.history = append(m.history, m.styles.prompt.Render("► ")+input)
	m.viewport.SetContent(strings.Join(m.history, "\n"))
	m.viewport.GotoBottom()

	if m.store == nil {
		m.appendHistory(m.styles.error.Render("Not connected to the database."))
		return nil
	}

	parts := strings.Fields(input)
	if len(parts) == 0 {
		return nil
	}
	command := parts[0]
	args := parts[1:]

	switch command {
	case "/list", "/ls", "/refresh":
		m.isLoading = true
		return tea.Batch(m.spinner.Tick, loadReviewsCmd(m.store))

	case "/show", "/s":
		if len(args) != 1 {
			m.appendHistory(m.styles.error.Render("USAGE: /show [key]"))
			return nil
		}
		return m.showReview(args[0])

	case "/help", "/h":
		helpText := m.styles.success.Render("AVAILABLE COMMANDS:") + `

  /list, /ls           List the most recent reviews.
  /refresh             Reload the list from the database.
  /show [key]          Render one review (key prefix is enough).
  /help                Show this help message.
  /exit, /quit         Exit the browser.

  ` + m.styles.inactive.Render("TIP: Typing a key prefix directly works like /show.")
		m.appendHistory(helpText)
		return nil

	case "/exit", "/quit":
		if m.cleanup != nil {
			m.cleanup()
		}
		return tea.Quit

	default:
		// A bare key prefix opens that review.
		if !strings.HasPrefix(command, "/") {
			return m.showReview(command)
		}
		m.appendHistory(
			m.styles.error.Render(fmt.Sprintf("UNKNOWN COMMAND: %s", command)),
			m.styles.inactive.Render("Type /help for assistance."),
		)
		return nil
	}
}

// showReview looks up a review by key prefix in the loaded page and renders it.
func (m *model) showReview(keyPrefix string) tea.Cmd {
	for _, rev := range m.reviews {
		if strings.HasPrefix(rev.RequestKey, keyPrefix) {
			m.isLoading = true
			return tea.Batch(m.spinner.Tick, renderReviewCmd(rev, m.width-8))
		}
	}
	m.appendHistory(m.styles.error.Render(fmt.Sprintf("No loaded review matches '%s'. Use /list to refresh.", keyPrefix)))
	return nil
}

func shortKeyStatus(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}
