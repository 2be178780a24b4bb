package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sevigo/patchlens/internal/core"
)

const asciiLogo = `
╔═══════════════════════════════════════════════════════════════════╗
║                                                                   ║
║   ██████╗  █████╗ ████████╗ ██████╗██╗  ██╗██╗     ███████╗███╗   ║
║   ██╔══██╗██╔══██╗╚══██╔══╝██╔════╝██║  ██║██║     ██╔════╝████╗  ║
║   ██████╔╝███████║   ██║   ██║     ███████║██║     █████╗  ██╔██╗ ║
║   ██╔═══╝ ██╔══██║   ██║   ██║     ██╔══██║██║     ██╔══╝  ██║╚██╗║
║   ██║     ██║  ██║   ██║   ╚██████╗██║  ██║███████╗███████╗██║ ╚██║
║   ╚═╝     ╚═╝  ╚═╝   ╚═╝    ╚═════╝╚═╝  ╚═╝╚══════╝╚══════╝╚═╝  ╚═║
║                                                                   ║
║                    PULL REQUEST REVIEW CONSOLE                    ║
║                                                                   ║
╚═══════════════════════════════════════════════════════════════════╝
`

type model struct {
	styles styles
	deps   *deps

	// UI Components
	viewport  viewport.Model
	textarea  textarea.Model
	spinner   spinner.Model
	isLoading bool
	width     int

	// Session State
	kbEnabled  bool
	lastTarget prTarget
	lastReport *core.ReviewReport
	history    []string
}

func initialModel(theme ThemeName) *model {
	styles := GetTheme(theme)
	ta := textarea.New()
	ta.Placeholder = "Paste a pull request URL or type /help..."
	ta.Focus()
	ta.Prompt = styles.prompt.Render("► ")
	ta.CharLimit = 500
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
		history:   []string{styles.ascii.Render(asciiLogo), "", "⚙ CONNECTING TO THE REVIEW PIPELINE..."},
	}
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(setupCmd(), m.spinner.Tick)
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
			return m, tea.Quit
		case tea.KeyEnter:
			input := strings.TrimSpace(m.textarea.Value())
			if input == "" {
				return m, nil
			}
			m.textarea.Reset()
			return m, m.processCommand(input)
		}

	case setupCompleteMsg:
		m.isLoading = false
		if msg.err != nil {
			m.appendHistory("", m.styles.error.Render("⚠ "+msg.err.Error()))
			return m, nil
		}
		m.deps = msg.deps
		m.kbEnabled = m.deps.vectorStore != nil
		m.appendHistory("", m.styles.success.Render("✓ PIPELINE READY"))
		if m.deps.vectorStore == nil {
			m.appendHistory(m.styles.inactive.Render("Knowledge base unreachable; reviews run without repository context."))
		}
		m.appendHistory("", "Type /review [pr-url] or paste a pull request URL. /help for more.")
		return m, nil

	case reviewCompleteMsg:
		m.isLoading = false
		m.lastTarget = msg.target
		m.lastReport = msg.report
		if msg.partial {
			m.appendHistory("", m.styles.warning.Render("⚠ PARTIAL REVIEW: "+msg.target.String()))
		} else {
			m.appendHistory("", m.styles.success.Render("✓ REVIEW COMPLETE: "+msg.target.String()))
		}
		m.appendHistory(msg.rendered)
		m.appendHistory(m.styles.inactive.Render("Use /post to publish this review to the pull request."))
		return m, nil

	case reviewPostedMsg:
		m.isLoading = false
		if msg.err != nil {
			m.appendHistory("", m.styles.error.Render("⚠ POST FAILED: "+msg.err.Error()))
		} else {
			m.appendHistory("", m.styles.success.Render("✓ REVIEW POSTED: "+msg.target.String()))
		}
		return m, nil

	case errorMsg:
		m.isLoading = false
		m.appendHistory("", m.styles.error.Render("⚠ "+msg.err.Error()))
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.viewport.Width = msg.Width - 4
		m.viewport.Height = msg.Height - 8
		m.textarea.SetWidth(msg.Width - 10)
		m.viewport.SetContent(strings.Join(m.history, "\n"))
	}

	return m, tea.Batch(tiCmd, vpCmd, spCmd)
}

func (m *model) View() string {
	if m.deps == nil && m.isLoading {
		return fmt.Sprintf("\n  %s STARTING PATCHLENS...\n\n", m.spinner.View())
	}

	var statusParts []string
	if m.lastTarget.number > 0 {
		statusParts = append(statusParts, "PR: "+m.lastTarget.String())
	} else {
		statusParts = append(statusParts, "PR: none")
	}
	if m.kbEnabled {
		statusParts = append(statusParts, m.styles.success.Render("● KB"))
	} else {
		statusParts = append(statusParts, m.styles.inactive.Render("○ KB"))
	}
	if m.deps != nil {
		statusParts = append(statusParts, fmt.Sprintf("🤖 %s (%s)",
			m.deps.cfg.AI.GeneratorModelName, m.deps.cfg.AI.LLMProvider))
	}
	status := m.styles.inactive.Render(strings.Join(statusParts, " │ "))

	var loadingIndicator string
	if m.isLoading {
		loadingIndicator = " " + m.spinner.View() + " " + m.styles.success.Render("REVIEWING...")
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

func (m *model) appendHistory(lines ...string) {
	m.history = append(m.history, lines...)
	m.viewport.SetContent(strings.Join(m.history, "\n"))
	m.viewport.GotoBottom()
}

func (m *model) processCommand(input string) tea.Cmd {
	m.appendHistory(m.styles.prompt.Render("► ") + input)

	if m.deps == nil {
		m.appendHistory(m.styles.error.Render("The pipeline failed to initialize; fix the configuration and restart."))
		return nil
	}

	parts := strings.Fields(input)
	if len(parts) == 0 {
		return nil
	}
	command := parts[0]
	args := parts[1:]

	switch command {
	case "/review", "/r":
		if len(args) != 1 {
			m.appendHistory(m.styles.error.Render("USAGE: /review [pr-url]"))
			return nil
		}
		return m.startReview(args[0])

	case "/post":
		if m.lastReport == nil {
			m.appendHistory(m.styles.error.Render("No review to post. Run /review first."))
			return nil
		}
		m.isLoading = true
		m.appendHistory("", m.styles.command.Render("→ Posting review to "+m.lastTarget.String()+"..."))
		return tea.Batch(m.spinner.Tick, postCmd(m.deps, m.lastTarget, m.lastReport))

	case "/kb":
		if m.deps.vectorStore == nil {
			m.appendHistory(m.styles.error.Render("Knowledge base is unreachable; retrieval cannot be enabled."))
			return nil
		}
		m.kbEnabled = !m.kbEnabled
		if m.kbEnabled {
			m.appendHistory(m.styles.success.Render("✓ Knowledge-base retrieval enabled."))
		} else {
			m.appendHistory(m.styles.inactive.Render("Knowledge-base retrieval disabled."))
		}
		return nil

	case "/help", "/h":
		helpText := m.styles.success.Render("AVAILABLE COMMANDS:") + `

  /review [pr-url]   Review a pull request (or just paste the URL).
  /post              Publish the last review to the pull request.
  /kb                Toggle knowledge-base retrieval.
  /help              Show this help message.
  /exit, /quit       Exit PatchLens.
`
		m.appendHistory("", helpText)
		return nil

	case "/exit", "/quit":
		return tea.Quit

	default:
		// A pasted pull request URL starts a review directly.
		if strings.Contains(input, "/pull/") {
			return m.startReview(input)
		}
		m.appendHistory(
			m.styles.error.Render("UNKNOWN COMMAND: "+command),
			m.styles.inactive.Render("Type /help for assistance."),
		)
		return nil
	}
}

func (m *model) startReview(prURL string) tea.Cmd {
	m.isLoading = true
	m.appendHistory("", m.styles.command.Render("→ Reviewing "+prURL+"... (this may take a while)"))
	return tea.Batch(m.spinner.Tick, reviewCmd(m.deps, prURL, m.kbEnabled, m.viewport.Width))
}
