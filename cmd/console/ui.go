package main

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/mitchellwinn/pioneer-online-sub002/internal/handlers"
	"github.com/mitchellwinn/pioneer-online-sub002/internal/session"
	"github.com/mitchellwinn/pioneer-online-sub002/pkg/conversation"
)

const pollInterval = 80 * time.Millisecond

// transcriptEntry is one fully presented line.
type transcriptEntry struct {
	Nametag string
	Text    string
}

// ConsoleUI is the BubbleTea model that plays a conversation.
// https://github.com/charmbracelet/bubbletea
type ConsoleUI struct {
	config *ConsoleConfig
	client *http.Client

	view       *session.View
	transcript []transcriptEntry

	dialogueViewport viewport.Model
	metaViewport     viewport.Model
	ready            bool
	width            int
	height           int
	err              error

	// Document selection state
	showDocumentModal bool
	loadingDocuments  bool
	documents         []string
	selectedDocument  int
	starting          bool

	// Choice selection state
	selectedChoice int

	// Quit confirmation state
	showQuitModal bool

	ended   bool
	copied  bool
	waiting bool // a signal is in flight; suppress repeats
}

type documentsLoadedMsg struct {
	inventory *handlers.DocumentInventory
	err       error
}

type sessionStartedMsg struct {
	view *session.View
	err  error
}

type sessionViewMsg struct {
	view *session.View
	err  error
}

type signalMsg struct {
	view *session.View
	err  error
}

type pollTickMsg struct{}

var (
	dialoguePanelStyle = lipgloss.NewStyle().
				PaddingTop(2).
				PaddingBottom(1).
				PaddingLeft(3).
				PaddingRight(0)

	metaPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(0).
			PaddingLeft(0).
			PaddingRight(2)

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")). // pink
			Bold(true)

	nametagStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212")). // purple
			Bold(true)

	lineStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")) // green

	cursorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // yellow

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // red

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey

	separatorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2).
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("255"))

	modalTitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			Align(lipgloss.Center)

	modalItemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255"))

	modalSelectedItemStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("0")).
				Background(lipgloss.Color("205")).
				Bold(true)

	choiceStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")) // teal

	choiceSelectedStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("0")).
				Background(lipgloss.Color("39")).
				Bold(true)
)

func NewConsoleUI(cfg *ConsoleConfig, client *http.Client) ConsoleUI {
	dialogueVp := viewport.New(50, 20)
	dialogueVp.MouseWheelEnabled = true

	metaVp := viewport.New(20, 20)

	return ConsoleUI{
		config:            cfg,
		client:            client,
		dialogueViewport:  dialogueVp,
		metaViewport:      metaVp,
		showDocumentModal: true,
		loadingDocuments:  true,
	}
}

func (m ConsoleUI) Init() tea.Cmd {
	return m.loadDocuments()
}

func (m ConsoleUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.showDocumentModal {
		return m.updateDocumentModal(msg)
	}
	if m.showQuitModal {
		return m.updateQuitModal(msg)
	}

	var (
		vpCmd tea.Cmd
		mvCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.MouseMsg:
		m.dialogueViewport, vpCmd = m.dialogueViewport.Update(msg)
		m.metaViewport, mvCmd = m.metaViewport.Update(msg)
		return m, tea.Batch(vpCmd, mvCmd)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizePanels()
		m.writeDialogueContent()
		m.writeMetadata()
		m.ready = true

	case tea.KeyMsg:
		return m.handleKey(msg)

	case pollTickMsg:
		if m.ended {
			return m, nil
		}
		return m, tea.Batch(m.refreshSession(), pollTick())

	case sessionViewMsg:
		if msg.err != nil {
			// A vanished session is the conversation ending between polls.
			m.ended = true
			m.writeDialogueContent()
			return m, nil
		}
		m.applyView(msg.view)
		return m, nil

	case signalMsg:
		m.waiting = false
		if msg.err != nil {
			m.err = msg.err
			m.writeDialogueContent()
			return m, nil
		}
		m.applyView(msg.view)
		return m, nil
	}

	m.dialogueViewport, vpCmd = m.dialogueViewport.Update(msg)
	m.metaViewport, mvCmd = m.metaViewport.Update(msg)
	return m, tea.Batch(vpCmd, mvCmd)
}

func (m ConsoleUI) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		m.showQuitModal = true
		return m, nil

	case tea.KeyUp:
		if m.inChoice() && m.selectedChoice > 0 {
			m.selectedChoice--
			m.writeDialogueContent()
		}
		return m, nil

	case tea.KeyDown:
		if m.inChoice() && m.selectedChoice < len(m.view.Choices)-1 {
			m.selectedChoice++
			m.writeDialogueContent()
		}
		return m, nil

	case tea.KeyEnter:
		return m.confirm()

	case tea.KeySpace:
		if m.view != nil && !m.waiting && m.view.State == conversation.StatePresenting {
			m.waiting = true
			return m, m.sendSignalCmd("fastforward", nil)
		}
		return m, nil
	}

	switch msg.String() {
	case "c":
		if err := clipboard.WriteAll(m.transcriptText()); err == nil {
			m.copied = true
			m.writeMetadata()
		}
	case "r":
		// Back to the document list after a conversation ends.
		if m.ended {
			m.showDocumentModal = true
			m.loadingDocuments = true
			m.ended = false
			m.err = nil
			m.view = nil
			m.transcript = nil
			m.selectedChoice = 0
			return m, m.loadDocuments()
		}
	}
	return m, nil
}

// confirm is Enter: fast-forward a revealing line, advance a finished one,
// or commit the highlighted choice.
func (m ConsoleUI) confirm() (tea.Model, tea.Cmd) {
	if m.view == nil || m.waiting || m.ended {
		return m, nil
	}
	switch m.view.State {
	case conversation.StatePresenting:
		m.waiting = true
		return m, m.sendSignalCmd("fastforward", nil)
	case conversation.StateAwaitingAdvance:
		m.waiting = true
		return m, m.sendSignalCmd("advance", nil)
	case conversation.StateAwaitingChoice:
		m.waiting = true
		return m, m.sendSignalCmd("choose", handlers.ChooseRequest{Index: m.selectedChoice})
	}
	return m, nil
}

func (m *ConsoleUI) inChoice() bool {
	return m.view != nil && m.view.State == conversation.StateAwaitingChoice
}

// applyView folds a fresh server view into the model, moving finished
// lines into the transcript when the current line changes.
func (m *ConsoleUI) applyView(view *session.View) {
	if view == nil {
		return
	}
	ended := view.State == "ended" || view.State == conversation.StateIdle
	// A finished line moves to the transcript: either the session moved on
	// to a new line, or it ended and only a terminal stub remains.
	if m.view != nil && m.view.Text != "" && (m.view.LineID != view.LineID || (ended && view.Text == "")) {
		m.transcript = append(m.transcript, transcriptEntry{
			Nametag: m.view.Nametag,
			Text:    m.view.Text,
		})
		m.selectedChoice = 0
	}
	m.view = view
	if ended {
		m.ended = true
	}
	m.writeDialogueContent()
	m.writeMetadata()
}

func (m *ConsoleUI) resizePanels() {
	dialogueWidth := int(float64(m.width)*0.75) - 4
	metaWidth := m.width - dialogueWidth - 6

	m.dialogueViewport.Width = dialogueWidth - 2
	m.dialogueViewport.Height = m.height - 5
	m.metaViewport.Width = metaWidth - 2
	m.metaViewport.Height = m.height - 4
}

func (m *ConsoleUI) writeDialogueContent() {
	width := m.dialogueViewport.Width - 6
	if width < 10 {
		width = 10
	}

	var content strings.Builder
	content.WriteString(titleStyle.Render("PIONEER DIALOGUE") + "\n\n")
	content.WriteString(separatorStyle.Render(strings.Repeat("─", width)) + "\n\n")

	for _, entry := range m.transcript {
		content.WriteString(formatLine(entry.Nametag, entry.Text, width) + "\n\n")
	}

	if m.view != nil && m.view.LineID != "" {
		revealed := revealedPrefix(m.view)
		if revealed != "" || m.view.State == conversation.StatePresenting {
			cursor := ""
			if m.view.State == conversation.StatePresenting {
				cursor = cursorStyle.Render("▌")
			}
			content.WriteString(formatLine(m.view.Nametag, revealed, width) + cursor + "\n\n")
		}

		if m.inChoice() {
			for i, choice := range m.view.Choices {
				if i == m.selectedChoice {
					content.WriteString(choiceSelectedStyle.Render(fmt.Sprintf("▶ %s", choice)))
				} else {
					content.WriteString(choiceStyle.Render(fmt.Sprintf("  %s", choice)))
				}
				content.WriteString("\n")
			}
			content.WriteString("\n")
		}
	}

	if m.ended {
		content.WriteString(separatorStyle.Render(strings.Repeat("─", width)) + "\n")
		content.WriteString(promptStyle.Render("The conversation has ended. Press R to pick another document, Ctrl+C to quit.") + "\n")
	}
	if m.err != nil {
		content.WriteString(errorStyle.Render("Error: "+m.err.Error()) + "\n")
	}

	m.dialogueViewport.SetContent(content.String())
	m.dialogueViewport.GotoBottom()
}

func (m *ConsoleUI) writeMetadata() {
	var content strings.Builder
	content.WriteString(titleStyle.Render("SESSION") + "\n\n")

	if m.view != nil {
		content.WriteString("Session ID:\n")
		content.WriteString(m.view.ID.String()[:8] + "...\n\n")

		content.WriteString("Document:\n")
		content.WriteString(m.view.Document + "\n\n")

		if m.view.Language != "" {
			content.WriteString("Language:\n")
			content.WriteString(m.view.Language + "\n\n")
		}

		content.WriteString("State:\n")
		content.WriteString(string(m.view.State) + "\n\n")

		content.WriteString(fmt.Sprintf("Lines shown:\n%d\n\n", len(m.transcript)))
	}

	content.WriteString("Commands:\n")
	content.WriteString("• Enter: Continue\n")
	content.WriteString("• Space: Skip reveal\n")
	content.WriteString("• ↑/↓: Pick choice\n")
	content.WriteString("• C: Copy transcript\n")
	content.WriteString("• Ctrl+C: Quit\n")

	if m.copied {
		content.WriteString("\n" + cursorStyle.Render("Transcript copied."))
	}

	m.metaViewport.SetContent(content.String())
}

// revealedPrefix is the portion of the current line the server has
// revealed so far.
func revealedPrefix(view *session.View) string {
	runes := []rune(view.Text)
	if view.Revealed >= len(runes) {
		return view.Text
	}
	return string(runes[:view.Revealed])
}

func formatLine(nametag, text string, width int) string {
	if nametag != "" {
		prefix := nametag + ": "
		wrapped := wordwrap.String(text, width-len(prefix))
		return nametagStyle.Render(prefix) + lineStyle.Render(wrapped)
	}
	return lineStyle.Render(wordwrap.String(text, width))
}

func (m *ConsoleUI) transcriptText() string {
	var b strings.Builder
	for _, entry := range m.transcript {
		if entry.Nametag != "" {
			b.WriteString(entry.Nametag + ": ")
		}
		b.WriteString(entry.Text + "\n")
	}
	if m.view != nil && m.view.Text != "" {
		if m.view.Nametag != "" {
			b.WriteString(m.view.Nametag + ": ")
		}
		b.WriteString(m.view.Text + "\n")
	}
	return b.String()
}

func (m ConsoleUI) loadDocuments() tea.Cmd {
	return func() tea.Msg {
		inventory, err := listDocuments(m.client, m.config.APIBaseURL, m.config.Language)
		return documentsLoadedMsg{inventory, err}
	}
}

func (m ConsoleUI) startConversationCmd(document string) tea.Cmd {
	return func() tea.Msg {
		view, err := startConversation(m.client, m.config.APIBaseURL, handlers.StartConversationRequest{
			Document: document,
			Language: m.config.Language,
			PlayerID: m.config.PlayerID,
		})
		return sessionStartedMsg{view, err}
	}
}

func (m ConsoleUI) refreshSession() tea.Cmd {
	id := m.view.ID
	return func() tea.Msg {
		view, err := getSession(m.client, m.config.APIBaseURL, id)
		return sessionViewMsg{view, err}
	}
}

func (m ConsoleUI) sendSignalCmd(action string, payload any) tea.Cmd {
	id := m.view.ID
	return func() tea.Msg {
		view, err := sendSignal(m.client, m.config.APIBaseURL, id, action, payload)
		return signalMsg{view, err}
	}
}

func pollTick() tea.Cmd {
	return tea.Tick(pollInterval, func(time.Time) tea.Msg {
		return pollTickMsg{}
	})
}

func (m ConsoleUI) updateDocumentModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizePanels()

	case documentsLoadedMsg:
		m.loadingDocuments = false
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.documents = msg.inventory.Documents
			m.selectedDocument = 0
		}

	case sessionStartedMsg:
		m.starting = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.showDocumentModal = false
		m.err = nil
		m.applyView(msg.view)
		return m, pollTick()

	case tea.KeyMsg:
		if m.err != nil || m.loadingDocuments {
			if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyEsc {
				return m, tea.Quit
			}
			return m, nil
		}

		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyUp:
			if m.selectedDocument > 0 {
				m.selectedDocument--
			}
		case tea.KeyDown:
			if m.selectedDocument < len(m.documents)-1 {
				m.selectedDocument++
			}
		case tea.KeyEnter:
			if len(m.documents) > 0 && !m.starting {
				m.starting = true
				return m, m.startConversationCmd(m.documents[m.selectedDocument])
			}
		}
	}

	return m, nil
}

func (m ConsoleUI) updateQuitModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc, tea.KeyEnter:
			return m, m.quit()
		default:
			switch msg.String() {
			case "y", "Y":
				return m, m.quit()
			case "n", "N":
				m.showQuitModal = false
				return m, nil
			}
		}
	}

	return m, nil
}

// quit tears down the running session before leaving, so the server does
// not keep ticking an abandoned conversation.
func (m ConsoleUI) quit() tea.Cmd {
	if m.view != nil && !m.ended {
		_ = stopSession(m.client, m.config.APIBaseURL, m.view.ID)
	}
	return tea.Quit
}

func (m ConsoleUI) renderQuitModal() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var content strings.Builder
	content.WriteString(modalTitleStyle.Render("Leave Conversation?"))
	content.WriteString("\n\n")
	content.WriteString("The session will be discarded.")
	content.WriteString("\n\n")
	content.WriteString(promptStyle.Render("Press Y to quit, N to continue"))

	modal := modalStyle.Width(50).Render(content.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal, lipgloss.WithWhitespaceChars(" "))
}

func (m ConsoleUI) renderDocumentModal() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var content strings.Builder

	if m.loadingDocuments {
		content.WriteString(modalTitleStyle.Render("Loading Documents..."))
		content.WriteString("\n\n")
		content.WriteString(promptStyle.Render("Fetching the dialogue library..."))
	} else if m.err != nil {
		content.WriteString(modalTitleStyle.Render("Error"))
		content.WriteString("\n\n")
		content.WriteString(errorStyle.Render(fmt.Sprintf("Failed to load documents: %v", m.err)))
		content.WriteString("\n\n")
		content.WriteString("Press Ctrl+C to exit")
	} else if m.starting {
		content.WriteString(modalTitleStyle.Render("Starting Conversation..."))
	} else {
		content.WriteString(modalTitleStyle.Render("Select a Conversation"))
		content.WriteString("\n\n")

		for i, doc := range m.documents {
			if i == m.selectedDocument {
				content.WriteString(modalSelectedItemStyle.Render(fmt.Sprintf("▶ %s", doc)))
			} else {
				content.WriteString(modalItemStyle.Render(fmt.Sprintf("  %s", doc)))
			}
			content.WriteString("\n")
		}

		content.WriteString("\n")
		content.WriteString(promptStyle.Render("Use ↑/↓ to navigate, Enter to select, Ctrl+C to exit"))
	}

	modal := modalStyle.Width(60).Render(content.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal, lipgloss.WithWhitespaceChars(" "))
}

func (m ConsoleUI) View() string {
	if m.showDocumentModal {
		return m.renderDocumentModal()
	}
	if m.showQuitModal {
		return m.renderQuitModal()
	}
	if !m.ready {
		return "\n  Initializing..."
	}

	dialogueWidth := int(float64(m.width)*0.75) - 4
	metaWidth := m.width - dialogueWidth - 6

	dialoguePanel := dialoguePanelStyle.Width(dialogueWidth).Height(m.height - 3).Render(
		m.dialogueViewport.View(),
	)

	metaPanel := metaPanelStyle.Width(metaWidth).Height(m.height - 2).Render(
		m.metaViewport.View(),
	)

	return lipgloss.JoinHorizontal(lipgloss.Top, dialoguePanel, metaPanel)
}
