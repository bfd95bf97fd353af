// ABOUTME: Interactive TUI wizard for pointing backstage at a backend and logging in.
// ABOUTME: 3-step bubbletea model collecting backend origin, email, and password.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/2389-research/backstage/internal/apierr"
)

// DefaultOrigin is the backend used when the origin step is left empty.
const DefaultOrigin = "http://localhost:8000"

// Step represents the current wizard step.
type Step int

const (
	StepOrigin Step = iota
	StepEmail
	StepPassword
	StepLoggingIn
	StepDone
	StepFailed
)

// loginResultMsg carries the result of an async login attempt.
type loginResultMsg struct {
	username string
	err      error
}

// LoginFn logs in against origin and returns the authenticated username.
type LoginFn func(ctx context.Context, origin, email, password string) (string, error)

// cancelHolder shares a cancel function across bubbletea model copies.
// It must be a pointer field so value-receiver methods (required by
// tea.Model) can store the cancel func and have it visible to all copies.
type cancelHolder struct {
	cancel context.CancelFunc
}

// SetupModel is the bubbletea model for the login wizard.
type SetupModel struct {
	step      Step
	inputs    [3]textinput.Model
	spinner   spinner.Model
	loginFn   LoginFn
	cancelCtx *cancelHolder
	loginErr  error
	username  string
	quitting  bool
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	brandStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	stepStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	promptStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// NewSetupModel creates the wizard, pre-filling the origin and email.
func NewSetupModel(origin, email string, login LoginFn) SetupModel {
	originInput := textinput.New()
	originInput.Placeholder = DefaultOrigin
	originInput.Focus()
	originInput.Width = 50
	if origin != "" {
		originInput.SetValue(origin)
	}

	emailInput := textinput.New()
	emailInput.Placeholder = "you@example.com"
	emailInput.Width = 50
	if email != "" {
		emailInput.SetValue(email)
	}

	passwordInput := textinput.New()
	passwordInput.Placeholder = "password"
	passwordInput.EchoMode = textinput.EchoPassword
	passwordInput.Width = 50

	s := spinner.New()
	s.Spinner = spinner.Dot

	return SetupModel{
		step:      StepOrigin,
		inputs:    [3]textinput.Model{originInput, emailInput, passwordInput},
		spinner:   s,
		loginFn:   login,
		cancelCtx: &cancelHolder{},
	}
}

// Init implements tea.Model.
func (m SetupModel) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (m SetupModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEscape:
			m.quitting = true
			if m.cancelCtx.cancel != nil {
				m.cancelCtx.cancel()
			}
			return m, tea.Quit
		}

		switch m.step {
		case StepOrigin, StepEmail, StepPassword:
			return m.updateInput(msg)
		case StepFailed:
			return m.updateFailed(msg)
		}

	case loginResultMsg:
		m.cancelCtx.cancel = nil
		if msg.err == nil {
			m.username = msg.username
			m.step = StepDone
			return m, tea.Quit
		}
		m.loginErr = msg.err
		m.inputs[2].SetValue("")
		m.step = StepFailed
		return m, nil

	case spinner.TickMsg:
		if m.step == StepLoggingIn {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
	}

	return m, nil
}

func (m SetupModel) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyEnter {
		idx := int(m.step)

		if m.step == StepOrigin {
			val := strings.TrimSpace(m.inputs[0].Value())
			if val == "" {
				val = DefaultOrigin
			}
			m.inputs[0].SetValue(strings.TrimRight(val, "/"))
		}

		if m.step == StepEmail && strings.TrimSpace(m.inputs[1].Value()) == "" {
			return m, nil
		}
		if m.step == StepPassword && m.inputs[2].Value() == "" {
			return m, nil
		}

		m.inputs[idx].Blur()

		switch m.step {
		case StepOrigin:
			m.step = StepEmail
			m.inputs[1].Focus()
			return m, textinput.Blink
		case StepEmail:
			m.step = StepPassword
			m.inputs[2].Focus()
			return m, textinput.Blink
		case StepPassword:
			m.step = StepLoggingIn
			return m, tea.Batch(m.startLogin(), m.spinner.Tick)
		}
	}

	idx := int(m.step)
	var cmd tea.Cmd
	m.inputs[idx], cmd = m.inputs[idx].Update(msg)
	return m, cmd
}

func (m SetupModel) updateFailed(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyRunes && len(msg.Runes) > 0 {
		switch msg.Runes[0] {
		case 'r':
			m.step = StepPassword
			m.loginErr = nil
			m.inputs[2].Focus()
			return m, textinput.Blink
		case 'e':
			m.step = StepOrigin
			m.loginErr = nil
			m.inputs[0].Focus()
			return m, textinput.Blink
		case 'q':
			m.quitting = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m SetupModel) startLogin() tea.Cmd {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelCtx.cancel = cancel
	origin := m.inputs[0].Value()
	email := strings.TrimSpace(m.inputs[1].Value())
	password := m.inputs[2].Value()
	fn := m.loginFn
	return func() tea.Msg {
		if fn == nil {
			return loginResultMsg{err: fmt.Errorf("login is not configured")}
		}
		username, err := fn(ctx, origin, email, password)
		return loginResultMsg{username: username, err: err}
	}
}

// View implements tea.Model.
func (m SetupModel) View() string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(brandStyle.Render("   BACKSTAGE"))
	b.WriteString(titleStyle.Render(" - Login"))
	b.WriteString("\n\n")
	b.WriteString("Connect to your backend and sign in.\n\n")

	switch m.step {
	case StepOrigin:
		b.WriteString(stepStyle.Render("Step 1 of 3: Backend origin"))
		b.WriteString("\n")
		b.WriteString(promptStyle.Render("(press Enter for default)"))
		b.WriteString("\n")
		b.WriteString(m.inputs[0].View())
		b.WriteString("\n")

	case StepEmail:
		b.WriteString(fmt.Sprintf("  Backend: %s\n\n", m.inputs[0].Value()))
		b.WriteString(stepStyle.Render("Step 2 of 3: Email"))
		b.WriteString("\n")
		b.WriteString(m.inputs[1].View())
		b.WriteString("\n")

	case StepPassword:
		b.WriteString(fmt.Sprintf("  Backend: %s\n", m.inputs[0].Value()))
		b.WriteString(fmt.Sprintf("  Email:   %s\n\n", m.inputs[1].Value()))
		b.WriteString(stepStyle.Render("Step 3 of 3: Password"))
		b.WriteString("\n")
		b.WriteString(m.inputs[2].View())
		b.WriteString("\n")

	case StepLoggingIn:
		b.WriteString(fmt.Sprintf("  Backend: %s\n", m.inputs[0].Value()))
		b.WriteString(fmt.Sprintf("  Email:   %s\n\n", m.inputs[1].Value()))
		b.WriteString(m.spinner.View())
		b.WriteString(" Logging in...")
		b.WriteString("\n")

	case StepDone:
		b.WriteString(successStyle.Render(fmt.Sprintf("✓ Logged in as %s", m.username)))
		b.WriteString("\n")

	case StepFailed:
		errMsg := "unknown error"
		if m.loginErr != nil {
			errMsg = apierr.Message(m.loginErr)
		}
		b.WriteString(errorStyle.Render(fmt.Sprintf("✗ Login failed: %s", errMsg)))
		b.WriteString("\n\n")
		b.WriteString(promptStyle.Render("[r]etry  [e]dit  [q]uit"))
		b.WriteString("\n")
	}

	return b.String()
}

// Result returns the entered origin and email. The password is not kept.
func (m SetupModel) Result() (origin, email string) {
	return m.inputs[0].Value(), strings.TrimSpace(m.inputs[1].Value())
}

// Username returns the account that logged in.
func (m SetupModel) Username() string {
	return m.username
}

// ShouldSave returns true if login succeeded and the user did not cancel
// with Ctrl+C, Escape, or 'q'.
func (m SetupModel) ShouldSave() bool {
	return m.step == StepDone && !m.quitting
}
