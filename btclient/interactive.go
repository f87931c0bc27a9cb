package main

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("82")) // green

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // red

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			MarginTop(1)
)

// sentMsg reports the outcome of a write back to the UI loop.
type sentMsg struct {
	label string
	err   error
}

type remoteModel struct {
	client   *Client
	lastSent string
	err      error
}

func (m remoteModel) Init() tea.Cmd {
	return nil
}

// sendCmd runs the BLE write off the UI goroutine. Toggle sleeps for the
// pulse hold, which would freeze the display otherwise.
func (m remoteModel) sendCmd(label string) tea.Cmd {
	return func() tea.Msg {
		var err error
		if label == "toggle" {
			err = m.client.Toggle()
		} else {
			b, ok := commandByte(label)
			if !ok {
				return sentMsg{label: label, err: fmt.Errorf("unknown command %q", label)}
			}
			err = m.client.Send(b)
		}
		return sentMsg{label: label, err: err}
	}
}

func (m remoteModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case sentMsg:
		m.lastSent = msg.label
		m.err = msg.err
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "o":
			return m, m.sendCmd("on")
		case "f":
			return m, m.sendCmd("off")
		case "t":
			return m, m.sendCmd("toggle")
		case "w", "a", "s", "d":
			return m, m.sendCmd(msg.String())
		}
	}
	return m, nil
}

func (m remoteModel) View() string {
	s := titleStyle.Render("btclient remote") + "\n\n"
	s += "  [o] LED on    [f] LED off   [t] toggle pulse\n"
	s += "  [w] forward   [s] back      [a] left   [d] right\n"

	if m.err != nil {
		s += "\n" + errorStyle.Render(fmt.Sprintf("write failed: %v", m.err))
	} else if m.lastSent != "" {
		s += "\n" + statusStyle.Render(fmt.Sprintf("sent: %s", m.lastSent))
	}

	s += helpStyle.Render("\npress q to quit")
	return s
}

// runInteractive starts the terminal remote on an established connection.
func runInteractive(client *Client) error {
	p := tea.NewProgram(remoteModel{client: client})
	_, err := p.Run()
	return err
}
