// Package tui implements the interactive input device picker.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/KarlMarx3333/Audio-Visualizer-For-OBS-browser/internal/audio"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#5A56E0")).
			Padding(0, 1).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5"))

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#5A56E0")).
			Bold(true)

	defaultMarkStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#25A065"))
)

// pickerModel is the Bubble Tea model for choosing a capture device.
type pickerModel struct {
	backend audio.Backend

	devices   []audio.DeviceDescriptor
	defaultID int
	selected  int
	viewport  viewport.Model
	ready     bool
	err       error

	picked    audio.DeviceDescriptor
	hasPicked bool
}

type devicesMsg struct {
	devices   []audio.DeviceDescriptor
	defaultID int
}

type errMsg struct {
	err error
}

func (m pickerModel) Init() tea.Cmd {
	return m.fetchDevices
}

func (m pickerModel) fetchDevices() tea.Msg {
	devices, err := m.backend.InputDevices()
	if err != nil {
		return errMsg{err}
	}
	defaultID := -1
	if id, ok := m.backend.DefaultInputID(); ok {
		defaultID = id
	}
	return devicesMsg{devices: devices, defaultID: defaultID}
}

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-4)
			m.ready = true
			if len(m.devices) > 0 {
				m.viewport.SetContent(m.renderDevices())
			}
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 4
		}

	case devicesMsg:
		m.devices = msg.devices
		m.defaultID = msg.defaultID
		for i, d := range m.devices {
			if d.ID == m.defaultID {
				m.selected = i
				break
			}
		}
		if m.ready {
			m.viewport.SetContent(m.renderDevices())
		}

	case errMsg:
		m.err = msg.err

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, key.NewBinding(key.WithKeys("q", "ctrl+c", "esc"))):
			return m, tea.Quit

		case key.Matches(msg, key.NewBinding(key.WithKeys("up", "k"))):
			if m.selected > 0 {
				m.selected--
				m.viewport.SetContent(m.renderDevices())
			}

		case key.Matches(msg, key.NewBinding(key.WithKeys("down", "j"))):
			if m.selected < len(m.devices)-1 {
				m.selected++
				m.viewport.SetContent(m.renderDevices())
			}

		case key.Matches(msg, key.NewBinding(key.WithKeys("enter"))):
			if len(m.devices) > 0 {
				m.picked = m.devices[m.selected]
				m.hasPicked = true
				return m, tea.Quit
			}
		}
	}

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m pickerModel) View() string {
	if !m.ready {
		return "Initializing..."
	}
	if m.err != nil {
		return fmt.Sprintf("Error: %v\n\nPress q to exit.", m.err)
	}

	title := titleStyle.Render("Select Input Device")
	help := infoStyle.Render("↑/↓: Navigate • Enter: Select • q: Quit")
	return fmt.Sprintf("%s\n\n%s\n\n%s", title, m.viewport.View(), help)
}

func (m pickerModel) renderDevices() string {
	if len(m.devices) == 0 {
		return "No input devices found."
	}

	var sb strings.Builder
	for i, device := range m.devices {
		mark := "  "
		if device.ID == m.defaultID {
			mark = defaultMarkStyle.Render("* ")
		}

		info := fmt.Sprintf("%s[%d] %s (%s)\n", mark, device.ID, device.Name, device.HostAPI)
		info += fmt.Sprintf("      Input channels: %d, Default sample rate: %.0f Hz\n",
			device.MaxInputChannels, device.DefaultSampleRate)

		if i == m.selected {
			info = highlightStyle.Render(info)
		}
		sb.WriteString(info)
		sb.WriteString("\n")
	}
	return sb.String()
}

// PickDevice runs the interactive picker and returns the chosen device.
// The second return value is false when the user quit without picking.
func PickDevice(backend audio.Backend) (audio.DeviceDescriptor, bool, error) {
	p := tea.NewProgram(
		pickerModel{backend: backend, defaultID: -1},
		tea.WithAltScreen(),
	)
	final, err := p.Run()
	if err != nil {
		return audio.DeviceDescriptor{}, false, err
	}
	m := final.(pickerModel)
	return m.picked, m.hasPicked, nil
}
