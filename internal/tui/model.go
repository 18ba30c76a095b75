package tui

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/iottest/wifiposition/internal/fingerprint"
	"github.com/iottest/wifiposition/internal/service"

	tea "github.com/charmbracelet/bubbletea"
)

const (
	refreshInterval = 250 * time.Millisecond
	noticeTimeout   = 3 * time.Second
)

// Model is the root bubbletea model for the collector.
type Model struct {
	svc service.Service

	// Snapshot refreshed on every tick
	status service.Status
	latest fingerprint.Sample

	// Label prompt
	prompting  bool
	labelInput string

	uploading bool
	notice    string

	width  int
	height int
}

// New creates a model over svc. The caller owns the controller's loops.
func New(svc service.Service) Model {
	m := Model{svc: svc}
	m.refresh()
	return m
}

// Init starts the refresh ticker.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func clearNoticeCmd() tea.Cmd {
	return tea.Tick(noticeTimeout, func(time.Time) tea.Msg {
		return ClearNoticeMsg{}
	})
}

// uploadCmd runs one bulk upload off the UI goroutine.
func uploadCmd(svc service.Service) tea.Cmd {
	return func() tea.Msg {
		entries := svc.DatasetLen()
		resp, err := svc.Upload(context.Background())
		return UploadDoneMsg{Entries: entries, Response: resp, Err: err}
	}
}

func (m *Model) refresh() {
	m.status = m.svc.Status()
	m.latest = m.svc.LatestSample()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		if m.prompting {
			return m.handlePromptKey(msg)
		}
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TickMsg:
		m.refresh()
		return m, tickCmd()

	case UploadDoneMsg:
		m.uploading = false
		m.refresh()
		// Upload failures are only logged.
		if msg.Err != nil {
			m.notice = ""
			return m, nil
		}
		m.notice = fmt.Sprintf("Uploaded %d entries", msg.Entries)
		return m, clearNoticeCmd()

	case ClearNoticeMsg:
		m.notice = ""
		return m, nil
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case KeyQuit, KeyQuitUpper, KeyCtrlC:
		return m, tea.Quit

	case KeySpace:
		if m.status.Recording {
			m.svc.StopRecording()
			m.refresh()
			return m, nil
		}
		m.prompting = true
		m.labelInput = m.status.Label
		return m, nil

	case KeyUpload:
		if m.uploading {
			return m, nil
		}
		m.uploading = true
		m.notice = "Uploading..."
		return m, uploadCmd(m.svc)

	case KeyClear:
		m.svc.Clear()
		m.refresh()
		m.notice = "Dataset cleared"
		return m, clearNoticeCmd()

	case KeyPause:
		if m.status.Paused {
			m.svc.Resume()
		} else {
			m.svc.Pause()
		}
		m.refresh()
		return m, nil
	}

	return m, nil
}

// handlePromptKey edits the label. Enter starts recording, Esc leaves the
// state unchanged.
func (m Model) handlePromptKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case KeyCtrlC:
		return m, tea.Quit

	case KeyEsc:
		m.prompting = false
		m.labelInput = ""
		return m, nil

	case KeyEnter:
		label := strings.TrimSpace(m.labelInput)
		if label == "" {
			return m, nil
		}
		m.prompting = false
		m.labelInput = ""
		m.svc.StartRecording(label)
		m.refresh()
		return m, nil

	case KeyBackspace:
		runes := []rune(m.labelInput)
		if len(runes) > 0 {
			m.labelInput = string(runes[:len(runes)-1])
		}
		return m, nil
	}

	// Everything else printable is part of the label, q included.
	switch msg.Type {
	case tea.KeySpace:
		m.labelInput += " "
	case tea.KeyRunes:
		m.labelInput += string(msg.Runes)
	}
	return m, nil
}

func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	var sections []string

	sections = append(sections, m.renderHeader())
	sections = append(sections, m.renderStatusBar())
	sections = append(sections, m.renderPrediction())
	sections = append(sections, DividerStyle.Render(strings.Repeat("─", m.width)))
	sections = append(sections, m.renderAccessPoints()...)
	sections = append(sections, DividerStyle.Render(strings.Repeat("─", m.width)))

	if m.prompting {
		sections = append(sections, PromptStyle.Render("Label: ")+m.labelInput+"█")
	} else if m.notice != "" {
		sections = append(sections, DimStyle.Render(m.notice))
	}

	sections = append(sections, m.renderFooter())

	return strings.Join(sections, "\n")
}

func (m Model) renderHeader() string {
	title := TitleStyle.Render("WIFIPOS")
	return title + DimStyle.Render(" "+m.status.ServerURL)
}

func (m Model) renderStatusBar() string {
	var dot string
	if m.status.Recording {
		dot = RecordingDotStyle.Render("● REC")
	} else {
		dot = IdleDotStyle.Render("○ IDLE")
	}

	label := ""
	if m.status.Label != "" {
		label = "  " + LabelStyle.Render(m.status.Label)
	}

	counts := DimStyle.Render(fmt.Sprintf("  %d entries  %d APs", m.status.DatasetEntries, m.status.VisibleStations))

	paused := ""
	if m.status.Paused {
		paused = "  " + PromptStyle.Render("PAUSED")
	}

	return dot + label + counts + paused
}

func (m Model) renderPrediction() string {
	if m.status.Prediction == "" {
		return DimStyle.Render("Prediction: -")
	}
	age := ""
	if m.status.PredictedAt != nil {
		age = DimStyle.Render(fmt.Sprintf(" (%s ago)", time.Since(*m.status.PredictedAt).Truncate(time.Second)))
	}
	return "Prediction: " + PredictionStyle.Render(m.status.Prediction) + age
}

// renderAccessPoints lists the latest scan, strongest first.
func (m Model) renderAccessPoints() []string {
	if m.latest == nil {
		return []string{DimStyle.Render("Waiting for first scan...")}
	}
	if len(m.latest) == 0 {
		return []string{DimStyle.Render("No access points visible")}
	}

	readings := m.latest.Clone()
	sort.SliceStable(readings, func(i, j int) bool {
		return readings[i].SignalStrength > readings[j].SignalStrength
	})

	// Header, status, prediction, two dividers, prompt and footer.
	limit := m.height - 7
	if limit < 1 {
		limit = 1
	}

	nameWidth := m.width - 10
	if nameWidth < 10 {
		nameWidth = 10
	}

	var lines []string
	for i, r := range readings {
		if i == limit {
			lines = append(lines, DimStyle.Render(fmt.Sprintf("… %d more", len(readings)-limit)))
			break
		}
		name := padRight(truncateToWidth(r.Identifier, nameWidth), nameWidth)
		lines = append(lines, name+" "+signalStyle(r.SignalStrength).Render(fmt.Sprintf("%4d dBm", r.SignalStrength)))
	}
	return lines
}

func signalStyle(level int) lipgloss.Style {
	switch {
	case level >= -60:
		return SignalStrongStyle
	case level >= -75:
		return SignalMediumStyle
	default:
		return SignalWeakStyle
	}
}

func (m Model) renderFooter() string {
	var parts []string

	if m.prompting {
		parts = append(parts, FooterKeyStyle.Render("Enter")+FooterDescStyle.Render(" Start"))
		parts = append(parts, FooterKeyStyle.Render("Esc")+FooterDescStyle.Render(" Cancel"))
		return strings.Join(parts, "  ")
	}

	if m.status.Recording {
		parts = append(parts, FooterKeyStyle.Render("Space")+FooterDescStyle.Render(" Stop"))
	} else {
		parts = append(parts, FooterKeyStyle.Render("Space")+FooterDescStyle.Render(" Record"))
	}
	parts = append(parts, FooterKeyStyle.Render("u")+FooterDescStyle.Render(" Upload"))
	parts = append(parts, FooterKeyStyle.Render("c")+FooterDescStyle.Render(" Clear"))
	if m.status.Paused {
		parts = append(parts, FooterKeyStyle.Render("p")+FooterDescStyle.Render(" Resume"))
	} else {
		parts = append(parts, FooterKeyStyle.Render("p")+FooterDescStyle.Render(" Pause"))
	}
	parts = append(parts, FooterKeyStyle.Render("q")+FooterDescStyle.Render(" Quit"))

	return strings.Join(parts, "  ")
}

// Helpers

func padRight(s string, width int) string {
	visible := lipgloss.Width(s)
	if visible >= width {
		return s
	}
	return s + strings.Repeat(" ", width-visible)
}

func truncateToWidth(s string, width int) string {
	if lipgloss.Width(s) <= width {
		return s
	}
	runes := []rune(s)
	if len(runes) > width-1 {
		return string(runes[:width-1]) + "…"
	}
	return s
}
