package main

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/gwillem/ev3arm/pkg/control"
	"github.com/gwillem/ev3arm/pkg/motion"
	"github.com/gwillem/ev3arm/pkg/robot"
)

const (
	headerHeight = 3 // title + position line + blank line
	legendHeight = 2 // legend row + blank
	footerHeight = 7 // log box height
	maxLogs      = 5 // number of log messages to show
	borderSize   = 2 // chart border
)

// Joint colors - distinct colors for each motor
var motorColors = map[robot.MotorName]string{
	robot.Base:     "196", // red
	robot.Shoulder: "208", // orange
	robot.Elbow:    "46",  // green
	robot.Claw:     "201", // magenta
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type monitorModel struct {
	name     string
	ctrl     *control.Controller
	chart    *streamlinechart.Model
	width    int           // terminal width
	height   int           // terminal height
	logs     []string      // last N log messages
	status   control.Status
	done     *motionResult // set once the motion finished
	quitting bool
}

type motionResult struct {
	report motion.Report
	err    error
}

func (m *monitorModel) addLog(msg string) {
	m.logs = append(m.logs, msg)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

// Messages from the controller
type statusMsg control.Status
type logMsg string
type doneMsg motionResult

func waitForStatus(ctrl *control.Controller) tea.Cmd {
	return func() tea.Msg {
		return statusMsg(<-ctrl.States())
	}
}

func waitForLog(ctrl *control.Controller) tea.Cmd {
	return func() tea.Msg {
		return logMsg(<-ctrl.Logs())
	}
}

// chartSize calculates the size of the chart based on terminal dimensions
func (m *monitorModel) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 20 // default size before we know terminal size
	}
	width = m.width - borderSize - 2
	if width < 40 {
		width = 40
	}
	height = m.height - headerHeight - legendHeight - footerHeight - borderSize
	if height < 10 {
		height = 10
	}
	return width, height
}

func (m *monitorModel) resizeChart() {
	w, h := m.chartSize()
	m.chart.Resize(w, h)
}

func newMonitorModel(name string, ctrl *control.Controller) monitorModel {
	chart := streamlinechart.New(80, 20,
		streamlinechart.WithYRange(-180, 180),
	)

	// Set up data set styles for each joint
	for _, name := range robot.AllMotors() {
		color := motorColors[name]
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(color))
		chart.SetDataSetStyles(string(name), runes.ThinLineStyle, style)
	}

	return monitorModel{
		name:  name,
		ctrl:  ctrl,
		chart: &chart,
	}
}

func (m monitorModel) Init() tea.Cmd {
	// Start listening for state and log updates
	return tea.Batch(
		waitForStatus(m.ctrl),
		waitForLog(m.ctrl),
	)
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeChart()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case statusMsg:
		m.status = control.Status(msg)
		// Only extend the chart while moving (freeze when idle)
		if m.status.Moving {
			frame := motion.Command{Joints: m.status.Joints, Claw: m.status.Claw}.Frame()
			for i, name := range robot.AllMotors() {
				m.chart.PushDataSet(string(name), frame[i])
			}
			m.chart.DrawAll()
		}
		return m, waitForStatus(m.ctrl)

	case logMsg:
		m.addLog(string(msg))
		return m, waitForLog(m.ctrl)

	case doneMsg:
		result := motionResult(msg)
		m.done = &result
		return m, tea.Quit
	}

	return m, nil
}

func (m monitorModel) View() string {
	if m.quitting || m.done != nil {
		return ""
	}

	var sb strings.Builder

	// Header
	sb.WriteString(titleStyle.Render("ev3arm " + m.name))
	sb.WriteString(fmt.Sprintf(" - %d Hz", m.ctrl.Hz()))
	if m.width > 0 {
		sb.WriteString(statusStyle.Render(fmt.Sprintf("  [%dx%d]", m.width, m.height)))
	}
	sb.WriteString("\n")
	p := m.status.Position
	state := "idle"
	if m.status.Moving {
		state = "moving"
	}
	sb.WriteString(statusStyle.Render(fmt.Sprintf("(%.1f, %.1f, %.1f) %s", p.X, p.Y, p.Z, state)))
	sb.WriteString("\n\n")

	// Chart
	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")

	// Legend
	sb.WriteString(renderLegend())
	sb.WriteString("\n")

	// Log box
	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(max(m.width-4, 20))

	var logLines string
	if len(m.logs) == 0 {
		logLines = statusStyle.Render("Press 'q' to close the monitor; the motion always completes")
	} else {
		logLines = strings.Join(m.logs, "\n")
	}
	sb.WriteString(logStyle.Render(logLines))
	sb.WriteString("\n")

	return sb.String()
}

func renderLegend() string {
	var items []string
	for _, name := range robot.AllMotors() {
		color := motorColors[name]
		colorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Bold(true)
		item := colorStyle.Render("━━") + " " + string(name)
		items = append(items, item)
	}
	return strings.Join(items, "  ")
}

// runMonitor runs fn in the background while the TUI charts the joint state. Closing the TUI
// early does not stop the motion; the command still waits for it.
func runMonitor(ctx context.Context, name string, ctrl *control.Controller, fn motionFunc) error {
	statusCtx, stopStatus := context.WithCancel(ctx)
	defer stopStatus()
	go func() {
		_ = ctrl.Start(statusCtx)
	}()

	p := tea.NewProgram(newMonitorModel(name, ctrl), tea.WithAltScreen())
	results := make(chan motionResult, 1)
	go func() {
		report, err := fn(ctx, ctrl)
		results <- motionResult{report: report, err: err}
		p.Send(doneMsg{report: report, err: err})
	}()

	if _, err := p.Run(); err != nil {
		return err
	}

	result := <-results
	if result.err != nil {
		return result.err
	}
	printReport(ctrl, result.report)
	return nil
}
