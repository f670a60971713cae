package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/hipsterbrown/feetech-servo/feetech"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.bug.st/serial"

	"github.com/gwillem/ev3arm/pkg/robot"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	subHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// minUsefulRange is the raw travel below which a recorded range is shown as suspect.
const minUsefulRange = 500

type SetupCommand struct{}

func (c *SetupCommand) Execute(args []string) error {
	fmt.Println(headerStyle.Render("ev3arm Setup"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━"))
	fmt.Println()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Step 1: Find the servo bus
	port, err := choosePort(findArms())
	if err != nil {
		return err
	}
	cfg.Node.Port = port

	// Step 2: Calibrate
	fmt.Println()
	fmt.Println(subHeaderStyle.Render("━━━ Calibrating Arm ━━━"))
	fmt.Println()
	cal, err := calibrateArm(cfg.Node)
	if err != nil {
		return err
	}
	cfg.Node.Calibration = cal

	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.SaveTo(opts.Config); err != nil {
		return errors.Wrap(err, "save config")
	}

	fmt.Println()
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"))
	fmt.Println(successStyle.Render("Setup complete!"))
	fmt.Printf("Configuration saved to %s\n", opts.Config)
	fmt.Println()
	fmt.Println("Start the actuator node with: " + headerStyle.Render("ev3arm node"))
	return nil
}

type armInfo struct {
	port   string
	servos []feetech.FoundServo
}

// candidatePorts drops ports that never carry a servo bus.
func candidatePorts(ports []string) []string {
	return lo.Filter(ports, func(port string, _ int) bool {
		return !strings.Contains(port, "Bluetooth")
	})
}

func findArms() []armInfo {
	fmt.Println("Scanning for the servo bus...")
	fmt.Println()

	ports, err := serial.GetPortsList()
	if err != nil {
		fmt.Printf("Error listing ports: %v\n", err)
		return nil
	}

	var arms []armInfo
	for _, port := range candidatePorts(ports) {
		bus, servos, err := connectToArm(port, robot.DefaultBaudRate)
		if err != nil {
			continue
		}
		bus.Close()
		fmt.Printf("  Found arm on %s\n", port)
		arms = append(arms, armInfo{port: port, servos: servos})
	}
	return arms
}

func choosePort(arms []armInfo) (string, error) {
	switch len(arms) {
	case 0:
		return "", errors.New("no arm found; check the servo bus is connected and powered on")
	case 1:
		return arms[0].port, nil
	}

	options := lo.Map(arms, func(a armInfo, _ int) huh.Option[string] {
		return huh.NewOption(a.port, a.port)
	})
	var port string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Which port is the arm on?").
				Options(options...).
				Value(&port),
		),
	)
	if err := form.Run(); err != nil {
		return "", err
	}
	return port, nil
}

// isEV3Arm reports whether servos holds exactly the four IDs the arm uses.
func isEV3Arm(servos []feetech.FoundServo) bool {
	ids := lo.Map(servos, func(s feetech.FoundServo, _ int) int { return s.ID })
	return len(ids) == len(robot.AllMotors()) &&
		lo.Every(ids, robot.DefaultCalibration().MotorIDs())
}

func connectToArm(port string, baudRate int) (*feetech.Bus, []feetech.FoundServo, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if baudRate == 0 {
		baudRate = robot.DefaultBaudRate
	}
	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: baudRate,
		Protocol: feetech.ProtocolSTS,
		Timeout:  100 * time.Millisecond,
	})
	if err != nil {
		return nil, nil, err
	}

	servos, err := bus.Scan(ctx, 1, len(robot.AllMotors()))
	if err != nil {
		bus.Close()
		return nil, nil, err
	}
	if !isEV3Arm(servos) {
		bus.Close()
		return nil, nil, errors.Errorf("not an ev3arm bus (expected %d servos with IDs 1-%d)", len(robot.AllMotors()), len(robot.AllMotors()))
	}
	return bus, servos, nil
}

// calibrateArm records the homing offsets at the home pose, then the range of every joint.
// Mounting direction and gearing are kept from the existing calibration.
func calibrateArm(node robot.NodeConfig) (robot.Calibration, error) {
	fmt.Printf("Calibrating arm on %s\n", node.Port)
	fmt.Println()

	bus, servos, err := connectToArm(node.Port, node.BaudRate)
	if err != nil {
		return nil, errors.Wrap(err, "connect to arm")
	}
	defer bus.Close()

	servoMap := make(map[int]*feetech.Servo)
	for _, s := range servos {
		servoMap[s.ID] = feetech.NewServo(bus, s.ID, s.Model)
	}

	// Disable all servos so user can move arm freely
	ctx := context.Background()
	for _, servo := range servoMap {
		servo.Disable(ctx)
	}

	base := node.Calibration
	if len(base) == 0 {
		base = robot.DefaultCalibration()
	}
	motors := robot.AllMotors()
	servoFor := func(name robot.MotorName) *feetech.Servo {
		return servoMap[base[name].ID]
	}

	// Homing offsets are the raw positions at the home pose
	fmt.Println(subHeaderStyle.Render("Home pose"))
	if err := waitForUser("Move the arm to its home pose, with every joint at zero and the claw closed."); err != nil {
		return nil, err
	}
	offsets := make(map[robot.MotorName]int, len(motors))
	for _, name := range motors {
		pos, err := servoFor(name).Position(ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "read %s position", name)
		}
		offsets[name] = pos
	}

	// Record min/max by tracking while user moves arm
	fmt.Println()
	fmt.Println(subHeaderStyle.Render("Record range of motion"))
	fmt.Println("Move each joint to its minimum AND maximum positions.")
	fmt.Println()

	curPositions := make(map[robot.MotorName]int)
	minPositions := make(map[robot.MotorName]int)
	maxPositions := make(map[robot.MotorName]int)
	for _, name := range motors {
		curPositions[name] = offsets[name]
		minPositions[name] = offsets[name]
		maxPositions[name] = offsets[name]
	}

	model := newCalibrationModel(motors, servoFor, curPositions, minPositions, maxPositions)
	finalModel, err := tea.NewProgram(model).Run()
	if err != nil {
		return nil, errors.Wrap(err, "run calibration")
	}
	cm := finalModel.(calibrationModel)

	calibration := make(robot.Calibration, len(motors))
	for _, name := range motors {
		mc := base[name]
		mc.HomingOffset = offsets[name]
		mc.RangeMin = cm.minPositions[name]
		mc.RangeMax = cm.maxPositions[name]
		calibration[name] = mc
	}

	fmt.Println()
	fmt.Println("Arm calibrated.")
	return calibration, nil
}

func waitForUser(prompt string) error {
	fmt.Println(prompt)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("").
				Affirmative("Continue").
				Negative("").
				Value(new(bool)),
		),
	)
	return form.Run()
}

// Calibration TUI model
type calibrationModel struct {
	motors       []robot.MotorName
	servo        func(robot.MotorName) *feetech.Servo
	curPositions map[robot.MotorName]int
	minPositions map[robot.MotorName]int
	maxPositions map[robot.MotorName]int
	quitting     bool
}

type tickMsg time.Time

func newCalibrationModel(
	motors []robot.MotorName,
	servo func(robot.MotorName) *feetech.Servo,
	curPositions, minPositions, maxPositions map[robot.MotorName]int,
) calibrationModel {
	return calibrationModel{
		motors:       motors,
		servo:        servo,
		curPositions: curPositions,
		minPositions: minPositions,
		maxPositions: maxPositions,
	}
}

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m calibrationModel) Init() tea.Cmd {
	return tick()
}

// record folds one position reading into the tracked range.
func (m calibrationModel) record(name robot.MotorName, pos int) {
	m.curPositions[name] = pos
	m.minPositions[name] = min(m.minPositions[name], pos)
	m.maxPositions[name] = max(m.maxPositions[name], pos)
}

func (m calibrationModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "enter", "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		ctx := context.Background()
		for _, name := range m.motors {
			pos, err := m.servo(name).Position(ctx)
			if err != nil {
				continue
			}
			m.record(name, pos)
		}
		return m, tick()
	}

	return m, nil
}

func (m calibrationModel) View() string {
	if m.quitting {
		return ""
	}

	var sb strings.Builder

	tableHeaderStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	tableMotorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Padding(0, 1)
	tableCellStyle := lipgloss.NewStyle().Padding(0, 1)
	tableCurrentStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Padding(0, 1)
	tableRangeGoodStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Padding(0, 1)
	tableRangeLowStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Padding(0, 1)

	rows := make([][]string, 0, len(m.motors))
	ranges := make([]int, 0, len(m.motors))
	for _, name := range m.motors {
		rangeSize := m.maxPositions[name] - m.minPositions[name]
		ranges = append(ranges, rangeSize)
		rows = append(rows, []string{
			string(name),
			fmt.Sprintf("%d", m.curPositions[name]),
			fmt.Sprintf("%d", m.minPositions[name]),
			fmt.Sprintf("%d", m.maxPositions[name]),
			fmt.Sprintf("%d", rangeSize),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Motor", "Current", "Min", "Max", "Range").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			switch col {
			case 0:
				return tableMotorStyle
			case 1:
				return tableCurrentStyle
			case 4:
				if row >= 0 && row < len(ranges) && ranges[row] > minUsefulRange {
					return tableRangeGoodStyle
				}
				return tableRangeLowStyle
			default:
				return tableCellStyle
			}
		})

	sb.WriteString(t.Render())
	sb.WriteString("\n\n")
	sb.WriteString(dimStyle.Render("Press Enter when done"))

	return sb.String()
}
