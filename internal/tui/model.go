// Package tui provides the Bubble Tea reading interface.
package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"

	"github.com/rliebert/reading-fluency-app/internal/attempt"
	"github.com/rliebert/reading-fluency-app/internal/capture"
	"github.com/rliebert/reading-fluency-app/internal/passage"
	"github.com/rliebert/reading-fluency-app/internal/scoring"
	"github.com/rliebert/reading-fluency-app/internal/simulate"
)

var (
	correctStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0"))
	incorrectStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	pendingStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	currentWordStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A")).Underline(true)
	footerStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	noticeStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A"))
	titleStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Bold(true)
	scoreStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#3AA876")).Bold(true)
	rewardStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD666")).Bold(true)
	trickyStyle      = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#F0F0F0")).
				Bold(true).
				Padding(1, 4).
				Border(lipgloss.RoundedBorder(), true).
				BorderForeground(lipgloss.Color("#C89A3A"))
)

type tickMsg struct {
	gen int
}

type captureMsg struct {
	ev capture.Event
}

type permissionMsg struct {
	state capture.PermissionState
}

// Config wires the reading UI.
type Config struct {
	Controller *attempt.Controller
	// Session is nil when live capture is not configured.
	Session *capture.Session
	// Gate is nil when consent is not tracked.
	Gate *capture.Gate
	// Simulate picks the profile for an on-demand simulated reading.
	Simulate func(attempt int) simulate.Profile
	Logger   zerolog.Logger
}

// Model implements the Bubble Tea reading UI.
type Model struct {
	ctx      context.Context
	ctl      *attempt.Controller
	session  *capture.Session
	gate     *capture.Gate
	simulate func(int) simulate.Profile
	log      zerolog.Logger

	keys     keyMap
	help     help.Model
	progress progress.Model

	width  int
	height int

	tickGen   int
	celebrate bool
	warning   string
	errMsg    string
}

// NewModel constructs a reading TUI model. ctx bounds capture work started from the UI.
func NewModel(ctx context.Context, cfg Config) *Model {
	profile := cfg.Simulate
	if profile == nil {
		profile = simulate.QuickTest
	}
	m := &Model{
		ctx:      ctx,
		ctl:      cfg.Controller,
		session:  cfg.Session,
		gate:     cfg.Gate,
		simulate: profile,
		log:      cfg.Logger,
		keys:     newKeyMap(),
		help:     help.New(),
		progress: progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
	}
	if m.gate != nil {
		m.warning = m.gate.Warning()
	}
	m.updateKeys()
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	var cmds []tea.Cmd
	if m.session != nil {
		cmds = append(cmds, waitForCapture(m.ctx, m.session))
	}
	if m.gate != nil {
		cmds = append(cmds, waitForPermission(m.ctx, m.gate))
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.progress.Width = max(10, min(60, msg.Width-16))
		m.help.Width = msg.Width
		return m, nil
	case tickMsg:
		return m, m.handleTick(msg)
	case captureMsg:
		m.session.Handle(m.ctx, msg.ev)
		return m, waitForCapture(m.ctx, m.session)
	case permissionMsg:
		m.warning = m.gate.Warning()
		m.log.Debug().Stringer("permission", msg.state).Msg("permission update")
		if m.session != nil && m.session.CheckPermission() {
			m.ctl.CheckCapture()
			m.updateKeys()
		}
		return m, waitForPermission(m.ctx, m.gate)
	case tea.KeyMsg:
		cmd := m.handleKey(msg)
		m.updateKeys()
		return m, cmd
	default:
		return m, nil
	}
}

func (m *Model) handleTick(msg tickMsg) tea.Cmd {
	if msg.gen != m.tickGen {
		return nil
	}
	if err := m.ctl.Tick(m.ctx); err != nil {
		m.fail("failed to finish reading", err)
	}
	st := m.ctl.State()
	if st.Phase == attempt.PhaseReading && !st.Paused {
		return m.tick()
	}
	m.afterFinish()
	m.updateKeys()
	return nil
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	if key.Matches(msg, m.keys.Quit) {
		m.ctl.Close()
		return tea.Quit
	}
	if key.Matches(msg, m.keys.Help) {
		m.help.ShowAll = !m.help.ShowAll
		return nil
	}
	st := m.ctl.State()
	switch st.Phase {
	case attempt.PhaseReady, attempt.PhaseReading:
		return m.handleReadingKey(msg, st)
	case attempt.PhaseRemediation:
		if key.Matches(msg, m.keys.Next) {
			m.clearError()
			if err := m.ctl.Acknowledge(); err != nil {
				m.fail("failed to continue", err)
			}
			m.afterFinish()
		}
	case attempt.PhaseResults:
		if key.Matches(msg, m.keys.Next) {
			m.clearError()
			if err := m.ctl.Advance(); err != nil {
				m.fail("failed to continue", err)
			}
			m.celebrate = false
		}
	case attempt.PhaseComplete:
		if key.Matches(msg, m.keys.Next) {
			m.ctl.Close()
			return tea.Quit
		}
	}
	return nil
}

func (m *Model) handleReadingKey(msg tea.KeyMsg, st attempt.State) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Start):
		if st.Phase == attempt.PhaseReading && !st.Paused {
			return nil
		}
		m.clearError()
		if err := m.ctl.Begin(m.ctx); err != nil {
			m.fail("failed to start reading", err)
			return nil
		}
		return m.tick()
	case key.Matches(msg, m.keys.Pause):
		m.ctl.Pause()
		m.tickGen++
	case key.Matches(msg, m.keys.Done):
		if st.Phase != attempt.PhaseReading {
			return nil
		}
		m.tickGen++
		if err := m.ctl.Done(m.ctx); err != nil {
			m.fail("failed to finish reading", err)
		}
		m.afterFinish()
	case key.Matches(msg, m.keys.Simulate):
		m.tickGen++
		if err := m.ctl.SimulateNow(m.ctx, m.simulate(st.Attempt)); err != nil {
			m.fail("failed to simulate reading", err)
		}
		m.afterFinish()
	case key.Matches(msg, m.keys.Reset):
		m.tickGen++
		m.ctl.Reset()
	case key.Matches(msg, m.keys.TestMode):
		if st.Phase == attempt.PhaseReady {
			m.ctl.SetTestMode(!m.ctl.TestMode())
		}
	case key.Matches(msg, m.keys.NextPage):
		m.ctl.NextSegment()
	case key.Matches(msg, m.keys.PrevPage):
		m.ctl.PrevSegment()
	}
	return nil
}

// afterFinish claims the improvement reward once results are on screen.
func (m *Model) afterFinish() {
	if m.ctl.State().Phase == attempt.PhaseResults && m.ctl.TakeReward() {
		m.celebrate = true
	}
}

func (m *Model) fail(what string, err error) {
	m.errMsg = what + ": " + err.Error()
	m.log.Error().Err(err).Msg(what)
}

func (m *Model) clearError() {
	m.errMsg = ""
}

func (m *Model) tick() tea.Cmd {
	m.tickGen++
	gen := m.tickGen
	return tea.Tick(time.Second, func(time.Time) tea.Msg {
		return tickMsg{gen: gen}
	})
}

func waitForCapture(ctx context.Context, session *capture.Session) tea.Cmd {
	return func() tea.Msg {
		select {
		case ev := <-session.Events():
			return captureMsg{ev: ev}
		case <-session.Done():
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

func waitForPermission(ctx context.Context, gate *capture.Gate) tea.Cmd {
	return func() tea.Msg {
		select {
		case state := <-gate.Changes():
			return permissionMsg{state: state}
		case <-ctx.Done():
			return nil
		}
	}
}

// View implements tea.Model.
func (m *Model) View() string {
	st := m.ctl.State()
	contentWidth := 72
	if m.width > 0 {
		contentWidth = max(1, min(contentWidth, int(float64(m.width)*0.70)))
	}

	var body string
	switch st.Phase {
	case attempt.PhaseRemediation:
		body = m.renderRemediation()
	case attempt.PhaseResults:
		body = m.renderResults(st)
	case attempt.PhaseComplete:
		body = m.renderComplete()
	default:
		body = m.renderReading(st, contentWidth)
	}

	parts := []string{m.renderHeader(st), "", body}
	if notices := m.renderNotices(st); notices != "" {
		parts = append(parts, "", notices)
	}
	content := lipgloss.NewStyle().Width(contentWidth).Render(strings.Join(parts, "\n"))
	footer := m.renderFooter() + "\n" + m.help.View(m.keys)
	if m.width == 0 || m.height == 0 {
		return content + "\n\n" + footer
	}
	footerHeight := lipgloss.Height(footer)
	if m.height <= footerHeight+1 {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, content)
	}
	body = lipgloss.Place(m.width, m.height-footerHeight, lipgloss.Center, lipgloss.Center, content)
	return body + "\n" + lipgloss.PlaceHorizontal(m.width, lipgloss.Center, footer)
}

func (m *Model) renderHeader(st attempt.State) string {
	p := m.ctl.Passage()
	title := fmt.Sprintf("Passage %d of %d", st.PassageIndex+1, m.ctl.Library().Len())
	if p.Level() != "" {
		title += " · " + p.Level()
	}
	title += fmt.Sprintf(" · Attempt %d of %d", st.Attempt, attempt.MaxAttempts)
	if m.ctl.TestMode() {
		title += " · TEST MODE"
	}
	return titleStyle.Render(title)
}

func (m *Model) renderReading(st attempt.State, width int) string {
	p := m.ctl.Passage()
	marks := []scoring.Mark(nil)
	current := -1
	if st.Phase == attempt.PhaseReading && st.Mode == attempt.ModeLive {
		marks = scoring.Marks(st.Transcript, p)
		current = len(passage.Tokenize(st.Transcript))
	}
	runes := buildStyledRunes(p.Segment(st.Segment), marks, p.SegmentOffset(st.Segment), current)
	lines := []string{wrapStyledRunes(runes, width)}
	if p.SegmentCount() > 1 {
		lines = append(lines, "", footerStyle.Render(fmt.Sprintf("Page %d of %d", st.Segment+1, p.SegmentCount())))
	}
	lines = append(lines, "")

	switch {
	case st.Phase == attempt.PhaseReady:
		lines = append(lines, "Press enter to start reading.")
	case st.Paused:
		lines = append(lines, m.renderTimer(st), "Paused. Press enter to keep reading.")
	default:
		status := "Reading..."
		if st.Mode == attempt.ModeLive {
			status = "Listening..."
		}
		lines = append(lines, m.renderTimer(st), status+" Press d when you are done.")
		if st.Mode == attempt.ModeLive && st.Transcript != "" {
			lines = append(lines, footerStyle.Render("Heard: "+tail(st.Transcript, max(width-7, 10))))
		}
	}
	return strings.Join(lines, "\n")
}

// tail keeps the last n runes of s.
func tail(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return "…" + string(runes[len(runes)-n+1:])
}

func (m *Model) renderTimer(st attempt.State) string {
	total := int(m.ctl.Duration() / time.Second)
	ratio := 0.0
	if total > 0 {
		ratio = float64(st.TimeLeft) / float64(total)
	}
	return m.progress.ViewAs(ratio) + " " + strconv.Itoa(st.TimeLeft) + "s"
}

func (m *Model) renderRemediation() string {
	word, idx, total, ok := m.ctl.RemediationWord()
	if !ok {
		return ""
	}
	return strings.Join([]string{
		fmt.Sprintf("Tricky word %d of %d", idx+1, total),
		"",
		trickyStyle.Render(word),
		"",
		"Say the word out loud, then press enter.",
	}, "\n")
}

func (m *Model) renderResults(st attempt.State) string {
	lines := []string{}
	if st.LastResult != nil {
		lines = append(lines, scoreStyle.Render(fmt.Sprintf("%d words correct per minute", st.LastResult.Score)))
	}
	lines = append(lines, m.ctl.Encouragement())
	if gain := attempt.Improvement(st.Scores); gain > 0 {
		lines = append(lines, fmt.Sprintf("+%d words from last attempt!", gain))
	}
	if m.celebrate {
		lines = append(lines, "", rewardStyle.Render("★ ★ ★  You beat your last score!  ★ ★ ★"))
	}
	lines = append(lines, "", "Scores: "+joinScores(st.Scores))
	if st.LastResult != nil {
		if len(st.LastResult.Errors) == 0 {
			lines = append(lines, "No tricky words. Great reading!")
		} else {
			lines = append(lines, "Tricky words: "+strings.Join(st.LastResult.Errors, ", "))
		}
	}
	lines = append(lines, "", m.nextPrompt(st))
	return strings.Join(lines, "\n")
}

func (m *Model) nextPrompt(st attempt.State) string {
	switch {
	case st.Attempt < attempt.MaxAttempts:
		return "Press enter to read it again."
	case st.PassageIndex+1 < m.ctl.Library().Len():
		return "Press enter for the next passage."
	default:
		return "Press enter to finish."
	}
}

func (m *Model) renderComplete() string {
	return strings.Join([]string{
		rewardStyle.Render("You finished every passage!"),
		"Great reading today.",
		"",
		"Press enter or q to quit.",
	}, "\n")
}

func (m *Model) renderNotices(st attempt.State) string {
	var lines []string
	if st.Notice != "" {
		lines = append(lines, noticeStyle.Render(st.Notice))
	}
	if m.warning != "" && !m.ctl.TestMode() {
		lines = append(lines, noticeStyle.Render(m.warning))
	}
	if m.errMsg != "" {
		lines = append(lines, incorrectStyle.Render(m.errMsg))
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderFooter() string {
	st := m.ctl.State()
	segments := []string{
		fmt.Sprintf("Passage %d/%d", st.PassageIndex+1, m.ctl.Library().Len()),
		fmt.Sprintf("Attempt %d/%d", st.Attempt, attempt.MaxAttempts),
	}
	if len(st.Scores) > 0 {
		segments = append(segments, "Scores "+joinScores(st.Scores))
	}
	mode := string(attempt.ModeLive)
	switch {
	case st.Mode != "":
		mode = string(st.Mode)
	case m.ctl.TestMode() || m.session == nil:
		mode = string(attempt.ModeSimulated)
	}
	segments = append(segments, "Mode "+mode)
	return footerStyle.Render(strings.Join(segments, "  "))
}

func joinScores(scores []int) string {
	parts := make([]string, 0, len(scores))
	for _, s := range scores {
		parts = append(parts, strconv.Itoa(s))
	}
	return strings.Join(parts, " → ")
}
