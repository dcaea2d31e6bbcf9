package viz

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/snoopython/wradex/internal/grid"
	"github.com/snoopython/wradex/internal/solver"
	"github.com/snoopython/wradex/internal/sweep"
)

const (
	barWidth      = 40
	sparkWidth    = 40
	frameInterval = 100 * time.Millisecond
)

type cellMsg struct {
	cell  grid.Cell
	rec   solver.Record
	done  int
	total int
}

type doneMsg struct{ err error }

type tickMsg time.Time

// ProgressModel follows a sweep. watch names the output traced in the
// sparkline.
type ProgressModel struct {
	title    string
	watch    string
	total    int
	done     int
	failed   int
	last     grid.Cell
	trace    []float64
	frame    int
	start    time.Time
	finished bool
	canceled bool
	err      error
}

func NewProgressModel(title, watch string, total int) ProgressModel {
	return ProgressModel{
		title: title,
		watch: watch,
		total: total,
		start: time.Now(),
	}
}

func tick() tea.Cmd {
	return tea.Tick(frameInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m ProgressModel) Init() tea.Cmd { return tick() }

func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.canceled = true
			return m, tea.Quit
		}
	case cellMsg:
		m.done = msg.done
		m.total = msg.total
		m.last = msg.cell
		for _, v := range msg.rec {
			if math.IsNaN(v) {
				m.failed++
				break
			}
		}
		if m.watch != "" {
			v, ok := msg.rec[m.watch]
			if !ok {
				v = math.NaN()
			}
			m.trace = append(m.trace, v)
		}
	case doneMsg:
		m.finished = true
		m.err = msg.err
		return m, tea.Quit
	case tickMsg:
		m.frame++
		return m, tick()
	}
	return m, nil
}

func (m ProgressModel) View() string {
	var b strings.Builder

	status := StatusOK.Render(Spinner(m.frame) + " running")
	switch {
	case m.err != nil:
		status = StatusError.Render("✗ failed")
	case m.canceled:
		status = StatusWarn.Render("■ canceled")
	case m.finished:
		status = StatusOK.Render("✓ done")
	}
	b.WriteString(Title.Render(m.title) + "  " + status + "\n\n")

	fraction := 0.0
	if m.total > 0 {
		fraction = float64(m.done) / float64(m.total)
	}
	fmt.Fprintf(&b, "%s %s\n", ProgressBar(fraction, barWidth),
		Value.Render(fmt.Sprintf("%d/%d", m.done, m.total)))

	elapsed := time.Since(m.start).Round(100 * time.Millisecond)
	line := Label.Render("elapsed ") + Value.Render(elapsed.String())
	if m.failed > 0 {
		line += "  " + StatusWarn.Render(fmt.Sprintf("%d NaN cells", m.failed))
	}
	b.WriteString(line + "\n")

	if len(m.last.Values) > 0 {
		b.WriteString(Subtle.Render("cell "+formatCell(m.last)) + "\n")
	}
	if m.watch != "" && len(m.trace) > 0 {
		b.WriteString(Label.Render(m.watch+" ") + Sparkline(m.trace, sparkWidth) + "\n")
	}
	if !m.finished && !m.canceled {
		b.WriteString(Subtle.Render("q: cancel") + "\n")
	}
	return b.String()
}

// Done reports how many cells finished and how many held NaN.
func (m ProgressModel) Done() (done, failed int) { return m.done, m.failed }

func formatCell(c grid.Cell) string {
	names := make([]string, 0, len(c.Values))
	for name := range c.Values {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s=%g", name, c.Values[name])
	}
	return fmt.Sprintf("%v %s", c.Index, strings.Join(parts, " "))
}

// RunWithProgress runs fn while showing a progress view. fn receives an
// observer to register with the sweep. Quitting the view cancels the
// context passed to fn.
func RunWithProgress(ctx context.Context, title, watch string, total int,
	fn func(context.Context, sweep.Observer) error, opts ...tea.ProgramOption) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewProgressModel(title, watch, total), opts...)
	obs := sweep.ObserverFunc(func(cell grid.Cell, rec solver.Record, done, total int) {
		p.Send(cellMsg{cell: cell, rec: rec, done: done, total: total})
	})

	errCh := make(chan error, 1)
	go func() {
		err := fn(ctx, obs)
		p.Send(doneMsg{err: err})
		errCh <- err
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		<-errCh
		return err
	}
	cancel()
	return <-errCh
}
