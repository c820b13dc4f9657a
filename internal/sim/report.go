package sim

import (
	"time"

	"github.com/yndnr/libos-go/internal/core/domain"
	"github.com/yndnr/libos-go/internal/core/exit"
	"github.com/yndnr/libos-go/internal/host"
	"github.com/yndnr/libos-go/internal/libos"
)

// Report is the outcome of one scenario run.
type Report struct {
	Scenario  string          `json:"scenario" yaml:"scenario"`
	Processes []ProcessReport `json:"processes" yaml:"processes"`
	Parent    *ParentReport   `json:"parent,omitempty" yaml:"parent,omitempty"`
	Records   int             `json:"records" yaml:"records"`
	Duration  time.Duration   `json:"duration" yaml:"duration"`
}

// ProcessReport describes one LibOS process after the run.
type ProcessReport struct {
	PID         int32  `json:"pid" yaml:"pid"`
	Threads     int    `json:"threads" yaml:"threads"`
	Exited      bool   `json:"exited" yaml:"exited"`
	ExitCode    int    `json:"exit_code" yaml:"exit_code"`
	State       string `json:"state" yaml:"state"`
	LiveThreads int    `json:"live_threads" yaml:"live_threads"`

	Terminated    map[string]float64 `json:"terminated" yaml:"terminated"`
	Duplicates    float64            `json:"duplicates" yaml:"duplicates"`
	Notifications map[string]float64 `json:"notifications" yaml:"notifications"`
	Sigchld       float64            `json:"sigchld" yaml:"sigchld"`
	Released      map[string]int     `json:"released" yaml:"released"`
	Outcomes      map[string]float64 `json:"outcomes" yaml:"outcomes"`
}

// ParentReport is what the observing parent thread saw.
type ParentReport struct {
	TID     int32            `json:"tid" yaml:"tid"`
	Exited  []int32          `json:"exited_children" yaml:"exited_children"`
	Pending []domain.Siginfo `json:"pending" yaml:"pending"`
	Pulses  uint64           `json:"child_exit_pulses" yaml:"child_exit_pulses"`
}

func parentReport(t *domain.Thread) *ParentReport {
	r := &ParentReport{
		TID:     t.TID,
		Pending: t.Pending(),
		Pulses:  t.ChildExitEvent.Count(),
	}
	for _, c := range t.ExitedChildren() {
		r.Exited = append(r.Exited, c.TID)
	}
	return r
}

func processReport(p *process) (ProcessReport, error) {
	k := p.kernel
	r := ProcessReport{
		PID:         k.PID(),
		Threads:     p.threads,
		State:       k.Process().State().String(),
		LiveThreads: k.Process().LiveThreads(),
		Released:    make(map[string]int),
	}
	r.ExitCode, r.Exited = p.host.ExitCode()

	m := k.Metrics()
	var err error
	if r.Terminated, err = m.CounterValues("threads_terminated_total", "path"); err != nil {
		return r, err
	}
	if r.Notifications, err = m.CounterValues("remote_notifications_total", "reason"); err != nil {
		return r, err
	}
	if r.Outcomes, err = m.CounterValues("process_exits_total", "outcome"); err != nil {
		return r, err
	}
	dup, err := m.CounterValues("duplicate_terminations_total", "")
	if err != nil {
		return r, err
	}
	r.Duplicates = dup[""]
	sigchld, err := m.CounterValues("sigchld_enqueued_total", "")
	if err != nil {
		return r, err
	}
	r.Sigchld = sigchld[""]

	for _, kind := range []string{exit.KindHandleMap, exit.KindExec, exit.KindRobustList, exit.KindClearChildTID} {
		r.Released[kind] = k.Releaser().Count(kind)
	}
	return r, nil
}

type process struct {
	kernel  *libos.Kernel
	host    *host.Goroutine
	threads int
}

func (p *process) thread(spec libos.ThreadSpec) *domain.Thread {
	p.threads++
	return p.kernel.NewThread(spec)
}
