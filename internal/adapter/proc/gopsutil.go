package proc

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shirou/gopsutil/v4/process"

	"procmux/internal/domain"
)

// killGrace is how long terminated processes get before a hard kill.
const killGrace = 5 * time.Second

// Controller answers process liveness questions and terminates backend
// process trees.
type Controller struct {
	logger domain.Logger
}

// NewController creates a process controller.
func NewController(logger domain.Logger) *Controller {
	return &Controller{logger: logger}
}

// Exists reports whether a process with the given string id is alive.
// Unparseable ids count as not alive.
func (c *Controller) Exists(pid string) bool {
	n, err := strconv.Atoi(pid)
	if err != nil {
		return false
	}
	ok, err := process.PidExists(int32(n))
	if err != nil {
		c.logger.Debug("pid existence check failed", "pid", pid, "err", err)
		return false
	}
	return ok
}

// Terminate stops the process and any children it spawned: children are
// terminated first, given a grace period, then killed along with the main
// process. An already-gone process is not an error.
func (c *Controller) Terminate(pid int) error {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		// Process is already gone.
		c.logger.Debug("process not found during terminate", "pid", pid, "err", err)
		return nil
	}

	children := descendants(p)
	for _, child := range children {
		if err := child.Terminate(); err != nil {
			c.logger.Debug("terminate child failed", "pid", child.Pid, "err", err)
		}
	}
	waitGone(children, killGrace)
	for _, child := range children {
		if running, _ := child.IsRunning(); running {
			if err := child.Kill(); err != nil {
				c.logger.Debug("kill child failed", "pid", child.Pid, "err", err)
			}
		}
	}

	if err := p.Kill(); err != nil {
		return fmt.Errorf("kill process %d: %w", pid, err)
	}
	c.logger.Debug("killed backend process", "pid", pid)
	return nil
}

// descendants collects the full child tree of p, depth first.
func descendants(p *process.Process) []*process.Process {
	var out []*process.Process
	children, err := p.Children()
	if err != nil {
		return out
	}
	for _, child := range children {
		out = append(out, descendants(child)...)
		out = append(out, child)
	}
	return out
}

// waitGone polls until every process has exited or the grace period runs
// out.
func waitGone(procs []*process.Process, grace time.Duration) {
	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		anyRunning := false
		for _, p := range procs {
			if running, _ := p.IsRunning(); running {
				anyRunning = true
				break
			}
		}
		if !anyRunning {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
}
