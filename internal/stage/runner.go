package stage

import (
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/DenDanskeSamler/scraperd/internal/env"
)

// SentinelExitCode is recorded when a stage could not be launched or did not
// exit on its own (timeout kill). It keeps launch failures inside the result
// so the cycle can continue with the remaining stages.
const SentinelExitCode = -1

// Result is the outcome of one stage run within a cycle.
type Result struct {
	Name      string        `json:"name"`
	ExitCode  int           `json:"exit_code"`
	Duration  time.Duration `json:"duration"`
	StartedAt time.Time     `json:"started_at"`
	TimedOut  bool          `json:"timed_out,omitempty"`
	Err       error         `json:"-"` // launch or wait error, for logging only
}

// Failed reports whether the stage should be counted as a failure.
func (r Result) Failed() bool { return r.ExitCode != 0 }

// Runner executes one stage at a time, to completion. It owns no policy:
// exit codes are recorded, never interpreted, and it does not retry.
type Runner struct {
	env    *env.Env
	logger *slog.Logger
}

func NewRunner(e *env.Env, lg *slog.Logger) *Runner {
	if e == nil {
		e = env.New()
	}
	if lg == nil {
		lg = slog.Default()
	}
	return &Runner{env: e, logger: lg}
}

// Run launches the stage's program and waits for it to terminate. A launch
// failure is returned as a Result with SentinelExitCode, not as an error.
// Once started the child always runs to completion, unless its configured
// Timeout elapses, in which case the process group is killed.
func (r *Runner) Run(spec Spec) Result {
	res := Result{Name: spec.Name, StartedAt: time.Now()}

	cmd := spec.BuildCommand()
	if spec.WorkDir != "" {
		cmd.Dir = spec.WorkDir
	}
	cmd.Env = r.env.Merge(spec.Env)
	setSysProcAttr(cmd)

	outW, errW, _ := spec.Log.Writers(spec.Name)
	if spec.Log.Dir != "" {
		_ = os.MkdirAll(spec.Log.Dir, 0o750)
	}
	if outW != nil {
		cmd.Stdout = outW
		defer func() { _ = outW.Close() }()
	} else {
		null, _ := os.OpenFile(os.DevNull, os.O_RDWR, 0)
		cmd.Stdout = null
		defer func() { _ = null.Close() }()
	}
	if errW != nil {
		cmd.Stderr = errW
		defer func() { _ = errW.Close() }()
	} else {
		null, _ := os.OpenFile(os.DevNull, os.O_RDWR, 0)
		cmd.Stderr = null
		defer func() { _ = null.Close() }()
	}

	if err := cmd.Start(); err != nil {
		res.ExitCode = SentinelExitCode
		res.Err = err
		res.Duration = time.Since(res.StartedAt)
		r.logger.Error("stage failed to launch", "stage", spec.Name, "error", err)
		return res
	}
	r.logger.Info("stage started", "stage", spec.Name, "pid", cmd.Process.Pid)

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var timeout <-chan time.Time
	if spec.Timeout > 0 {
		tm := time.NewTimer(spec.Timeout)
		defer tm.Stop()
		timeout = tm.C
	}

	select {
	case err := <-done:
		res.ExitCode = exitCodeOf(cmd, err)
		res.Err = err
	case <-timeout:
		killTree(cmd)
		<-done // reap
		res.ExitCode = SentinelExitCode
		res.TimedOut = true
		r.logger.Warn("stage timed out", "stage", spec.Name, "timeout", spec.Timeout)
	}
	res.Duration = time.Since(res.StartedAt)
	r.logger.Info("stage finished", "stage", spec.Name,
		"exit_code", res.ExitCode, "duration", res.Duration)
	return res
}

func exitCodeOf(cmd *exec.Cmd, err error) int {
	if err == nil {
		return 0
	}
	if cmd.ProcessState != nil {
		if code := cmd.ProcessState.ExitCode(); code >= 0 {
			return code
		}
	}
	// Killed by signal or otherwise unknown.
	return SentinelExitCode
}
