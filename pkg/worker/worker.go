// Package worker spawns and supervises the external search worker process.
//
// The worker is an opaque collaborator: it is started with a fixed command
// template, watched until it exits, and torn down cooperatively first and
// forcibly afterwards. At most one worker is alive at a time.
package worker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// State is the lifecycle state of the managed process handle.
type State string

const (
	StateNotStarted  State = "not_started"
	StateRunning     State = "running"
	StateTerminating State = "terminating"
	StateExited      State = "exited"
)

// Sentinel errors for lifecycle operations.
var (
	// ErrAlreadyRunning indicates a second spawn while a handle is active.
	ErrAlreadyRunning = errors.New("worker already running")

	// ErrNotRunning indicates there is no live process to operate on.
	ErrNotRunning = errors.New("no worker process is running")
)

// KillGracePeriod is how long a cancelled worker gets to honor the polite
// cancel message before the forced kill fires.
const KillGracePeriod = 2 * time.Second

// cancelMessage is written to the worker's stdin on cancellation. Delivery is
// best-effort; the forced kill is scheduled regardless.
const cancelMessage = `{"type":"cancel"}` + "\n"

// Config describes the fixed command template for the worker.
type Config struct {
	// Python is the interpreter binary (default "python3").
	Python string
	// Script is the worker entry script path.
	Script string
	// Dir is the fixed working directory the worker runs in.
	Dir string
	// ProcessName is the pattern used for kill-by-name fallback. Defaults to
	// the script path.
	ProcessName string
}

func (c Config) python() string {
	if strings.TrimSpace(c.Python) == "" {
		return "python3"
	}
	return c.Python
}

func (c Config) processName() string {
	if strings.TrimSpace(c.ProcessName) != "" {
		return c.ProcessName
	}
	return c.Script
}

// Handle is the typed resource wrapping one spawned process.
type Handle struct {
	RunID     string
	PID       int
	StartedAt time.Time

	cmd   *exec.Cmd
	stdin io.WriteCloser
	state State
}

// Callbacks receive the worker's output and exit, in that order: all OnLine
// calls for a process complete before its OnExit fires. OnLine is invoked
// from a single goroutine in arrival order, never concurrently.
type Callbacks struct {
	OnLine func(line []byte)
	OnExit func(runID string, err error)
}

// Manager owns the single worker slot.
type Manager struct {
	cfg Config
	log *zap.Logger

	mu     sync.Mutex
	handle *Handle
}

func NewManager(cfg Config, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{cfg: cfg, log: log}
}

// Start spawns the worker for the given search. Exactly one handle may be
// active; a second start fails with ErrAlreadyRunning.
func (m *Manager) Start(ctx context.Context, run RunConfig, cb Callbacks) (*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.handle != nil && m.handle.state != StateExited {
		return nil, ErrAlreadyRunning
	}

	cmd := exec.CommandContext(ctx, m.cfg.python(), append([]string{m.cfg.Script}, run.Args()...)...)
	cmd.Dir = m.cfg.Dir
	cmd.Env = os.Environ()

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker: %w", err)
	}

	h := &Handle{
		RunID:     uuid.New().String(),
		PID:       cmd.Process.Pid,
		StartedAt: time.Now().UTC(),
		cmd:       cmd,
		stdin:     stdin,
		state:     StateRunning,
	}
	m.handle = h

	m.log.Info("Worker started",
		zap.String("run_id", h.RunID),
		zap.Int("pid", h.PID),
		zap.String("keywords", run.Keywords))

	var wg sync.WaitGroup
	wg.Add(2)
	// Stdout drives the protocol; its lines must reach the decoder in the
	// order the worker wrote them, so a single goroutine owns the pipe.
	go func() {
		defer wg.Done()
		m.pump(stdout, cb.OnLine)
	}()
	go func() {
		defer wg.Done()
		m.pump(stderr, cb.OnLine)
	}()

	go func() {
		wg.Wait()
		err := cmd.Wait()

		m.mu.Lock()
		wasTerminating := h.state == StateTerminating
		h.state = StateExited
		m.mu.Unlock()

		if err != nil && !wasTerminating {
			m.log.Warn("Worker exited with error",
				zap.String("run_id", h.RunID), zap.Error(err))
		} else {
			m.log.Info("Worker exited", zap.String("run_id", h.RunID))
		}
		if cb.OnExit != nil {
			cb.OnExit(h.RunID, err)
		}
	}()

	return h, nil
}

func (m *Manager) pump(r io.Reader, onLine func([]byte)) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		if onLine != nil {
			line := make([]byte, len(scanner.Bytes()))
			copy(line, scanner.Bytes())
			onLine(line)
		}
	}
	if err := scanner.Err(); err != nil {
		m.log.Debug("Worker pipe closed with error", zap.Error(err))
	}
}

// State reports the current handle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handle == nil {
		return StateNotStarted
	}
	return m.handle.state
}

// Active reports whether the process is a legitimate handshake target: it
// must be running, not terminating, and actually alive.
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handle != nil && m.handle.state == StateRunning && isProcessAlive(m.handle.PID)
}

// RunID returns the active run id, or "" when nothing is running.
func (m *Manager) RunID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handle == nil {
		return ""
	}
	return m.handle.RunID
}

// Cancel tears the worker down: a polite in-band cancel message first, then,
// regardless of whether that write succeeded, a forced kill after the fixed
// grace period. The forced kill targets both the tracked pid and any process
// matching the configured name, so termination is guaranteed even when the
// worker ignores stdin or the handle went stale.
func (m *Manager) Cancel() error {
	m.mu.Lock()
	h := m.handle
	if h == nil || h.state == StateExited {
		m.mu.Unlock()
		return ErrNotRunning
	}
	h.state = StateTerminating
	stdin := h.stdin
	pid := h.PID
	runID := h.RunID
	m.mu.Unlock()

	if stdin != nil {
		if _, err := io.WriteString(stdin, cancelMessage); err != nil {
			m.log.Debug("Polite cancel write failed", zap.String("run_id", runID), zap.Error(err))
		}
		_ = stdin.Close()
	}

	go m.forceKillAfter(pid, runID, KillGracePeriod)
	return nil
}

// ForceTerminate skips the polite message and schedules the forced kill after
// the given delay.
func (m *Manager) ForceTerminate(afterDelay time.Duration) error {
	m.mu.Lock()
	h := m.handle
	if h == nil || h.state == StateExited {
		m.mu.Unlock()
		return ErrNotRunning
	}
	h.state = StateTerminating
	pid := h.PID
	runID := h.RunID
	m.mu.Unlock()

	go m.forceKillAfter(pid, runID, afterDelay)
	return nil
}

func (m *Manager) forceKillAfter(pid int, runID string, grace time.Duration) {
	// Poll for a voluntary exit during the grace window. The limiter keeps
	// the liveness probes from spinning.
	limiter := rate.NewLimiter(rate.Every(100*time.Millisecond), 1)
	deadline := time.Now().Add(grace)
	ctx := context.Background()

	for time.Now().Before(deadline) {
		if err := limiter.Wait(ctx); err != nil {
			break
		}
		if !isProcessAlive(pid) {
			return
		}
	}

	m.log.Warn("Worker ignored cancel, forcing termination",
		zap.String("run_id", runID), zap.Int("pid", pid))

	if proc, err := os.FindProcess(pid); err == nil {
		_ = proc.Kill()
	}
	// Name-match fallback catches re-execed or orphaned workers the pid no
	// longer covers.
	if name := m.cfg.processName(); strings.TrimSpace(name) != "" {
		_ = exec.Command("pkill", "-f", name).Run()
	}
}

func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// signal 0 checks for existence without delivering anything.
	if err := p.Signal(syscall.Signal(0)); err != nil {
		return false
	}
	return true
}
