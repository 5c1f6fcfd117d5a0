package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"time"

	"github.com/turbomcp/turbomcp-go/corelog"
	"github.com/turbomcp/turbomcp-go/wire"
)

// ChildProcessConfig configures a spawned subprocess transport.
type ChildProcessConfig struct {
	Command string
	Args    []string
	Env     []string // additional "KEY=VALUE" entries appended to the parent environment
	Dir     string

	StartupTimeout  time.Duration
	ShutdownTimeout time.Duration

	// KillOnDrop forces SIGKILL-equivalent termination if the process has
	// not exited within ShutdownTimeout during Disconnect.
	KillOnDrop bool

	Codec          wire.Codec
	MaxMessageSize int
}

// ChildProcess spawns a subprocess and pipes its stdin/stdout through
// the same newline-delimited JSON framing as Stdio, capturing stderr
// separately into a bounded ring so it never blocks the child, per
// spec.md §4.2.2.
type ChildProcess struct {
	*Stdio
	cfg     ChildProcessConfig
	cmd     *exec.Cmd
	stderr  chan string
	started bool
}

// NewChildProcess constructs a ChildProcess transport. The subprocess is
// not started until Connect is called.
func NewChildProcess(cfg ChildProcessConfig) *ChildProcess {
	return &ChildProcess{cfg: cfg, stderr: make(chan string, 256)}
}

var _ Transport = (*ChildProcess)(nil)

// Kind implements Transport.
func (c *ChildProcess) Kind() Kind { return KindChildProcess }

// Endpoint implements Transport.
func (c *ChildProcess) Endpoint() string {
	if c.cmd == nil || c.cmd.Process == nil {
		return "childprocess://"
	}
	return fmt.Sprintf("childprocess://%d", c.cmd.Process.Pid)
}

// State implements Transport, reporting StateDisconnected before the
// first successful Connect (the embedded Stdio does not exist yet).
func (c *ChildProcess) State() State {
	if c.Stdio == nil {
		return StateDisconnected
	}
	return c.Stdio.State()
}

// Capabilities implements Transport.
func (c *ChildProcess) Capabilities() Capabilities {
	maxSize := c.cfg.MaxMessageSize
	if maxSize <= 0 {
		maxSize = DefaultMaxMessageSize
	}
	return Capabilities{SupportsBidirectional: true, SupportsStreaming: true, MaxMessageSize: maxSize}
}

// Metrics implements Transport.
func (c *ChildProcess) Metrics() Snapshot {
	if c.Stdio == nil {
		return Snapshot{}
	}
	return c.Stdio.Metrics()
}

// Send implements Transport.
func (c *ChildProcess) Send(ctx context.Context, msg Message) error {
	if c.Stdio == nil {
		return ErrNotConnected
	}
	return c.Stdio.Send(ctx, msg)
}

// Receive implements Transport.
func (c *ChildProcess) Receive(ctx context.Context) (*Message, error) {
	if c.Stdio == nil {
		return nil, ErrNotConnected
	}
	return c.Stdio.Receive(ctx)
}

// Connect implements Transport: spawns the subprocess and wires its
// stdio pipes into the embedded Stdio transport.
func (c *ChildProcess) Connect(ctx context.Context) error {
	startupCtx := ctx
	var cancel context.CancelFunc
	if c.cfg.StartupTimeout > 0 {
		startupCtx, cancel = context.WithTimeout(ctx, c.cfg.StartupTimeout)
		defer cancel()
	}

	cmd := exec.CommandContext(startupCtx, c.cfg.Command, c.cfg.Args...)
	cmd.Dir = c.cfg.Dir
	if len(c.cfg.Env) > 0 {
		cmd.Env = append(cmd.Environ(), c.cfg.Env...)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("transport: child process stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("transport: child process stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("transport: child process stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("transport: child process start: %w", err)
	}
	c.cmd = cmd
	c.started = true

	go c.drainStderr(stderr)

	c.Stdio = NewStdio(stdout, stdin, c.cfg.Codec, c.cfg.MaxMessageSize)
	return c.Stdio.Connect(ctx)
}

func (c *ChildProcess) drainStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		select {
		case c.stderr <- line:
		default:
			// Ring is full: drop the oldest by draining one slot before
			// retrying, so a chatty child can never block on stderr.
			select {
			case <-c.stderr:
			default:
			}
			select {
			case c.stderr <- line:
			default:
			}
		}
	}
}

// StderrLines drains and returns any subprocess stderr output captured
// since the last call.
func (c *ChildProcess) StderrLines() []string {
	var out []string
	for {
		select {
		case line := <-c.stderr:
			out = append(out, line)
		default:
			return out
		}
	}
}

// Disconnect implements Transport: closes stdin, waits up to
// ShutdownTimeout for exit, then, if the process is still running and
// KillOnDrop is set, kills it, per spec.md §4.2.2.
func (c *ChildProcess) Disconnect(ctx context.Context) error {
	if c.Stdio != nil {
		if closer, ok := c.Stdio.out.(io.Closer); ok {
			_ = closer.Close()
		}
		_ = c.Stdio.Disconnect(ctx)
	}
	if c.cmd == nil || c.cmd.Process == nil {
		return nil
	}

	waitDone := make(chan error, 1)
	go func() { waitDone <- c.cmd.Wait() }()

	timeout := c.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-waitDone:
		return nil
	case <-timer.C:
		if c.cfg.KillOnDrop {
			_ = c.cmd.Process.Kill()
		}
		corelog.Warn(context.Background(), "child process did not exit before shutdown timeout", "pid", c.cmd.Process.Pid)
		return nil
	}
}
