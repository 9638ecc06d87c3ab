package privileged

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
)

// ErrAuthorizationCanceled is returned when the user dismissed the
// authorization prompt. Nothing was changed.
var ErrAuthorizationCanceled = errors.New("authorization canceled")

// ExitError reports a privileged script that ran and failed.
type ExitError struct {
	Transport string
	Code      int
	Stderr    string
}

func (e *ExitError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		return fmt.Sprintf("%s: privileged command exited with status %d", e.Transport, e.Code)
	}
	return fmt.Sprintf("%s: privileged command exited with status %d: %s", e.Transport, e.Code, msg)
}

// Runner executes a script with elevated privileges.
type Runner interface {
	Name() string
	Run(ctx context.Context, script string) error
}

// Transport names accepted by NewRunner.
const (
	TransportAuto      = "auto"
	TransportSudo      = "sudo"
	TransportPkexec    = "pkexec"
	TransportOsascript = "osascript"
	TransportDirect    = "direct"
)

// NewRunner returns the runner for a transport name. "auto" picks direct
// execution when already root, osascript on macOS, pkexec on a Linux desktop
// session and sudo otherwise.
func NewRunner(transport string) (Runner, error) {
	if transport == "" || transport == TransportAuto {
		transport = detectTransport()
	}
	switch transport {
	case TransportSudo:
		return &ExecRunner{name: TransportSudo, argv: sudoArgv, canceled: sudoCanceled}, nil
	case TransportPkexec:
		return &ExecRunner{name: TransportPkexec, argv: pkexecArgv, canceled: pkexecCanceled}, nil
	case TransportOsascript:
		return &ExecRunner{name: TransportOsascript, argv: osascriptArgv, canceled: osascriptCanceled}, nil
	case TransportDirect:
		return &ExecRunner{name: TransportDirect, argv: directArgv}, nil
	default:
		return nil, fmt.Errorf("unknown privilege transport %q (use auto, sudo, pkexec, osascript, or direct)", transport)
	}
}

func detectTransport() string {
	if os.Geteuid() == 0 {
		return TransportDirect
	}
	if runtime.GOOS == "darwin" {
		return TransportOsascript
	}
	if os.Getenv("DISPLAY") != "" || os.Getenv("WAYLAND_DISPLAY") != "" {
		if _, err := exec.LookPath("pkexec"); err == nil {
			return TransportPkexec
		}
	}
	return TransportSudo
}

// ExecRunner runs the script through an external authorization tool.
type ExecRunner struct {
	name     string
	argv     func(script string) []string
	canceled func(code int, stderr string) bool
}

// Name returns the transport name.
func (r *ExecRunner) Name() string {
	return r.name
}

// Run executes script once. It returns ErrAuthorizationCanceled when the
// user dismissed the prompt and *ExitError for any other non-zero exit.
func (r *ExecRunner) Run(ctx context.Context, script string) error {
	argv := r.argv(script)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = os.Stdin
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", r.name, ctxErr)
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return fmt.Errorf("starting %s: %w", argv[0], err)
	}
	code := exitErr.ExitCode()
	if r.canceled != nil && r.canceled(code, stderr.String()) {
		return ErrAuthorizationCanceled
	}
	return &ExitError{Transport: r.name, Code: code, Stderr: stderr.String()}
}

func sudoArgv(script string) []string {
	return []string{"sudo", "/bin/sh", "-c", script}
}

func pkexecArgv(script string) []string {
	return []string{"pkexec", "/bin/sh", "-c", script}
}

func directArgv(script string) []string {
	return []string{"/bin/sh", "-c", script}
}

func osascriptArgv(script string) []string {
	return []string{"osascript", "-e", "do shell script " + appleScriptString(script) + " with administrator privileges"}
}

// appleScriptString quotes s as an AppleScript string literal.
func appleScriptString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

func sudoCanceled(code int, stderr string) bool {
	return code != 0 && (strings.Contains(stderr, "no password was provided") ||
		strings.Contains(stderr, "incorrect password attempt"))
}

// pkexecCanceled matches pkexec's "dialog dismissed" status.
func pkexecCanceled(code int, _ string) bool {
	return code == 126
}

func osascriptCanceled(_ int, stderr string) bool {
	return strings.Contains(stderr, "User canceled") || strings.Contains(stderr, "(-128)")
}

// DryRunner records scripts instead of running them.
type DryRunner struct {
	mu      sync.Mutex
	Scripts []string
}

// Name returns "dry-run".
func (r *DryRunner) Name() string {
	return "dry-run"
}

// Run records script and succeeds.
func (r *DryRunner) Run(_ context.Context, script string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Scripts = append(r.Scripts, script)
	return nil
}
