package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"syscall"
)

const (
	daemonEnv = "STATICD_DAEMON" // set in the environment of the detached child
	readyFd   = 3                // first descriptor after stdio in the child
	readyOK   = "ok"
)

func isDaemon() bool {
	return os.Getenv(daemonEnv) == "1"
}

// daemonize starts this binary again with args in a new session, stdio goes to /dev/null.
// it returns once the child reports that it serves or that its setup failed,
// the caller exits with the matching code.
func daemonize(args []string) (int, error) {
	exe, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("executable path: %w", err)
	}

	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", os.DevNull, err)
	}
	defer devNull.Close()

	r, w, err := os.Pipe()
	if err != nil {
		return 0, fmt.Errorf("status pipe: %w", err)
	}
	defer r.Close()

	proc, err := os.StartProcess(exe, append([]string{os.Args[0]}, args...), &os.ProcAttr{
		Env:   append(os.Environ(), daemonEnv+"=1"),
		Files: []*os.File{devNull, devNull, devNull, w},
		Sys:   &syscall.SysProcAttr{Setsid: true},
	})
	// only the child keeps the write end, its exit gives us EOF
	w.Close()
	if err != nil {
		return 0, fmt.Errorf("start daemon: %w", err)
	}

	pid := proc.Pid
	if err := awaitReady(r); err != nil {
		proc.Wait()
		return pid, err
	}
	if err := proc.Release(); err != nil {
		return pid, fmt.Errorf("release daemon: %w", err)
	}
	return pid, nil
}

// awaitReady reads the child report until the child closes its end
func awaitReady(r io.Reader) error {
	msg, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read daemon status: %w", err)
	}

	switch s := strings.TrimSpace(string(msg)); s {
	case readyOK:
		return nil
	case "":
		return errors.New("daemon exited before it was ready")
	default:
		return fmt.Errorf("daemon: %s", s)
	}
}

// readyPipe is the child end of the status report, nil in the foreground
type readyPipe struct {
	f    *os.File
	once sync.Once
}

func openReadyPipe() *readyPipe {
	if !isDaemon() {
		return nil
	}
	return &readyPipe{f: os.NewFile(readyFd, "ready")}
}

// report sends ok for a nil error and the error text otherwise, only the first call counts
func (p *readyPipe) report(err error) {
	if p == nil {
		return
	}
	p.once.Do(func() {
		msg := readyOK
		if err != nil {
			msg = err.Error()
		}
		io.WriteString(p.f, msg+"\n")
		p.f.Close()
	})
}
