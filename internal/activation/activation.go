// Package activation obtains the metrics listener, preferring a socket
// passed in by systemd over opening one ourselves.
package activation

import (
	"fmt"
	"net"
	"os"
	"strconv"
)

// Systemd passes file descriptors starting at fd 3
// (0=stdin, 1=stdout, 2=stderr)
const firstFD = 3

// Listen returns the socket-activated listener if systemd handed one to
// this process, otherwise a TCP listener on addr. It returns a nil
// listener and no error when neither is available, meaning the endpoint
// is disabled. activated reports which path was taken.
func Listen(addr string) (ln net.Listener, activated bool, err error) {
	ln, err = inherited()
	if err != nil {
		return nil, false, err
	}
	if ln != nil {
		return ln, true, nil
	}

	if addr == "" {
		return nil, false, nil
	}
	ln, err = net.Listen("tcp", addr)
	if err != nil {
		return nil, false, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return ln, false, nil
}

// inherited checks LISTEN_PID and LISTEN_FDS and wraps the first passed
// descriptor. Any further descriptors are closed; the monitor serves a
// single endpoint.
func inherited() (net.Listener, error) {
	pidStr := os.Getenv("LISTEN_PID")
	if pidStr == "" {
		return nil, nil
	}

	pid, err := strconv.Atoi(pidStr)
	if err != nil {
		return nil, fmt.Errorf("invalid LISTEN_PID %q: %w", pidStr, err)
	}
	if pid != os.Getpid() {
		// Socket activation is for a different process
		return nil, nil
	}

	fdsStr := os.Getenv("LISTEN_FDS")
	if fdsStr == "" {
		return nil, nil
	}
	numFDs, err := strconv.Atoi(fdsStr)
	if err != nil {
		return nil, fmt.Errorf("invalid LISTEN_FDS %q: %w", fdsStr, err)
	}
	if numFDs < 1 {
		return nil, nil
	}

	// Unset the environment variables so child processes don't inherit them
	defer func() {
		_ = os.Unsetenv("LISTEN_PID")
		_ = os.Unsetenv("LISTEN_FDS")
		_ = os.Unsetenv("LISTEN_FDNAMES")
	}()

	file := os.NewFile(uintptr(firstFD), "systemd-socket-0")
	if file == nil {
		return nil, fmt.Errorf("failed to create file for fd %d", firstFD)
	}
	ln, err := net.FileListener(file)
	// The listener holds its own duplicate of the descriptor.
	_ = file.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to create listener from fd %d: %w", firstFD, err)
	}

	for fd := firstFD + 1; fd < firstFD+numFDs; fd++ {
		if extra := os.NewFile(uintptr(fd), fmt.Sprintf("systemd-socket-%d", fd-firstFD)); extra != nil {
			_ = extra.Close()
		}
	}

	return ln, nil
}
