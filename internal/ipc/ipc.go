// Package ipc is the local control channel between the clipstash CLI and a
// running daemon: a Unix domain socket, or a named pipe on Windows.
package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"go.klb.dev/clipstash/internal/message"
	"go.klb.dev/clipstash/internal/wire"
)

// DefaultCallTimeout bounds one request/response exchange.
const DefaultCallTimeout = 10 * time.Second

var (
	// ErrAlreadyRunning is returned by Listen when another daemon holds the
	// socket.
	ErrAlreadyRunning = errors.New("clipstash daemon already running")
	// ErrNotRunning is returned by Call when nothing listens on the socket.
	ErrNotRunning = errors.New("clipstash daemon not running")
)

// SocketPath returns the control socket path. $CLIPSTASH_SOCKET overrides
// the platform default.
func SocketPath() string {
	if s := os.Getenv("CLIPSTASH_SOCKET"); s != "" {
		return s
	}
	return defaultPath()
}

// IsRunning reports whether a daemon appears to be listening on path. It
// dials and closes without exchanging data.
func IsRunning(path string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	c, err := dial(ctx, path)
	if err != nil {
		return false
	}
	_ = c.Close()
	return true
}

// Listen opens the control socket at path.
func Listen(path string) (net.Listener, error) {
	if IsRunning(path) {
		return nil, fmt.Errorf("%w on %s", ErrAlreadyRunning, path)
	}
	ln, err := listen(path)
	if err != nil {
		return nil, fmt.Errorf("ipc listen %s: %w", path, err)
	}
	return ln, nil
}

// Dial connects to the daemon at path.
func Dial(ctx context.Context, path string) (net.Conn, error) {
	c, err := dial(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("%w (%s): %v", ErrNotRunning, path, err)
	}
	return c, nil
}

// Call sends req to the daemon at path and returns its response. An ERROR
// response is returned as both the message and a non-nil error.
func Call(ctx context.Context, path string, req *message.Message, opts ...wire.Option) (*message.Message, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultCallTimeout)
		defer cancel()
	}
	nc, err := Dial(ctx, path)
	if err != nil {
		return nil, err
	}
	conn := wire.New(nc, opts...)
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = nc.SetDeadline(time.Now()) })
	defer stop()

	if err := conn.WriteMsg(req); err != nil {
		return nil, fmt.Errorf("ipc send %s: %w", req.Type, err)
	}
	resp, err := conn.ReadMsg()
	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return nil, fmt.Errorf("ipc receive %s: %w", req.Type, err)
	}
	return resp, resp.Err()
}
