//go:build windows

package ipc

import (
	"context"
	"net"

	"github.com/Microsoft/go-winio"
)

const pipeName = `\\.\pipe\clipstash`

func defaultPath() string { return pipeName }

// Restricts the pipe to the creating user and SYSTEM.
const pipeSDDL = "D:P(A;;GA;;;OW)(A;;GA;;;SY)"

func listen(path string) (net.Listener, error) {
	return winio.ListenPipe(path, &winio.PipeConfig{SecurityDescriptor: pipeSDDL})
}

func dial(ctx context.Context, path string) (net.Conn, error) {
	return winio.DialPipeContext(ctx, path)
}
