// internal/pipeline/input.go
package pipeline

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
)

// maxDatagram is the largest UDP payload read in one call.
const maxDatagram = 64 * 1024

// ReadLines submits every line of rd until EOF or ctx is done. Blank lines are
// skipped. A file or pipe can be read faster than the pipeline drains it, so
// ReadLines waits for queue room rather than dropping lines; Run must be
// draining the queue concurrently.
func (r *Runner) ReadLines(ctx context.Context, rd io.Reader) error {
	sc := bufio.NewScanner(rd)
	sc.Buffer(make([]byte, 0, 4096), maxDatagram)
	for sc.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if err := r.SubmitLineWait(ctx, line); err != nil {
			return nil
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read lines: %w", err)
	}
	return nil
}

// ListenUDP submits the lines of every datagram received on addr until ctx is
// done. Multiplexers often pack several sentences in one datagram. Live input
// never waits: a full queue drops its oldest frame.
func (r *Runner) ListenUDP(ctx context.Context, addr string) error {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return fmt.Errorf("listen udp %s: %w", addr, err)
	}
	r.logger.Info("udp input listening", "addr", conn.LocalAddr().String())
	return r.serveUDP(ctx, conn)
}

func (r *Runner) serveUDP(ctx context.Context, conn net.PacketConn) error {
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer conn.Close()

	buf := make([]byte, maxDatagram)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("read udp: %w", err)
		}
		for _, line := range strings.Split(string(buf[:n]), "\n") {
			if line = strings.TrimSpace(line); line != "" {
				r.SubmitLine(line)
			}
		}
	}
}
