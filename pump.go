//go:build unix

package shpipe

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// chunkSize bounds every single read from the child's stdout and every
// single write to its stdin. 1 KiB keeps syscall overhead low without
// adding burst latency.
const chunkSize = 1024

// inputCursor is a monotonic cursor over the bytes fed to the child's
// stdin. next returns the pending chunk; advance moves the cursor by
// the bytes a write actually accepted, so a short write retries
// exactly the remainder.
type inputCursor struct {
	data []byte
	off  int
}

func (c *inputCursor) next(max int) []byte {
	end := c.off + max
	if end > len(c.data) {
		end = len(c.data)
	}
	return c.data[c.off:end]
}

func (c *inputCursor) advance(n int) {
	c.off += n
	if c.off > len(c.data) {
		c.off = len(c.data)
	}
}

func (c *inputCursor) done() bool { return c.off >= len(c.data) }

func (c *inputCursor) pending() int { return len(c.data) - c.off }

// Write side states. Once a write fails the pipe is broken: the next
// readiness cycle closes the fd and deregisters it, the read side
// keeps draining. The read side only needs open/closed, tracked by
// loop termination.
type writeState int

const (
	writeOpen writeState = iota
	writeBroken
	writeClosed
)

// pump drives the child's stdin and stdout pipes from a single
// poll(2) loop until stdout reaches end-of-stream. stdin may be nil
// for a read-only invocation. pump takes ownership of both files and
// closes them before returning.
//
// The returned bytes hold everything the child wrote to stdout, in
// order. On a read failure the bytes captured so far are returned
// together with the error; write failures (broken pipe included) only
// abandon the write side and are never returned as errors.
//
// Within one readiness cycle reads are handled before writes.
func pump(stdin, stdout *os.File, input []byte, logger *zap.Logger) ([]byte, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	out := make([]byte, 0, chunkSize)
	cur := inputCursor{data: input}

	rfd := int(stdout.Fd())
	defer stdout.Close()
	if err := unix.SetNonblock(rfd, true); err != nil {
		if stdin != nil {
			stdin.Close()
		}
		return out, fmt.Errorf("set stdout nonblocking: %w", err)
	}

	wstate := writeClosed
	var wfd int
	if stdin != nil {
		if cur.done() {
			// Nothing to feed: close right away so the child sees EOF
			// and the write side is never registered.
			stdin.Close()
			logger.Debug("stdin closed, no input")
		} else {
			wfd = int(stdin.Fd())
			if err := unix.SetNonblock(wfd, true); err != nil {
				stdin.Close()
				return out, fmt.Errorf("set stdin nonblocking: %w", err)
			}
			wstate = writeOpen
		}
	}
	closeStdin := func() {
		if wstate != writeClosed {
			stdin.Close()
			wstate = writeClosed
		}
	}
	defer closeStdin()

	buf := make([]byte, chunkSize)
	for {
		fds := make([]unix.PollFd, 1, 2)
		fds[0] = unix.PollFd{Fd: int32(rfd), Events: unix.POLLIN}
		if wstate != writeClosed {
			fds = append(fds, unix.PollFd{Fd: int32(wfd), Events: unix.POLLOUT})
		}
		if _, err := unix.Poll(fds, -1); err != nil {
			if err == unix.EINTR {
				continue
			}
			return out, fmt.Errorf("poll: %w", err)
		}

		if fds[0].Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0 {
			n, err := unix.Read(rfd, buf)
			switch {
			case n > 0:
				out = append(out, buf[:n]...)
				logger.Debug("stdout read", zap.Int("bytes", n))
			case n == 0 && err == nil:
				// End of stream: the child closed stdout. Unwritten
				// input, if any, is abandoned; that is not an error.
				logger.Debug("stdout eof", zap.Int("unwritten", cur.pending()))
				return out, nil
			case err == unix.EAGAIN || err == unix.EINTR:
				// Spurious readiness or interrupted; poll again.
			default:
				return out, fmt.Errorf("read stdout: %w", err)
			}
		}

		if wstate == writeClosed || len(fds) < 2 {
			continue
		}
		ev := fds[1].Revents
		if ev&(unix.POLLOUT|unix.POLLERR|unix.POLLHUP) == 0 {
			continue
		}
		if wstate == writeBroken || ev&(unix.POLLERR|unix.POLLHUP) != 0 {
			// The child closed its read end; stop writing, keep
			// draining stdout.
			logger.Debug("stdin abandoned", zap.Int("unwritten", cur.pending()))
			closeStdin()
			continue
		}
		n, err := unix.Write(wfd, cur.next(chunkSize))
		if n > 0 {
			cur.advance(n)
			logger.Debug("stdin write", zap.Int("bytes", n), zap.Int("pending", cur.pending()))
		}
		switch {
		case err == nil || err == unix.EAGAIN || err == unix.EINTR:
		case err == unix.EPIPE:
			wstate = writeBroken
			logger.Debug("stdin broken pipe", zap.Int("unwritten", cur.pending()))
		default:
			wstate = writeBroken
			logger.Debug("stdin write failed", zap.Error(err))
		}
		if wstate == writeOpen && cur.done() {
			logger.Debug("stdin done")
			closeStdin()
		}
	}
}
