package capture

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/loqalabs/loqa-recorder/internal/encoder"
	"github.com/mattn/go-shellwords"
)

const execCloseTimeout = 5 * time.Second

type execSource struct {
	cmd []string
}

// NewExecSource runs command and reads raw s16le PCM from its stdout.
func NewExecSource(command string) (Source, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse capture command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("capture command is empty")
	}
	return &execSource{cmd: args}, nil
}

func (s *execSource) Open(ctx context.Context, _ encoder.Format) (Stream, error) {
	ctx, cancel := context.WithCancel(ctx)
	command := exec.CommandContext(ctx, s.cmd[0], s.cmd[1:]...)
	command.WaitDelay = execCloseTimeout
	var stderr bytes.Buffer
	command.Stderr = &stderr
	stdout, err := command.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: stdout pipe: %v", ErrDeviceUnavailable, err)
	}
	if err := command.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("%w: start %s: %v", ErrDeviceUnavailable, s.cmd[0], err)
	}
	return &execStream{
		command: command,
		cancel:  cancel,
		stdout:  stdout,
		reader:  bufio.NewReader(stdout),
		stderr:  &stderr,
		exited:  make(chan struct{}),
	}, nil
}

// execStream is read by a single goroutine. The command is reaped by that
// reader once stdout hits EOF, so stderr is only inspected after Wait.
type execStream struct {
	command  *exec.Cmd
	cancel   context.CancelFunc
	stdout   io.Closer
	reader   *bufio.Reader
	stderr   *bytes.Buffer
	scratch  []byte
	waitOnce sync.Once
	exited   chan struct{}
}

func (e *execStream) Read(p []int16) (int, error) {
	need := len(p) * 2
	if cap(e.scratch) < need {
		e.scratch = make([]byte, need)
	}
	buf := e.scratch[:need]
	n, err := io.ReadAtLeast(e.reader, buf, 2)
	if n%2 == 1 {
		if _, rerr := io.ReadFull(e.reader, buf[n:n+1]); rerr == nil {
			n++
		}
	}
	samples := n / 2
	for i := 0; i < samples; i++ {
		p[i] = int16(binary.LittleEndian.Uint16(buf[i*2:]))
	}
	if err == io.ErrUnexpectedEOF || errors.Is(err, os.ErrClosed) {
		err = io.EOF
	}
	if err != nil && samples > 0 {
		return samples, nil
	}
	if err != nil {
		e.wait()
		if err == io.EOF && e.stderr.Len() > 0 {
			return samples, fmt.Errorf("capture command exited: %s", bytes.TrimSpace(e.stderr.Bytes()))
		}
	}
	return samples, err
}

func (e *execStream) wait() {
	e.waitOnce.Do(func() {
		_ = e.command.Wait()
		close(e.exited)
	})
}

// Close stops the command and waits for the reader to reap it. Closing
// stdout unblocks a reader whose pipe is still held by a grandchild.
func (e *execStream) Close() error {
	e.cancel()
	_ = e.stdout.Close()
	select {
	case <-e.exited:
		return nil
	case <-time.After(execCloseTimeout):
		return fmt.Errorf("capture command %s did not exit", e.command.Path)
	}
}
