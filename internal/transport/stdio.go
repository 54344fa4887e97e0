package transport

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/sandtree/internal/infrastructure/logging"
	"github.com/GriffinCanCode/sandtree/internal/protocol"
	"github.com/GriffinCanCode/sandtree/internal/shared/utils"
)

// Stdio exchanges JSON lines with a controller over a reader and a writer,
// normally the process's stdin and stdout.
type Stdio struct {
	in        io.Reader
	out       io.Writer
	mu        sync.Mutex
	log       *logging.Logger
	validator *utils.JSONSizeValidator
}

// NewStdio creates a line transport. A nil logger discards diagnostics.
func NewStdio(in io.Reader, out io.Writer, log *logging.Logger) *Stdio {
	if log == nil {
		log = logging.NewNop()
	}
	return &Stdio{
		in:        in,
		out:       out,
		log:       log.Named("stdio"),
		validator: utils.DefaultJSONValidator(),
	}
}

// Emit writes evt as one line. Write failures are logged; the controller
// may already be gone.
func (s *Stdio) Emit(evt protocol.ControlEvent) {
	data, err := protocol.EncodeEvent(evt)
	if err != nil {
		s.log.Error("Failed to encode event", zap.Error(err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.out.Write(append(data, '\n')); err != nil {
		s.log.Warn("Failed to write event", zap.String("type", string(evt.Type)), zap.Error(err))
	}
}

// Serve reads commands until the input ends or ctx is done. Malformed and
// oversized lines are logged and skipped. Serve returns nil at end of input.
func (s *Stdio) Serve(ctx context.Context, sub Submitter) error {
	lines := make(chan []byte)
	errc := make(chan error, 1)

	go func() {
		errc <- s.readLines(ctx, lines)
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				if err := <-errc; err != nil {
					return fmt.Errorf("read controller input: %w", err)
				}
				s.log.Info("Controller input closed")
				return nil
			}
			cmd, err := ParseCommand(s.validator, line)
			if err != nil {
				s.log.Warn("Skipping invalid command", zap.Int("bytes", len(line)), zap.Error(err))
				continue
			}
			if !sub.Submit(cmd) {
				s.log.Debug("Command rejected after destroy", zap.String("type", string(cmd.Type)))
			}
		}
	}
}

// readLines splits the input into trimmed, non-empty lines. A line longer
// than the control size limit is discarded up to its newline.
func (s *Stdio) readLines(ctx context.Context, lines chan<- []byte) error {
	reader := bufio.NewReaderSize(s.in, 64*1024)
	var (
		buf      []byte
		overflow bool
	)
	for {
		chunk, err := reader.ReadSlice('\n')
		if !overflow {
			if len(buf)+len(chunk) > utils.MaxControlSize+1 {
				overflow = true
				buf = buf[:0]
			} else {
				buf = append(buf, chunk...)
			}
		}
		if err == bufio.ErrBufferFull {
			continue
		}

		if overflow {
			s.log.Warn("Skipping oversized command", zap.Int("limit", utils.MaxControlSize))
			overflow = false
		} else if line := bytes.TrimSpace(buf); len(line) > 0 {
			select {
			case lines <- append([]byte(nil), line...):
			case <-ctx.Done():
				return nil
			}
		}
		buf = buf[:0]

		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
