package plan

import (
	"context"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// A Planner is a running external planner process.
// It reads a CNF formula on its standard input and writes better and better join trees on its standard output.
type Planner struct {
	cmd       *exec.Cmd
	stdout    io.ReadCloser
	log       logrus.FieldLogger
	closeOnce sync.Once
}

// StartPlanner starts the planner command with the formula cnf as its standard input.
// stderr receives the planner's own diagnostics; nil discards them.
// The planner is killed when ctx is done.
func StartPlanner(ctx context.Context, command []string, cnf io.Reader, stderr io.Writer, log logrus.FieldLogger) (*Planner, error) {
	if len(command) == 0 {
		return nil, errors.New("no planner command given")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	cmd.Stdin = cnf
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "could not connect to planner output")
	}
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "could not start planner %q", command[0])
	}
	log.WithField("pid", cmd.Process.Pid).WithField("planner", command[0]).Debug("started planner")
	return &Planner{cmd: cmd, stdout: stdout, log: log}, nil
}

// Trees returns the stream of join trees written by the planner.
func (p *Planner) Trees() io.Reader {
	return p.stdout
}

// Pid returns the process id of the planner.
func (p *Planner) Pid() int {
	return p.cmd.Process.Pid
}

// drainTimeout is how long Close waits for the reader of the planner output after the kill.
const drainTimeout = time.Second

// Kill sends SIGKILL to the planner. A planner that already exited is not an error.
func (p *Planner) Kill() error {
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return errors.Wrap(err, "could not kill planner")
	}
	return nil
}

// Close kills the planner and waits for it to exit.
//
// reading, if not nil, must be closed once nothing reads the output of the planner anymore,
// e.g the Done channel of a Stream over Trees. The process is only waited for after that.
// If a process inheriting the output keeps it open past drainTimeout, the output is closed to unblock the reader.
// A planner that already exited, or that exits because it was killed, is not an error.
func (p *Planner) Close(reading <-chan struct{}) error {
	var err error
	p.closeOnce.Do(func() {
		if kerr := p.Kill(); kerr != nil {
			p.log.WithError(kerr).Warn("could not kill planner")
		}
		if reading != nil {
			select {
			case <-reading:
			case <-time.After(drainTimeout):
				p.log.Debug("planner output still open after kill, closing it")
				p.stdout.Close()
				<-reading
			}
		}
		werr := p.cmd.Wait()
		var exitErr *exec.ExitError
		if werr != nil && !errors.As(werr, &exitErr) {
			err = errors.Wrap(werr, "planner did not exit cleanly")
		}
	})
	return err
}
