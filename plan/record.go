package plan

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tensororder/tensororder/formula"
	"github.com/tensororder/tensororder/jointree"
)

// An Entry describes one join tree read by a Recorder.
type Entry struct {
	Seconds     float64 `yaml:"seconds"` // Generation time reported by the planner; 0 if it did not say
	AddWidth    int     `yaml:"add_width"`
	TensorWidth int     `yaml:"tensor_width"`
	Flops       float64 `yaml:"flops"`
	File        string  `yaml:"file,omitempty"` // Where the tree was stored, if it was
}

// Entries are the entries of a whole stream.
type Entries []Entry

// String returns the entries as a list of (seconds, add width, tensor width, flops) tuples.
func (es Entries) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, e := range es {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "(%v, %d, %d, %v)", e.Seconds, e.AddWidth, e.TensorWidth, e.Flops)
	}
	sb.WriteByte(']')
	return sb.String()
}

// A Recorder reads every join tree of a stream and measures it, without executing anything.
type Recorder struct {
	Formula *formula.Formula
	Store   string // If not empty, tree n is written to Store/n.jt
	Log     logrus.FieldLogger
	Kill    Killer // Defaults to KillProcess
}

// Record reads trees from src until it ends or budget expires, and returns one entry per tree.
// A budget expiry is not an error: the entries read so far are returned.
// Trees are only written to disk once the stream is over.
func (r *Recorder) Record(ctx context.Context, src Source, budget *Budget) (Entries, error) {
	log := r.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	if r.Store != "" {
		if err := os.MkdirAll(r.Store, 0o755); err != nil {
			return nil, errors.Wrapf(err, "could not create store %q", r.Store)
		}
	}
	ctx, cancel := budget.Context(ctx, PhaseSearch)
	defer cancel()

	var (
		entries Entries
		trees   []*jointree.JoinTree
		pid     int
		failure error
	)
	for {
		parsed, err := src.Next(ctx)
		if parsed.PID != 0 {
			pid = parsed.PID
		}
		if err == io.EOF || isTimeout(context.Cause(ctx)) {
			break
		}
		if err != nil {
			failure = err
			break
		}
		entry, err := r.measure(parsed)
		if err != nil {
			failure = errors.Wrapf(err, "could not measure join tree %d", len(entries)+1)
			break
		}
		log.WithFields(logrus.Fields{
			"tree":         len(entries) + 1,
			"add_width":    entry.AddWidth,
			"tensor_width": entry.TensorWidth,
			"flops":        entry.Flops,
		}).Info("recorded join tree")
		entries = append(entries, entry)
		trees = append(trees, parsed.Tree)
	}
	if pid != 0 {
		kill := r.Kill
		if kill == nil {
			kill = KillProcess
		}
		if err := kill(pid); err != nil {
			log.WithError(err).WithField("pid", pid).Warn("could not kill planner")
		}
	}
	if r.Store != "" {
		for i, tree := range trees {
			path := filepath.Join(r.Store, fmt.Sprintf("%d.jt", i+1))
			if err := writeTree(path, tree); err != nil {
				return entries, err
			}
			entries[i].File = path
		}
	}
	return entries, failure
}

func (r *Recorder) measure(parsed jointree.Parsed) (Entry, error) {
	var (
		entry = Entry{Seconds: parsed.Seconds}
		err   error
	)
	if entry.AddWidth, err = parsed.Tree.AddWidth(r.Formula); err != nil {
		return entry, err
	}
	if entry.TensorWidth, err = parsed.Tree.TensorWidth(r.Formula); err != nil {
		return entry, err
	}
	if entry.Flops, err = parsed.Tree.TensorFlops(r.Formula); err != nil {
		return entry, err
	}
	return entry, nil
}

func writeTree(path string, tree *jointree.JoinTree) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "could not create %q", path)
	}
	if err := tree.Write(f); err != nil {
		f.Close()
		return errors.Wrapf(err, "could not write %q", path)
	}
	return errors.Wrapf(f.Close(), "could not close %q", path)
}
