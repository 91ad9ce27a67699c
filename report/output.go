// Package report writes the outcome of a run and keeps track of its timings and metrics.
package report

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// A Format is the way an Output writes its pairs.
type Format string

// Available formats.
const (
	Text Format = "text" // One "Key: value" line per pair
	YAML Format = "yaml" // A single YAML mapping, keeping the order of the pairs
)

// ParseFormat returns the format with the given name.
func ParseFormat(name string) (Format, error) {
	switch Format(name) {
	case Text, YAML:
		return Format(name), nil
	case "":
		return Text, nil
	default:
		return "", errors.Errorf("unknown output format %q", name)
	}
}

// A Pair is a key along with its value.
type Pair struct {
	Key   string
	Value interface{}
}

// An Outcome is the result of a run.
type Outcome struct {
	Count        *float64
	Error        string // Error code, empty if the run succeeded
	JoinTreeTime *float64
	Times        []Interval
}

// SetCount records the count found by the run.
func (o *Outcome) SetCount(count float64) {
	o.Count = &count
}

// SetJoinTreeTime records the time the planner took to find the executed join tree.
func (o *Outcome) SetJoinTreeTime(seconds float64) {
	o.JoinTreeTime = &seconds
}

// Pairs returns the pairs describing the outcome, in output order.
func (o *Outcome) Pairs() []Pair {
	var pairs []Pair
	if o.JoinTreeTime != nil {
		pairs = append(pairs, Pair{"Join Tree Time", *o.JoinTreeTime})
	}
	if o.Count != nil {
		pairs = append(pairs, Pair{"Count", *o.Count})
	}
	if o.Error != "" {
		pairs = append(pairs, Pair{"Error", o.Error})
	}
	for _, interval := range o.Times {
		pairs = append(pairs, Pair{interval.Name + " Time", interval.Seconds})
	}
	return pairs
}

// An Output writes pairs to a writer.
type Output struct {
	w      io.Writer
	format Format
}

// NewOutput returns an output writing to w in the given format.
func NewOutput(w io.Writer, format Format) *Output {
	return &Output{w: w, format: format}
}

// WriteOutcome writes the pairs of out.
func (o *Output) WriteOutcome(out *Outcome) error {
	return o.Write(out.Pairs()...)
}

// Write writes the given pairs.
func (o *Output) Write(pairs ...Pair) error {
	if o.format == YAML {
		return o.writeYAML(pairs)
	}
	for _, pair := range pairs {
		if _, err := fmt.Fprintf(o.w, "%s: %v\n", pair.Key, pair.Value); err != nil {
			return errors.Wrap(err, "could not write output")
		}
	}
	return nil
}

func (o *Output) writeYAML(pairs []Pair) error {
	doc := &yaml.Node{Kind: yaml.MappingNode}
	for _, pair := range pairs {
		var value yaml.Node
		if err := value.Encode(pair.Value); err != nil {
			return errors.Wrapf(err, "could not encode %q", pair.Key)
		}
		doc.Content = append(doc.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: pair.Key}, &value)
	}
	enc := yaml.NewEncoder(o.w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return errors.Wrap(err, "could not write output")
	}
	return errors.Wrap(enc.Close(), "could not write output")
}
