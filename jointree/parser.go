package jointree

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// A ParseError is returned when a .jt stream is malformed.
type ParseError struct {
	Line int // 1-based line number in the stream
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("jt: line %d: %s", e.Line, e.Msg)
}

// Parsed is the result of reading one join tree from a stream.
type Parsed struct {
	Tree       *JoinTree // nil if no tree could be read
	Seconds    float64   // Time the planner took to generate the tree, if HasSeconds
	HasSeconds bool
	PID        int // Id of the planner process, 0 if unknown
}

// A Parser reads successive join trees from a stream.
// Trees are separated by lines starting with '='.
// Comments may appear anywhere; "c seconds <float>" and "c pid <int>" are recorded.
type Parser struct {
	r      *bufio.Reader
	line   int
	pid    int
	closed bool
}

// NewParser returns a parser reading join trees from r.
func NewParser(r io.Reader) *Parser {
	return &Parser{r: bufio.NewReader(r)}
}

// readLine returns the next line, without its trailing newline.
// A last line without newline is returned along with a nil error; io.EOF is only returned after it.
func (p *Parser) readLine() (string, error) {
	if p.closed {
		return "", io.EOF
	}
	line, err := p.r.ReadString('\n')
	if err == io.EOF {
		p.closed = true
		if line == "" {
			return "", io.EOF
		}
		err = nil
	}
	if err != nil {
		return "", err
	}
	p.line++
	return strings.TrimRight(line, "\r\n"), nil
}

// comment records the information held by a comment line, if any.
func (p *Parser) comment(fields []string, res *Parsed) error {
	if len(fields) < 3 {
		return nil
	}
	switch fields[1] {
	case "seconds":
		secs, err := strconv.ParseFloat(fields[len(fields)-1], 64)
		if err != nil {
			return &ParseError{Line: p.line, Msg: fmt.Sprintf("invalid generation time %q", fields[len(fields)-1])}
		}
		res.Seconds, res.HasSeconds = secs, true
	case "pid":
		pid, err := strconv.Atoi(fields[len(fields)-1])
		if err != nil {
			return &ParseError{Line: p.line, Msg: fmt.Sprintf("invalid pid %q", fields[len(fields)-1])}
		}
		p.pid = pid
	}
	return nil
}

// Next reads the next join tree from the stream.
//
// The returned Parsed always holds the latest planner pid seen so far, even along with an error.
// When the stream ends before any header, Next returns io.EOF.
// A tree whose node list is ended by the end of the stream rather than by '=' is returned without error.
func (p *Parser) Next() (Parsed, error) {
	var res Parsed
	fail := func(err error) (Parsed, error) {
		res.PID = p.pid
		return res, err
	}
	// Header
	for {
		line, err := p.readLine()
		if err != nil {
			return fail(err)
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if strings.HasPrefix(fields[0], "c") {
			if err := p.comment(fields, &res); err != nil {
				return fail(err)
			}
			continue
		}
		if fields[0] != "p" || len(fields) < 2 || fields[1] != "jt" {
			return fail(&ParseError{Line: p.line, Msg: fmt.Sprintf("unknown line before header: %q", line)})
		}
		if len(fields) != 5 {
			return fail(&ParseError{Line: p.line, Msg: fmt.Sprintf("expected 5 fields in header, got %d", len(fields))})
		}
		nums, err := atois(fields[2:])
		if err != nil {
			return fail(&ParseError{Line: p.line, Msg: fmt.Sprintf("invalid header %q: %v", line, err)})
		}
		res.Tree = New(nums[1], nums[2])
		break
	}
	// Internal nodes
	for {
		line, err := p.readLine()
		if err == io.EOF {
			break
		}
		if err != nil {
			res.Tree = nil
			return fail(err)
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if strings.HasPrefix(fields[0], "c") {
			if err := p.comment(fields, &res); err != nil {
				res.Tree = nil
				return fail(err)
			}
			continue
		}
		if strings.HasPrefix(fields[0], "=") {
			break
		}
		if err := p.node(res.Tree, fields); err != nil {
			res.Tree = nil
			return fail(&ParseError{Line: p.line, Msg: err.Error()})
		}
	}
	res.PID = p.pid
	return res, nil
}

// node parses a line "<id> <child_n> ... <child_1> e <var_1> ... <var_k>" and adds the node to jt.
// Children are stored in the reverse of their textual order.
func (p *Parser) node(jt *JoinTree, fields []string) error {
	sep := -1
	for i, field := range fields {
		if field == "e" {
			sep = i
			break
		}
	}
	if sep == -1 {
		return fmt.Errorf("line does not contain 'e': %q", strings.Join(fields, " "))
	}
	if sep == 0 {
		return fmt.Errorf("missing node id")
	}
	id, err := strconv.Atoi(fields[0])
	if err != nil {
		return fmt.Errorf("invalid node id %q", fields[0])
	}
	textual, err := atois(fields[1:sep])
	if err != nil {
		return fmt.Errorf("invalid child of node %d: %v", id, err)
	}
	children := make([]int, len(textual))
	for i, c := range textual {
		children[len(textual)-1-i] = c
	}
	projected, err := atois(fields[sep+1:])
	if err != nil {
		return fmt.Errorf("invalid projected variable of node %d: %v", id, err)
	}
	return jt.AddNode(id, children, projected)
}

func atois(fields []string) ([]int, error) {
	res := make([]int, len(fields))
	for i, field := range fields {
		n, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("%q is not an int", field)
		}
		res[i] = n
	}
	return res, nil
}

// Parse reads a single join tree from r.
func Parse(r io.Reader) (*JoinTree, error) {
	p := NewParser(r)
	res, err := p.Next()
	if err == io.EOF {
		return nil, &ParseError{Line: p.line, Msg: "no header found"}
	}
	if err != nil {
		return nil, err
	}
	return res.Tree, nil
}
