package formula

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// A ParseError is returned when a CNF stream is malformed.
type ParseError struct {
	Line int    // 1-based line number, 0 if unknown
	Msg  string // What went wrong
}

func (e *ParseError) Error() string {
	if e.Line == 0 {
		return fmt.Sprintf("cnf: %s", e.Msg)
	}
	return fmt.Sprintf("cnf: line %d: %s", e.Line, e.Msg)
}

// ParseSlice parses a slice of slice of lits and returns the equivalent unweighted formula.
func ParseSlice(cnf [][]int) (*Formula, error) {
	f := New()
	for _, clause := range cnf {
		if err := f.AddClause(clause); err != nil {
			return nil, &ParseError{Msg: err.Error()}
		}
	}
	return f, nil
}

// ParseDIMACS parses a DIMACS CNF stream, with optional weights, and returns the corresponding formula.
//
// Weights can be given in three ways:
//
//	c weights w1 -w1 w2 -w2 ...  (positive then negative weight of each var, in order)
//	w <var> <prob>               (weight prob for var, 1-prob for its negation, -1 means unweighted)
//	c p weight <lit> <w> [0]     (weight of a single literal)
func ParseDIMACS(r io.Reader) (*Formula, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 64*1024*1024)
	var (
		f       = New()
		lits    []int
		nbLine  int
		hasHead bool
	)
	for sc.Scan() {
		nbLine++
		line := sc.Text()
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		var err error
		switch {
		case fields[0] == "c" && len(fields) > 1 && fields[1] == "weights":
			err = f.parseWeights(fields[2:])
		case fields[0] == "c" && len(fields) > 2 && fields[1] == "p" && fields[2] == "weight":
			err = f.parseLiteralWeight(fields)
		case fields[0][0] == 'c' || fields[0][0] == '%':
			continue
		case fields[0] == "p":
			if hasHead {
				err = fmt.Errorf("duplicate header %q", line)
			} else {
				hasHead = true
				err = f.parseHeader(fields)
			}
		case fields[0] == "w":
			err = f.parseCachetWeight(fields)
		case !hasHead && !isInt(fields[0]):
			continue // Unknown line before the header
		default:
			lits, err = f.parseClause(fields, lits)
		}
		if err != nil {
			return nil, &ParseError{Line: nbLine, Msg: err.Error()}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, &ParseError{Line: nbLine, Msg: fmt.Sprintf("could not read formula: %v", err)}
	}
	if len(lits) != 0 { // Last clause is not terminated by 0: that's ok
		if err := f.AddClause(lits); err != nil {
			return nil, &ParseError{Line: nbLine, Msg: err.Error()}
		}
	}
	return f, nil
}

func (f *Formula) parseHeader(fields []string) error {
	if len(fields) != 4 {
		return fmt.Errorf("expected 4 fields in header, got %d", len(fields))
	}
	if fields[1] != "cnf" {
		return fmt.Errorf("unknown problem type %q", fields[1])
	}
	nbVars, err := strconv.Atoi(fields[2])
	if err != nil || nbVars < 0 {
		return fmt.Errorf("nbvars not a positive int: %q", fields[2])
	}
	nbClauses, err := strconv.Atoi(fields[3])
	if err != nil || nbClauses < 0 {
		return fmt.Errorf("nbclauses not a positive int: %q", fields[3])
	}
	if nbVars > f.NbVars {
		f.NbVars = nbVars
	}
	if f.clauses == nil {
		f.clauses = make([][]int, 0, min(nbClauses, 1<<16))
	}
	return nil
}

// parseClause reads the literals on a line.
// A clause ends at the 0 literal and may span several lines, so pending literals are carried over.
func (f *Formula) parseClause(fields []string, pending []int) ([]int, error) {
	for _, field := range fields {
		lit, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("invalid literal %q", field)
		}
		if lit != 0 {
			pending = append(pending, lit)
			continue
		}
		if err := f.AddClause(pending); err != nil {
			return nil, err
		}
		pending = nil
	}
	return pending, nil
}

func (f *Formula) parseWeights(fields []string) error {
	for i := 0; i+1 < len(fields); i += 2 {
		pos, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return fmt.Errorf("invalid weight %q", fields[i])
		}
		neg, err := strconv.ParseFloat(fields[i+1], 64)
		if err != nil {
			return fmt.Errorf("invalid weight %q", fields[i+1])
		}
		f.SetWeight(i/2+1, neg, pos)
	}
	return nil
}

func (f *Formula) parseCachetWeight(fields []string) error {
	if len(fields) < 3 {
		return fmt.Errorf("expected 3 fields in weight line, got %d", len(fields))
	}
	v, err := strconv.Atoi(fields[1])
	if err != nil || v <= 0 {
		return fmt.Errorf("invalid var %q in weight line", fields[1])
	}
	prob, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return fmt.Errorf("invalid weight %q", fields[2])
	}
	if prob == -1 {
		f.SetWeight(v, 1, 1)
	} else {
		f.SetWeight(v, 1-prob, prob)
	}
	return nil
}

func (f *Formula) parseLiteralWeight(fields []string) error {
	if len(fields) != 5 && !(len(fields) == 6 && fields[5] == "0") {
		return fmt.Errorf("expected 'c p weight <lit> <weight> [0]', got %d fields", len(fields))
	}
	lit, err := strconv.Atoi(fields[3])
	if err != nil || lit == 0 {
		return fmt.Errorf("invalid literal %q in weight line", fields[3])
	}
	w, err := strconv.ParseFloat(fields[4], 64)
	if err != nil {
		return fmt.Errorf("invalid weight %q", fields[4])
	}
	if w < 0 {
		return fmt.Errorf("literal weight must be non-negative, got %v", w)
	}
	f.setLiteralWeight(lit, w)
	return nil
}

func isInt(field string) bool {
	_, err := strconv.Atoi(field)
	return err == nil
}
