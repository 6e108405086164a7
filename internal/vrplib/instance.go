// Package vrplib reads CVRP instances in the VRPLIB (TSPLIB-style) and
// Solomon text formats and reads and writes VRPLIB solution files.
package vrplib

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"cvrpsolver/internal/opt"
)

// ErrFormat is returned for input that cannot be parsed.
var ErrFormat = errors.New("vrplib: malformed input")

// Header holds the keyword lines at the top of a VRPLIB file.
type Header struct {
	Name             string
	Type             string
	Comment          string
	Dimension        int
	Capacity         int
	EdgeWeightType   string
	EdgeWeightFormat string
}

// ReadInstance opens path and parses it as VRPLIB, falling back to the
// Solomon layout when the file has no VRPLIB header.
func ReadInstance(path string) (*opt.Instance, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	inst, err := ParseInstance(f)
	if err == nil || !errors.Is(err, errNoHeader) {
		return inst, wrapPath(path, err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	inst, err = ParseSolomon(f)
	return inst, wrapPath(path, err)
}

func wrapPath(path string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", filepath.Base(path), err)
}

var errNoHeader = fmt.Errorf("%w: no DIMENSION header", ErrFormat)

// ParseInstance parses a VRPLIB instance. The depot must be node 1; it
// becomes index 0 of the returned instance and customer ids shift down by
// one, which is the numbering used by VRPLIB solution files.
func ParseInstance(r io.Reader) (*opt.Instance, error) {
	var (
		h       Header
		section string
		coords  [][2]float64
		demand  []int
		depots  []int
		weights []float64
		seen    = map[string]bool{}
	)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if line == "EOF" {
			break
		}
		if key, val, ok := headerLine(line); ok {
			section = ""
			if err := h.set(key, val); err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			continue
		}
		fields := strings.Fields(line)
		if strings.HasSuffix(fields[0], "_SECTION") {
			section = fields[0]
			seen[section] = true
			if h.Dimension <= 0 {
				return nil, errNoHeader
			}
			switch section {
			case "NODE_COORD_SECTION":
				coords = make([][2]float64, h.Dimension)
			case "DEMAND_SECTION":
				demand = make([]int, h.Dimension)
			}
			continue
		}
		var err error
		switch section {
		case "NODE_COORD_SECTION":
			err = parseCoord(fields, coords)
		case "DEMAND_SECTION":
			err = parseDemand(fields, demand)
		case "DEPOT_SECTION":
			for _, f := range fields {
				id, perr := strconv.Atoi(f)
				if perr != nil {
					err = perr
					break
				}
				if id != -1 {
					depots = append(depots, id)
				}
			}
		case "EDGE_WEIGHT_SECTION":
			for _, f := range fields {
				w, perr := strconv.ParseFloat(f, 64)
				if perr != nil {
					err = perr
					break
				}
				weights = append(weights, w)
			}
		case "":
			if h.Dimension <= 0 {
				return nil, errNoHeader
			}
			err = fmt.Errorf("unexpected data outside a section")
		default:
			// sections that do not affect the capacitated model
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrFormat, lineNo, err)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if h.Dimension <= 0 {
		return nil, errNoHeader
	}
	if h.Capacity <= 0 {
		return nil, fmt.Errorf("%w: missing CAPACITY", ErrFormat)
	}
	if !seen["DEMAND_SECTION"] {
		return nil, fmt.Errorf("%w: missing DEMAND_SECTION", ErrFormat)
	}
	if len(depots) > 0 && (len(depots) != 1 || depots[0] != 1) {
		return nil, fmt.Errorf("%w: depot must be node 1, got %v", ErrFormat, depots)
	}

	var matrix [][]float64
	if seen["EDGE_WEIGHT_SECTION"] {
		m, err := expandWeights(h.EdgeWeightFormat, h.Dimension, weights)
		if err != nil {
			return nil, err
		}
		matrix = m
	}
	if !seen["NODE_COORD_SECTION"] {
		coords = nil
	}
	inst, err := opt.NewInstance(h.Name, h.Dimension, h.Capacity, demand, matrix, coords)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	return inst, nil
}

// headerLine splits "KEY : VALUE". Keys are upper case identifiers.
func headerLine(line string) (string, string, bool) {
	key, val, ok := strings.Cut(line, ":")
	if !ok {
		return "", "", false
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", "", false
	}
	for _, r := range key {
		if (r < 'A' || r > 'Z') && r != '_' {
			return "", "", false
		}
	}
	return key, strings.TrimSpace(val), true
}

func (h *Header) set(key, val string) error {
	var err error
	switch key {
	case "NAME":
		h.Name = val
	case "TYPE":
		h.Type = val
	case "COMMENT":
		h.Comment = val
	case "DIMENSION":
		h.Dimension, err = strconv.Atoi(val)
	case "CAPACITY":
		h.Capacity, err = strconv.Atoi(val)
	case "EDGE_WEIGHT_TYPE":
		h.EdgeWeightType = val
	case "EDGE_WEIGHT_FORMAT":
		h.EdgeWeightFormat = val
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrFormat, key, err)
	}
	return nil
}

func nodeIndex(field string, n int) (int, error) {
	id, err := strconv.Atoi(field)
	if err != nil {
		return 0, err
	}
	if id < 1 || id > n {
		return 0, fmt.Errorf("node %d out of range 1..%d", id, n)
	}
	return id - 1, nil
}

func parseCoord(fields []string, coords [][2]float64) error {
	if len(fields) < 3 {
		return fmt.Errorf("want id x y, got %q", strings.Join(fields, " "))
	}
	i, err := nodeIndex(fields[0], len(coords))
	if err != nil {
		return err
	}
	for k := 0; k < 2; k++ {
		v, err := strconv.ParseFloat(fields[k+1], 64)
		if err != nil {
			return err
		}
		coords[i][k] = v
	}
	return nil
}

func parseDemand(fields []string, demand []int) error {
	if len(fields) < 2 {
		return fmt.Errorf("want id demand, got %q", strings.Join(fields, " "))
	}
	i, err := nodeIndex(fields[0], len(demand))
	if err != nil {
		return err
	}
	demand[i], err = strconv.Atoi(fields[1])
	return err
}

// expandWeights builds a full n×n matrix from an EDGE_WEIGHT_SECTION.
func expandWeights(format string, n int, w []float64) ([][]float64, error) {
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
	}
	k := 0
	next := func() (float64, bool) {
		if k >= len(w) {
			return 0, false
		}
		k++
		return w[k-1], true
	}
	sym := func(i, j int) bool {
		v, ok := next()
		m[i][j], m[j][i] = v, v
		return ok
	}
	ok := true
	switch format {
	case "FULL_MATRIX":
		for i := 0; i < n && ok; i++ {
			for j := 0; j < n && ok; j++ {
				m[i][j], ok = next()
			}
		}
	case "LOWER_ROW":
		for i := 1; i < n && ok; i++ {
			for j := 0; j < i && ok; j++ {
				ok = sym(i, j)
			}
		}
	case "LOWER_DIAG_ROW":
		for i := 0; i < n && ok; i++ {
			for j := 0; j <= i && ok; j++ {
				ok = sym(i, j)
			}
		}
	case "UPPER_ROW":
		for i := 0; i < n && ok; i++ {
			for j := i + 1; j < n && ok; j++ {
				ok = sym(i, j)
			}
		}
	case "UPPER_DIAG_ROW":
		for i := 0; i < n && ok; i++ {
			for j := i; j < n && ok; j++ {
				ok = sym(i, j)
			}
		}
	default:
		return nil, fmt.Errorf("%w: unsupported EDGE_WEIGHT_FORMAT %q", ErrFormat, format)
	}
	if !ok || k != len(w) {
		return nil, fmt.Errorf("%w: %s with dimension %d cannot hold %d weights", ErrFormat, format, n, len(w))
	}
	return m, nil
}

// ParseSolomon parses the Solomon benchmark layout. Time windows and service
// times are ignored; customer 0 is the depot.
func ParseSolomon(r io.Reader) (*opt.Instance, error) {
	var (
		name     string
		capacity int
		coords   [][2]float64
		demand   []int
		state    int // 0 name, 1 vehicle header, 2 vehicle row, 3 customers
	)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		switch {
		case state == 0:
			name = line
			state = 1
		case strings.EqualFold(fields[0], "NUMBER"):
			state = 2
		case state == 2:
			if len(fields) < 2 {
				return nil, fmt.Errorf("%w: vehicle row %q", ErrFormat, line)
			}
			c, err := strconv.Atoi(fields[1])
			if err != nil {
				return nil, fmt.Errorf("%w: capacity: %v", ErrFormat, err)
			}
			capacity = c
			state = 1
		case strings.HasPrefix(strings.ToUpper(fields[0]), "CUST"):
			state = 3
		case state == 3:
			if len(fields) < 4 {
				return nil, fmt.Errorf("%w: customer row %q", ErrFormat, line)
			}
			id, err := strconv.Atoi(fields[0])
			if err != nil || id != len(coords) {
				return nil, fmt.Errorf("%w: customer row %q out of sequence", ErrFormat, line)
			}
			x, errX := strconv.ParseFloat(fields[1], 64)
			y, errY := strconv.ParseFloat(fields[2], 64)
			d, errD := strconv.Atoi(fields[3])
			if err := errors.Join(errX, errY, errD); err != nil {
				return nil, fmt.Errorf("%w: customer %d: %v", ErrFormat, id, err)
			}
			coords = append(coords, [2]float64{x, y})
			demand = append(demand, d)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(coords) == 0 || capacity <= 0 {
		return nil, fmt.Errorf("%w: not a Solomon instance", ErrFormat)
	}
	inst, err := opt.NewInstance(name, len(coords), capacity, demand, nil, coords)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	return inst, nil
}
