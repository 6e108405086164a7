package vrplib

import (
	"bufio"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Reference is a known solution read from a .sol file.
type Reference struct {
	Routes [][]int
	Cost   float64
}

// ReadSolution reads a VRPLIB solution file.
func ReadSolution(path string) (Reference, error) {
	f, err := os.Open(path)
	if err != nil {
		return Reference{}, err
	}
	defer f.Close()
	ref, err := ParseSolution(f)
	return ref, wrapPath(path, err)
}

// ParseSolution reads "Route #k: c1 c2 ..." lines and the "Cost" line.
// Other lines are ignored.
func ParseSolution(r io.Reader) (Reference, error) {
	var ref Reference
	hasCost := false
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case strings.HasPrefix(line, "Route"):
			_, body, ok := strings.Cut(line, ":")
			if !ok {
				return Reference{}, fmt.Errorf("%w: route line %q", ErrFormat, line)
			}
			var route []int
			for _, f := range strings.Fields(body) {
				c, err := strconv.Atoi(f)
				if err != nil {
					return Reference{}, fmt.Errorf("%w: route line %q: %v", ErrFormat, line, err)
				}
				route = append(route, c)
			}
			ref.Routes = append(ref.Routes, route)
		case strings.HasPrefix(strings.ToLower(line), "cost"):
			fields := strings.Fields(line)
			if len(fields) < 2 {
				return Reference{}, fmt.Errorf("%w: cost line %q", ErrFormat, line)
			}
			c, err := strconv.ParseFloat(fields[len(fields)-1], 64)
			if err != nil {
				return Reference{}, fmt.Errorf("%w: cost line %q: %v", ErrFormat, line, err)
			}
			ref.Cost = c
			hasCost = true
		}
	}
	if err := sc.Err(); err != nil {
		return Reference{}, err
	}
	if !hasCost {
		return Reference{}, fmt.Errorf("%w: no Cost line", ErrFormat)
	}
	return ref, nil
}

// WriteSolution writes routes in VRPLIB solution format with the cost
// rounded to an integer.
func WriteSolution(w io.Writer, routes [][]int, cost float64) error {
	bw := bufio.NewWriter(w)
	for i, r := range routes {
		ids := make([]string, len(r))
		for k, c := range r {
			ids[k] = strconv.Itoa(c)
		}
		fmt.Fprintf(bw, "Route #%d: %s\n", i+1, strings.Join(ids, " "))
	}
	fmt.Fprintf(bw, "Cost %.0f\n", cost)
	return bw.Flush()
}

// SaveSolution writes <dir>/<instance>_computed.sol and returns its path.
func SaveSolution(dir, instance string, routes [][]int, cost float64) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, InstanceName(instance)+"_computed.sol")
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := WriteSolution(f, routes, cost); err != nil {
		f.Close()
		return "", err
	}
	return path, f.Close()
}

// InstanceName strips the directory and a .vrp or .txt extension.
func InstanceName(path string) string {
	base := filepath.Base(path)
	for _, ext := range []string{".vrp", ".txt"} {
		if strings.HasSuffix(base, ext) {
			return strings.TrimSuffix(base, ext)
		}
	}
	return base
}

// ReferencePath is the .sol file next to an instance file.
func ReferencePath(instancePath string) string {
	return filepath.Join(filepath.Dir(instancePath), InstanceName(instancePath)+".sol")
}

// ListInstances returns the sorted .vrp files under dir. A missing
// directory yields no instances.
func ListInstances(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == dir && os.IsNotExist(err) {
				return filepath.SkipAll
			}
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".vrp") {
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}
