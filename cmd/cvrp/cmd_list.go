package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"cvrpsolver/internal/vrplib"
)

func runList(cmd *cobra.Command, dir string) error {
	paths, err := vrplib.ListInstances(dir)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(paths) == 0 {
		fmt.Fprintf(out, "no instances under %s\n", dir)
		return nil
	}
	for i, p := range paths {
		fmt.Fprintf(out, "%3d  %s\n", i+1, p)
	}
	return nil
}

// selectInstance lists paths and reads a 1-based choice from in.
func selectInstance(in io.Reader, out io.Writer, paths []string) (string, error) {
	if len(paths) == 0 {
		return "", fmt.Errorf("no instances found")
	}
	fmt.Fprintln(out, "Available instances:")
	for i, p := range paths {
		fmt.Fprintf(out, "%3d  %s\n", i+1, vrplib.InstanceName(p))
	}
	sc := bufio.NewScanner(in)
	for {
		fmt.Fprintf(out, "Select instance [1-%d]: ", len(paths))
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return "", err
			}
			return "", fmt.Errorf("no instance selected")
		}
		n, err := strconv.Atoi(strings.TrimSpace(sc.Text()))
		if err == nil && n >= 1 && n <= len(paths) {
			return paths[n-1], nil
		}
		fmt.Fprintln(out, "invalid choice")
	}
}
