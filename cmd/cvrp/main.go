// Command cvrp solves CVRP instances from VRPLIB files on the command line.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
