// Package main provides the treeline command-line tool.
package main

import "github.com/treeline-data/treeline/internal/cli"

func main() {
	cli.Execute()
}
