package main

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

type statusKind int

const (
	statusSuccess statusKind = iota
	statusFailure
)

// printStatus writes a one-line status marker, colorized when the writer
// is a terminal.
func printStatus(writer io.Writer, kind statusKind, message string) {
	marker := "ok"
	color := "\033[32m"
	if kind == statusFailure {
		marker = "failed"
		color = "\033[31m"
	}

	if shouldColorize(writer) {
		fmt.Fprintf(writer, "%s%s\033[0m %s\n", color, marker, message)
		return
	}
	fmt.Fprintf(writer, "%s %s\n", marker, message)
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
