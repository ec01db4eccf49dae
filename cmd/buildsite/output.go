package main

import (
	"fmt"
	"io"
)

var colorEnabled = true

func setColor(enabled bool) {
	colorEnabled = enabled
}

func colorize(code, text string) string {
	if !colorEnabled {
		return text
	}
	return "\033[" + code + "m" + text + "\033[0m"
}

func cyan(s string) string   { return colorize("36", s) }
func yellow(s string) string { return colorize("33", s) }
func red(s string) string    { return colorize("31", s) }
func green(s string) string  { return colorize("32", s) }
func dim(s string) string    { return colorize("2", s) }

// printError prints msg in red, followed by detail when given
func printError(w io.Writer, msg string, detail ...interface{}) {
	if len(detail) > 0 && detail[0] != nil {
		msg = fmt.Sprintf("%s: %v", msg, detail[0])
	}
	fmt.Fprintln(w, red(msg))
}

func printSuccess(w io.Writer, msg string) {
	fmt.Fprintln(w, green(msg))
}

func printInfo(w io.Writer, label, value string) {
	fmt.Fprintf(w, "%s: %s\n", cyan(label), yellow(value))
}

func printWarning(w io.Writer, msg string) {
	fmt.Fprintln(w, yellow(msg))
}
