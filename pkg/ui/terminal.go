package ui

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// Logo is printed at the top of interactive commands
const Logo = `
  ┌─┐┌─┐┌─┐┌┬┐┬┌─┐┌─┐┌┬┐┌─┐┬ ┬
  └─┐├─┘│ │ │ │├┤ ├┤  │ │  ├─┤
  └─┘┴  └─┘ ┴ ┴└  └─┘ ┴ └─┘┴ ┴
  artist track collector for the Spotify Web API
`

var (
	mu      sync.Mutex
	out     io.Writer = os.Stdout
	errOut  io.Writer = os.Stderr
	noColor bool
	quiet   bool
)

// SetOutput redirects normal and error output, mainly for tests
func SetOutput(stdout, stderr io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out, errOut = stdout, stderr
}

// SetNoColor disables ANSI colors
func SetNoColor(v bool) {
	mu.Lock()
	defer mu.Unlock()
	noColor = v
}

// SetQuietMode suppresses everything except errors and the final summary
func SetQuietMode(v bool) {
	mu.Lock()
	defer mu.Unlock()
	quiet = v
}

// Color functions for terminal output
var (
	Cyan    = colorize("\033[36m%s\033[0m")
	Yellow  = colorize("\033[33m%s\033[0m")
	Red     = colorize("\033[31m%s\033[0m")
	Green   = colorize("\033[32m%s\033[0m")
	Magenta = colorize("\033[35m%s\033[0m")
	Dim     = colorize("\033[2m%s\033[0m")
)

func colorize(colorString string) func(string) string {
	return func(text string) string {
		mu.Lock()
		plain := noColor
		mu.Unlock()
		if plain {
			return text
		}
		return fmt.Sprintf(colorString, text)
	}
}

func write(w func() io.Writer, skipWhenQuiet bool, text string) {
	mu.Lock()
	q := quiet
	mu.Unlock()
	if q && skipWhenQuiet {
		return
	}
	fmt.Fprint(w(), text)
}

func stdout() io.Writer {
	mu.Lock()
	defer mu.Unlock()
	return out
}

func stderr() io.Writer {
	mu.Lock()
	defer mu.Unlock()
	return errOut
}

// PrintLogo prints the logo
func PrintLogo() {
	write(stdout, true, Green(Logo)+"\n")
}

// PrintError prints an error message in red to stderr
func PrintError(msg string, args ...interface{}) {
	if len(args) > 0 {
		msg = msg + ": " + fmt.Sprintf("%v", args[0])
	}
	write(stderr, false, Red(msg)+"\n")
}

// PrintSuccess prints a success message in green
func PrintSuccess(msg string) {
	write(stdout, true, Green(msg)+"\n")
}

// PrintInfo prints a label and value
func PrintInfo(label string, value string) {
	write(stdout, true, fmt.Sprintf("%s: %s\n", Cyan(label), Yellow(value)))
}

// PrintWarning prints a warning message in yellow
func PrintWarning(msg string, args ...interface{}) {
	if len(args) > 0 {
		msg = msg + ": " + fmt.Sprintf("%v", args[0])
	}
	write(stderr, true, Yellow(msg)+"\n")
}

// PrintHighlight prints a highlighted message in magenta
func PrintHighlight(msg string) {
	write(stdout, true, Magenta(msg)+"\n")
}

// PrintSummary prints the result line of a collection run. It is shown
// even in quiet mode.
func PrintSummary(artist string, tracks int) {
	write(stdout, false, Green(fmt.Sprintf("Downloaded %d tracks for %s!", tracks, artist))+"\n")
}
