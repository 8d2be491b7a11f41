package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Collector gathers operator-supplied values, falling back to defaults on
// empty input. It performs no validation beyond non-emptiness; malformed
// values surface later as configuration or proxy errors.
type Collector struct {
	in  *bufio.Reader
	out io.Writer
	// fd of the input when it is a terminal, -1 otherwise. Terminal input
	// lets AskSecret suppress echo.
	fd int
}

// NewCollector reads prompts answers from in and writes prompts to out.
func NewCollector(in io.Reader, out io.Writer) *Collector {
	c := &Collector{in: bufio.NewReader(in), out: out, fd: -1}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		c.fd = int(f.Fd())
	}
	return c
}

// Ask prompts and returns the entered value, or def when the operator
// just presses enter.
func (c *Collector) Ask(prompt, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(c.out, "%s [%s]: ", prompt, def)
	} else {
		fmt.Fprintf(c.out, "%s: ", prompt)
	}
	line, err := c.readLine()
	if err != nil {
		return "", err
	}
	if line == "" {
		return def, nil
	}
	return line, nil
}

// AskRequired prompts until a non-empty value is entered.
func (c *Collector) AskRequired(prompt string) (string, error) {
	for {
		v, err := c.Ask(prompt, "")
		if err != nil {
			return "", err
		}
		if v != "" {
			return v, nil
		}
		fmt.Fprintln(c.out, "a value is required")
	}
}

// AskSecret prompts without echoing when the input is a terminal.
func (c *Collector) AskSecret(prompt string) (string, error) {
	if c.fd < 0 {
		return c.AskRequired(prompt)
	}
	for {
		fmt.Fprintf(c.out, "%s: ", prompt)
		raw, err := term.ReadPassword(c.fd)
		fmt.Fprintln(c.out)
		if err != nil {
			return "", fmt.Errorf("read secret input: %w", err)
		}
		v := strings.TrimSpace(string(raw))
		if v != "" {
			return v, nil
		}
		fmt.Fprintln(c.out, "a value is required")
	}
}

func (c *Collector) readLine() (string, error) {
	line, err := c.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}
