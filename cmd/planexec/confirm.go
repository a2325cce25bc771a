package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// terminalConfirmer asks yes/no questions on the controlling terminal. An
// empty answer takes the default; anything other than y/yes or n/no falls
// back to the default as well.
type terminalConfirmer struct {
	in  io.Reader
	out io.Writer
}

func (c *terminalConfirmer) Confirm(prompt string, def bool) (bool, error) {
	in := c.in
	if in == nil {
		in = os.Stdin
	}
	out := c.out
	if out == nil {
		out = os.Stderr
	}

	hint := "[y/N]"
	if def {
		hint = "[Y/n]"
	}
	fmt.Fprintf(out, "%s %s: ", prompt, hint)

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false, fmt.Errorf("could not read confirmation: %w", err)
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	case "n", "no":
		return false, nil
	default:
		return def, nil
	}
}
