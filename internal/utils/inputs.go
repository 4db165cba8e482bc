package utils

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// PromptYesNo prompts for a yes/no answer on writer, reading from reader.
// It re-asks on unrecognized input and returns false at end of input.
func PromptYesNo(prompt string, reader io.Reader, writer io.Writer) bool {
	scanner := bufio.NewScanner(reader)

	for {
		_, _ = fmt.Fprintf(writer, "%s (y/n): ", prompt)
		if !scanner.Scan() {
			return false
		}

		switch strings.TrimSpace(strings.ToLower(scanner.Text())) {
		case "y", "yes":
			return true
		case "n", "no":
			return false
		}
	}
}
