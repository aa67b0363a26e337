package ux

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// StdinConfirmer is the interactive user-interaction collaborator. It
// satisfies the pipeline's Confirmer contract.
type StdinConfirmer struct {
	In io.Reader
}

// NewStdinConfirmer reads answers from os.Stdin.
func NewStdinConfirmer() *StdinConfirmer {
	return &StdinConfirmer{In: os.Stdin}
}

// Confirm prints the prompt and reads a y/n answer.
func (c *StdinConfirmer) Confirm(prompt string) (bool, error) {
	fmt.Printf("%s\n  [y to continue / n to abort]: ", prompt)
	reader := bufio.NewReader(c.In)
	line, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// ReviewMapping tells the user where the mapping lives and waits for
// acknowledgement; edits happen in their editor of choice.
func (c *StdinConfirmer) ReviewMapping(path string) error {
	fmt.Printf("\n  Review the font label mapping before hierarchy is applied:\n    %s\n", path)
	fmt.Printf("  Edit the file if needed, then press Enter to continue: ")
	reader := bufio.NewReader(c.In)
	_, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return err
	}
	return nil
}
