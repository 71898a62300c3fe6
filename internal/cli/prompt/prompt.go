// Package prompt asks interactive questions on the terminal.
package prompt

import (
	"errors"
	"strings"

	"github.com/manifoldco/promptui"
)

// ErrAborted is returned when the user presses Ctrl+C.
var ErrAborted = errors.New("aborted")

func wrap(err error) error {
	if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
		return ErrAborted
	}
	return err
}

// Confirm asks a yes/no question. An empty answer picks defaultYes.
func Confirm(label string, defaultYes bool) (bool, error) {
	hint := "y/N"
	if defaultYes {
		hint = "Y/n"
	}
	p := promptui.Prompt{Label: label + " [" + hint + "]"}

	answer, err := p.Run()
	if err != nil {
		return false, wrap(err)
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "":
		return defaultYes, nil
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// Input asks for a line of text. validate may be nil.
func Input(label, defaultValue string, validate func(string) error) (string, error) {
	p := promptui.Prompt{
		Label:    label,
		Default:  defaultValue,
		Validate: validate,
	}
	answer, err := p.Run()
	return strings.TrimSpace(answer), wrap(err)
}

// Select asks the user to pick one of items. The cursor starts on
// defaultValue when it is present.
func Select(label string, items []string, defaultValue string) (string, error) {
	p := promptui.Select{
		Label: label,
		Items: items,
		Size:  len(items),
	}
	for i, it := range items {
		if it == defaultValue {
			p.CursorPos = i
		}
	}
	_, answer, err := p.Run()
	return answer, wrap(err)
}
