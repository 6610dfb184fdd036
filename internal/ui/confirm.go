package ui

import (
	"errors"

	"github.com/manifoldco/promptui"
)

// Confirmer asks the user a yes/no question.
type Confirmer interface {
	Confirm(label string) (bool, error)
}

// PromptConfirmer asks on the terminal. AssumeYes answers every question
// without prompting.
type PromptConfirmer struct {
	AssumeYes bool
}

// Confirm returns true when the user answers yes.
func (c PromptConfirmer) Confirm(label string) (bool, error) {
	if c.AssumeYes {
		return true, nil
	}
	prompt := promptui.Prompt{
		Label:     label,
		IsConfirm: true,
	}
	if _, err := prompt.Run(); err != nil {
		if errors.Is(err, promptui.ErrAbort) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
