package refs

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoInput is returned by Compose when no input source is given.
var ErrNoInput = errors.New("no input provided: specify prompt, ref, refs, or prompt_ref")

// Separator joins multiple references in a composed input.
const Separator = "\n\n---\n\n"

// Input names the places a tool can take its text from.
type Input struct {
	Prompt    string
	Ref       string
	Refs      []string
	PromptRef string
}

// Kind reports which source Compose will use: single_reference,
// multiple_references, prompt_reference, direct_prompt, or none.
func (in Input) Kind() string {
	switch {
	case in.Ref != "":
		return "single_reference"
	case len(in.Refs) > 0:
		return "multiple_references"
	case in.PromptRef != "":
		return "prompt_reference"
	case in.Prompt != "":
		return "direct_prompt"
	default:
		return "none"
	}
}

// Compose resolves the input text with priority ref > refs > prompt_ref >
// prompt. Every named reference must exist.
func Compose(store Store, in Input) (string, error) {
	switch in.Kind() {
	case "single_reference":
		ref, err := store.Get(in.Ref)
		if err != nil {
			return "", err
		}
		return ref.Content, nil
	case "multiple_references":
		parts := make([]string, 0, len(in.Refs))
		for _, name := range in.Refs {
			ref, err := store.Get(name)
			if err != nil {
				return "", fmt.Errorf("composing refs: %w", err)
			}
			parts = append(parts, ref.Content)
		}
		return strings.Join(parts, Separator), nil
	case "prompt_reference":
		ref, err := store.Get(in.PromptRef)
		if err != nil {
			return "", err
		}
		return ref.Content, nil
	case "direct_prompt":
		return in.Prompt, nil
	default:
		return "", ErrNoInput
	}
}
