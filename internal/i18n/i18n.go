// Package i18n maps supported response languages to the prompt directives
// that steer the model's output language.
package i18n

import "fmt"

// Language is a supported response language code.
type Language string

const (
	English    Language = "en"
	Hindi      Language = "hi"
	Marathi    Language = "mr"
	Punjabi    Language = "pa"
	Rajasthani Language = "raj"
)

// Default is the language used when a user has not picked one.
const Default = English

// Parse validates a language code.
func Parse(code string) (Language, error) {
	switch l := Language(code); l {
	case English, Hindi, Marathi, Punjabi, Rajasthani:
		return l, nil
	default:
		return "", fmt.Errorf("i18n: unsupported language %q", code)
	}
}

// ChatDirective returns the instruction appended to text chat prompts.
func (l Language) ChatDirective() string {
	switch l {
	case Hindi:
		return "Respond in Hindi (Devanagari script)."
	case Marathi:
		return "Respond in Marathi (Devanagari script)."
	case Punjabi:
		return "Respond in Punjabi (Gurmukhi script)."
	case Rajasthani:
		return "Respond in Rajasthani or simple Hindi."
	default:
		return "Respond in English."
	}
}

// VoiceDirective returns the instruction appended to the live voice system
// prompt. The wording differs slightly from ChatDirective to match how the
// speech models are steered.
func (l Language) VoiceDirective() string {
	switch l {
	case Hindi:
		return "Respond in Hindi (Devanagari)."
	case Marathi:
		return "Respond in Marathi (Devanagari)."
	case Punjabi:
		return "Respond in Punjabi (Gurmukhi)."
	case Rajasthani:
		return "Respond in Rajasthani or Hindi with Rajasthani context."
	default:
		return "Respond in English."
	}
}

// Name returns the human-readable description used when asking the model to
// produce document analyses in this language.
func (l Language) Name() string {
	switch l {
	case Hindi:
		return "Hindi (Devanagari script)"
	case Marathi:
		return "Marathi (Devanagari script)"
	case Punjabi:
		return "Punjabi (Gurmukhi script)"
	case Rajasthani:
		return "Rajasthani (Devanagari script)"
	default:
		return "English"
	}
}
