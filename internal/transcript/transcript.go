// Package transcript accumulates streaming transcription deltas into
// complete conversation entries.
//
// The Live API delivers transcription text in small fragments as audio is
// recognized and synthesized. The Accumulator buffers fragments per role and
// turns them into finished Entry values at turn boundaries.
package transcript

import "strings"

// Role identifies the speaker of a transcript entry.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Entry is a single finished line of conversation.
type Entry struct {
	Role Role
	Text string
}

// Accumulator buffers in-flight transcription deltas for the current turn.
// It is not safe for concurrent use; callers serialize access through the
// session event loop.
type Accumulator struct {
	input  strings.Builder
	output strings.Builder
}

// AddInput appends a fragment of the user's speech transcription.
func (a *Accumulator) AddInput(text string) {
	a.input.WriteString(text)
}

// AddOutput appends a fragment of the model's speech transcription.
func (a *Accumulator) AddOutput(text string) {
	a.output.WriteString(text)
}

// FlushTurn finalizes the current turn. The user entry precedes the model
// entry; empty buffers produce no entry. Both buffers are reset.
func (a *Accumulator) FlushTurn() []Entry {
	var entries []Entry
	if s := a.input.String(); s != "" {
		entries = append(entries, Entry{Role: RoleUser, Text: s})
	}
	if s := a.output.String(); s != "" {
		entries = append(entries, Entry{Role: RoleModel, Text: s})
	}
	a.input.Reset()
	a.output.Reset()
	return entries
}

// FlushOutput finalizes only the model's partial utterance, used when the
// model is interrupted mid-turn. The user buffer is kept: the speech that
// caused the barge-in is still being recognized and surfaces with the next
// completed turn.
func (a *Accumulator) FlushOutput() []Entry {
	var entries []Entry
	if s := a.output.String(); s != "" {
		entries = append(entries, Entry{Role: RoleModel, Text: s})
	}
	a.output.Reset()
	return entries
}

// Pending reports whether either buffer holds unflushed text.
func (a *Accumulator) Pending() bool {
	return a.input.Len() > 0 || a.output.Len() > 0
}
