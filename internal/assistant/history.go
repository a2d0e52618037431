package assistant

import "github.com/quiverkb/quiver/internal/gateway"

// RawTurn is one conversation turn as clients send it. The text may live in
// Content or in the first element of Parts; both shapes are accepted.
type RawTurn struct {
	Role    string    `json:"role"`
	Content string    `json:"content,omitempty"`
	Parts   []RawPart `json:"parts,omitempty"`
}

// RawPart is a text fragment of a RawTurn.
type RawPart struct {
	Text string `json:"text"`
}

// text resolves the turn's text: Content wins, then the first part, then "".
func (t RawTurn) text() string {
	if t.Content != "" {
		return t.Content
	}
	if len(t.Parts) > 0 {
		return t.Parts[0].Text
	}
	return ""
}

// normalizeHistory splits raw turns into prior history and the new prompt.
// The last turn becomes the prompt; everything before it, in original order,
// becomes history. A role of "user" maps to the user role, anything else to
// the assistant role. Empty input yields empty history and an empty prompt.
func normalizeHistory(raw []RawTurn) (history []gateway.Turn, prompt string) {
	if len(raw) == 0 {
		return nil, ""
	}

	last := raw[len(raw)-1]
	prompt = last.text()

	for _, t := range raw[:len(raw)-1] {
		role := gateway.RoleAssistant
		if t.Role == "user" {
			role = gateway.RoleUser
		}
		history = append(history, gateway.Turn{Role: role, Text: t.text()})
	}
	return history, prompt
}
