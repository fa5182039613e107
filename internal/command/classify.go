// Package command recognizes the reminder commands a user can type into the
// chat box.
package command

import (
	"strings"
	"unicode"
)

// Kind identifies the reminder command carried by a chat message.
type Kind int

const (
	KindNone Kind = iota
	KindCreate
	KindList
	KindClear
)

func (k Kind) String() string {
	switch k {
	case KindCreate:
		return "create"
	case KindList:
		return "list"
	case KindClear:
		return "clear"
	default:
		return "none"
	}
}

// Command is a classified chat message.
type Command struct {
	Kind Kind
	// Trigger is the creation phrase that matched, as written by the user.
	Trigger string
	// Body is the text with the trigger phrase removed. For non-create
	// commands it is the original text.
	Body string
}

var (
	clearPhrases = []string{"borrar recordatorios", "eliminar recordatorios"}
	listPhrases  = []string{"mis recordatorios", "lista de recordatorios", "ver recordatorios"}
	// Longer triggers first so "recordáme" is not cut at "recordá".
	createTriggers = []string{
		"haceme acordar",
		"hacéme acordar",
		"recordáme",
		"recordame",
		"avisáme",
		"avisame",
		"recordá",
	}
)

// Classify inspects text and reports which reminder command, if any, it is.
// Matching is case-insensitive. Clear and create match anywhere in the text;
// list requires the whole message to be one of the list phrases.
func Classify(text string) Command {
	lower := strings.ToLower(text)

	for _, p := range clearPhrases {
		if strings.Contains(lower, p) {
			return Command{Kind: KindClear, Body: text}
		}
	}

	norm := strings.TrimRightFunc(strings.TrimSpace(lower), func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r)
	})
	for _, p := range listPhrases {
		if norm == p {
			return Command{Kind: KindList, Body: text}
		}
	}

	for _, trig := range createTriggers {
		start, end, ok := findFold(text, lower, trig)
		if !ok {
			continue
		}
		body := strings.Join(strings.Fields(text[:start]+" "+text[end:]), " ")
		return Command{Kind: KindCreate, Trigger: text[start:end], Body: body}
	}

	return Command{Kind: KindNone, Body: text}
}

// findFold locates phrase in text case-insensitively and returns byte offsets
// into text. lower must be strings.ToLower(text); when lowering changed the
// byte length the search falls back to scanning text rune by rune.
func findFold(text, lower, phrase string) (int, int, bool) {
	if len(lower) == len(text) {
		i := strings.Index(lower, phrase)
		if i < 0 {
			return 0, 0, false
		}
		return i, i + len(phrase), true
	}
	for i := range text {
		for j := i + 1; j <= len(text) && j <= i+len(phrase)*2; j++ {
			if strings.EqualFold(text[i:j], phrase) {
				return i, j, true
			}
		}
	}
	return 0, 0, false
}
