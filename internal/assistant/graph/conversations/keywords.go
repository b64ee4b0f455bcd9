package conversations

import (
	"strings"
	"unicode"

	"github.com/voice-assistant/server/internal/assistant/model"
)

var (
	affirmativeWords = map[string]struct{}{
		"yes": {}, "y": {}, "yeah": {}, "yep": {}, "yup": {}, "sure": {}, "ok": {}, "okay": {},
		"confirm": {}, "confirmed": {}, "correct": {}, "absolutely": {}, "definitely": {},
	}
	affirmativePhrases = []string{"go ahead", "do it", "please do", "that's right", "that one"}
	negativeWords      = map[string]struct{}{
		"no": {}, "nope": {}, "cancel": {}, "don't": {}, "dont": {}, "stop": {}, "wait": {}, "not": {},
	}

	exitWords   = map[string]struct{}{"exit": {}, "quit": {}, "leave": {}, "done": {}, "stop": {}}
	exitPhrases = []string{"close window", "close the window", "close chrome", "close the browser",
		"close file manager", "close the file manager", "close explorer", "normal mode", "back to normal",
		"that's all", "i'm done", "im done", "turn off keyboard", "stop typing"}

	deleteWords    = map[string]struct{}{"delete": {}, "remove": {}, "cancel": {}, "erase": {}}
	confirmWords   = map[string]struct{}{"confirm": {}, "confirmed": {}, "yes": {}, "sure": {}, "definitely": {}, "absolutely": {}}
	confirmPhrases = []string{"go ahead", "i'm sure", "im sure", "without asking", "no need to ask", "don't ask", "dont ask"}
)

// Words lowercases s and splits it on anything that is not a letter, digit or apostrophe.
func Words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

// IsAffirmative reports whether a reply reads as a plain "yes".
func IsAffirmative(s string) bool {
	words := Words(s)
	if len(words) == 0 {
		return false
	}
	for _, w := range words {
		if _, neg := negativeWords[w]; neg {
			return false
		}
	}
	for _, w := range words {
		if _, ok := affirmativeWords[w]; ok {
			return true
		}
	}
	return containsAny(strings.ToLower(s), affirmativePhrases)
}

// HasExitIntent reports whether s explicitly asks to leave the current mode.
func HasExitIntent(s string) bool {
	for _, w := range Words(s) {
		if _, ok := exitWords[w]; ok {
			return true
		}
	}
	return containsAny(strings.ToLower(s), exitPhrases)
}

// HasDeleteConfirmation reports whether a single utterance both asks for a
// deletion and confirms it up front, e.g. "yes, delete the standup". Any
// negation outside the confirm phrases ("not sure", "don't delete yet") vetoes it.
func HasDeleteConfirmation(s string) bool {
	lower := strings.ToLower(s)
	confirm := containsAny(lower, confirmPhrases)
	for _, p := range confirmPhrases {
		lower = strings.ReplaceAll(lower, p, " ")
	}

	var del bool
	for _, w := range Words(lower) {
		if _, ok := deleteWords[w]; ok {
			del = true
			continue
		}
		if _, neg := negativeWords[w]; neg {
			return false
		}
		if _, ok := confirmWords[w]; ok {
			confirm = true
		}
	}
	return del && confirm
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// AffirmsPendingDelete reports whether the session's latest message answers a
// live delete confirmation with a yes.
func AffirmsPendingDelete(s *model.SessionState) bool {
	if s == nil || s.Pending == nil || s.Pending.Action != model.PendingDelete {
		return false
	}
	return s.Pending.LiveAt(s.Turns) && IsAffirmative(s.LatestUserText())
}
