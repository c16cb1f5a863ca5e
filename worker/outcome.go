package worker

import (
	"regexp"
	"strings"
)

var (
	readyForRe = regexp.MustCompile(`\bREADY_FOR_[A-Z_]+\b`)
	completeRe = regexp.MustCompile(`\b[A-Z_]*COMPLETE\b`)
	blockedRe  = regexp.MustCompile(`BLOCKED:\s*(.*)`)
)

// ParseOutcome scans free worker text for a recognizable status token and
// returns the typed Outcome. Recognized families, in precedence order:
// a BLOCKED: prefix with a free-text reason, a READY_FOR_<PHASE> token, and
// a <...>COMPLETE token. Text with no recognizable token yields KindUnknown.
func ParseOutcome(text string) Outcome {
	if m := blockedRe.FindStringSubmatch(text); m != nil {
		reason := strings.TrimSpace(firstLine(m[1]))
		token := "BLOCKED: " + reason
		return Outcome{Kind: KindBlocked, Token: token, Reason: reason}
	}
	if token := readyForRe.FindString(text); token != "" {
		phase := strings.TrimPrefix(token, "READY_FOR_")
		return Outcome{Kind: KindReadyFor, Token: token, Phase: phase}
	}
	if token := completeRe.FindString(text); token != "" {
		return Outcome{Kind: KindComplete, Token: token}
	}
	return Outcome{Kind: KindUnknown, Token: "UNKNOWN"}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
