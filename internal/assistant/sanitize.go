package assistant

import (
	"regexp"
	"strings"
)

var (
	fencedRe  = regexp.MustCompile("(?s)```.*?```")
	inlineRe  = regexp.MustCompile("`[^`\n]*`")
	callRe    = regexp.MustCompile(`^\s*[A-Za-z_][A-Za-z0-9_.]*\(.*\)\s*;?\s*$`)
	controlRe = regexp.MustCompile(`^\s*(if|else|elif|for|while|return|def|function|func|const|let|var|print|switch|case|import|from)\b.*[:{;)]\s*$`)
	toolRe    = regexp.MustCompile(`(?i)(confirm_plan|process_email|tool_call|plan_id|function_call)`)
	blankRe   = regexp.MustCompile(`\n{3,}`)
)

// Sanitize removes code and tool-invocation residue from model output. It
// is a best-effort filter, not a parser.
func Sanitize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = fencedRe.ReplaceAllString(text, "")
	text = inlineRe.ReplaceAllString(text, "")

	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, l := range lines {
		trimmed := strings.TrimSpace(l)
		if callRe.MatchString(trimmed) || controlRe.MatchString(trimmed) || toolRe.MatchString(trimmed) {
			continue
		}
		if strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}") {
			continue
		}
		kept = append(kept, strings.TrimRight(l, " \t"))
	}
	text = strings.Join(kept, "\n")
	text = blankRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
