package trigger

import "strings"

// Matches reports whether every condition of t holds for text. A trigger
// without conditions never matches.
func (t *Trigger) Matches(text string) bool {
	if len(t.Conditions) == 0 {
		return false
	}
	for i := range t.Conditions {
		if !t.Conditions[i].Matches(text) {
			return false
		}
	}
	return true
}

func (c *Condition) Matches(text string) bool {
	text = normalize(text)
	value := normalize(c.Value)
	switch c.Type {
	case CondContainsWords:
		words := splitWords(value)
		if len(words) == 0 {
			return false
		}
		if c.Operator == OpAll {
			for _, w := range words {
				if !strings.Contains(text, w) {
					return false
				}
			}
			return true
		}
		for _, w := range words {
			if strings.Contains(text, w) {
				return true
			}
		}
		return false
	case CondEquals:
		return value != "" && text == value
	case CondStartsWith:
		return value != "" && strings.HasPrefix(text, value)
	}
	return false
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func splitWords(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
