package brain

import "strings"

// Trigger decides whether a message warrants domain augmentation.
type Trigger struct {
	keywords []string
}

// NewTrigger lowercases and de-duplicates keywords. Blank entries are dropped.
func NewTrigger(keywords []string) Trigger {
	seen := make(map[string]bool, len(keywords))
	var kw []string
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		kw = append(kw, k)
	}
	return Trigger{keywords: kw}
}

// Match returns the first keyword contained in the lowercased message.
func (t Trigger) Match(message string) (string, bool) {
	lower := strings.ToLower(message)
	for _, k := range t.keywords {
		if strings.Contains(lower, k) {
			return k, true
		}
	}
	return "", false
}
