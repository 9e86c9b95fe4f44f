package chat

import "strings"

const (
	IntentSearch  = "product_search"
	IntentGeneral = "general"
)

// Intent is the classification of one incoming message. Query carries the
// derived search term when Kind is IntentSearch.
type Intent struct {
	Kind  string
	Query string
}

// Detector classifies a message. Detection is a replaceable strategy: the
// keyword detector is the default, but anything that can tag a message can be
// plugged in.
type Detector interface {
	Detect(message string) Intent
}

// KeywordDetector routes a message to catalog search when it contains one of
// the trigger words, and strips leading command phrases to derive the query
// term. Cheap and wrong in interesting ways; replace it rather than tune it.
type KeywordDetector struct {
	keywords []string
	prefixes []string
}

func NewKeywordDetector() *KeywordDetector {
	return &KeywordDetector{
		keywords: []string{"search", "find", "show", "looking for", "product"},
		prefixes: []string{
			"search for", "search", "find me", "find", "show me", "show",
			"i'm looking for", "looking for", "products", "product",
		},
	}
}

func (d *KeywordDetector) Detect(message string) Intent {
	lower := strings.ToLower(strings.TrimSpace(message))
	for _, kw := range d.keywords {
		if strings.Contains(lower, kw) {
			return Intent{Kind: IntentSearch, Query: d.query(lower)}
		}
	}
	return Intent{Kind: IntentGeneral}
}

// query strips command prefixes and filler words to leave a search term.
func (d *KeywordDetector) query(lower string) string {
	q := lower
	for _, p := range d.prefixes {
		q = strings.TrimSpace(strings.TrimPrefix(q, p))
	}
	q = strings.Trim(q, " ?.!")
	if q == "" {
		return lower
	}
	return q
}
