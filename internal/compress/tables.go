package compress

// =============================================================================
// Substitution Tables
// =============================================================================
// Step 1 replaces verbose connective phrases with fixed short tokens.
// Step 2 replaces domain words with abbreviations, skipping any abbreviation
// that already occurs in the text as a standalone word (collision avoidance).

// symbolTable maps verbose phrases to short tokens. Longest phrases are
// applied first so sub-phrases never shadow a longer match.
var symbolTable = []struct {
	Phrase string
	Token  string
}{
	{"it should be noted that", "note:"},
	{"at this point in time", "now"},
	{"as a consequence of", "due to"},
	{"for the purpose of", "for"},
	{"a large number of", "many"},
	{"in the event that", "if"},
	{"on the other hand", "however"},
	{"with respect to", "re:"},
	{"with regard to", "re:"},
	{"in other words", "i.e."},
	{"in order to", "to"},
	{"for example", "e.g."},
	{"is able to", "can"},
	{"as well as", "and"},
	{"because of", "due to"},
	{"results in", "yields"},
	{"and so on", "etc."},
}

// abbreviationTable maps domain words to their short forms.
var abbreviationTable = map[string]string{
	"configuration":  "cfg",
	"implementation": "impl",
	"performance":    "perf",
	"documentation":  "docs",
	"environment":    "env",
	"repository":     "repo",
	"database":       "db",
	"directory":      "dir",
	"function":       "fn",
	"parameter":      "param",
	"application":    "app",
	"dependency":     "dep",
	"dependencies":   "deps",
	"requirements":   "reqs",
	"optimization":   "opt",
	"authentication": "auth",
	"authorization":  "authz",
	"infrastructure": "infra",
	"development":    "dev",
	"production":     "prod",
	"maximum":        "max",
	"minimum":        "min",
	"average":        "avg",
	"previous":       "prev",
	"temporary":      "tmp",
	"initialize":     "init",
	"administrator":  "admin",
	"operation":      "op",
	"operations":     "ops",
	"reference":      "ref",
	"variable":       "var",
	"utilities":      "utils",
}

// fillerWords are dropped entirely by structural trimming. Connectives only;
// never words that can carry technical meaning.
var fillerWords = map[string]bool{
	"basically":   true,
	"actually":    true,
	"really":      true,
	"very":        true,
	"quite":       true,
	"simply":      true,
	"essentially": true,
	"obviously":   true,
	"certainly":   true,
	"definitely":  true,
	"literally":   true,
	"just":        true,
	"rather":      true,
	"somewhat":    true,
	"perhaps":     true,
}

// stopwords are excluded from the key-term set used for quality scoring.
var stopwords = map[string]bool{
	"the": true, "and": true, "that": true, "this": true, "with": true,
	"from": true, "have": true, "will": true, "would": true, "should": true,
	"could": true, "about": true, "there": true, "their": true, "which": true,
	"when": true, "where": true, "these": true, "those": true, "being": true,
	"after": true, "before": true, "because": true, "while": true, "other": true,
}
