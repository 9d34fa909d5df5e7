package scoring

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// Topic is a legislative subject tag matched by keywords in bill names.
type Topic struct {
	Key      string   `yaml:"key"`
	Keywords []string `yaml:"keywords"`
}

// DefaultTopics is the built-in topic table. Keywords of up to three letters
// match whole words only; longer keywords match as word stems.
var DefaultTopics = []Topic{
	{Key: "economy", Keywords: []string{"כלכל", "תקציב", "מיסוי", "מס הכנסה", "מס ערך מוסף", "בנק", "פיננס"}},
	{Key: "health", Keywords: []string{"בריאות", "רפוא", "בית חולים", "בתי חולים", "תרופ"}},
	{Key: "education", Keywords: []string{"חינוך", "השכלה", "בתי ספר", "בית ספר", "תלמיד", "סטודנט"}},
	{Key: "security", Keywords: []string{"ביטחון", "צבא", "צה\"ל", "טרור", "הגנה"}},
	{Key: "justice", Keywords: []string{"בתי המשפט", "שפיטה", "עונשין", "סדר הדין", "משפט"}},
	{Key: "welfare", Keywords: []string{"רווחה", "ביטוח לאומי", "קצבא", "קצבת", "נכים", "אזרחים ותיקים"}},
	{Key: "housing", Keywords: []string{"דיור", "מקרקעין", "התכנון והבניה", "שכירות", "דירה", "דירות"}},
	{Key: "environment", Keywords: []string{"סביבה", "זיהום", "אקלים", "פסולת", "משק המים", "מים"}},
	{Key: "transport", Keywords: []string{"תחבורה", "תעבורה", "כבישים", "רכבת", "רכבות", "כלי רכב"}},
	{Key: "religion", Keywords: []string{"דת", "דתי", "שבת", "גיור", "כשרות", "רבנות"}},
}

// hebrewPrefixes are the one-letter clitics that attach to the front of a
// word (and, the, in, to, from, that, as).
const hebrewPrefixes = "והבלמשכ"

// stemMinLen is the shortest keyword matched as a stem rather than a word.
const stemMinLen = 4

// Classifier assigns topics to bill names.
type Classifier struct {
	topics []topicMatcher
}

type topicMatcher struct {
	key      string
	keywords [][]string
}

func NewClassifier(topics []Topic) (*Classifier, error) {
	if len(topics) == 0 {
		return nil, fmt.Errorf("at least one topic is required")
	}
	seen := map[string]bool{}
	clean := make([]topicMatcher, 0, len(topics))
	for _, t := range topics {
		key := strings.TrimSpace(t.Key)
		if key == "" {
			return nil, fmt.Errorf("topic key is required")
		}
		if seen[key] {
			return nil, fmt.Errorf("topic %s is declared twice", key)
		}
		seen[key] = true
		var keywords [][]string
		for _, k := range t.Keywords {
			if ws := words(k); len(ws) > 0 {
				keywords = append(keywords, ws)
			}
		}
		if len(keywords) == 0 {
			return nil, fmt.Errorf("topic %s has no keywords", key)
		}
		clean = append(clean, topicMatcher{key: key, keywords: keywords})
	}
	return &Classifier{topics: clean}, nil
}

// LoadTopics reads a YAML list of topics.
func LoadTopics(path string) ([]Topic, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read topics file: %w", err)
	}
	var topics []Topic
	if err := yaml.Unmarshal(raw, &topics); err != nil {
		return nil, fmt.Errorf("parse topics file: %w", err)
	}
	return topics, nil
}

// Keys is the allowed topic-key set.
func (c *Classifier) Keys() []string {
	keys := make([]string, 0, len(c.topics))
	for _, t := range c.topics {
		keys = append(keys, t.key)
	}
	sort.Strings(keys)
	return keys
}

// Classify returns every topic with a keyword among the words of name. The
// first word of a keyword may carry prefix letters in name.
func (c *Classifier) Classify(name string) []string {
	ws := words(name)
	var out []string
	for _, t := range c.topics {
		for _, k := range t.keywords {
			if containsPhrase(ws, k) {
				out = append(out, t.key)
				break
			}
		}
	}
	return out
}

func words(s string) []string {
	return strings.FieldsFunc(norm.NFC.String(s), func(r rune) bool {
		switch r {
		case '"', '\'', '״', '׳':
			return false
		}
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.Is(unicode.Mn, r)
	})
}

func containsPhrase(ws, phrase []string) bool {
	for i := 0; i+len(phrase) <= len(ws); i++ {
		ok := true
		for j, kw := range phrase {
			if !wordMatches(ws[i+j], kw, j == 0) {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

func wordMatches(w, kw string, allowPrefix bool) bool {
	if keywordMatches(w, kw) {
		return true
	}
	if !allowPrefix {
		return false
	}
	rest := w
	for n := 0; n < 2; n++ {
		r, size := utf8.DecodeRuneInString(rest)
		if size == 0 || !strings.ContainsRune(hebrewPrefixes, r) {
			return false
		}
		rest = rest[size:]
		if utf8.RuneCountInString(rest) < 2 {
			return false
		}
		if keywordMatches(rest, kw) {
			return true
		}
	}
	return false
}

func keywordMatches(w, kw string) bool {
	if utf8.RuneCountInString(kw) < stemMinLen {
		return w == kw
	}
	return strings.HasPrefix(w, kw)
}
