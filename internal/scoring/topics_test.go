package scoring

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestClassify(t *testing.T) {
	c, err := NewClassifier(DefaultTopics)
	if err != nil {
		t.Fatalf("NewClassifier() error = %v", err)
	}
	cases := []struct {
		name string
		want []string
	}{
		{"הצעת חוק ביטוח בריאות ממלכתי (תיקון)", []string{"health"}},
		{"הצעת חוק התקציב לשנת 2024", []string{"economy"}},
		{"הצעת חוק חינוך ממלכתי", []string{"education"}},
		{"הצעת חוק שעות עבודה ומנוחה", nil},
		{"הצעת חוק שירותי הדת היהודיים", []string{"religion"}},
		{"הצעת חוק משק המים (תיקון)", []string{"environment"}},
		{"הצעת חוק לעידוד שימוש בכלי רכב חשמליים", []string{"transport"}},
		// Short keywords do not match inside longer words.
		{"הצעת חוק מימון מפלגות", nil},
		{"הצעת חוק עדות קטינים", nil},
		{"הצעת חוק הרכב הוועדות", nil},
	}
	for _, tc := range cases {
		if got := c.Classify(tc.name); !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("Classify(%q) = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestNewClassifierValidation(t *testing.T) {
	cases := map[string][]Topic{
		"empty":       nil,
		"blank key":   {{Key: " ", Keywords: []string{"x"}}},
		"duplicate":   {{Key: "a", Keywords: []string{"x"}}, {Key: "a", Keywords: []string{"y"}}},
		"no keywords": {{Key: "a", Keywords: []string{" "}}},
	}
	for name, topics := range cases {
		if _, err := NewClassifier(topics); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadTopics(t *testing.T) {
	path := filepath.Join(t.TempDir(), "topics.yaml")
	doc := "- key: water\n  keywords: [\"מים\", \"נחל\"]\n- key: energy\n  keywords: [\"חשמל\"]\n"
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write topics: %v", err)
	}
	topics, err := LoadTopics(path)
	if err != nil {
		t.Fatalf("LoadTopics() error = %v", err)
	}
	c, err := NewClassifier(topics)
	if err != nil {
		t.Fatalf("NewClassifier() error = %v", err)
	}
	if got := c.Keys(); !reflect.DeepEqual(got, []string{"energy", "water"}) {
		t.Fatalf("Keys() = %v", got)
	}
	if got := c.Classify("הצעת חוק משק החשמל"); !reflect.DeepEqual(got, []string{"energy"}) {
		t.Fatalf("Classify() = %v", got)
	}
}

func TestLoadTopicsMissingFile(t *testing.T) {
	if _, err := LoadTopics(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
