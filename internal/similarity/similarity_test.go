package similarity

import (
	"math"
	"strings"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "empty", input: "", expected: ""},
		{name: "lowercases", input: "The Quick Brown Fox", expected: "the quick brown fox"},
		{name: "strips punctuation", input: "Hello, world! (again)", expected: "hello world again"},
		{name: "collapses whitespace", input: "  a \t\n  b   c ", expected: "a b c"},
		{name: "keeps underscores and digits", input: "snake_case 42", expected: "snake_case 42"},
		{name: "keeps non-ascii letters", input: "Café Über", expected: "café über"},
		{name: "only punctuation", input: "...!?", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.input); got != tt.expected {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"The quick brown fox — jumped!",
		"İstanbul ŞEHİR",
		"tabs\tand\nnewlines\r\n",
		"a-b_c.d",
		"ǅ ǈ ǋ",
	}
	for _, input := range inputs {
		once := Normalize(input)
		if twice := Normalize(once); twice != once {
			t.Errorf("Normalize not idempotent for %q: %q then %q", input, once, twice)
		}
	}
}

func TestSetSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a, b     string
		expected float64
	}{
		{name: "equal after normalization", a: "Hello, World", b: "hello world", expected: 1},
		{name: "both empty", a: "", b: "!!", expected: 1},
		{name: "one empty", a: "", b: "hello", expected: 0},
		{name: "punctuation only left", a: "… — !", b: "hello", expected: 0},
		{name: "punctuation only right", a: "the quick fox", b: "--", expected: 0},
		{name: "containment", a: "quick brown", b: "the quick brown fox", expected: 0.85},
		{name: "jaccard", a: "red green blue", b: "green blue yellow", expected: 2.0 / 4.0},
		{name: "disjoint", a: "alpha beta", b: "gamma delta", expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SetSimilarity(tt.a, tt.b)
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("SetSimilarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.expected)
			}
		})
	}
}

func TestBoundedEditSimilarity(t *testing.T) {
	if got := BoundedEditSimilarity("The quick brown fox", "The quick brown fox"); got != 1 {
		t.Fatalf("identical strings scored %v", got)
	}
	if got := BoundedEditSimilarity("", ""); got != 1 {
		t.Fatalf("empty strings scored %v", got)
	}

	// One substitution over 19 runes.
	got := BoundedEditSimilarity("the quick brown fox", "the quick brown box")
	want := 1 - 1.0/19.0
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("single edit scored %v, want %v", got, want)
	}

	if got := BoundedEditSimilarity("abc", ""); got != 0 {
		t.Fatalf("against empty scored %v, want 0", got)
	}
}

func TestBoundedEditSimilarityGuardDelegates(t *testing.T) {
	a := strings.Repeat("alpha ", 30)
	b := strings.Repeat("alpha ", 30) + "omega"
	if len(Normalize(a))+len(Normalize(b)) <= editGuardLength {
		t.Fatal("fixture must exceed the guard length")
	}
	if got, want := BoundedEditSimilarity(a, b), SetSimilarity(a, b); got != want {
		t.Fatalf("guarded similarity = %v, want SetSimilarity %v", got, want)
	}
}

func TestSimilaritySymmetricAndBounded(t *testing.T) {
	pairs := [][2]string{
		{"The quick brown fox", "The very quick brown fox"},
		{"lorem ipsum dolor", "dolor sit amet"},
		{"", "something"},
		{"short", strings.Repeat("long text ", 40)},
		{"Kitten", "sitting"},
	}
	for _, p := range pairs {
		for name, fn := range map[string]func(string, string) float64{
			"SetSimilarity":         SetSimilarity,
			"BoundedEditSimilarity": BoundedEditSimilarity,
		} {
			ab := fn(p[0], p[1])
			ba := fn(p[1], p[0])
			if ab != ba {
				t.Errorf("%s not symmetric for %q/%q: %v vs %v", name, p[0], p[1], ab, ba)
			}
			if ab < 0 || ab > 1 {
				t.Errorf("%s out of bounds for %q/%q: %v", name, p[0], p[1], ab)
			}
		}
	}
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"kitten", "sitting", 3},
		{"flaw", "lawn", 2},
	}
	for _, tt := range tests {
		if got := levenshtein([]rune(tt.a), []rune(tt.b)); got != tt.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}
