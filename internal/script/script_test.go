package script

import (
	"testing"
	"unicode"
)

func TestIsMixedLatinOnlyNeverMixed(t *testing.T) {
	inputs := []string{"Hello World 123", "API v2.1 - ok!", "Café résumé", ""}
	for _, target := range []string{"en", "th", "ja", "jp", "ko", "kr"} {
		for _, input := range inputs {
			if IsMixed(input, target) {
				t.Fatalf("latin-only %q should not be mixed for %s", input, target)
			}
		}
	}
}

func TestIsMixedForeignScript(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		target string
		want   bool
	}{
		{"thai only", "สวัสดีครับ", "th", false},
		{"thai with latin label", "สวัสดี Gemini API", "th", false},
		{"thai with hangul", "สวัสดี 안녕", "th", true},
		{"thai with kana", "สวัสดี こんにちは", "th", true},
		{"japanese mixture", "今日は良い天気です。カタカナ", "ja", false},
		{"japanese alias", "今日はいい日", "jp", false},
		{"japanese with thai", "今日は ดี", "jp", true},
		{"japanese with hangul", "今日は 좋아요", "ja", true},
		{"korean only", "오늘은 좋은 날입니다", "ko", false},
		{"korean alias with thai", "오늘은 ดี", "kr", true},
		{"korean with kana", "오늘은 ありがとう", "ko", true},
		{"english with thai", "Hello ดี", "en", true},
		{"english with hanja", "Hello 日本", "en", true},
		{"unsupported target", "안녕 สวัสดี", "fr", false},
		{"empty target", "안녕 สวัสดี", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsMixed(tt.text, tt.target); got != tt.want {
				t.Fatalf("IsMixed(%q, %q) = %v, want %v", tt.text, tt.target, got, tt.want)
			}
		})
	}
}

func TestIsMixedDecomposedHangul(t *testing.T) {
	// NFD 자모 입력도 한국어로 취급해야 한다.
	decomposed := "\u1100\u1161\u11A8"
	if IsMixed(decomposed, "ko") {
		t.Fatalf("decomposed hangul should not be mixed for ko")
	}
	if !IsMixed(decomposed, "th") {
		t.Fatalf("decomposed hangul should be mixed for th")
	}
}

func TestDetect(t *testing.T) {
	tests := map[string]string{
		"สวัสดีครับ วันนี้": "th",
		"こんにちは世界":           "ja",
		"안녕하세요 ok":          "ko",
		"plain english":     "en",
		"12345 !!":          "",
		"สวัสดี 안녕하세요 반갑습니다": "ko",
	}
	for input, want := range tests {
		if got := Detect(input); got != want {
			t.Fatalf("Detect(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestCanonical(t *testing.T) {
	tests := map[string]string{
		"jp":       "ja",
		"KR":       "ko",
		"English":  "en",
		" Thai ":   "th",
		"japanese": "ja",
		"ko":       "ko",
	}
	for input, want := range tests {
		got, ok := Canonical(input)
		if !ok || got != want {
			t.Fatalf("Canonical(%q) = %q/%v, want %q", input, got, ok, want)
		}
	}
	if _, ok := Canonical("klingon"); ok {
		t.Fatalf("expected unknown code")
	}
}

func TestCustomFamiliesAreAdditive(t *testing.T) {
	families := append(DefaultFamilies(), Family{
		Code:   "ru",
		Tables: []*unicode.RangeTable{unicode.Cyrillic},
	})
	classifier := NewClassifier(families...)

	if !classifier.IsMixed("Привет 안녕", "ru") {
		t.Fatalf("expected hangul to be mixed for ru")
	}
	if !classifier.IsMixed("hello Привет", "en") {
		t.Fatalf("expected cyrillic to be mixed for en once registered")
	}
	if IsMixed("hello Привет", "en") {
		t.Fatalf("default classifier should ignore unregistered scripts")
	}
}

func TestName(t *testing.T) {
	tests := map[string]string{
		"th": "Thai",
		"jp": "Japanese",
		"KO": "Korean",
		"en": "English",
		"fr": "fr",
	}
	for in, want := range tests {
		if got := Name(in); got != want {
			t.Fatalf("Name(%q) = %q, want %q", in, got, want)
		}
	}
}
