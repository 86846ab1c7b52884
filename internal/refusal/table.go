package refusal

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/cloudflare/ahocorasick"
	"gopkg.in/yaml.v3"
)

//go:embed prefixes.yml
var defaultPrefixesYAML []byte

type rawTable struct {
	Version   int                 `yaml:"version"`
	Languages map[string][]string `yaml:"languages"`
}

// Table: 다국어 거절 접두사 테이블입니다.
// 새 언어나 표현은 YAML 데이터 추가만으로 반영됩니다.
type Table struct {
	prefixes  []string
	languages []string
	matcher   *ahocorasick.Matcher
	window    int
}

// NewTable: 언어별 접두사 목록으로 테이블을 만듭니다.
func NewTable(byLanguage map[string][]string) *Table {
	seen := make(map[string]struct{})
	prefixes := make([]string, 0)
	languages := make([]string, 0, len(byLanguage))

	for lang, values := range byLanguage {
		languages = append(languages, strings.ToLower(lang))
		for _, value := range values {
			normalized := strings.TrimSpace(Normalize(value))
			if normalized == "" {
				continue
			}
			if _, ok := seen[normalized]; ok {
				continue
			}
			seen[normalized] = struct{}{}
			prefixes = append(prefixes, normalized)
		}
	}
	slices.Sort(prefixes)
	slices.Sort(languages)

	table := &Table{prefixes: prefixes, languages: languages}
	if len(prefixes) == 0 {
		return table
	}

	patterns := make([][]byte, 0, len(prefixes))
	for _, prefix := range prefixes {
		patterns = append(patterns, []byte(prefix))
		table.window = max(table.window, len(prefix))
	}
	table.matcher = ahocorasick.NewMatcher(patterns)
	return table
}

// ParseTable: YAML 문서를 테이블로 변환합니다.
func ParseTable(data []byte) (*Table, error) {
	var raw rawTable
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse refusal prefixes: %w", err)
	}
	if len(raw.Languages) == 0 {
		return nil, fmt.Errorf("parse refusal prefixes: no languages")
	}
	return NewTable(raw.Languages), nil
}

// LoadTable: 내장 테이블에 dir 의 *.yml/*.yaml 파일을 합쳐 테이블을 만듭니다.
// 읽기/파싱에 실패한 파일은 경고 후 건너뜁니다.
func LoadTable(dir string, logger *slog.Logger) (*Table, error) {
	merged, err := decodeLanguages(defaultPrefixesYAML)
	if err != nil {
		return nil, err
	}

	for _, path := range findPrefixFiles(dir) {
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			if logger != nil {
				logger.Warn("refusal_prefixes_read_failed", "path", path, "err", readErr)
			}
			continue
		}
		extra, parseErr := decodeLanguages(data)
		if parseErr != nil {
			if logger != nil {
				logger.Warn("refusal_prefixes_parse_failed", "path", path, "err", parseErr)
			}
			continue
		}
		for lang, values := range extra {
			merged[lang] = append(merged[lang], values...)
		}
	}

	table := NewTable(merged)
	if logger != nil {
		logger.Debug("refusal_prefixes_loaded", "languages", table.languages, "prefixes", len(table.prefixes))
	}
	return table, nil
}

func decodeLanguages(data []byte) (map[string][]string, error) {
	var raw rawTable
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse refusal prefixes: %w", err)
	}
	if raw.Languages == nil {
		raw.Languages = make(map[string][]string)
	}
	return raw.Languages, nil
}

func findPrefixFiles(dir string) []string {
	if strings.TrimSpace(dir) == "" {
		return nil
	}
	var files []string
	for _, pattern := range []string{"*.yml", "*.yaml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			continue
		}
		files = append(files, matches...)
	}
	slices.Sort(files)
	return files
}

// IsRefusal: 정규화한 text 가 거절 접두사로 시작하면 true 입니다.
// 본문 중간에 등장하는 구문은 무시합니다.
func (t *Table) IsRefusal(text string) bool {
	if t == nil || t.matcher == nil {
		return false
	}
	normalized := strings.TrimSpace(Normalize(text))
	if normalized == "" {
		return false
	}

	head := normalized
	if len(head) > t.window {
		head = head[:t.window]
	}
	for _, idx := range t.matcher.Match([]byte(head)) {
		if strings.HasPrefix(normalized, t.prefixes[idx]) {
			return true
		}
	}
	return false
}

// Languages: 테이블에 등록된 언어 코드 목록을 반환합니다.
func (t *Table) Languages() []string {
	if t == nil {
		return nil
	}
	return slices.Clone(t.languages)
}

// Len: 등록된 접두사 수를 반환합니다.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.prefixes)
}

var defaultTable = sync.OnceValue(func() *Table {
	table, err := ParseTable(defaultPrefixesYAML)
	if err != nil {
		panic(err)
	}
	return table
})

// Default: 내장 접두사 테이블을 반환합니다.
func Default() *Table {
	return defaultTable()
}

// IsRefusal: 내장 테이블로 거절 여부를 판별합니다.
func IsRefusal(text string) bool {
	return Default().IsRefusal(text)
}
