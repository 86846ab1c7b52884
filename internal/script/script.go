package script

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// 지원 언어 코드입니다.
const (
	English  = "en"
	Thai     = "th"
	Japanese = "ja"
	Korean   = "ko"
)

// Family: 한 언어가 "자기 문자"로 인정하는 유니코드 범위 묶음입니다.
// Tables 가 비어 있으면 라틴 문자만 쓰는 언어(영어)로 취급합니다.
type Family struct {
	Code    string
	Name    string
	Aliases []string
	Tables  []*unicode.RangeTable
}

func (f Family) contains(r rune) bool {
	for _, table := range f.Tables {
		if unicode.Is(table, r) {
			return true
		}
	}
	return false
}

// DefaultFamilies: 기본 언어군 테이블을 반환합니다.
// 일본어는 히라가나, 가타카나, CJK 한자를 함께 자기 문자로 봅니다.
func DefaultFamilies() []Family {
	return []Family{
		{Code: Thai, Name: "Thai", Aliases: []string{"thai", "ไทย"}, Tables: []*unicode.RangeTable{unicode.Thai}},
		{Code: Japanese, Name: "Japanese", Aliases: []string{"jp", "japanese", "日本語"}, Tables: []*unicode.RangeTable{unicode.Hiragana, unicode.Katakana, unicode.Han}},
		{Code: Korean, Name: "Korean", Aliases: []string{"kr", "korean", "한국어"}, Tables: []*unicode.RangeTable{unicode.Hangul}},
		{Code: English, Name: "English", Aliases: []string{"english"}},
	}
}

// Classifier: 언어군 테이블 기반 문자 혼용 판별기입니다.
type Classifier struct {
	families []Family
	byCode   map[string]int
}

// NewClassifier: 언어군 테이블로 판별기를 생성합니다. 인자가 없으면 기본 테이블을 씁니다.
func NewClassifier(families ...Family) *Classifier {
	if len(families) == 0 {
		families = DefaultFamilies()
	}
	c := &Classifier{
		families: families,
		byCode:   make(map[string]int, len(families)*3),
	}
	for i, family := range families {
		c.byCode[strings.ToLower(family.Code)] = i
		for _, alias := range family.Aliases {
			c.byCode[strings.ToLower(alias)] = i
		}
	}
	return c
}

// Canonical: 코드/별칭/언어명을 정규 코드로 바꿉니다. 모르는 값이면 ok=false 입니다.
func (c *Classifier) Canonical(code string) (string, bool) {
	idx, ok := c.byCode[strings.ToLower(strings.TrimSpace(code))]
	if !ok {
		return "", false
	}
	return c.families[idx].Code, true
}

// Name: 언어 표시 이름을 반환합니다. 모르는 코드면 코드 그대로, 이름이 비어 있으면 코드를 반환합니다.
func (c *Classifier) Name(code string) string {
	idx, ok := c.byCode[strings.ToLower(strings.TrimSpace(code))]
	if !ok || c.families[idx].Name == "" {
		return strings.TrimSpace(code)
	}
	return c.families[idx].Name
}

// IsMixed: text 에 target 언어군 밖의 문자가 하나라도 있으면 true 입니다.
// 라틴 문자, 숫자, 공백, 구두점은 어떤 언어에서도 허용합니다.
// 지원하지 않는 target 은 항상 false 입니다.
func (c *Classifier) IsMixed(text string, target string) bool {
	idx, ok := c.byCode[strings.ToLower(strings.TrimSpace(target))]
	if !ok || text == "" {
		return false
	}
	own := c.families[idx]

	for _, r := range norm.NFC.String(text) {
		if r <= unicode.MaxASCII || unicode.Is(unicode.Latin, r) {
			continue
		}
		if own.contains(r) {
			continue
		}
		for i, family := range c.families {
			if i != idx && family.contains(r) {
				return true
			}
		}
	}
	return false
}

// Detect: 가장 많이 등장한 언어군 코드를 반환합니다.
// 비라틴 문자가 없고 라틴 문자가 있으면 English, 둘 다 없으면 빈 문자열입니다.
// 동률이면 테이블 순서가 앞선 언어군을 고릅니다.
func (c *Classifier) Detect(text string) string {
	counts := make([]int, len(c.families))
	latin := false
	for _, r := range norm.NFC.String(text) {
		if unicode.Is(unicode.Latin, r) {
			latin = true
			continue
		}
		for i, family := range c.families {
			if family.contains(r) {
				counts[i]++
				break
			}
		}
	}

	best := -1
	for i, count := range counts {
		if count == 0 {
			continue
		}
		if best < 0 || count > counts[best] {
			best = i
		}
	}
	if best >= 0 {
		return c.families[best].Code
	}
	if latin {
		return English
	}
	return ""
}

var defaultClassifier = NewClassifier()

// IsMixed: 기본 테이블로 혼용 여부를 판별합니다.
func IsMixed(text string, target string) bool {
	return defaultClassifier.IsMixed(text, target)
}

// Detect: 기본 테이블로 주 언어군을 판별합니다.
func Detect(text string) string {
	return defaultClassifier.Detect(text)
}

// Canonical: 기본 테이블로 언어 코드를 정규화합니다.
func Canonical(code string) (string, bool) {
	return defaultClassifier.Canonical(code)
}

// Name: 기본 테이블로 언어 표시 이름을 반환합니다.
func Name(code string) string {
	return defaultClassifier.Name(code)
}
