package refusal

import (
	"strings"
	"unicode"

	"github.com/forPelevin/gomoji"
	"github.com/mtibben/confusables"
	"github.com/ymw0407/jamo/pkg/jamo"
	"golang.org/x/text/unicode/norm"
)

// jamoTable: 한글 자모 범위를 통합한 테이블
var jamoTable = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x1100, Hi: 0x11FF, Stride: 1}, // Hangul Jamo
		{Lo: 0x3130, Hi: 0x318F, Stride: 1}, // Hangul Compatibility Jamo
		{Lo: 0xA960, Hi: 0xA97F, Stride: 1}, // Hangul Jamo Extended-A
		{Lo: 0xD7B0, Hi: 0xD7FF, Stride: 1}, // Hangul Jamo Extended-B
	},
}

// hangulTable: 완성형 한글 범위
var hangulTable = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0xAC00, Hi: 0xD7A3, Stride: 1},
	},
}

// leadingMarkup: 응답 앞에 붙는 마크다운/인용 기호
const leadingMarkup = "*_#>`'\"“” \t\r\n"

// Normalize: 접두사 비교용 정규형을 만듭니다.
// 이모지 제거, NFC, 자모 조합, 비한글 비ASCII 구간 호모글리프 치환, 제어문자 제거, 소문자화 순입니다.
func Normalize(text string) string {
	if isASCIIOnly(text) {
		return strings.ToLower(strings.TrimLeft(stripControlChars(text), leadingMarkup))
	}

	cleaned := gomoji.RemoveEmojis(text)
	cleaned = norm.NFC.String(cleaned)
	cleaned = composeJamoSequences(cleaned)
	cleaned = skeletonPreservingScripts(cleaned)
	cleaned = stripControlChars(cleaned)
	return strings.ToLower(strings.TrimLeft(cleaned, leadingMarkup))
}

func isASCIIOnly(text string) bool {
	for i := 0; i < len(text); i++ {
		if text[i] > unicode.MaxASCII {
			return false
		}
	}
	return true
}

// skeletonPreservingScripts: ASCII 와 한글은 그대로 두고 나머지 구간만 skeleton + NFKC 변환합니다.
func skeletonPreservingScripts(text string) string {
	var result strings.Builder
	var buffer strings.Builder
	result.Grow(len(text))

	flush := func() {
		if buffer.Len() == 0 {
			return
		}
		result.WriteString(norm.NFKC.String(confusables.Skeleton(buffer.String())))
		buffer.Reset()
	}

	for _, r := range text {
		if r <= unicode.MaxASCII || unicode.Is(hangulTable, r) || unicode.Is(jamoTable, r) {
			flush()
			result.WriteRune(r)
			continue
		}
		buffer.WriteRune(r)
	}
	flush()

	return result.String()
}

func stripControlChars(text string) string {
	hasControl := false
	for _, r := range text {
		if isStrippable(r) {
			hasControl = true
			break
		}
	}
	if !hasControl {
		return text
	}

	var builder strings.Builder
	builder.Grow(len(text))
	for _, r := range text {
		if isStrippable(r) {
			continue
		}
		builder.WriteRune(r)
	}
	return builder.String()
}

// isStrippable: 서식/제어 문자. 공백류 제어문자는 남깁니다.
func isStrippable(r rune) bool {
	if r == '\n' || r == '\t' || r == '\r' {
		return false
	}
	return unicode.Is(unicode.Cf, r) || unicode.Is(unicode.Cc, r)
}

// composeJamoSequences: 연속 자모 시퀀스를 완성형으로 조합합니다. 실패하면 원본을 유지합니다.
func composeJamoSequences(text string) string {
	var result strings.Builder
	var jamoBuffer strings.Builder
	result.Grow(len(text))

	flushJamo := func() {
		if jamoBuffer.Len() == 0 {
			return
		}
		jamoStr := jamoBuffer.String()
		composed, err := jamo.ComposeHangeul(jamoStr)
		if err == nil && len(composed) > 0 {
			result.WriteString(composed[0])
		} else {
			result.WriteString(jamoStr)
		}
		jamoBuffer.Reset()
	}

	for _, r := range text {
		if unicode.Is(jamoTable, r) {
			jamoBuffer.WriteRune(r)
		} else {
			flushJamo()
			result.WriteRune(r)
		}
	}
	flushJamo()

	return result.String()
}
