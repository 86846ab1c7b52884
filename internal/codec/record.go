package codec

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

type noEscapeHTMLJSON struct{}

func (noEscapeHTMLJSON) Marshal(v any) ([]byte, error) {
	var builder strings.Builder
	enc := json.NewEncoder(&builder)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	return []byte(strings.TrimRight(builder.String(), "\n")), nil
}

var jsonNoEscapeHTML = noEscapeHTMLJSON{}

// SerializeRecord 는 key/value 레코드를 HTML 이스케이프 없이 JSON 문자열로 직렬화한다.
// 빈 레코드는 빈 문자열이다.
func SerializeRecord(record map[string]any) (string, error) {
	if len(record) == 0 {
		return "", nil
	}
	data, err := jsonNoEscapeHTML.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("encode record: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// TrimRunes 는 문자열을 최대 maxRunes 개의 룬으로 자른다.
func TrimRunes(value string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	runes := []rune(value)
	if len(runes) <= maxRunes {
		return value
	}
	return string(runes[:maxRunes])
}
