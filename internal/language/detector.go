package language

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"

	xlanguage "golang.org/x/text/language"

	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/codec"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/config"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/gemini"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/prompt"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/script"
)

//go:embed prompts/*.yml
var promptsFS embed.FS

// FeatureDetect 는 감지 호출의 토큰 사용량 집계 키다.
const FeatureDetect = "language_detect"

// ErrUndetermined 는 감지 응답에서 언어 코드를 얻지 못한 오류다.
var ErrUndetermined = errors.New("language undetermined")

// Detector 는 샘플 텍스트의 언어 코드를 감지한다.
type Detector interface {
	Detect(ctx context.Context, sample string) (string, error)
}

var detectSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"language": map[string]any{
			"type":        "string",
			"description": "ISO 639-1 code of the dominant language",
		},
	},
	"required": []string{"language"},
}

type detectResponse struct {
	Language string `json:"language"`
}

// LLMDetector 는 구조화 응답 1회 호출로 언어를 감지한다.
type LLMDetector struct {
	client  gemini.LLM
	prompts *prompt.Bundle
}

// NewLLMDetector 는 내장 감지 프롬프트로 LLMDetector 를 생성한다.
func NewLLMDetector(client gemini.LLM) (*LLMDetector, error) {
	if client == nil {
		return nil, errors.New("llm client is nil")
	}
	bundle, err := prompt.LoadBundle(promptsFS, "prompts", "language")
	if err != nil {
		return nil, fmt.Errorf("load language prompts: %w", err)
	}
	return &LLMDetector{client: client, prompts: bundle}, nil
}

// Detect 는 sample 의 언어 코드를 반환한다.
func (d *LLMDetector) Detect(ctx context.Context, sample string) (string, error) {
	data, err := d.prompts.Prompt("detect")
	if err != nil {
		return "", err
	}
	system, err := d.prompts.Field(data, "system", "detect.system")
	if err != nil {
		return "", err
	}
	template, err := d.prompts.Field(data, "user", "detect.user")
	if err != nil {
		return "", err
	}
	user, err := prompt.FormatTemplate(template, map[string]string{"sample": prompt.WrapXML("sample", sample)})
	if err != nil {
		return "", fmt.Errorf("format detect.user: %w", err)
	}

	payload, _, err := d.client.Structured(ctx, gemini.Request{
		Prompt:       user,
		SystemPrompt: system,
		Task:         config.TaskDetect,
		Feature:      FeatureDetect,
	}, detectSchema)
	if err != nil {
		return "", fmt.Errorf("detect language: %w", err)
	}

	var resp detectResponse
	if err := codec.Decode(payload, &resp); err != nil {
		return "", fmt.Errorf("decode detect response: %w", err)
	}
	code, ok := ParseCode(resp.Language)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUndetermined, resp.Language)
	}
	return code, nil
}

// ParseCode 는 감지 응답을 언어 코드로 확정한다.
// 지원 언어군 별칭이거나 ISO 639 기본 언어 코드일 때만 ok 이다. und/mul 같은 미확정 코드는 거부한다.
func ParseCode(value string) (string, bool) {
	code := NormalizeCode(value)
	if code == "" {
		return "", false
	}
	if canonical, ok := script.Canonical(code); ok {
		return canonical, true
	}
	if len(code) < 2 || len(code) > 3 || strings.Trim(code, "abcdefghijklmnopqrstuvwxyz") != "" {
		return "", false
	}
	base, err := xlanguage.ParseBase(code)
	if err != nil {
		return "", false
	}
	switch parsed := base.String(); parsed {
	case "und", "mul", "mis", "zxx":
		return "", false
	default:
		return parsed, true
	}
}

// NormalizeCode 는 별칭과 언어명을 정규 코드로 바꾼다. 모르는 값은 소문자 그대로 둔다.
func NormalizeCode(value string) string {
	trimmed := strings.ToLower(strings.TrimSpace(value))
	if trimmed == "" {
		return ""
	}
	if code, ok := script.Canonical(trimmed); ok {
		return code
	}
	if idx := strings.IndexAny(trimmed, "-_"); idx > 0 {
		if code, ok := script.Canonical(trimmed[:idx]); ok {
			return code
		}
		return trimmed[:idx]
	}
	return trimmed
}
