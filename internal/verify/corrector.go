package verify

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/codec"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/config"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/gemini"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/prompt"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/script"
)

//go:embed prompts/*.yml
var promptsFS embed.FS

// 교정 호출의 토큰 사용량 집계 키다.
const (
	FeatureRecover = "output_recover"
	FeatureRefine  = "output_refine"
)

// ErrEmptyCorrection 은 교정 호출이 빈 결과를 돌려준 오류다.
var ErrEmptyCorrection = errors.New("empty correction")

var (
	errStillRefusal = errors.New("correction is still a refusal")
	errKeysChanged  = errors.New("refined record keys changed")
)

// Corrector 는 교정 호출을 수행한다. 각 메서드는 정확히 한 번 모델을 호출한다.
type Corrector interface {
	Recover(ctx context.Context, text string, target string) (string, error)
	Refine(ctx context.Context, text string, target string) (string, error)
	RefineRecord(ctx context.Context, record map[string]any, target string, schema map[string]any) (map[string]any, error)
}

// LLMCorrector 는 교정 작업(TaskCorrect) 설정으로 모델을 호출한다.
type LLMCorrector struct {
	client  gemini.LLM
	prompts *prompt.Bundle
}

// NewLLMCorrector 는 내장 교정 프롬프트로 LLMCorrector 를 생성한다.
func NewLLMCorrector(client gemini.LLM) (*LLMCorrector, error) {
	if client == nil {
		return nil, errors.New("llm client is nil")
	}
	bundle, err := prompt.LoadBundle(promptsFS, "prompts", "verify")
	if err != nil {
		return nil, fmt.Errorf("load verify prompts: %w", err)
	}
	for _, name := range []string{"recover", "refine", "refine_record"} {
		if _, err := bundle.Prompt(name); err != nil {
			return nil, err
		}
	}
	return &LLMCorrector{client: client, prompts: bundle}, nil
}

// Recover 는 거절 문구를 걷어내고 본문만 대상 언어로 돌려받는다.
func (c *LLMCorrector) Recover(ctx context.Context, text string, target string) (string, error) {
	req, err := c.buildRequest("recover", target, map[string]string{"response": prompt.WrapRaw("response", text)})
	if err != nil {
		return "", err
	}
	req.Feature = FeatureRecover
	out, _, err := c.client.Chat(ctx, req)
	if err != nil {
		return "", fmt.Errorf("recover call: %w", err)
	}
	return nonEmpty(out)
}

// Refine 은 텍스트 전체를 대상 언어로 다시 쓴다.
func (c *LLMCorrector) Refine(ctx context.Context, text string, target string) (string, error) {
	req, err := c.buildRequest("refine", target, map[string]string{"text": prompt.WrapRaw("text", text)})
	if err != nil {
		return "", err
	}
	req.Feature = FeatureRefine
	out, _, err := c.client.Chat(ctx, req)
	if err != nil {
		return "", fmt.Errorf("refine call: %w", err)
	}
	return nonEmpty(out)
}

// RefineRecord 는 키를 유지한 채 값만 대상 언어로 번역한 레코드를 돌려받는다.
func (c *LLMCorrector) RefineRecord(ctx context.Context, record map[string]any, target string, schema map[string]any) (map[string]any, error) {
	serialized, err := codec.SerializeRecord(record)
	if err != nil {
		return nil, err
	}
	req, err := c.buildRequest("refine_record", target, map[string]string{"record": prompt.WrapRaw("record", serialized)})
	if err != nil {
		return nil, err
	}
	req.Feature = FeatureRefine
	out, _, err := c.client.Structured(ctx, req, schema)
	if err != nil {
		return nil, fmt.Errorf("refine record call: %w", err)
	}
	return out, nil
}

func (c *LLMCorrector) buildRequest(name string, target string, values map[string]string) (gemini.Request, error) {
	data, err := c.prompts.Prompt(name)
	if err != nil {
		return gemini.Request{}, err
	}
	system, err := c.prompts.Field(data, "system", name+".system")
	if err != nil {
		return gemini.Request{}, err
	}
	template, err := c.prompts.Field(data, "user", name+".user")
	if err != nil {
		return gemini.Request{}, err
	}
	values["language"] = script.Name(target)
	values["code"] = target
	user, err := prompt.FormatTemplate(template, values)
	if err != nil {
		return gemini.Request{}, fmt.Errorf("format %s.user: %w", name, err)
	}
	return gemini.Request{
		Prompt:       user,
		SystemPrompt: system,
		Task:         config.TaskCorrect,
	}, nil
}

func nonEmpty(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", ErrEmptyCorrection
	}
	return trimmed, nil
}
