package generation

import (
	"fmt"
	"strings"

	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/codec"
)

// Profile 은 프로필 합성 응답 형식이다.
type Profile struct {
	Summary   string   `json:"summary"`
	Interests []string `json:"interests"`
	Goals     []string `json:"goals"`
	Tone      string   `json:"tone"`
}

// PlanDay 는 일자별 계획이다.
type PlanDay struct {
	Day   int      `json:"day"`
	Title string   `json:"title"`
	Focus string   `json:"focus"`
	Tasks []string `json:"tasks"`
}

// Plan 은 다일 계획 응답 형식이다.
type Plan struct {
	Title string    `json:"title"`
	Days  []PlanDay `json:"days"`
}

func stringArraySchema() map[string]any {
	return map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
}

func profileSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"summary":   map[string]any{"type": "string"},
			"interests": stringArraySchema(),
			"goals":     stringArraySchema(),
			"tone":      map[string]any{"type": "string"},
		},
		"required": []string{"summary", "interests", "goals"},
	}
}

func planSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title": map[string]any{"type": "string"},
			"days": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"day":   map[string]any{"type": "integer"},
						"title": map[string]any{"type": "string"},
						"focus": map[string]any{"type": "string"},
						"tasks": stringArraySchema(),
					},
					"required": []string{"day", "title", "tasks"},
				},
			},
		},
		"required": []string{"title", "days"},
	}
}

func validateProfile(record map[string]any) error {
	var profile Profile
	if err := codec.Decode(record, &profile); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedOutput, err)
	}
	if strings.TrimSpace(profile.Summary) == "" {
		return fmt.Errorf("%w: profile summary is empty", ErrMalformedOutput)
	}
	return nil
}

func validatePlan(record map[string]any) error {
	var plan Plan
	if err := codec.Decode(record, &plan); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedOutput, err)
	}
	if len(plan.Days) == 0 {
		return fmt.Errorf("%w: plan has no days", ErrMalformedOutput)
	}
	return nil
}
