// Package remedial synthesizes short lessons for concepts a learner missed.
package remedial

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/pavelanni/learnpath/internal/i18n"
	"github.com/pavelanni/learnpath/internal/llm/prompts"
	"github.com/pavelanni/learnpath/internal/model"
)

// Generator turns a prompt into raw model output.
type Generator interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Source tells where a stub came from.
type Source int

const (
	SourceNone Source = iota
	SourceParsed
	SourceFallback
)

func (s Source) String() string {
	switch s {
	case SourceParsed:
		return "parsed"
	case SourceFallback:
		return "fallback"
	}
	return "none"
}

// Outcome is the result of a synthesis. Stub is nil only for SourceNone.
type Outcome struct {
	Source Source
	Stub   *model.LessonStub
}

// DefaultTimeout bounds a single generation call.
const DefaultTimeout = 20 * time.Second

const fallbackMinutes = 3

// Synthesizer builds remedial lessons. A nil generator always falls back.
type Synthesizer struct {
	gen     Generator
	timeout time.Duration
}

// New creates a Synthesizer. A non-positive timeout uses DefaultTimeout.
func New(gen Generator, timeout time.Duration) *Synthesizer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Synthesizer{gen: gen, timeout: timeout}
}

// Synthesize returns a remedial stub for the missed tags. It never fails:
// generation and parse errors produce a localized fallback stub.
func (s *Synthesizer) Synthesize(ctx context.Context, missedTags []string, difficulty model.Difficulty) Outcome {
	if len(missedTags) == 0 {
		return Outcome{Source: SourceNone}
	}
	if difficulty == "" {
		difficulty = model.DifficultyBeginner
	}

	tags := prompts.SanitizeConcepts(missedTags)
	if len(tags) == 0 {
		// Every tag was markup or blank; nothing safe to put in a prompt.
		stub := Fallback(ctx, []string{i18n.T(ctx, i18n.MsgMissedConcepts)}, difficulty)
		stub.Tags = []string{}
		return Outcome{Source: SourceFallback, Stub: stub}
	}

	if s.gen == nil {
		return Outcome{Source: SourceFallback, Stub: Fallback(ctx, tags, difficulty)}
	}

	stub, err := s.generate(ctx, tags, difficulty)
	if err != nil {
		slog.Warn("remedial generation failed, using fallback", "tags", tags, "error", err)
		return Outcome{Source: SourceFallback, Stub: Fallback(ctx, tags, difficulty)}
	}
	stub.Tags = tags
	return Outcome{Source: SourceParsed, Stub: stub}
}

func (s *Synthesizer) generate(ctx context.Context, tags []string, difficulty model.Difficulty) (*model.LessonStub, error) {
	prompt, err := prompts.BuildRemedialPrompt(difficulty, tags)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	raw, err := s.gen.Complete(ctx, prompts.RemedialSystemPrompt, prompt)
	if err != nil {
		return nil, err
	}
	return ParseStub(raw)
}

// Fallback builds a deterministic stub from the tags in the context's language.
func Fallback(ctx context.Context, tags []string, difficulty model.Difficulty) *model.LessonStub {
	data := map[string]any{"Concepts": strings.Join(tags, ", ")}
	return &model.LessonStub{
		Title:            i18n.Td(ctx, i18n.MsgRemedialTitle, data),
		EstimatedMinutes: fallbackMinutes,
		Difficulty:       difficulty,
		Content: []model.ContentBlock{
			{Type: "info", Text: i18n.Td(ctx, i18n.MsgRemedialInfo, data)},
			{Type: "scenario", Text: i18n.Td(ctx, i18n.MsgRemedialScenario, data)},
			{Type: "tip", Text: i18n.Tp(ctx, i18n.MsgRemedialTip, len(tags))},
		},
		Tags: tags,
	}
}
