package moderation

import (
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/sjson"

	"github.com/aegisgw/admission-gateway/internal/utils"
)

// Stage scans response bodies and applies the configured action.
type Stage struct {
	scorer *Scorer
}

// NewStage creates a moderation stage with the default lexicon.
func NewStage() *Stage {
	return &Stage{scorer: NewScorer()}
}

// Moderate scans body and returns the result. The stage never fails a
// request: internal errors (including unpatchable bodies) pass the original
// response through.
func (s *Stage) Moderate(body []byte, cfg Config) Result {
	if !cfg.Enabled {
		return Result{Action: ActionAllow}
	}

	segments, ok := extractSegments(body)
	if !ok {
		// Unknown shape: scan the whole body as text.
		segments = []segment{{text: string(body)}}
	}

	var texts []string
	for _, seg := range segments {
		texts = append(texts, seg.text)
	}
	score, categories := s.scorer.Score(strings.Join(texts, "\n"))

	if score < cfg.Threshold || len(categories) == 0 {
		return Result{Action: ActionAllow, Score: score}
	}

	log.Warn().
		Float64("score", score).
		Float64("threshold", cfg.Threshold).
		Strs("categories", categories).
		Str("action", string(cfg.Action)).
		Msg("moderation: violation detected")

	result := Result{
		Action:              cfg.Action,
		Score:               score,
		ViolationCategories: categories,
	}

	switch cfg.Action {
	case ActionBlock:
		result.Blocked = true
		result.SanitizedBody = blockedPayload(categories)
	case ActionRedact:
		if !ok {
			// No known shape to patch; degrade to block rather than leak.
			result.Blocked = true
			result.SanitizedBody = blockedPayload(categories)
			break
		}
		sanitized, err := s.redactSegments(body, segments)
		if err != nil {
			log.Error().Err(err).Msg("moderation: redaction failed, passing original through")
			return Result{Action: ActionAllow, Score: score}
		}
		result.SanitizedBody = sanitized
	case ActionAnnotate, ActionAllow:
		// Body unchanged; annotate surfaces via response headers.
	}

	return result
}

// redactSegments writes redacted text back into the original response shape.
func (s *Stage) redactSegments(body []byte, segments []segment) ([]byte, error) {
	out := body
	var err error
	for _, seg := range segments {
		out, err = sjson.SetBytes(out, seg.path, s.scorer.Redact(seg.text))
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// blockedPayload is the generic rejection body. It deliberately carries no
// fragment of the violating content.
func blockedPayload(categories []string) []byte {
	payload := map[string]any{
		"error": map[string]any{
			"type":                 "output_moderation_blocked",
			"message":              "response withheld by output moderation policy",
			"violation_categories": categories,
		},
	}
	data, err := utils.MarshalNoEscape(payload)
	if err != nil {
		return []byte(`{"error":{"type":"output_moderation_blocked","message":"response withheld by output moderation policy"}}`)
	}
	return data
}
