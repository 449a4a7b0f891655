package adapters

import (
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// OpenAIAdapter handles the OpenAI Chat Completions shape (messages whose
// content is a string or structured content parts) and the legacy Completions
// shape (a single prompt string or array of strings).
type OpenAIAdapter struct{}

// NewOpenAIAdapter creates an OpenAI adapter.
func NewOpenAIAdapter() *OpenAIAdapter { return &OpenAIAdapter{} }

func (a *OpenAIAdapter) Name() string       { return "openai" }
func (a *OpenAIAdapter) Provider() Provider { return ProviderOpenAI }

func (a *OpenAIAdapter) ExtractModel(body []byte) string {
	return gjson.GetBytes(body, "model").String()
}

func (a *OpenAIAdapter) ExtractPromptText(body []byte) (string, bool) {
	var parts []string

	messages := gjson.GetBytes(body, "messages")
	if messages.IsArray() {
		messages.ForEach(func(_, msg gjson.Result) bool {
			content := msg.Get("content")
			switch {
			case content.Type == gjson.String:
				parts = append(parts, content.String())
			case content.IsArray():
				// Structured content parts: [{"type":"text","text":...}, ...]
				content.ForEach(func(_, part gjson.Result) bool {
					if part.Get("type").String() == "text" {
						parts = append(parts, part.Get("text").String())
					}
					return true
				})
			}
			return true
		})
		if len(parts) == 0 {
			return "", false
		}
		return strings.Join(parts, "\n"), true
	}

	// Legacy completions: single prompt string or array of strings.
	prompt := gjson.GetBytes(body, "prompt")
	switch {
	case prompt.Type == gjson.String:
		return prompt.String(), true
	case prompt.IsArray():
		prompt.ForEach(func(_, p gjson.Result) bool {
			parts = append(parts, p.String())
			return true
		})
		if len(parts) > 0 {
			return strings.Join(parts, "\n"), true
		}
	}

	return "", false
}

func (a *OpenAIAdapter) ExtractToolDeclarations(body []byte) []ToolDeclaration {
	tools := gjson.GetBytes(body, "tools")
	if !tools.IsArray() {
		return nil
	}
	var out []ToolDeclaration
	tools.ForEach(func(_, tool gjson.Result) bool {
		fn := tool.Get("function")
		if fn.Exists() {
			out = append(out, ToolDeclaration{
				Name:        fn.Get("name").String(),
				Description: fn.Get("description").String(),
			})
		}
		return true
	})
	return out
}

func (a *OpenAIAdapter) ExtractMaxTokens(body []byte) int {
	if v := gjson.GetBytes(body, "max_completion_tokens"); v.Exists() {
		return int(v.Int())
	}
	return int(gjson.GetBytes(body, "max_tokens").Int())
}

func (a *OpenAIAdapter) OverrideModel(body []byte, model string) ([]byte, error) {
	return sjson.SetBytes(body, "model", model)
}

func (a *OpenAIAdapter) ExtractUsage(respBody []byte) UsageInfo {
	usage := gjson.GetBytes(respBody, "usage")
	in := int(usage.Get("prompt_tokens").Int())
	out := int(usage.Get("completion_tokens").Int())
	total := int(usage.Get("total_tokens").Int())
	if total == 0 {
		total = in + out
	}
	return UsageInfo{InputTokens: in, OutputTokens: out, TotalTokens: total}
}
