package adapters

import (
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// AnthropicAdapter handles the Anthropic Messages API shape:
// a system field (string or content blocks) plus a messages array whose
// content is either a string or an array of typed blocks.
type AnthropicAdapter struct{}

// NewAnthropicAdapter creates an Anthropic adapter.
func NewAnthropicAdapter() *AnthropicAdapter { return &AnthropicAdapter{} }

func (a *AnthropicAdapter) Name() string       { return "anthropic" }
func (a *AnthropicAdapter) Provider() Provider { return ProviderAnthropic }

func (a *AnthropicAdapter) ExtractModel(body []byte) string {
	return gjson.GetBytes(body, "model").String()
}

func (a *AnthropicAdapter) ExtractPromptText(body []byte) (string, bool) {
	var parts []string

	system := gjson.GetBytes(body, "system")
	switch {
	case system.Type == gjson.String:
		parts = append(parts, system.String())
	case system.IsArray():
		system.ForEach(func(_, block gjson.Result) bool {
			if block.Get("type").String() == "text" {
				parts = append(parts, block.Get("text").String())
			}
			return true
		})
	}

	messages := gjson.GetBytes(body, "messages")
	if !messages.IsArray() && len(parts) == 0 {
		return "", false
	}
	messages.ForEach(func(_, msg gjson.Result) bool {
		content := msg.Get("content")
		switch {
		case content.Type == gjson.String:
			parts = append(parts, content.String())
		case content.IsArray():
			content.ForEach(func(_, block gjson.Result) bool {
				if block.Get("type").String() == "text" {
					parts = append(parts, block.Get("text").String())
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

func (a *AnthropicAdapter) ExtractToolDeclarations(body []byte) []ToolDeclaration {
	tools := gjson.GetBytes(body, "tools")
	if !tools.IsArray() {
		return nil
	}
	var out []ToolDeclaration
	tools.ForEach(func(_, tool gjson.Result) bool {
		out = append(out, ToolDeclaration{
			Name:        tool.Get("name").String(),
			Description: tool.Get("description").String(),
		})
		return true
	})
	return out
}

func (a *AnthropicAdapter) ExtractMaxTokens(body []byte) int {
	return int(gjson.GetBytes(body, "max_tokens").Int())
}

func (a *AnthropicAdapter) OverrideModel(body []byte, model string) ([]byte, error) {
	return sjson.SetBytes(body, "model", model)
}

func (a *AnthropicAdapter) ExtractUsage(respBody []byte) UsageInfo {
	usage := gjson.GetBytes(respBody, "usage")
	in := int(usage.Get("input_tokens").Int())
	out := int(usage.Get("output_tokens").Int())
	return UsageInfo{InputTokens: in, OutputTokens: out, TotalTokens: in + out}
}
