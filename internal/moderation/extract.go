package moderation

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// segment is one extracted span of response text and the JSON path it came
// from, so redacted text can be written back into the original shape.
type segment struct {
	path string
	text string
}

// extractSegments pulls textual content out of the known provider response
// shapes. The ok result is false when no shape matched, in which case the
// caller scans the stringified body instead.
func extractSegments(body []byte) ([]segment, bool) {
	root := gjson.ParseBytes(body)

	// Chat-completion shape: choices[].message.content
	if choices := root.Get("choices"); choices.IsArray() {
		var segs []segment
		for i, choice := range choices.Array() {
			if content := choice.Get("message.content"); content.Type == gjson.String {
				segs = append(segs, segment{
					path: fmt.Sprintf("choices.%d.message.content", i),
					text: content.String(),
				})
			}
			// Legacy completion choice shape.
			if text := choice.Get("text"); text.Type == gjson.String {
				segs = append(segs, segment{
					path: fmt.Sprintf("choices.%d.text", i),
					text: text.String(),
				})
			}
		}
		if len(segs) > 0 {
			return segs, true
		}
	}

	// Content-block array shape: content[].text
	if content := root.Get("content"); content.IsArray() {
		var segs []segment
		for i, block := range content.Array() {
			if block.Get("type").String() == "text" {
				if text := block.Get("text"); text.Type == gjson.String {
					segs = append(segs, segment{
						path: fmt.Sprintf("content.%d.text", i),
						text: text.String(),
					})
				}
			}
		}
		if len(segs) > 0 {
			return segs, true
		}
	}

	// Plain text fields.
	for _, field := range []string{"completion", "text"} {
		if v := root.Get(field); v.Type == gjson.String {
			return []segment{{path: field, text: v.String()}}, true
		}
	}

	return nil, false
}
