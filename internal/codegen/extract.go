package codegen

import (
	"regexp"
	"strings"
)

// Extract returns the trimmed text between the first start marker and the
// next end marker after it. When either marker is missing the reply is
// returned unchanged. A markdown fence wrapping the block is removed.
func Extract(reply, start, end string) string {
	if start == "" || end == "" {
		return reply
	}
	startIndex := strings.Index(reply, start)
	if startIndex < 0 {
		return reply
	}
	rest := reply[startIndex+len(start):]
	endIndex := strings.Index(rest, end)
	if endIndex < 0 {
		return reply
	}
	return stripMarkdownFence(rest[:endIndex])
}

var fenceTagPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_+-]*$`)

var oneLineFenceTags = map[string]bool{"python": true, "python3": true, "py": true, "sql": true, "text": true}

// stripMarkdownFence unwraps a block that both opens and closes with a
// fence. On multi-line blocks the language tag is dropped only when it sits
// alone on the opening line. Blocks without both fences are returned exactly
// as extracted.
func stripMarkdownFence(value string) string {
	trimmed := strings.TrimSpace(value)
	if len(trimmed) < 6 || !strings.HasPrefix(trimmed, "```") || !strings.HasSuffix(trimmed, "```") {
		return trimmed
	}
	body := trimmed[3 : len(trimmed)-3]
	newline := strings.IndexByte(body, '\n')
	if newline < 0 {
		// One-line fences carry no tag line; drop a leading language name.
		if tag, code, ok := strings.Cut(strings.TrimSpace(body), " "); ok && oneLineFenceTags[strings.ToLower(tag)] {
			body = code
		}
		return strings.TrimSpace(body)
	}
	if tag := strings.TrimSpace(body[:newline]); tag == "" || fenceTagPattern.MatchString(tag) {
		body = body[newline+1:]
	}
	return strings.TrimSpace(body)
}
