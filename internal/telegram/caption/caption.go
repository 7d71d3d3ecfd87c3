// Package caption implements the message caption format shared by the
// uploader and the reconciler. The caption is a small wire protocol: the
// first two lines are load-bearing, the rest is informational.
package caption

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	filenamePrefix = "📁 "
	idPrefix       = "🆔 ID: "
	toolPrefix     = "🔗 Uploaded via "
	userPrefix     = "👤 User: "
)

// ToolName appears on the third caption line of every upload.
const ToolName = "TeleDrive"

// Meta is the structured content of a caption
type Meta struct {
	Filename string
	UniqueID int64
	Tool     string
	User     string
}

// Parsed is the result of decoding a caption. The Has* flags distinguish
// an absent line from an empty value.
type Parsed struct {
	Filename    string
	HasFilename bool
	UniqueID    int64
	HasUniqueID bool
}

// Format renders the four caption lines
func Format(m Meta) string {
	tool := m.Tool
	if tool == "" {
		tool = ToolName
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s%s\n", filenamePrefix, m.Filename)
	fmt.Fprintf(&b, "%s%d\n", idPrefix, m.UniqueID)
	fmt.Fprintf(&b, "%s%s\n", toolPrefix, tool)
	fmt.Fprintf(&b, "%s%s", userPrefix, m.User)
	return b.String()
}

// Parse decodes a caption. Unknown lines are ignored. A first line of
// exactly the filename sentinel with nothing after it yields no filename.
func Parse(text string) Parsed {
	var p Parsed
	if text == "" {
		return p
	}

	for i, line := range strings.Split(text, "\n") {
		if i == 0 && strings.HasPrefix(line, filenamePrefix) {
			name := strings.TrimSpace(strings.TrimPrefix(line, filenamePrefix))
			if name != "" {
				p.Filename = name
				p.HasFilename = true
			}
			continue
		}
		if !p.HasUniqueID && strings.HasPrefix(line, idPrefix) {
			raw := strings.TrimSpace(strings.TrimPrefix(line, idPrefix))
			id, err := strconv.ParseInt(raw, 10, 64)
			if err == nil && id > 0 {
				p.UniqueID = id
				p.HasUniqueID = true
			}
		}
	}
	return p
}

// WithID prepends the unique-id line to a caption that lacks one. The
// first filename line, when present, stays first. Returns the input
// unchanged when an id line already exists.
func WithID(text string, id int64) string {
	if Parse(text).HasUniqueID {
		return text
	}

	idLine := fmt.Sprintf("%s%d", idPrefix, id)
	if text == "" {
		return idLine
	}

	lines := strings.Split(text, "\n")
	if strings.HasPrefix(lines[0], filenamePrefix) {
		rest := append([]string{lines[0], idLine}, lines[1:]...)
		return strings.Join(rest, "\n")
	}
	return idLine + "\n" + text
}
