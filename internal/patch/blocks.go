package patch

import (
	"strings"

	"github.com/openevolve-go/openevolve/internal/errs"
)

const (
	startMarker = "EVOLVE-BLOCK-START"
	endMarker   = "EVOLVE-BLOCK-END"
)

// BlockSpan describes one named EVOLVE-BLOCK region: BodyStart and
// BodyEnd are byte offsets into the file content delimiting the text
// between the marker lines (the markers themselves are not part of
// the body).
type BlockSpan struct {
	Name      string
	BodyStart int
	BodyEnd   int
}

// ParseBlocks scans content for EVOLVE-BLOCK-START/END marker lines.
// The marker is a literal substring match on the trimmed line, so it
// works regardless of the host file's comment syntax (#, //, --, ...).
// Blocks must form a well-matched, non-nested sequence; malformed
// marker sequences are reported as PatchParseError.
func ParseBlocks(content string) ([]BlockSpan, error) {
	var spans []BlockSpan
	var open bool
	var openName string
	var bodyStart int

	offset := 0
	for _, line := range splitKeepLength(content) {
		trimmed := strings.TrimSpace(line)

		if idx := strings.Index(trimmed, startMarker); idx >= 0 {
			if open {
				return nil, &errs.PatchParseError{Msg: "nested EVOLVE-BLOCK-START for " + openName}
			}
			name := strings.TrimSpace(trimmed[idx+len(startMarker):])
			if name == "" {
				return nil, &errs.PatchParseError{Msg: "EVOLVE-BLOCK-START missing a block name"}
			}
			open = true
			openName = name
			bodyStart = offset + len(line)
			offset += len(line)
			continue
		}

		if idx := strings.Index(trimmed, endMarker); idx >= 0 {
			if !open {
				return nil, &errs.PatchParseError{Msg: "EVOLVE-BLOCK-END without a matching START"}
			}
			spans = append(spans, BlockSpan{Name: openName, BodyStart: bodyStart, BodyEnd: offset})
			open = false
			openName = ""
			offset += len(line)
			continue
		}

		offset += len(line)
	}

	if open {
		return nil, &errs.PatchParseError{Msg: "unterminated EVOLVE-BLOCK-START for " + openName}
	}
	return spans, nil
}

// splitKeepLength splits content into lines, each retaining its
// trailing newline so offsets computed by summing line lengths match
// byte positions in the original string.
func splitKeepLength(content string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(content); i++ {
		if content[i] == '\n' {
			lines = append(lines, content[start:i+1])
			start = i + 1
		}
	}
	if start < len(content) {
		lines = append(lines, content[start:])
	}
	return lines
}
