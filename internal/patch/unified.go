package patch

import (
	"strconv"
	"strings"

	"github.com/openevolve-go/openevolve/internal/errs"
)

type hunk struct {
	origStart int // 1-based line in the original file where this hunk begins
	lines     []diffLine
}

type diffLine struct {
	kind byte // ' ', '-', '+'
	text string
}

// ApplyUnifiedDiff applies a standard unified diff (---/+++/@@
// headers) to content. Context and removed lines must match the
// corresponding original lines exactly; there is no fuzzy matching,
// so a stale or hand-edited diff fails rather than applying
// partially.
func ApplyUnifiedDiff(content string, diffText string) (string, error) {
	hunks, err := parseUnifiedDiff(diffText)
	if err != nil {
		return "", err
	}
	if len(hunks) == 0 {
		return content, nil
	}

	origLines := splitLinesNoNewline(content)
	var out []string
	cursor := 0 // 0-based index into origLines already copied to out

	for _, h := range hunks {
		start := h.origStart - 1
		if start < cursor || start > len(origLines) {
			return "", &errs.PatchApplyError{Msg: "unified diff hunk out of order or out of range"}
		}
		out = append(out, origLines[cursor:start]...)
		cursor = start

		for _, dl := range h.lines {
			switch dl.kind {
			case ' ':
				if cursor >= len(origLines) || origLines[cursor] != dl.text {
					return "", &errs.PatchApplyError{Msg: "unified diff context mismatch at line " + strconv.Itoa(cursor+1)}
				}
				out = append(out, origLines[cursor])
				cursor++
			case '-':
				if cursor >= len(origLines) || origLines[cursor] != dl.text {
					return "", &errs.PatchApplyError{Msg: "unified diff removal mismatch at line " + strconv.Itoa(cursor+1)}
				}
				cursor++
			case '+':
				out = append(out, dl.text)
			}
		}
	}
	out = append(out, origLines[cursor:]...)

	return strings.Join(out, "\n"), nil
}

func parseUnifiedDiff(diffText string) ([]hunk, error) {
	lines := strings.Split(diffText, "\n")
	var hunks []hunk
	i := 0

	for i < len(lines) {
		line := lines[i]
		switch {
		case strings.HasPrefix(line, "--- "), strings.HasPrefix(line, "+++ "):
			i++
		case strings.HasPrefix(line, "@@"):
			h, consumed, err := parseHunk(lines[i:])
			if err != nil {
				return nil, err
			}
			hunks = append(hunks, h)
			i += consumed
		default:
			i++
		}
	}
	return hunks, nil
}

func parseHunk(lines []string) (hunk, int, error) {
	header := lines[0]
	origStart, err := parseHunkOrigStart(header)
	if err != nil {
		return hunk{}, 0, err
	}

	h := hunk{origStart: origStart}
	i := 1
	for i < len(lines) {
		l := lines[i]
		if l == "" && i == len(lines)-1 {
			break
		}
		if strings.HasPrefix(l, "@@") || strings.HasPrefix(l, "--- ") || strings.HasPrefix(l, "+++ ") {
			break
		}
		if len(l) == 0 {
			i++
			continue
		}
		kind := l[0]
		if kind != ' ' && kind != '-' && kind != '+' {
			break
		}
		h.lines = append(h.lines, diffLine{kind: kind, text: l[1:]})
		i++
	}
	return h, i, nil
}

// parseHunkOrigStart extracts the starting line number of the
// original-file range from a "@@ -l,s +l,s @@" header.
func parseHunkOrigStart(header string) (int, error) {
	parts := strings.Fields(header)
	for _, p := range parts {
		if strings.HasPrefix(p, "-") {
			spec := strings.TrimPrefix(p, "-")
			numStr := spec
			if idx := strings.Index(spec, ","); idx >= 0 {
				numStr = spec[:idx]
			}
			n, err := strconv.Atoi(numStr)
			if err != nil {
				return 0, &errs.PatchParseError{Msg: "malformed unified diff hunk header: " + header}
			}
			return n, nil
		}
	}
	return 0, &errs.PatchParseError{Msg: "missing original-range field in hunk header: " + header}
}

func splitLinesNoNewline(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
