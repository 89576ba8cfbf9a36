// Package patch parses structured edits and unified diffs emitted by
// the language model and applies them to task files, with snapshot
// and revert so a failed generation never corrupts the working tree.
package patch

import (
	"encoding/json"
	"strings"

	"github.com/openevolve-go/openevolve/internal/errs"
)

// WholeBlock is the reserved block name meaning "the whole file",
// used when a task has no EVOLVE-BLOCK markers or the edit is not
// scoped to a single block.
const WholeBlock = "__whole__"

// Diff is one structured edit: replace the first (and only) exact
// occurrence of Search with Replace inside the named Block.
type Diff struct {
	Block   string `json:"block"`
	Search  string `json:"search"`
	Replace string `json:"replace"`
}

type structuredPatch struct {
	Diffs []Diff `json:"diffs"`
}

// ParseResponse classifies a raw llm_call response: if it parses as a
// JSON object with a "diffs" key, the structured diffs are returned;
// otherwise the raw text is returned unchanged to be applied as a
// unified diff.
func ParseResponse(raw string) (diffs []Diff, unified string, structured bool, err error) {
	trimmed := strings.TrimSpace(raw)

	var probe map[string]json.RawMessage
	if jsonErr := json.Unmarshal([]byte(trimmed), &probe); jsonErr == nil {
		if _, hasDiffs := probe["diffs"]; hasDiffs {
			var sp structuredPatch
			if err := json.Unmarshal([]byte(trimmed), &sp); err != nil {
				return nil, "", true, &errs.PatchParseError{Msg: "malformed diffs array: " + err.Error()}
			}
			return sp.Diffs, "", true, nil
		}
	}
	return nil, raw, false, nil
}

// ApplyStructured applies diffs in order against content. Each
// diff's Search must match exactly once within its target region
// (the whole file for WholeBlock, or the named block's current body
// otherwise); zero or multiple matches fail the whole patch.
func ApplyStructured(content string, diffs []Diff) (string, error) {
	for _, d := range diffs {
		var prefix, body, suffix string

		if d.Block == "" || d.Block == WholeBlock {
			prefix, body, suffix = "", content, ""
		} else {
			spans, err := ParseBlocks(content)
			if err != nil {
				return "", err
			}
			span, ok := findSpan(spans, d.Block)
			if !ok {
				return "", &errs.PatchApplyError{Msg: "block not found: " + d.Block}
			}
			prefix = content[:span.BodyStart]
			body = content[span.BodyStart:span.BodyEnd]
			suffix = content[span.BodyEnd:]
		}

		count := strings.Count(body, d.Search)
		switch {
		case count == 0:
			return "", &errs.PatchApplyError{Msg: "search text not found in block " + displayBlock(d.Block)}
		case count > 1:
			return "", &errs.PatchApplyError{Msg: "ambiguous search text in block " + displayBlock(d.Block) + ": matched more than once"}
		}

		newBody := strings.Replace(body, d.Search, d.Replace, 1)
		content = prefix + newBody + suffix
	}
	return content, nil
}

func displayBlock(name string) string {
	if name == "" {
		return WholeBlock
	}
	return name
}

func findSpan(spans []BlockSpan, name string) (BlockSpan, bool) {
	for _, s := range spans {
		if s.Name == name {
			return s, true
		}
	}
	return BlockSpan{}, false
}
