package patch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openevolve-go/openevolve/internal/errs"
)

const seedFile = `def score(values):
    # EVOLVE-BLOCK-START scorer
    return sum(v*v for v in values)
    # EVOLVE-BLOCK-END
`

func TestParseBlocks_SingleBlock(t *testing.T) {
	spans, err := ParseBlocks(seedFile)
	require.NoError(t, err)
	require.Len(t, spans, 1)
	require.Equal(t, "scorer", spans[0].Name)
	require.Contains(t, seedFile[spans[0].BodyStart:spans[0].BodyEnd], "sum(v*v for v in values)")
}

func TestParseBlocks_Unterminated(t *testing.T) {
	_, err := ParseBlocks("# EVOLVE-BLOCK-START foo\nbody\n")
	require.Error(t, err)
	var parseErr *errs.PatchParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestParseBlocks_Nested(t *testing.T) {
	_, err := ParseBlocks("# EVOLVE-BLOCK-START a\n# EVOLVE-BLOCK-START b\n# EVOLVE-BLOCK-END\n# EVOLVE-BLOCK-END\n")
	require.Error(t, err)
}

func TestApplyStructured_EmptyDiffsIsIdentity(t *testing.T) {
	got, err := ApplyStructured(seedFile, nil)
	require.NoError(t, err)
	require.Equal(t, seedFile, got)
}

func TestApplyStructured_ReplacesWithinBlock(t *testing.T) {
	diffs := []Diff{{Block: "scorer", Search: "sum(v*v for v in values)", Replace: "sum(v for v in values)"}}
	got, err := ApplyStructured(seedFile, diffs)
	require.NoError(t, err)
	require.Contains(t, got, "sum(v for v in values)")
	require.NotContains(t, got, "sum(v*v for v in values)")
}

func TestApplyStructured_AmbiguousSearchFails(t *testing.T) {
	const body = `# EVOLVE-BLOCK-START dup
x = 1
x = 1
# EVOLVE-BLOCK-END
`
	diffs := []Diff{{Block: "dup", Search: "x = 1", Replace: "x = 2"}}
	_, err := ApplyStructured(body, diffs)
	require.Error(t, err)
	var applyErr *errs.PatchApplyError
	require.ErrorAs(t, err, &applyErr)
}

func TestApplyStructured_MissingSearchFails(t *testing.T) {
	diffs := []Diff{{Block: "scorer", Search: "does not appear anywhere", Replace: "x"}}
	_, err := ApplyStructured(seedFile, diffs)
	require.Error(t, err)
	var applyErr *errs.PatchApplyError
	require.ErrorAs(t, err, &applyErr)
}

func TestApplyStructured_UnknownBlockFails(t *testing.T) {
	diffs := []Diff{{Block: "nope", Search: "x", Replace: "y"}}
	_, err := ApplyStructured(seedFile, diffs)
	require.Error(t, err)
}

func TestParseResponse_StructuredDiffsKey(t *testing.T) {
	raw := `{"diffs": [{"block": "scorer", "search": "a", "replace": "b"}]}`
	diffs, _, structured, err := ParseResponse(raw)
	require.NoError(t, err)
	require.True(t, structured)
	require.Len(t, diffs, 1)
	require.Equal(t, "scorer", diffs[0].Block)
}

func TestParseResponse_FallsBackToUnifiedDiff(t *testing.T) {
	raw := "--- a\n+++ b\n@@ -1,1 +1,1 @@\n-old\n+new\n"
	_, unified, structured, err := ParseResponse(raw)
	require.NoError(t, err)
	require.False(t, structured)
	require.Equal(t, raw, unified)
}

func TestApplyUnifiedDiff_SimpleReplacement(t *testing.T) {
	content := "line1\nline2\nline3"
	diffText := "--- a\n+++ b\n@@ -2,1 +2,1 @@\n-line2\n+line2-changed\n"
	got, err := ApplyUnifiedDiff(content, diffText)
	require.NoError(t, err)
	require.Equal(t, "line1\nline2-changed\nline3", got)
}

func TestApplyUnifiedDiff_ContextMismatchFails(t *testing.T) {
	content := "line1\nline2\nline3"
	diffText := "--- a\n+++ b\n@@ -2,1 +2,1 @@\n-wrong-line\n+line2-changed\n"
	_, err := ApplyUnifiedDiff(content, diffText)
	require.Error(t, err)
}

func TestEngine_SeedRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "task.py")
	require.NoError(t, os.WriteFile(path, []byte(seedFile), 0o644))

	eng := New()
	result, err := eng.Apply(path, `{"diffs": []}`)
	require.NoError(t, err)
	require.Equal(t, seedFile, result.Applied)

	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, seedFile, string(onDisk))
}

func TestEngine_SafeRevertOnAmbiguousSearch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "task.py")
	const body = `# EVOLVE-BLOCK-START dup
x = 1
x = 1
# EVOLVE-BLOCK-END
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	eng := New()
	_, err := eng.Apply(path, `{"diffs": [{"block": "dup", "search": "x = 1", "replace": "x = 2"}]}`)
	require.Error(t, err)

	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, body, string(onDisk), "file must be unchanged when patch application fails")
}

func TestEngine_RevertRestoresOriginalBytes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "task.py")
	require.NoError(t, os.WriteFile(path, []byte(seedFile), 0o644))

	eng := New()
	result, err := eng.Apply(path, `{"diffs": [{"block": "scorer", "search": "sum(v*v for v in values)", "replace": "0"}]}`)
	require.NoError(t, err)

	require.NoError(t, eng.Revert(path, result.Original))

	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, seedFile, string(onDisk))
}
