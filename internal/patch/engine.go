package patch

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/openevolve-go/openevolve/internal/errs"
)

// Engine applies edits to a task's target file with snapshot/revert
// safety. One Engine serialises all access to a single run's target
// file, matching the spec's single mutable shared resource.
type Engine struct {
	mu sync.Mutex
}

// New creates an Engine guarding one run's target file.
func New() *Engine { return &Engine{} }

// Result is the outcome of a successful Apply: the original file
// bytes (for Revert) and the new content now written to disk.
type Result struct {
	Original []byte
	Applied  string
}

// Apply computes the patched file content from the raw llm_call
// response and, if it applies cleanly, atomically writes it to path.
// The caller must call Revert with the returned Original bytes if
// downstream evaluation subsequently fails and apply_safe_revert is
// enabled; otherwise the write already stands.
func (e *Engine) Apply(path string, raw string) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	original, err := os.ReadFile(path)
	if err != nil {
		return Result{}, &errs.PatchApplyError{Msg: "read target file: " + err.Error()}
	}

	diffs, unified, structured, err := ParseResponse(raw)
	if err != nil {
		return Result{}, err
	}

	var applied string
	if structured {
		applied, err = ApplyStructured(string(original), diffs)
	} else {
		applied, err = ApplyUnifiedDiff(string(original), unified)
	}
	if err != nil {
		return Result{}, err
	}

	if err := writeAtomic(path, applied); err != nil {
		return Result{}, &errs.PatchApplyError{Msg: "write patched file: " + err.Error()}
	}

	return Result{Original: original, Applied: applied}, nil
}

// Revert restores path to original. A failure here is fatal to the
// run: the working tree is now in an unknown state.
func (e *Engine) Revert(path string, original []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := writeAtomic(path, string(original)); err != nil {
		return &errs.PatchRevertError{Msg: "restore " + path + ": " + err.Error()}
	}
	return nil
}

// writeAtomic writes content to a temp file in the same directory as
// path and renames it into place, so a crash mid-write never leaves a
// truncated target file. An existing file's permission bits are kept.
func writeAtomic(path string, content string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".patch-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if info, err := os.Stat(path); err == nil {
		if err := tmp.Chmod(info.Mode().Perm()); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return err
		}
	}

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
