// Package bugreport writes a diagnostic file when motivator fails
// unexpectedly, so users can attach it to an issue.
package bugreport

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"time"
)

// Report is the content of a diagnostic file.
type Report struct {
	Time    time.Time
	Err     error
	Panic   any
	Stack   []byte
	Context map[string]string // e.g. device, backend, plugin
}

// Format renders the report as plain text.
func (r Report) Format() string {
	var b strings.Builder
	fmt.Fprintf(&b, "motivator bug report\n")
	fmt.Fprintf(&b, "time: %s\n", r.Time.Format(time.RFC3339))
	fmt.Fprintf(&b, "go: %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	for _, k := range slices.Sorted(maps.Keys(r.Context)) {
		fmt.Fprintf(&b, "%s: %s\n", k, r.Context[k])
	}
	if r.Err != nil {
		fmt.Fprintf(&b, "\nerror: %v\n", r.Err)
	}
	if r.Panic != nil {
		fmt.Fprintf(&b, "\npanic: %v\n", r.Panic)
	}
	if len(r.Stack) > 0 {
		fmt.Fprintf(&b, "\n%s\n", r.Stack)
	}
	return b.String()
}

// Write saves the report to path, replacing any previous report.
func Write(path string, r Report) error {
	if r.Time.IsZero() {
		r.Time = time.Now()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("bugreport: create dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(r.Format()), 0o644); err != nil {
		return fmt.Errorf("bugreport: write %s: %w", path, err)
	}
	return nil
}
