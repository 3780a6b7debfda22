package logging

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// directOutput matches fmt.Print*, log.Print* and the print builtins.
// Writer variants such as fmt.Fprintf are allowed.
var directOutput = regexp.MustCompile(`\b(fmt|log)\.Print(f|ln)?\s*\(|(^|[^.\w])print(ln)?\s*\(`)

// moduleRoot walks up from this file to the directory holding go.mod.
func moduleRoot(t *testing.T) string {
	t.Helper()
	_, filename, _, ok := runtime.Caller(0)
	require.True(t, ok, "unable to locate test file")

	dir := filepath.Dir(filename)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		require.NotEqual(t, dir, parent, "go.mod not found above %s", filename)
		dir = parent
	}
}

func lintSkipped(rel string) bool {
	return strings.HasSuffix(rel, "_test.go") || filepath.Base(rel) == "main.go"
}

// TestNoDirectLogging keeps library and server code on slog. main.go may
// print the version and CLI commands write through cobra's writers.
func TestNoDirectLogging(t *testing.T) {
	root := moduleRoot(t)
	var violations []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".") || name == "vendor") {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil || !strings.HasSuffix(rel, ".go") || lintSkipped(rel) {
			return err
		}

		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()

		scanner := bufio.NewScanner(file)
		for n := 1; scanner.Scan(); n++ {
			line := strings.TrimSpace(scanner.Text())
			if strings.HasPrefix(line, "//") {
				continue
			}
			if directOutput.MatchString(line) {
				violations = append(violations, fmt.Sprintf("%s:%d: %s", rel, n, line))
			}
		}
		return scanner.Err()
	})
	require.NoError(t, err)

	for _, v := range violations {
		t.Errorf("direct output, use the logging package: %s", v)
	}
}

