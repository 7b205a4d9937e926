package harness

import (
	"bufio"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/weiihann/pybench/manifest"
)

// badPackage makes every fake tool fail resolution.
const badPackage = "definitely-not-a-real-package"

const fakePython = `#!/bin/sh
[ -n "$FAKE_LOG" ] && echo "python $*" >> "$FAKE_LOG"
if [ "$1" = "-m" ] && [ "$2" = "venv" ]; then
	[ -n "$FAKE_FAIL_VENV" ] && { echo "Error: ensurepip is not available" >&2; exit 1; }
	mkdir -p "$3/bin" && cp "$0" "$3/bin/python"
	exit 0
fi
if [ "$1" = "-m" ] && [ "$2" = "pip" ]; then
	case "$3" in
	install)
		for arg in "$@"; do
			if [ "$arg" = "` + badPackage + `" ]; then
				echo "ERROR: No matching distribution found for $arg" >&2
				exit 1
			fi
		done
		exit 0
		;;
	freeze)
		echo "requests==2.32.3"
		echo "rich==13.7.1"
		exit 0
		;;
	esac
fi
echo "unexpected python $*" >&2
exit 2
`

const fakePoetry = `#!/bin/sh
[ -n "$FAKE_LOG" ] && echo "poetry $*" >> "$FAKE_LOG"
case "$1" in
env)
	exit 0
	;;
lock)
	if grep -q "` + badPackage + `" pyproject.toml; then
		echo "Because pybench-env depends on ` + badPackage + ` which doesn't match any versions, version solving failed." >&2
		exit 1
	fi
	printf '[[package]]\nname = "requests"\nversion = "2.32.3"\n' > poetry.lock
	exit 0
	;;
install)
	[ -f poetry.lock ] || exit 1
	exit 0
	;;
esac
exit 2
`

const fakeUV = `#!/bin/sh
[ -n "$FAKE_LOG" ] && echo "uv $*" >> "$FAKE_LOG"
case "$1" in
venv)
	mkdir -p .venv
	exit 0
	;;
lock)
	[ -n "$FAKE_SLEEP" ] && exec sleep "$FAKE_SLEEP"
	if grep -q "` + badPackage + `" pyproject.toml; then
		echo "No solution found when resolving dependencies" >&2
		exit 1
	fi
	printf 'version = 1\n\n[[package]]\nname = "requests"\n' > uv.lock
	exit 0
	;;
sync)
	[ -f uv.lock ] || exit 1
	case "$FAKE_FAIL_SYNC" in
	"") exit 0 ;;
	both) echo "progress on stdout"; echo "error: sync reported on stderr" >&2; exit 1 ;;
	*) echo "error: sync reported on stdout"; exit 1 ;;
	esac
	;;
pip)
	case "$2" in
	compile)
		grep -q "` + badPackage + `" requirements.in && exit 1
		printf 'requests==2.32.3\n' > requirements.txt
		exit 0
		;;
	sync)
		[ -n "$VIRTUAL_ENV" ] || exit 1
		exit 0
		;;
	esac
	;;
esac
exit 2
`

// fakeTools writes fake python, poetry and uv scripts into a temporary
// directory and returns Executables pointing at them. Every invocation is
// appended to the returned log file.
func fakeTools(t *testing.T) (Executables, string) {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("fake tools are shell scripts")
	}

	dir := t.TempDir()

	scripts := map[string]string{
		"python": fakePython,
		"poetry": fakePoetry,
		"uv":     fakeUV,
	}

	for name, body := range scripts {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
			t.Fatalf("write fake %s: %v", name, err)
		}
	}

	logPath := filepath.Join(dir, "invocations.log")
	t.Setenv("FAKE_LOG", logPath)

	return Executables{
		Python: filepath.Join(dir, "python"),
		Poetry: []string{filepath.Join(dir, "poetry")},
		UV:     []string{filepath.Join(dir, "uv")},
	}, logPath
}

// invokedTools returns the distinct tools in the invocation log, in first
// seen order. The fake python counts as pip.
func invokedTools(t *testing.T, logPath string) []Tool {
	t.Helper()

	f, err := os.Open(logPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		t.Fatalf("open invocation log: %v", err)
	}
	defer f.Close()

	seen := make(map[Tool]bool)

	var tools []Tool

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		name, _, _ := strings.Cut(scanner.Text(), " ")

		tool := Tool(name)
		if name == "python" {
			tool = ToolPip
		}

		if !seen[tool] {
			seen[tool] = true
			tools = append(tools, tool)
		}
	}

	return tools
}

func testManifest(t *testing.T, names ...string) *manifest.Manifest {
	t.Helper()

	m, err := manifest.Parse(strings.NewReader(strings.Join(names, "\n")))
	if err != nil {
		t.Fatalf("parse manifest: %v", err)
	}

	return m
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read %s: %v", dir, err)
	}

	if len(entries) != 0 {
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name()
		}

		t.Errorf("work dir not cleaned up, contains %v", names)
	}
}
