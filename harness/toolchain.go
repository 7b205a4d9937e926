package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/weiihann/pybench/manifest"
	"mvdan.cc/sh/v3/shell"
)

// Tool names a benchmarked package manager.
type Tool string

const (
	ToolPip    Tool = "pip"
	ToolPoetry Tool = "poetry"
	ToolUV     Tool = "uv"
)

// selectAll selects every known tool.
const selectAll = "all"

// KnownTools returns the supported tools in benchmark order.
func KnownTools() []Tool {
	return []Tool{ToolPip, ToolPoetry, ToolUV}
}

// ParseTool returns the Tool named by s.
func ParseTool(s string) (Tool, error) {
	name := Tool(strings.ToLower(strings.TrimSpace(s)))
	for _, tool := range KnownTools() {
		if tool == name {
			return tool, nil
		}
	}

	return "", fmt.Errorf("%w %q (want pip, poetry, uv or all)", ErrUnknownTool, s)
}

// SelectTools turns --tool values into the tools to run. "all" or no value
// selects every tool. The result always follows KnownTools order and
// contains no duplicates.
func SelectTools(values []string) ([]Tool, error) {
	selected := make(map[Tool]bool)

	for _, value := range values {
		if strings.EqualFold(strings.TrimSpace(value), selectAll) {
			for _, tool := range KnownTools() {
				selected[tool] = true
			}

			continue
		}

		tool, err := ParseTool(value)
		if err != nil {
			return nil, err
		}

		selected[tool] = true
	}

	if len(values) == 0 {
		return KnownTools(), nil
	}

	tools := make([]Tool, 0, len(selected))
	for _, tool := range KnownTools() {
		if selected[tool] {
			tools = append(tools, tool)
		}
	}

	return tools, nil
}

// Phase groups the steps whose durations are summed together.
type Phase string

const (
	PhaseSetup   Phase = "setup"
	PhaseResolve Phase = "resolve"
	PhaseInstall Phase = "install"
	// PhaseLock steps export a lock file and are not timed.
	PhaseLock Phase = "lock"
)

// Step is one external command of a Plan. It runs with the environment
// directory as working directory.
type Step struct {
	Name  string
	Phase Phase
	Argv  []string
	Env   []string
	// StdoutFile, if set, receives the command's stdout. It is relative
	// to the environment directory.
	StdoutFile string
}

// Plan is everything needed to benchmark one tool in one directory.
type Plan struct {
	Tool Tool
	// Files are written into the environment directory before any step.
	Files    map[string][]byte
	Steps    []Step
	LockFile string
}

// Executables holds the commands used to invoke each tool.
type Executables struct {
	// Python is the interpreter used for venv creation and handed to
	// poetry and uv as the target interpreter.
	Python string
	Poetry []string
	UV     []string
}

// ParseExecutables splits the poetry and uv command strings with shell word
// rules, so values like "pipx run poetry" work.
func ParseExecutables(python, poetry, uv string) (Executables, error) {
	exe := Executables{Python: strings.TrimSpace(python)}
	if exe.Python == "" {
		return Executables{}, fmt.Errorf("python executable is empty")
	}

	var err error

	exe.Poetry, err = splitCommand(string(ToolPoetry), poetry)
	if err != nil {
		return Executables{}, err
	}

	exe.UV, err = splitCommand(string(ToolUV), uv)
	if err != nil {
		return Executables{}, err
	}

	return exe, nil
}

// Required returns the programs that must be resolvable before tool can be
// benchmarked.
func (e Executables) Required(tool Tool) []string {
	switch tool {
	case ToolPip:
		return []string{e.Python}
	case ToolPoetry:
		return []string{firstWord(e.Poetry), e.Python}
	case ToolUV:
		return []string{firstWord(e.UV)}
	default:
		return nil
	}
}

// PlanOptions tune how plans are built.
type PlanOptions struct {
	Requirements []manifest.Requirement
	// NoCache disables the tool's download and build caches.
	NoCache bool
	// UVRequirements benchmarks uv's pip interface instead of a uv project.
	UVRequirements bool
}

// BuildPlan returns the plan for benchmarking tool inside dir.
func BuildPlan(tool Tool, exe Executables, opts PlanOptions, dir string) (Plan, error) {
	if len(opts.Requirements) == 0 {
		return Plan{}, fmt.Errorf("plan %s: %w", tool, manifest.ErrEmpty)
	}

	switch tool {
	case ToolPip:
		return pipPlan(exe, opts, dir), nil
	case ToolPoetry:
		return poetryPlan(exe, opts)
	case ToolUV:
		if opts.UVRequirements {
			return uvRequirementsPlan(exe, opts, dir), nil
		}

		return uvProjectPlan(exe, opts)
	default:
		return Plan{}, fmt.Errorf("plan %q: %w", tool, ErrUnknownTool)
	}
}

func pipPlan(exe Executables, opts PlanOptions, dir string) Plan {
	venvPython := venvInterpreter(filepath.Join(dir, "venv"))
	pkgs := manifest.Strings(opts.Requirements)

	pipInstall := []string{
		venvPython, "-m", "pip", "install",
		"--quiet", "--disable-pip-version-check",
	}
	if opts.NoCache {
		pipInstall = append(pipInstall, "--no-cache-dir")
	}

	return Plan{
		Tool: ToolPip,
		Steps: []Step{
			{
				Name:  "venv",
				Phase: PhaseSetup,
				Argv:  []string{exe.Python, "-m", "venv", "venv"},
			},
			{
				Name:  "resolve",
				Phase: PhaseResolve,
				Argv:  concat(pipInstall, []string{"--dry-run"}, pkgs),
			},
			{
				Name:  "install",
				Phase: PhaseInstall,
				Argv:  concat(pipInstall, pkgs),
			},
			{
				Name:  "freeze",
				Phase: PhaseLock,
				Argv: []string{
					venvPython, "-m", "pip", "freeze",
					"--disable-pip-version-check",
				},
				StdoutFile: "requirements.txt",
			},
		},
		LockFile: "requirements.txt",
	}
}

func poetryPlan(exe Executables, opts PlanOptions) (Plan, error) {
	pyproject, err := poetryPyproject(opts.Requirements)
	if err != nil {
		return Plan{}, err
	}

	poetryConfig, err := poetryToml()
	if err != nil {
		return Plan{}, err
	}

	env := []string{
		"POETRY_VIRTUALENVS_IN_PROJECT=true",
		"POETRY_NO_INTERACTION=1",
	}

	var noCache []string
	if opts.NoCache {
		noCache = []string{"--no-cache"}
	}

	return Plan{
		Tool: ToolPoetry,
		Files: map[string][]byte{
			"pyproject.toml": pyproject,
			"poetry.toml":    poetryConfig,
		},
		Steps: []Step{
			{
				Name:  "env use",
				Phase: PhaseSetup,
				Argv:  concat(exe.Poetry, []string{"env", "use", exe.Python}),
				Env:   env,
			},
			{
				Name:  "lock",
				Phase: PhaseResolve,
				Argv:  concat(exe.Poetry, []string{"lock"}, noCache),
				Env:   env,
			},
			{
				Name:  "install",
				Phase: PhaseInstall,
				Argv:  concat(exe.Poetry, []string{"install", "--no-root"}, noCache),
				Env:   env,
			},
		},
		LockFile: "poetry.lock",
	}, nil
}

func uvProjectPlan(exe Executables, opts PlanOptions) (Plan, error) {
	pyproject, err := uvPyproject(opts.Requirements)
	if err != nil {
		return Plan{}, err
	}

	var noCache []string
	if opts.NoCache {
		noCache = []string{"--no-cache"}
	}

	return Plan{
		Tool:  ToolUV,
		Files: map[string][]byte{"pyproject.toml": pyproject},
		Steps: []Step{
			{
				Name:  "venv",
				Phase: PhaseSetup,
				Argv:  concat(exe.UV, []string{"venv", "--python", exe.Python}),
			},
			{
				Name:  "lock",
				Phase: PhaseResolve,
				Argv:  concat(exe.UV, []string{"lock"}, noCache),
			},
			{
				Name:  "sync",
				Phase: PhaseInstall,
				Argv:  concat(exe.UV, []string{"sync", "--frozen"}, noCache),
			},
		},
		LockFile: "uv.lock",
	}, nil
}

func uvRequirementsPlan(exe Executables, opts PlanOptions, dir string) Plan {
	env := []string{"VIRTUAL_ENV=" + filepath.Join(dir, ".venv")}

	var noCache []string
	if opts.NoCache {
		noCache = []string{"--no-cache"}
	}

	in := strings.Join(manifest.Strings(opts.Requirements), "\n") + "\n"

	return Plan{
		Tool:  ToolUV,
		Files: map[string][]byte{"requirements.in": []byte(in)},
		Steps: []Step{
			{
				Name:  "venv",
				Phase: PhaseSetup,
				Argv:  concat(exe.UV, []string{"venv", "--python", exe.Python}),
			},
			{
				Name:  "pip compile",
				Phase: PhaseResolve,
				Argv: concat(exe.UV, []string{
					"pip", "compile", "requirements.in",
					"-o", "requirements.txt", "--quiet",
				}, noCache),
				Env: env,
			},
			{
				Name:  "pip sync",
				Phase: PhaseInstall,
				Argv:  concat(exe.UV, []string{"pip", "sync", "requirements.txt"}, noCache),
				Env:   env,
			},
		},
		LockFile: "requirements.txt",
	}
}

func venvInterpreter(venvDir string) string {
	if runtime.GOOS == "windows" {
		return filepath.Join(venvDir, "Scripts", "python.exe")
	}

	return filepath.Join(venvDir, "bin", "python")
}

func splitCommand(name, command string) ([]string, error) {
	fields, err := shell.Fields(command, os.Getenv)
	if err != nil {
		return nil, fmt.Errorf("parse %s command %q: %w", name, command, err)
	}

	if len(fields) == 0 {
		return nil, fmt.Errorf("%s command is empty", name)
	}

	return fields, nil
}

func firstWord(argv []string) string {
	if len(argv) == 0 {
		return ""
	}

	return argv[0]
}

func concat(parts ...[]string) []string {
	var n int
	for _, p := range parts {
		n += len(p)
	}

	out := make([]string, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}

	return out
}
