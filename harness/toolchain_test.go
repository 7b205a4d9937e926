package harness

import (
	"errors"
	"reflect"
	"slices"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"
	"github.com/weiihann/pybench/manifest"
)

func TestSelectTools(t *testing.T) {
	tests := []struct {
		input []string
		want  []Tool
	}{
		{nil, []Tool{ToolPip, ToolPoetry, ToolUV}},
		{[]string{"all"}, []Tool{ToolPip, ToolPoetry, ToolUV}},
		{[]string{"uv"}, []Tool{ToolUV}},
		{[]string{"pip"}, []Tool{ToolPip}},
		{[]string{"poetry"}, []Tool{ToolPoetry}},
		{[]string{"uv", "pip"}, []Tool{ToolPip, ToolUV}},
		{[]string{"UV", " uv "}, []Tool{ToolUV}},
		{[]string{"uv", "all"}, []Tool{ToolPip, ToolPoetry, ToolUV}},
	}

	for _, tt := range tests {
		got, err := SelectTools(tt.input)
		if err != nil {
			t.Errorf("SelectTools(%v) failed: %v", tt.input, err)

			continue
		}

		if !slices.Equal(got, tt.want) {
			t.Errorf("SelectTools(%v) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestSelectToolsUnknown(t *testing.T) {
	_, err := SelectTools([]string{"pip", "conda"})
	if !errors.Is(err, ErrUnknownTool) {
		t.Errorf("error = %v, want ErrUnknownTool", err)
	}
}

func TestParseExecutables(t *testing.T) {
	exe, err := ParseExecutables("python3.12", "pipx run 'poetry'", "/opt/uv/bin/uv")
	if err != nil {
		t.Fatalf("ParseExecutables failed: %v", err)
	}

	if exe.Python != "python3.12" {
		t.Errorf("python = %q", exe.Python)
	}
	if !slices.Equal(exe.Poetry, []string{"pipx", "run", "poetry"}) {
		t.Errorf("poetry = %q", exe.Poetry)
	}
	if !slices.Equal(exe.UV, []string{"/opt/uv/bin/uv"}) {
		t.Errorf("uv = %q", exe.UV)
	}

	if got := exe.Required(ToolPoetry); !slices.Equal(got, []string{"pipx", "python3.12"}) {
		t.Errorf("required(poetry) = %q", got)
	}

	for _, bad := range [][3]string{
		{"", "poetry", "uv"},
		{"python3", "  ", "uv"},
		{"python3", "poetry", "'unterminated"},
	} {
		if _, err := ParseExecutables(bad[0], bad[1], bad[2]); err == nil {
			t.Errorf("ParseExecutables(%q) succeeded, want error", bad)
		}
	}
}

func testExecutables() Executables {
	return Executables{
		Python: "python3",
		Poetry: []string{"poetry"},
		UV:     []string{"uv"},
	}
}

func testRequirements(t *testing.T) []manifest.Requirement {
	t.Helper()

	return testManifest(t, "requests", "uvicorn[standard]>=0.20", "zope.interface").Requirements
}

func stepByName(t *testing.T, plan Plan, name string) Step {
	t.Helper()

	for _, step := range plan.Steps {
		if step.Name == name {
			return step
		}
	}

	t.Fatalf("plan %s has no step %q", plan.Tool, name)

	return Step{}
}

func TestBuildPlanPip(t *testing.T) {
	plan, err := BuildPlan(ToolPip, testExecutables(),
		PlanOptions{Requirements: testRequirements(t), NoCache: true}, "/work/env")
	if err != nil {
		t.Fatalf("BuildPlan failed: %v", err)
	}

	if got := stepByName(t, plan, "venv").Argv; !slices.Equal(got,
		[]string{"python3", "-m", "venv", "venv"}) {
		t.Errorf("venv argv = %q", got)
	}

	install := stepByName(t, plan, "install")
	if install.Phase != PhaseInstall {
		t.Errorf("install phase = %q", install.Phase)
	}
	if !strings.HasSuffix(install.Argv[0], "python") && !strings.HasSuffix(install.Argv[0], "python.exe") {
		t.Errorf("install should use the venv interpreter, got %q", install.Argv[0])
	}
	if !slices.Contains(install.Argv, "--no-cache-dir") {
		t.Errorf("install argv missing --no-cache-dir: %q", install.Argv)
	}
	if !slices.Contains(install.Argv, "uvicorn[standard]>=0.20") {
		t.Errorf("install argv missing requirement: %q", install.Argv)
	}
	if slices.Contains(install.Argv, "--dry-run") {
		t.Error("install must not be a dry run")
	}

	if !slices.Contains(stepByName(t, plan, "resolve").Argv, "--dry-run") {
		t.Error("resolve must be a dry run")
	}

	freeze := stepByName(t, plan, "freeze")
	if freeze.StdoutFile != plan.LockFile || plan.LockFile != "requirements.txt" {
		t.Errorf("freeze writes %q, lock file %q", freeze.StdoutFile, plan.LockFile)
	}
}

func TestBuildPlanPoetry(t *testing.T) {
	plan, err := BuildPlan(ToolPoetry,
		Executables{Python: "python3", Poetry: []string{"pipx", "run", "poetry"}, UV: []string{"uv"}},
		PlanOptions{Requirements: testRequirements(t)}, "/work/env")
	if err != nil {
		t.Fatalf("BuildPlan failed: %v", err)
	}

	if plan.LockFile != "poetry.lock" {
		t.Errorf("lock file = %q", plan.LockFile)
	}

	envUse := stepByName(t, plan, "env use")
	if !slices.Equal(envUse.Argv, []string{"pipx", "run", "poetry", "env", "use", "python3"}) {
		t.Errorf("env use argv = %q", envUse.Argv)
	}
	if !slices.Contains(envUse.Env, "POETRY_VIRTUALENVS_IN_PROJECT=true") {
		t.Errorf("env = %q", envUse.Env)
	}

	var doc struct {
		Tool struct {
			Poetry struct {
				PackageMode  bool           `toml:"package-mode"`
				Dependencies map[string]any `toml:"dependencies"`
			} `toml:"poetry"`
		} `toml:"tool"`
	}

	if err := toml.Unmarshal(plan.Files["pyproject.toml"], &doc); err != nil {
		t.Fatalf("pyproject.toml is not valid TOML: %v\n%s", err, plan.Files["pyproject.toml"])
	}

	deps := doc.Tool.Poetry.Dependencies
	if deps["python"] != "^3.10" {
		t.Errorf("python constraint = %v", deps["python"])
	}
	if deps["requests"] != "*" {
		t.Errorf("requests constraint = %v, want *", deps["requests"])
	}
	if deps["zope.interface"] != "*" {
		t.Errorf("zope.interface constraint = %v, want *", deps["zope.interface"])
	}

	uvicorn, ok := deps["uvicorn"].(map[string]any)
	if !ok {
		t.Fatalf("uvicorn dependency = %#v, want table", deps["uvicorn"])
	}
	if uvicorn["version"] != ">=0.20" {
		t.Errorf("uvicorn version = %v", uvicorn["version"])
	}
	if !reflect.DeepEqual(uvicorn["extras"], []any{"standard"}) {
		t.Errorf("uvicorn extras = %#v", uvicorn["extras"])
	}

	var cfg map[string]any
	if err := toml.Unmarshal(plan.Files["poetry.toml"], &cfg); err != nil {
		t.Fatalf("poetry.toml: %v", err)
	}
	if venvs, _ := cfg["virtualenvs"].(map[string]any); venvs["in-project"] != true {
		t.Errorf("poetry.toml = %v", cfg)
	}
}

func TestBuildPlanUVProject(t *testing.T) {
	plan, err := BuildPlan(ToolUV, testExecutables(),
		PlanOptions{Requirements: testRequirements(t), NoCache: true}, "/work/env")
	if err != nil {
		t.Fatalf("BuildPlan failed: %v", err)
	}

	if plan.LockFile != "uv.lock" {
		t.Errorf("lock file = %q", plan.LockFile)
	}

	if got := stepByName(t, plan, "lock").Argv; !slices.Equal(got, []string{"uv", "lock", "--no-cache"}) {
		t.Errorf("lock argv = %q", got)
	}
	if got := stepByName(t, plan, "sync").Argv; !slices.Contains(got, "--frozen") {
		t.Errorf("sync argv = %q", got)
	}

	var doc struct {
		Project struct {
			RequiresPython string   `toml:"requires-python"`
			Dependencies   []string `toml:"dependencies"`
		} `toml:"project"`
		Tool struct {
			UV struct {
				Package *bool `toml:"package"`
			} `toml:"uv"`
		} `toml:"tool"`
	}

	if err := toml.Unmarshal(plan.Files["pyproject.toml"], &doc); err != nil {
		t.Fatalf("pyproject.toml is not valid TOML: %v", err)
	}

	want := []string{"requests", "uvicorn[standard]>=0.20", "zope.interface"}
	if !slices.Equal(doc.Project.Dependencies, want) {
		t.Errorf("dependencies = %q, want %q", doc.Project.Dependencies, want)
	}
	if doc.Project.RequiresPython != ">=3.10" {
		t.Errorf("requires-python = %q", doc.Project.RequiresPython)
	}
	if doc.Tool.UV.Package == nil || *doc.Tool.UV.Package {
		t.Error("expected tool.uv.package = false")
	}
}

func TestBuildPlanUVRequirements(t *testing.T) {
	plan, err := BuildPlan(ToolUV, testExecutables(),
		PlanOptions{Requirements: testRequirements(t), UVRequirements: true}, "/work/env")
	if err != nil {
		t.Fatalf("BuildPlan failed: %v", err)
	}

	if plan.LockFile != "requirements.txt" {
		t.Errorf("lock file = %q", plan.LockFile)
	}

	in := string(plan.Files["requirements.in"])
	if in != "requests\nuvicorn[standard]>=0.20\nzope.interface\n" {
		t.Errorf("requirements.in = %q", in)
	}

	compile := stepByName(t, plan, "pip compile")
	if compile.Phase != PhaseResolve {
		t.Errorf("compile phase = %q", compile.Phase)
	}

	sync := stepByName(t, plan, "pip sync")
	if len(sync.Env) != 1 || !strings.HasPrefix(sync.Env[0], "VIRTUAL_ENV=") {
		t.Errorf("sync env = %q", sync.Env)
	}
}

func TestBuildPlanErrors(t *testing.T) {
	if _, err := BuildPlan(ToolUV, testExecutables(), PlanOptions{}, "/work"); !errors.Is(err, manifest.ErrEmpty) {
		t.Errorf("empty requirements error = %v, want manifest.ErrEmpty", err)
	}

	_, err := BuildPlan(Tool("conda"), testExecutables(),
		PlanOptions{Requirements: testRequirements(t)}, "/work")
	if !errors.Is(err, ErrUnknownTool) {
		t.Errorf("unknown tool error = %v, want ErrUnknownTool", err)
	}
}
