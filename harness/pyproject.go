package harness

import (
	"fmt"

	"github.com/pelletier/go-toml/v2"
	"github.com/weiihann/pybench/manifest"
)

const (
	projectName    = "pybench-env"
	projectVersion = "0.1.0"
	requiresPython = ">=3.10"
)

type poetryDocument struct {
	Tool struct {
		Poetry poetrySection `toml:"poetry"`
	} `toml:"tool"`
}

type poetrySection struct {
	Name         string         `toml:"name"`
	Version      string         `toml:"version"`
	Description  string         `toml:"description"`
	Authors      []string       `toml:"authors"`
	PackageMode  bool           `toml:"package-mode"`
	Dependencies map[string]any `toml:"dependencies"`
}

type poetryDependency struct {
	Version string   `toml:"version"`
	Extras  []string `toml:"extras,omitempty"`
	Markers string   `toml:"markers,omitempty"`
}

type poetryConfigDocument struct {
	Virtualenvs struct {
		InProject bool `toml:"in-project"`
	} `toml:"virtualenvs"`
}

type uvDocument struct {
	Project struct {
		Name           string   `toml:"name"`
		Version        string   `toml:"version"`
		Description    string   `toml:"description"`
		RequiresPython string   `toml:"requires-python"`
		Dependencies   []string `toml:"dependencies"`
	} `toml:"project"`
	Tool struct {
		UV struct {
			Package bool `toml:"package"`
		} `toml:"uv"`
	} `toml:"tool"`
}

// poetryPyproject renders a non-package poetry project that depends on
// every requirement.
func poetryPyproject(reqs []manifest.Requirement) ([]byte, error) {
	var doc poetryDocument

	doc.Tool.Poetry = poetrySection{
		Name:         projectName,
		Version:      projectVersion,
		Description:  "",
		Authors:      []string{},
		PackageMode:  false,
		Dependencies: map[string]any{"python": "^3.10"},
	}

	for _, req := range reqs {
		doc.Tool.Poetry.Dependencies[req.Name] = poetryConstraint(req)
	}

	out, err := toml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode poetry pyproject.toml: %w", err)
	}

	return out, nil
}

func poetryConstraint(req manifest.Requirement) any {
	version := req.Specifier
	if version == "" {
		version = "*"
	}

	if len(req.Extras) == 0 && req.Marker == "" {
		return version
	}

	return poetryDependency{
		Version: version,
		Extras:  req.Extras,
		Markers: req.Marker,
	}
}

// poetryToml keeps the poetry virtualenv inside the project directory so
// it is removed with it.
func poetryToml() ([]byte, error) {
	var doc poetryConfigDocument
	doc.Virtualenvs.InProject = true

	out, err := toml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode poetry.toml: %w", err)
	}

	return out, nil
}

// uvPyproject renders a virtual uv project that depends on every
// requirement.
func uvPyproject(reqs []manifest.Requirement) ([]byte, error) {
	var doc uvDocument

	doc.Project.Name = projectName
	doc.Project.Version = projectVersion
	doc.Project.RequiresPython = requiresPython
	doc.Project.Dependencies = manifest.Strings(reqs)
	doc.Tool.UV.Package = false

	out, err := toml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode uv pyproject.toml: %w", err)
	}

	return out, nil
}
