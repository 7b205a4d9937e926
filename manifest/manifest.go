// Package manifest loads the flat list of Python requirements that every
// package manager is asked to resolve and install during a benchmark.
package manifest

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

// CanonicalSize is the number of entries in the reference manifest.
const CanonicalSize = 50

var (
	// ErrEmpty is returned when a manifest contains no requirements.
	ErrEmpty = errors.New("manifest has no packages")
	// ErrInvalidRequirement is returned for lines that are not a
	// requirement.
	ErrInvalidRequirement = errors.New("invalid requirement")
	// ErrDuplicate is returned when two lines name the same distribution.
	ErrDuplicate = errors.New("duplicate package")
)

var (
	requirementPattern = regexp.MustCompile(
		`^([A-Za-z0-9](?:[A-Za-z0-9._-]*[A-Za-z0-9])?)\s*(\[[^\]]*\])?\s*(.*)$`,
	)
	separatorPattern = regexp.MustCompile(`[-_.]+`)
	// A "#" preceded by any whitespace starts a trailing comment.
	inlineComment = regexp.MustCompile(`\s#`)
)

// Requirement is a single manifest entry.
type Requirement struct {
	Name      string
	Extras    []string
	Specifier string
	Marker    string
	Raw       string
}

// String returns the requirement as pip and uv accept it.
func (r Requirement) String() string {
	return r.Raw
}

// NormalizedName returns the PEP 503 form of the distribution name.
func (r Requirement) NormalizedName() string {
	return Normalize(r.Name)
}

// Manifest is the ordered, immutable package list for a run.
type Manifest struct {
	Path         string
	Requirements []Requirement
}

// Len returns the number of requirements.
func (m *Manifest) Len() int {
	return len(m.Requirements)
}

// Strings returns the requirement lines of reqs in order.
func Strings(reqs []Requirement) []string {
	out := make([]string, len(reqs))
	for i, req := range reqs {
		out[i] = req.String()
	}

	return out
}

// Load reads and validates the manifest at path.
func Load(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest %s: %w", path, err)
	}
	defer f.Close()

	m, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}

	m.Path = path

	return m, nil
}

// Parse reads one requirement per line from r. Blank lines and comments
// are skipped.
func Parse(r io.Reader) (*Manifest, error) {
	var (
		m    Manifest
		seen = make(map[string]int)
		line int
	)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line++

		text := stripComment(scanner.Text())
		if text == "" {
			continue
		}

		req, err := ParseRequirement(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		key := req.NormalizedName()
		if prev, ok := seen[key]; ok {
			return nil, fmt.Errorf(
				"line %d: %w %q (first seen on line %d)",
				line, ErrDuplicate, req.Name, prev,
			)
		}

		seen[key] = line
		m.Requirements = append(m.Requirements, req)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	if len(m.Requirements) == 0 {
		return nil, ErrEmpty
	}

	return &m, nil
}

// ParseRequirement parses a single requirement such as
// "uvicorn[standard]>=0.20; python_version >= '3.10'".
func ParseRequirement(text string) (Requirement, error) {
	text = strings.TrimSpace(text)

	spec, marker, _ := strings.Cut(text, ";")

	match := requirementPattern.FindStringSubmatch(strings.TrimSpace(spec))
	if match == nil {
		return Requirement{}, fmt.Errorf("%w %q", ErrInvalidRequirement, text)
	}

	req := Requirement{
		Name:      match[1],
		Specifier: strings.TrimSpace(match[3]),
		Marker:    strings.TrimSpace(marker),
		Raw:       text,
	}

	if req.Specifier != "" && !strings.ContainsAny(req.Specifier[:1], "<>=!~") {
		return Requirement{}, fmt.Errorf("%w %q", ErrInvalidRequirement, text)
	}

	if extras := strings.Trim(match[2], "[]"); extras != "" {
		for _, extra := range strings.Split(extras, ",") {
			if extra = strings.TrimSpace(extra); extra != "" {
				req.Extras = append(req.Extras, extra)
			}
		}
	}

	return req, nil
}

// Normalize lowercases name and collapses runs of "-", "_" and "." into a
// single "-".
func Normalize(name string) string {
	return separatorPattern.ReplaceAllString(strings.ToLower(name), "-")
}

func stripComment(line string) string {
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, "#") {
		return ""
	}

	if loc := inlineComment.FindStringIndex(line); loc != nil {
		line = line[:loc[0]]
	}

	return strings.TrimSpace(line)
}
