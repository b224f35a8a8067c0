// Package testcase reads test-case definitions and prompt templates from
// disk. Everything it returns is immutable for the duration of a run.
package testcase

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// ErrNotFound is returned when a required definition or prompt file is missing.
var ErrNotFound = errors.New("test case file not found")

const (
	initialCodeFile = "initial_code.py"
	oracleFile      = "test_runner.py"
)

// TestCase is one round-trip subject: the starting code and the oracle
// that judges regenerated code.
type TestCase struct {
	ID          string
	Language    string
	Dir         string
	InitialCode string
	// Oracle is the template the candidate code is spliced into. Empty
	// when HasOracle is false and the legacy scalar check applies.
	Oracle    string
	HasOracle bool
}

// Repository is a file-backed lookup of test cases and prompts.
//
// Layout:
//
//	<DefinitionsDir>/<case>/<SourceLang>/initial_code.py
//	<DefinitionsDir>/<case>/<SourceLang>/test_runner.py
//	<DefinitionsDir>/<case>/<SourceLang>/ground_truth_<lang>_<spec>.txt
//	<PromptsDir>/<case>/<lang>/<spec>/code_to_spec_<style>.prompt
//	<PromptsDir>/<case>/<lang>/<spec>/spec_to_code_<style>.prompt
type Repository struct {
	DefinitionsDir string
	PromptsDir     string
	SourceLang     string
}

func (r *Repository) caseDir(id string) string {
	return filepath.Join(r.DefinitionsDir, id, r.SourceLang)
}

// Load reads the test case id.
func (r *Repository) Load(id string) (*TestCase, error) {
	dir := r.caseDir(id)
	code, err := readRequired(filepath.Join(dir, initialCodeFile))
	if err != nil {
		return nil, fmt.Errorf("loading test case %s: %w", id, err)
	}
	tc := &TestCase{
		ID:          id,
		Language:    r.SourceLang,
		Dir:         dir,
		InitialCode: code,
	}
	oracle, err := os.ReadFile(filepath.Join(dir, oracleFile))
	switch {
	case err == nil:
		tc.Oracle = string(oracle)
		tc.HasOracle = true
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("loading oracle for %s: %w", id, err)
	}
	return tc, nil
}

// GroundTruth reads the reference specification for a test case, used
// only when the spec-check policy is enabled.
func (r *Repository) GroundTruth(id, lang, specLang string) (string, error) {
	name := fmt.Sprintf("ground_truth_%s_%s.txt", lang, specLang)
	gt, err := readRequired(filepath.Join(r.caseDir(id), name))
	if err != nil {
		return "", fmt.Errorf("loading ground truth for %s: %w", id, err)
	}
	return gt, nil
}

// Prompts reads both prompt templates for a test case, prompt language,
// specification language and prompt style.
func (r *Repository) Prompts(id, lang, specLang, style string) (*Prompts, error) {
	dir := filepath.Join(r.PromptsDir, id, lang, specLang)
	load := func(direction string) (Template, error) {
		name := fmt.Sprintf("%s_%s.prompt", direction, style)
		text, err := readRequired(filepath.Join(dir, name))
		if err != nil {
			return Template{}, fmt.Errorf("loading prompt for %s: %w", id, err)
		}
		return Template{Name: name, Text: text}, nil
	}
	c2s, err := load("code_to_spec")
	if err != nil {
		return nil, err
	}
	s2c, err := load("spec_to_code")
	if err != nil {
		return nil, err
	}
	return &Prompts{CodeToSpec: c2s, SpecToCode: s2c}, nil
}

// List returns the ids of every test case with initial code for SourceLang.
func (r *Repository) List() ([]string, error) {
	entries, err := os.ReadDir(r.DefinitionsDir)
	if err != nil {
		return nil, fmt.Errorf("reading definitions dir: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(r.caseDir(e.Name()), initialCodeFile)); err == nil {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func readRequired(path string) (string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}
