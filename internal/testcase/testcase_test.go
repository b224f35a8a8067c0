package testcase_test

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/signalnine/roundtrip/internal/testcase"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newRepo(t *testing.T) *testcase.Repository {
	t.Helper()
	base := t.TempDir()
	repo := &testcase.Repository{
		DefinitionsDir: filepath.Join(base, "defs"),
		PromptsDir:     filepath.Join(base, "prompts"),
		SourceLang:     "python",
	}
	writeFile(t, filepath.Join(repo.DefinitionsDir, "fizzbuzz", "python", "initial_code.py"), "def fizzbuzz(n):\n    return n\n")
	writeFile(t, filepath.Join(repo.DefinitionsDir, "fizzbuzz", "python", "test_runner.py"), "{generated_code}\nprint('SUCCESS')\n")
	writeFile(t, filepath.Join(repo.DefinitionsDir, "fizzbuzz", "python", "ground_truth_en_pseudocode.txt"), "FUNCTION fizzbuzz")
	writeFile(t, filepath.Join(repo.DefinitionsDir, "magic", "python", "initial_code.py"), "def get_magic_number():\n    return 42\n")
	os.MkdirAll(filepath.Join(repo.DefinitionsDir, "empty", "python"), 0o755)
	writeFile(t, filepath.Join(repo.PromptsDir, "fizzbuzz", "en", "pseudocode", "code_to_spec_zeroshot.prompt"), "Describe:\n{source_code}")
	writeFile(t, filepath.Join(repo.PromptsDir, "fizzbuzz", "en", "pseudocode", "spec_to_code_zeroshot.prompt"), "Implement:\n{specification}")
	return repo
}

func TestLoadWithOracle(t *testing.T) {
	repo := newRepo(t)
	tc, err := repo.Load("fizzbuzz")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !tc.HasOracle {
		t.Error("expected oracle template")
	}
	if tc.InitialCode == "" {
		t.Error("expected initial code")
	}
	if tc.Language != "python" {
		t.Errorf("language: got %q", tc.Language)
	}
}

func TestLoadLegacy(t *testing.T) {
	repo := newRepo(t)
	tc, err := repo.Load("magic")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tc.HasOracle || tc.Oracle != "" {
		t.Error("expected no oracle template")
	}
}

func TestLoadMissing(t *testing.T) {
	repo := newRepo(t)
	_, err := repo.Load("nope")
	if !errors.Is(err, testcase.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestPrompts(t *testing.T) {
	repo := newRepo(t)
	p, err := repo.Prompts("fizzbuzz", "en", "pseudocode", "zeroshot")
	if err != nil {
		t.Fatalf("Prompts: %v", err)
	}
	if err := p.Check(); err != nil {
		t.Errorf("Check: %v", err)
	}
	_, err = repo.Prompts("fizzbuzz", "ja", "pseudocode", "zeroshot")
	if !errors.Is(err, testcase.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestGroundTruth(t *testing.T) {
	repo := newRepo(t)
	gt, err := repo.GroundTruth("fizzbuzz", "en", "pseudocode")
	if err != nil || gt != "FUNCTION fizzbuzz" {
		t.Errorf("GroundTruth = %q, %v", gt, err)
	}
	if _, err := repo.GroundTruth("magic", "en", "pseudocode"); !errors.Is(err, testcase.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestList(t *testing.T) {
	repo := newRepo(t)
	got, err := repo.List()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"fizzbuzz", "magic"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestTemplateRender(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		values  map[string]string
		want    string
		wantErr bool
	}{
		{"slot", "Code:\n{source_code}\nEnd", map[string]string{"source_code": "x = {1}"}, "Code:\nx = {1}\nEnd", false},
		{"escaped braces", "d = {{'a': 1}}\n{specification}", map[string]string{"specification": "S"}, "d = {'a': 1}\nS", false},
		{"missing value", "{source_code}", map[string]string{}, "", true},
		{"unclosed", "{source_code", map[string]string{"source_code": ""}, "", true},
		{"stray close", "a } b", nil, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := testcase.Template{Name: tt.name, Text: tt.text}.Render(tt.values)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
