package result

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const resultFile = "result.json"

func CreateRunDir(baseDir string) (string, error) {
	runsDir := filepath.Join(baseDir, "runs")
	stamp := time.Now().UTC().Format("2006-01-02T15-04-05")
	runDir := filepath.Join(runsDir, stamp)
	runDir, err := filepath.Abs(runDir)
	if err != nil {
		return "", fmt.Errorf("resolving run dir: %w", err)
	}
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", fmt.Errorf("creating run dir: %w", err)
	}
	latest := filepath.Join(baseDir, "latest")
	os.Remove(latest)
	if err := os.Symlink(runDir, latest); err != nil {
		return "", fmt.Errorf("creating latest symlink: %w", err)
	}
	return runDir, nil
}

// RunDir is where one run's record lives. variant encodes the prompt
// language, specification language, prompt style and extraction mode.
func RunDir(runDir, model, testCase, variant string, repetition int) string {
	return filepath.Join(runDir, "runs", sanitize(model), testCase, variant, fmt.Sprintf("run-%d", repetition))
}

// Variant joins the experiment dimensions into a directory name.
func Variant(lang, specLang, promptStyle, mode string) string {
	return fmt.Sprintf("%s_%s_%s_%s", lang, specLang, promptStyle, mode)
}

func WriteRunResult(dir string, res *RunResult) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating result dir: %w", err)
	}
	if res.Logs == nil {
		res.Logs = []CycleRecord{}
	}
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling result: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, resultFile), data, 0o644)
}

func ReadRunResult(path string) (*RunResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading result: %w", err)
	}
	var res RunResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("parsing result: %w", err)
	}
	return &res, nil
}

// CollectRunResults reads every result.json below dir. Unreadable files
// are skipped.
func CollectRunResults(dir string) ([]*RunResult, error) {
	var results []*RunResult
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Name() == resultFile {
			res, err := ReadRunResult(path)
			if err != nil {
				return nil
			}
			results = append(results, res)
		}
		return nil
	})
	return results, err
}

// sanitize keeps model names like "llama3:8b" or "org/model" usable as a
// single path element.
func sanitize(name string) string {
	out := []byte(name)
	for i, c := range out {
		switch c {
		case '/', '\\', ':':
			out[i] = '_'
		}
	}
	return string(out)
}
