package result_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/signalnine/roundtrip/internal/result"
)

func TestWriteAndReadRunResult(t *testing.T) {
	dir := t.TempDir()
	res := &result.RunResult{
		Status:          "FAIL: Cycle 2 failed.",
		CyclesCompleted: 1,
		Logs: []result.CycleRecord{
			{Cycle: 1, Step1: "SUCCESS", Step2: "SUCCESS"},
			{Cycle: 2, Step1: "SUCCESS", Step2: "FAIL: Code validation failed.", FailedStep: result.StepValidate},
		},
		Model:    "llama3:8b",
		TestCase: "fizzbuzz",
		Outcome:  result.OutcomeAborted,
	}
	if err := result.WriteRunResult(dir, res); err != nil {
		t.Fatalf("WriteRunResult: %v", err)
	}
	got, err := result.ReadRunResult(filepath.Join(dir, "result.json"))
	if err != nil {
		t.Fatalf("ReadRunResult: %v", err)
	}
	if got.CyclesCompleted != 1 {
		t.Errorf("cycles_completed: got %d, want 1", got.CyclesCompleted)
	}
	if len(got.Logs) != 2 || got.Logs[1].FailedStep != result.StepValidate {
		t.Errorf("logs: got %+v", got.Logs)
	}
	if got.Succeeded() {
		t.Error("expected failed run")
	}
}

func TestRunResultRequiredFields(t *testing.T) {
	dir := t.TempDir()
	if err := result.WriteRunResult(dir, &result.RunResult{Status: "ERROR: configuration error: x"}); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "result.json"))
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"status", "cycles_completed", "logs"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("missing top-level field %q", key)
		}
	}
	if string(raw["logs"]) != "[]" {
		t.Errorf("logs: got %s, want []", raw["logs"])
	}
}

func TestCreateRunDir(t *testing.T) {
	base := t.TempDir()
	runDir, err := result.CreateRunDir(base)
	if err != nil {
		t.Fatalf("CreateRunDir: %v", err)
	}
	if _, err := os.Stat(runDir); os.IsNotExist(err) {
		t.Errorf("run directory not created: %s", runDir)
	}
	latest := filepath.Join(base, "latest")
	target, err := os.Readlink(latest)
	if err != nil {
		t.Fatalf("reading latest symlink: %v", err)
	}
	if target != runDir {
		t.Errorf("latest symlink: got %q, want %q", target, runDir)
	}
}

func TestRunDir(t *testing.T) {
	base := t.TempDir()
	dir := result.RunDir(base, "llama3:8b", "fizzbuzz", result.Variant("en", "pseudocode", "zeroshot", "strict"), 3)
	expected := filepath.Join(base, "runs", "llama3_8b", "fizzbuzz", "en_pseudocode_zeroshot_strict", "run-3")
	if dir != expected {
		t.Errorf("got %q, want %q", dir, expected)
	}
}

func TestCollectRunResults(t *testing.T) {
	base := t.TempDir()
	for i, status := range []string{"SUCCESS: All cycles completed.", "FAIL: Cycle 1 failed."} {
		dir := result.RunDir(base, "m", "fizzbuzz", "v", i+1)
		if err := result.WriteRunResult(dir, &result.RunResult{Status: status}); err != nil {
			t.Fatal(err)
		}
	}
	os.WriteFile(filepath.Join(base, "result.json"), []byte("{not json"), 0o644)

	got, err := result.CollectRunResults(base)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("got %d results, want 2", len(got))
	}
}
