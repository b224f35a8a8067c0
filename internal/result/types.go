package result

import (
	"strings"
	"time"
)

// Outcome classifies how a run ended, so analysis can tell a model that
// failed apart from a run whose setup was broken.
type Outcome string

const (
	OutcomeCompleted   Outcome = "completed"
	OutcomeAborted     Outcome = "aborted"
	OutcomeConfigError Outcome = "config_error"
)

// Step names used in CycleRecord.FailedStep.
const (
	StepSummarize  = "SummarizeStep"
	StepRegenerate = "RegenerateStep"
	StepValidate   = "ValidateStep"
)

const StatusSuccess = "SUCCESS"

// RunResult is the persisted record of one round-trip run. Status,
// CyclesCompleted and Logs are always present; downstream tooling relies
// on them.
type RunResult struct {
	Status          string        `json:"status"`
	CyclesCompleted int           `json:"cycles_completed"`
	Logs            []CycleRecord `json:"logs"`

	RunID       string  `json:"run_id,omitempty"`
	Outcome     Outcome `json:"outcome,omitempty"`
	Model       string  `json:"model,omitempty"`
	Provider    string  `json:"provider,omitempty"`
	TestCase    string  `json:"test_case,omitempty"`
	Lang        string  `json:"lang,omitempty"`
	SpecLang    string  `json:"spec_lang,omitempty"`
	PromptStyle string  `json:"prompt_style,omitempty"`
	Mode        string  `json:"mode,omitempty"`
	MaxCycles   int     `json:"max_cycles,omitempty"`
	Repetition  int     `json:"repetition,omitempty"`
	// DefinitionsRev is the git commit of the test definitions, when
	// they were fetched from a repository.
	DefinitionsRev string    `json:"definitions_rev,omitempty"`
	StartedAt      time.Time `json:"started_at,omitempty"`
	DurationS      float64   `json:"duration_s"`
	TotalTokens    int       `json:"total_tokens"`
	TotalCostUSD   float64   `json:"total_cost_usd"`
}

// CycleRecord logs one attempted cycle. Records are appended to a run and
// never changed afterwards.
type CycleRecord struct {
	Cycle int `json:"cycle"`

	RawSpec    string `json:"step1_raw_spec,omitempty"`
	Spec       string `json:"step1_generated_spec,omitempty"`
	Step1      string `json:"step1_status,omitempty"`
	RawCode    string `json:"step2_generated_code_raw,omitempty"`
	Code       string `json:"step2_generated_code_clean,omitempty"`
	Step2      string `json:"step2_status,omitempty"`
	FailedStep string `json:"failed_step,omitempty"`

	Verdict          string `json:"verdict,omitempty"`
	ValidationStdout string `json:"validation_stdout,omitempty"`
	ValidationStderr string `json:"validation_stderr,omitempty"`

	InputTokens  int   `json:"input_tokens"`
	OutputTokens int   `json:"output_tokens"`
	DurationMS   int64 `json:"duration_ms"`
}

// Succeeded reports whether the run completed every configured cycle.
func (r *RunResult) Succeeded() bool {
	return strings.HasPrefix(r.Status, StatusSuccess)
}
