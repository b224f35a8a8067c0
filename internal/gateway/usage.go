package gateway

// UsageRecord is the token usage of one model call.
type UsageRecord struct {
	Step         string
	InputTokens  int
	OutputTokens int
}

// Usage tags the completion's token counts with the step that made the call.
func (c *Completion) Usage(step string) UsageRecord {
	return UsageRecord{Step: step, InputTokens: c.InputTokens, OutputTokens: c.OutputTokens}
}

func TotalUsage(records []UsageRecord) (inputTokens, outputTokens int) {
	for _, r := range records {
		inputTokens += r.InputTokens
		outputTokens += r.OutputTokens
	}
	return
}
