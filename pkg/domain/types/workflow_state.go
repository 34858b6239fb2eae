package types

import "fmt"

// WorkflowState represents where an analysis session is in the demo flow
type WorkflowState string

const (
	WorkflowStateEmpty          WorkflowState = "EMPTY"
	WorkflowStateSampleProvided WorkflowState = "SAMPLE_PROVIDED"
	WorkflowStateReportReady    WorkflowState = "REPORT_READY"
	WorkflowStateAnalyzing      WorkflowState = "ANALYZING"
	WorkflowStateResultReady    WorkflowState = "RESULT_READY"
	WorkflowStateFailed         WorkflowState = "FAILED"
)

// AllWorkflowStates returns all valid workflow states
func AllWorkflowStates() []WorkflowState {
	return []WorkflowState{
		WorkflowStateEmpty,
		WorkflowStateSampleProvided,
		WorkflowStateReportReady,
		WorkflowStateAnalyzing,
		WorkflowStateResultReady,
		WorkflowStateFailed,
	}
}

// IsValid checks if the workflow state is valid
func (s WorkflowState) IsValid() bool {
	switch s {
	case WorkflowStateEmpty,
		WorkflowStateSampleProvided,
		WorkflowStateReportReady,
		WorkflowStateAnalyzing,
		WorkflowStateResultReady,
		WorkflowStateFailed:
		return true
	default:
		return false
	}
}

// Normalize returns the state, treating empty as WorkflowStateEmpty.
func (s WorkflowState) Normalize() WorkflowState {
	if s == "" {
		return WorkflowStateEmpty
	}
	return s
}

// String returns the string representation of the workflow state
func (s WorkflowState) String() string {
	return string(s)
}

// ParseWorkflowState parses a string into a WorkflowState
func ParseWorkflowState(s string) (WorkflowState, error) {
	state := WorkflowState(s)
	if !state.IsValid() {
		return "", fmt.Errorf("invalid workflow state: %s", s)
	}
	return state, nil
}
