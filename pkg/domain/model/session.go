package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/malinsight/pkg/domain/types"
)

// SessionID identifies one workflow slot
type SessionID string

// NewSessionID generates a new random session ID
func NewSessionID() SessionID {
	return SessionID(uuid.New().String())
}

func (id SessionID) String() string {
	return string(id)
}

// Session is the single-slot state of one analysis walk-through: sample,
// report text, result and rule. Each new attempt overwrites the previous one.
// Credentials are never stored here.
type Session struct {
	ID         SessionID           `json:"id"`
	State      types.WorkflowState `json:"state"`
	Identifier string              `json:"identifier,omitempty"`
	SampleName string              `json:"sample_name,omitempty"`
	Report     string              `json:"report"`
	Provider   types.ProviderKind  `json:"provider,omitempty"`
	Result     *AnalysisResult     `json:"result,omitempty"`
	Rule       string              `json:"rule,omitempty"`
	Error      string              `json:"error,omitempty"`
	Attempt    int                 `json:"attempt"`
	CreatedAt  time.Time           `json:"created_at"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

// NewSession creates an empty session
func NewSession() *Session {
	now := time.Now().UTC()
	return &Session{
		ID:        NewSessionID(),
		State:     types.WorkflowStateEmpty,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Copy returns a deep copy of the session
func (s *Session) Copy() *Session {
	c := *s
	if s.Result != nil {
		c.Result = s.Result.Copy()
	}
	return &c
}

func (s *Session) touch() {
	s.UpdatedAt = time.Now().UTC()
}

func (s *Session) transitionError(op string) error {
	if s.State == types.WorkflowStateAnalyzing {
		return goerr.Wrap(ErrAnalysisInProgress, "cannot change session while analyzing",
			goerr.V(SessionIDKey, s.ID), goerr.V("operation", op))
	}
	return goerr.Wrap(ErrInvalidTransition, "operation not allowed in current state",
		goerr.V(SessionIDKey, s.ID), goerr.V(StateKey, s.State), goerr.V("operation", op))
}

// ProvideSample records a newly selected file or hash and clears everything
// derived from the previous sample.
func (s *Session) ProvideSample(identifier, sampleName string) error {
	if s.State == types.WorkflowStateAnalyzing {
		return s.transitionError("provide_sample")
	}
	s.State = types.WorkflowStateSampleProvided
	s.Identifier = identifier
	s.SampleName = sampleName
	s.Report = ""
	s.Provider = ""
	s.Result = nil
	s.Rule = ""
	s.Error = ""
	s.touch()
	return nil
}

// CompleteLookup stores the normalized report for the provided sample
func (s *Session) CompleteLookup(report string) error {
	if s.State != types.WorkflowStateSampleProvided {
		return s.transitionError("complete_lookup")
	}
	s.State = types.WorkflowStateReportReady
	s.Report = report
	s.touch()
	return nil
}

// FailLookup records a lookup failure. The identifier stays visible and the
// report stays empty.
func (s *Session) FailLookup(err error) error {
	if s.State != types.WorkflowStateSampleProvided {
		return s.transitionError("fail_lookup")
	}
	s.State = types.WorkflowStateFailed
	s.Report = ""
	s.Error = err.Error()
	s.touch()
	return nil
}

// EditReport replaces the report text with user-edited content
func (s *Session) EditReport(report string) error {
	if s.State == types.WorkflowStateAnalyzing {
		return s.transitionError("edit_report")
	}
	s.State = types.WorkflowStateReportReady
	s.Report = report
	s.Error = ""
	s.touch()
	return nil
}

// StartAnalysis begins a new extraction attempt and returns its number.
// The previous result and rule are discarded.
func (s *Session) StartAnalysis(provider types.ProviderKind) (int, error) {
	if s.State == types.WorkflowStateAnalyzing {
		return 0, s.transitionError("start_analysis")
	}
	if strings.TrimSpace(s.Report) == "" {
		return 0, goerr.Wrap(ErrInvalidTransition, "report text is empty",
			goerr.V(SessionIDKey, s.ID), goerr.V(StateKey, s.State))
	}
	s.State = types.WorkflowStateAnalyzing
	s.Provider = provider
	s.Result = nil
	s.Rule = ""
	s.Error = ""
	s.Attempt++
	s.touch()
	return s.Attempt, nil
}

// StartRuleGeneration begins an attempt that only regenerates the rule for
// the stored result.
func (s *Session) StartRuleGeneration(provider types.ProviderKind) (int, error) {
	if s.State == types.WorkflowStateAnalyzing {
		return 0, s.transitionError("start_rule_generation")
	}
	if s.Result == nil {
		return 0, goerr.Wrap(ErrNoAnalysisResult, "session has no analysis result",
			goerr.V(SessionIDKey, s.ID), goerr.V(StateKey, s.State))
	}
	s.State = types.WorkflowStateAnalyzing
	s.Provider = provider
	s.Rule = ""
	s.Error = ""
	s.Attempt++
	s.touch()
	return s.Attempt, nil
}

func (s *Session) isCurrent(attempt int) bool {
	return s.State == types.WorkflowStateAnalyzing && s.Attempt == attempt
}

// CompleteExtraction stores the structured result of attempt. It reports
// false when the attempt has been superseded and the result was dropped.
func (s *Session) CompleteExtraction(attempt int, result *AnalysisResult) bool {
	if !s.isCurrent(attempt) {
		return false
	}
	s.Result = result.Copy()
	s.touch()
	return true
}

// CompleteAnalysis stores the rule of attempt and finishes it
func (s *Session) CompleteAnalysis(attempt int, rule string) bool {
	if !s.isCurrent(attempt) {
		return false
	}
	s.State = types.WorkflowStateResultReady
	s.Rule = rule
	s.touch()
	return true
}

// FailAnalysis finishes attempt with an error. A result produced before the
// failure is kept.
func (s *Session) FailAnalysis(attempt int, err error) bool {
	if !s.isCurrent(attempt) {
		return false
	}
	s.State = types.WorkflowStateFailed
	s.Error = err.Error()
	s.touch()
	return true
}

// Reset returns the session to EMPTY. Any attempt still running is
// superseded.
func (s *Session) Reset() {
	s.State = types.WorkflowStateEmpty
	s.Identifier = ""
	s.SampleName = ""
	s.Report = ""
	s.Provider = ""
	s.Result = nil
	s.Rule = ""
	s.Error = ""
	s.Attempt++
	s.touch()
}
