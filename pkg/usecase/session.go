package usecase

import (
	"context"
	"io"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/malinsight/pkg/domain/interfaces"
	"github.com/secmon-lab/malinsight/pkg/domain/model"
	"github.com/secmon-lab/malinsight/pkg/domain/types"
	"github.com/secmon-lab/malinsight/pkg/utils/async"
	"github.com/secmon-lab/malinsight/pkg/utils/logging"
)

// SessionUseCase drives the analysis workflow of one session slot
type SessionUseCase struct {
	repo     interfaces.Repository
	lookup   *LookupUseCase
	analysis *AnalysisUseCase
}

func NewSessionUseCase(repo interfaces.Repository, lookup *LookupUseCase, analysis *AnalysisUseCase) *SessionUseCase {
	return &SessionUseCase{
		repo:     repo,
		lookup:   lookup,
		analysis: analysis,
	}
}

// Create starts a new empty session
func (uc *SessionUseCase) Create(ctx context.Context) (*model.Session, error) {
	created, err := uc.repo.Session().Create(ctx, model.NewSession())
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create session")
	}
	logging.From(ctx).Info("session created", "session_id", created.ID)
	return created, nil
}

// Get returns the current state of a session
func (uc *SessionUseCase) Get(ctx context.Context, id model.SessionID) (*model.Session, error) {
	return uc.repo.Session().Get(ctx, id)
}

// Reset returns the session to EMPTY and supersedes any running attempt
func (uc *SessionUseCase) Reset(ctx context.Context, id model.SessionID) (*model.Session, error) {
	return uc.repo.Session().Update(ctx, id, func(s *model.Session) error {
		s.Reset()
		return nil
	})
}

// SubmitSample hashes an uploaded file, records it and looks it up. A lookup
// failure leaves the session FAILED and is returned alongside it.
func (uc *SessionUseCase) SubmitSample(ctx context.Context, id model.SessionID, name string, r io.Reader, apiKey string) (*model.Session, error) {
	if _, err := uc.repo.Session().Get(ctx, id); err != nil {
		return nil, err
	}

	identifier, err := uc.lookup.Hash(r)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to hash sample", goerr.V(SampleNameKey, name))
	}
	return uc.submit(ctx, id, identifier, name, apiKey)
}

// SubmitHash records a digest entered directly and looks it up
func (uc *SessionUseCase) SubmitHash(ctx context.Context, id model.SessionID, identifier, apiKey string) (*model.Session, error) {
	return uc.submit(ctx, id, identifier, "", apiKey)
}

func (uc *SessionUseCase) submit(ctx context.Context, id model.SessionID, identifier, name, apiKey string) (*model.Session, error) {
	identifier = strings.ToLower(strings.TrimSpace(identifier))
	if identifier == "" {
		return nil, goerr.Wrap(model.ErrMissingIdentifier, "sample identifier is required")
	}

	sess, err := uc.repo.Session().Update(ctx, id, func(s *model.Session) error {
		return s.ProvideSample(identifier, name)
	})
	if err != nil {
		return nil, err
	}

	found, lookupErr := uc.lookup.LookupHash(ctx, identifier, apiKey)

	sess, err = uc.repo.Session().Update(ctx, id, func(s *model.Session) error {
		// A newer sample or a reset replaced this one
		if s.State != types.WorkflowStateSampleProvided || s.Identifier != identifier {
			return nil
		}
		if lookupErr != nil {
			return s.FailLookup(lookupErr)
		}
		return s.CompleteLookup(found.Report)
	})
	if err != nil {
		return nil, err
	}

	if lookupErr != nil {
		return sess, lookupErr
	}
	return sess, nil
}

// EditReport replaces the report text with user content
func (uc *SessionUseCase) EditReport(ctx context.Context, id model.SessionID, report string) (*model.Session, error) {
	return uc.repo.Session().Update(ctx, id, func(s *model.Session) error {
		return s.EditReport(report)
	})
}

// Analyze runs extraction and rule synthesis for the session report.
// Completions of an attempt superseded by a reset or a newer attempt are
// dropped.
func (uc *SessionUseCase) Analyze(ctx context.Context, id model.SessionID, kind types.ProviderKind, cred model.Credential) (*model.Session, error) {
	sess, attempt, err := uc.startAnalysis(ctx, id, kind)
	if err != nil {
		return nil, err
	}
	return uc.runAnalysis(ctx, id, attempt, kind, sess.Report, cred)
}

// AnalyzeAsync moves the session to ANALYZING and returns it at once. The
// provider calls run in the background and their outcome is recorded on the
// session.
func (uc *SessionUseCase) AnalyzeAsync(ctx context.Context, id model.SessionID, kind types.ProviderKind, cred model.Credential) (*model.Session, error) {
	sess, attempt, err := uc.startAnalysis(ctx, id, kind)
	if err != nil {
		return nil, err
	}

	report := sess.Report
	async.Dispatch(ctx, func(ctx context.Context) error {
		_, err := uc.runAnalysis(ctx, id, attempt, kind, report, cred)
		return err
	})
	return sess, nil
}

func (uc *SessionUseCase) startAnalysis(ctx context.Context, id model.SessionID, kind types.ProviderKind) (*model.Session, int, error) {
	if _, err := uc.analysis.Provider(kind); err != nil {
		return nil, 0, err
	}

	var attempt int
	sess, err := uc.repo.Session().Update(ctx, id, func(s *model.Session) error {
		var err error
		attempt, err = s.StartAnalysis(kind)
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	return sess, attempt, nil
}

func (uc *SessionUseCase) runAnalysis(ctx context.Context, id model.SessionID, attempt int, kind types.ProviderKind, report string, cred model.Credential) (*model.Session, error) {
	logger := logging.From(ctx).With("session_id", id, "attempt", attempt, "provider", kind)

	result, err := uc.analysis.Extract(ctx, kind, report, cred)
	if err != nil {
		return uc.fail(ctx, id, attempt, err)
	}

	var applied bool
	if _, err := uc.repo.Session().Update(ctx, id, func(s *model.Session) error {
		applied = s.CompleteExtraction(attempt, result)
		return nil
	}); err != nil {
		return nil, err
	}
	if !applied {
		logger.Info("dropping result of superseded attempt")
		return uc.repo.Session().Get(ctx, id)
	}

	return uc.synthesize(ctx, id, attempt, kind, result, cred)
}

// RegenerateRule produces a new rule for the stored result without
// repeating extraction
func (uc *SessionUseCase) RegenerateRule(ctx context.Context, id model.SessionID, kind types.ProviderKind, cred model.Credential) (*model.Session, error) {
	if _, err := uc.analysis.Provider(kind); err != nil {
		return nil, err
	}

	var attempt int
	sess, err := uc.repo.Session().Update(ctx, id, func(s *model.Session) error {
		var err error
		attempt, err = s.StartRuleGeneration(kind)
		return err
	})
	if err != nil {
		return nil, err
	}

	return uc.synthesize(ctx, id, attempt, kind, sess.Result, cred)
}

func (uc *SessionUseCase) synthesize(ctx context.Context, id model.SessionID, attempt int, kind types.ProviderKind, result *model.AnalysisResult, cred model.Credential) (*model.Session, error) {
	rule, err := uc.analysis.GenerateRule(ctx, kind, result, cred)
	if err != nil {
		return uc.fail(ctx, id, attempt, err)
	}

	var applied bool
	sess, err := uc.repo.Session().Update(ctx, id, func(s *model.Session) error {
		applied = s.CompleteAnalysis(attempt, rule)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !applied {
		logging.From(ctx).Info("dropping rule of superseded attempt", "session_id", id, "attempt", attempt)
	}
	return sess, nil
}

// fail records cause on the session and returns it with the updated
// session
func (uc *SessionUseCase) fail(ctx context.Context, id model.SessionID, attempt int, cause error) (*model.Session, error) {
	sess, err := uc.repo.Session().Update(ctx, id, func(s *model.Session) error {
		s.FailAnalysis(attempt, cause)
		return nil
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to record analysis failure", goerr.V(AttemptKey, attempt))
	}
	return sess, cause
}
