package usecase

import (
	"time"

	"github.com/secmon-lab/malinsight/pkg/domain/interfaces"
	"github.com/secmon-lab/malinsight/pkg/service/llm"
)

type UseCases struct {
	repo       interfaces.Repository
	reputation interfaces.ReputationService
	providers  *llm.Registry
	llmTimeout time.Duration
	vtTimeout  time.Duration

	Lookup   *LookupUseCase
	Analysis *AnalysisUseCase
	Session  *SessionUseCase
}

type Option func(*UseCases)

// WithLLMTimeout bounds each provider call. Zero means no bound.
func WithLLMTimeout(d time.Duration) Option {
	return func(uc *UseCases) {
		uc.llmTimeout = d
	}
}

// WithLookupTimeout bounds each reputation lookup. Zero means no bound.
func WithLookupTimeout(d time.Duration) Option {
	return func(uc *UseCases) {
		uc.vtTimeout = d
	}
}

func New(repo interfaces.Repository, reputation interfaces.ReputationService, providers *llm.Registry, opts ...Option) *UseCases {
	uc := &UseCases{
		repo:       repo,
		reputation: reputation,
		providers:  providers,
	}

	for _, opt := range opts {
		opt(uc)
	}

	uc.Lookup = NewLookupUseCase(reputation, uc.vtTimeout)
	uc.Analysis = NewAnalysisUseCase(providers, uc.llmTimeout)
	uc.Session = NewSessionUseCase(repo, uc.Lookup, uc.Analysis)

	return uc
}
