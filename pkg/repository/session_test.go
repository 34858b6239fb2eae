package repository_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/malinsight/pkg/domain/interfaces"
	"github.com/secmon-lab/malinsight/pkg/domain/model"
	"github.com/secmon-lab/malinsight/pkg/domain/types"
	"github.com/secmon-lab/malinsight/pkg/repository/memory"
)

func runSessionRepositoryTest(t *testing.T, newRepo func(t *testing.T) interfaces.Repository) {
	t.Helper()

	t.Run("Create and Get round trip", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		created, err := repo.Session().Create(ctx, model.NewSession())
		gt.NoError(t, err).Required()
		gt.String(t, created.ID.String()).NotEqual("")

		got, err := repo.Session().Get(ctx, created.ID)
		gt.NoError(t, err).Required()
		gt.Value(t, got.ID).Equal(created.ID)
		gt.Value(t, got.State).Equal(types.WorkflowStateEmpty)
	})

	t.Run("Create assigns ID when missing", func(t *testing.T) {
		repo := newRepo(t)
		created, err := repo.Session().Create(context.Background(), &model.Session{})
		gt.NoError(t, err).Required()
		gt.String(t, created.ID.String()).NotEqual("")
		gt.Value(t, created.State).Equal(types.WorkflowStateEmpty)
	})

	t.Run("Get returns not found for unknown ID", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Session().Get(context.Background(), model.SessionID("missing"))
		gt.B(t, errors.Is(err, model.ErrSessionNotFound)).True()
	})

	t.Run("Update persists mutation", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		created, err := repo.Session().Create(ctx, model.NewSession())
		gt.NoError(t, err).Required()

		updated, err := repo.Session().Update(ctx, created.ID, func(s *model.Session) error {
			return s.EditReport("edited report")
		})
		gt.NoError(t, err).Required()
		gt.Value(t, updated.Report).Equal("edited report")

		got, err := repo.Session().Get(ctx, created.ID)
		gt.NoError(t, err).Required()
		gt.Value(t, got.State).Equal(types.WorkflowStateReportReady)
	})

	t.Run("Update leaves session unchanged on error", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		created, err := repo.Session().Create(ctx, model.NewSession())
		gt.NoError(t, err).Required()

		_, err = repo.Session().Update(ctx, created.ID, func(s *model.Session) error {
			s.Report = "should not persist"
			return model.ErrInvalidTransition
		})
		gt.B(t, errors.Is(err, model.ErrInvalidTransition)).True()

		got, err := repo.Session().Get(ctx, created.ID)
		gt.NoError(t, err).Required()
		gt.Value(t, got.Report).Equal("")
	})

	t.Run("returned sessions are copies", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		created, err := repo.Session().Create(ctx, model.NewSession())
		gt.NoError(t, err).Required()

		created.Report = "mutated outside"
		got, err := repo.Session().Get(ctx, created.ID)
		gt.NoError(t, err).Required()
		gt.Value(t, got.Report).Equal("")
	})

	t.Run("concurrent updates are serialized", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		created, err := repo.Session().Create(ctx, model.NewSession())
		gt.NoError(t, err).Required()

		var wg sync.WaitGroup
		for range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = repo.Session().Update(ctx, created.ID, func(s *model.Session) error {
					s.Reset()
					return nil
				})
			}()
		}
		wg.Wait()

		got, err := repo.Session().Get(ctx, created.ID)
		gt.NoError(t, err).Required()
		gt.Value(t, got.Attempt).Equal(20)
	})
}

func TestMemorySessionRepository(t *testing.T) {
	runSessionRepositoryTest(t, func(t *testing.T) interfaces.Repository {
		return memory.New()
	})
}
