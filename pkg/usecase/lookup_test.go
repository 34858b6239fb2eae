package usecase_test

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/malinsight/pkg/domain/model"
	"github.com/secmon-lab/malinsight/pkg/usecase"
)

func TestLookupUseCase(t *testing.T) {
	t.Run("LookupSample hashes then fetches", func(t *testing.T) {
		var calls atomic.Int32
		uc := usecase.NewLookupUseCase(newVirusTotal(t, &calls), 0)

		got, err := uc.LookupSample(context.Background(), strings.NewReader("abc"), "vt-key")
		gt.NoError(t, err).Required()
		gt.Value(t, got.Identifier).Equal(abcDigest)
		gt.String(t, string(got.Raw)).Contains("evil.exe")
		gt.String(t, got.Report).Contains("[File Information]")
		gt.Value(t, calls.Load()).Equal(int32(1))
	})

	t.Run("LookupHash rejects empty identifier", func(t *testing.T) {
		var calls atomic.Int32
		uc := usecase.NewLookupUseCase(newVirusTotal(t, &calls), 0)

		_, err := uc.LookupHash(context.Background(), "   ", "vt-key")
		gt.B(t, errors.Is(err, model.ErrMissingIdentifier)).True()
		gt.Value(t, calls.Load()).Equal(int32(0))
	})

	t.Run("Normalize never fails", func(t *testing.T) {
		uc := usecase.NewLookupUseCase(newVirusTotal(t, nil), 0)
		report := uc.Normalize([]byte("not json"))
		gt.String(t, report).Contains("[Imported Libraries]")
	})
}
