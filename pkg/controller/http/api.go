package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/malinsight/pkg/domain/model"
	"github.com/secmon-lab/malinsight/pkg/domain/types"
	"github.com/secmon-lab/malinsight/pkg/usecase"
	"github.com/secmon-lab/malinsight/pkg/utils/errutil"
	"github.com/secmon-lab/malinsight/pkg/utils/safe"
)

type apiHandler func(w http.ResponseWriter, r *http.Request) error

// wrap converts an error returned by h into a JSON error response
func (s *Server) wrap(h apiHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h(w, r); err != nil {
			errutil.HandleHTTP(r.Context(), w, err, statusOf(err))
		}
	}
}

// statusOf maps domain errors to HTTP status codes
func statusOf(err error) int {
	switch {
	case errors.Is(err, model.ErrMissingCredential),
		errors.Is(err, model.ErrMissingEndpoint),
		errors.Is(err, model.ErrMissingIdentifier),
		errors.Is(err, model.ErrUnknownProvider),
		errors.Is(err, model.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound),
		errors.Is(err, model.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrAnalysisInProgress),
		errors.Is(err, model.ErrInvalidTransition),
		errors.Is(err, model.ErrNoAnalysisResult):
		return http.StatusConflict
	case errors.Is(err, model.ErrSchemaViolation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrUnsupportedEnvironment):
		return http.StatusNotImplemented
	case errors.Is(err, model.ErrUpstream),
		errors.Is(err, model.ErrEmptyCompletion):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal response")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	safe.Write(ctx, w, data)
	return nil
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return goerr.Wrap(model.ErrInvalidInput, "request body is not valid JSON",
			goerr.V(model.MessageKey, err.Error()))
	}
	return nil
}

func sessionID(r *http.Request) model.SessionID {
	return model.SessionID(chi.URLParam(r, "id"))
}

func (s *Server) providersHandler(w http.ResponseWriter, r *http.Request) error {
	return writeJSON(r.Context(), w, http.StatusOK, struct {
		Providers []usecase.ProviderInfo `json:"providers"`
	}{
		Providers: s.uc.Analysis.Providers(),
	})
}

type reportResponse struct {
	Report string `json:"report"`
}

func (s *Server) sampleReportHandler(w http.ResponseWriter, r *http.Request) error {
	return writeJSON(r.Context(), w, http.StatusOK, reportResponse{Report: usecase.SampleReport()})
}

func (s *Server) normalizeHandler(w http.ResponseWriter, r *http.Request) error {
	raw, err := io.ReadAll(io.LimitReader(r.Body, s.maxUploadSize))
	if err != nil {
		return goerr.Wrap(model.ErrInvalidInput, "failed to read request body", goerr.V(model.MessageKey, err.Error()))
	}
	return writeJSON(r.Context(), w, http.StatusOK, reportResponse{Report: s.uc.Lookup.Normalize(raw)})
}

func (s *Server) createSessionHandler(w http.ResponseWriter, r *http.Request) error {
	sess, err := s.uc.Session.Create(r.Context())
	if err != nil {
		return err
	}
	return writeJSON(r.Context(), w, http.StatusCreated, sess)
}

func (s *Server) getSessionHandler(w http.ResponseWriter, r *http.Request) error {
	sess, err := s.uc.Session.Get(r.Context(), sessionID(r))
	if err != nil {
		return err
	}
	return writeJSON(r.Context(), w, http.StatusOK, sess)
}

func (s *Server) resetSessionHandler(w http.ResponseWriter, r *http.Request) error {
	sess, err := s.uc.Session.Reset(r.Context(), sessionID(r))
	if err != nil {
		return err
	}
	return writeJSON(r.Context(), w, http.StatusOK, sess)
}

func (s *Server) sampleHandler(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadSize)
	if err := r.ParseMultipartForm(s.maxUploadSize); err != nil {
		return goerr.Wrap(model.ErrInvalidInput, "invalid multipart upload", goerr.V(model.MessageKey, err.Error()))
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		return goerr.Wrap(model.ErrInvalidInput, "file field is required", goerr.V(model.MessageKey, err.Error()))
	}
	defer safe.Close(r.Context(), file)

	sess, err := s.uc.Session.SubmitSample(r.Context(), sessionID(r), header.Filename, file, r.FormValue("vt_api_key"))
	if err != nil {
		return err
	}
	return writeJSON(r.Context(), w, http.StatusOK, sess)
}

type hashRequest struct {
	Hash     string `json:"hash"`
	VTAPIKey string `json:"vt_api_key"`
}

func (s *Server) hashHandler(w http.ResponseWriter, r *http.Request) error {
	var req hashRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}

	sess, err := s.uc.Session.SubmitHash(r.Context(), sessionID(r), req.Hash, req.VTAPIKey)
	if err != nil {
		return err
	}
	return writeJSON(r.Context(), w, http.StatusOK, sess)
}

func (s *Server) reportHandler(w http.ResponseWriter, r *http.Request) error {
	var req reportResponse
	if err := decodeJSON(r, &req); err != nil {
		return err
	}

	sess, err := s.uc.Session.EditReport(r.Context(), sessionID(r), req.Report)
	if err != nil {
		return err
	}
	return writeJSON(r.Context(), w, http.StatusOK, sess)
}

type analyzeRequest struct {
	Provider   string           `json:"provider"`
	Credential model.Credential `json:"credential"`
	Async      bool             `json:"async,omitempty"`
}

func (req *analyzeRequest) kind() (types.ProviderKind, error) {
	kind, err := types.ParseProviderKind(req.Provider)
	if err != nil {
		return "", goerr.Wrap(model.ErrUnknownProvider, "unsupported provider", goerr.V(model.ProviderKey, req.Provider))
	}
	return kind, nil
}

func (s *Server) analyzeHandler(w http.ResponseWriter, r *http.Request) error {
	var req analyzeRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	kind, err := req.kind()
	if err != nil {
		return err
	}

	if req.Async {
		sess, err := s.uc.Session.AnalyzeAsync(r.Context(), sessionID(r), kind, req.Credential)
		if err != nil {
			return err
		}
		return writeJSON(r.Context(), w, http.StatusAccepted, sess)
	}

	sess, err := s.uc.Session.Analyze(r.Context(), sessionID(r), kind, req.Credential)
	if err != nil {
		return err
	}
	return writeJSON(r.Context(), w, http.StatusOK, sess)
}

func (s *Server) ruleHandler(w http.ResponseWriter, r *http.Request) error {
	var req analyzeRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	kind, err := req.kind()
	if err != nil {
		return err
	}

	sess, err := s.uc.Session.RegenerateRule(r.Context(), sessionID(r), kind, req.Credential)
	if err != nil {
		return err
	}
	return writeJSON(r.Context(), w, http.StatusOK, sess)
}
