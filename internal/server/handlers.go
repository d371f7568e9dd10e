package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/spigell/cv-screener/internal/document"
	"github.com/spigell/cv-screener/internal/logger"
	"github.com/spigell/cv-screener/internal/pipeline"
	"github.com/spigell/cv-screener/internal/posting"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

type analyzeRequest struct {
	File           string            `json:"file" validate:"required,base64"`
	Filename       string            `json:"filename" validate:"required,max=255"`
	FileType       string            `json:"file_type" validate:"omitempty,max=255"`
	PostingID      string            `json:"posting_id" validate:"omitempty,max=128"`
	JobTitle       string            `json:"job_title" validate:"omitempty,max=200"`
	JobDescription string            `json:"job_description" validate:"required,min=100"`
	Requirements   string            `json:"requirements"`
	Keywords       []string          `json:"keywords" validate:"omitempty,max=50,dive,max=64"`
	Applicant      posting.Applicant `json:"applicant"`
}

type analyzeResponse struct {
	RequestID string `json:"request_id,omitempty"`
	PostingID string `json:"posting_id"`
	*pipeline.Outcome
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) analyze(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)

	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorEnvelope{Error: apiError{
				Code:      "PAYLOAD_TOO_LARGE",
				Message:   fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit),
				RequestID: middleware.GetReqID(r.Context()),
			}})
			return
		}
		writeError(w, r, fmt.Errorf("%w: invalid json", ErrInvalidArgument), nil)
		return
	}

	if err := getValidator().Struct(req); err != nil {
		details := map[string]string{}
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				details[fieldPath(fe)] = fe.Tag()
			}
		}
		writeError(w, r, fmt.Errorf("%w: validation failed", ErrInvalidArgument), details)
		return
	}

	data, err := base64.StdEncoding.DecodeString(req.File)
	if err != nil || len(data) == 0 {
		writeError(w, r, fmt.Errorf("%w: file is not valid base64", ErrInvalidArgument), map[string]string{"file": "base64"})
		return
	}

	postingID := strings.TrimSpace(req.PostingID)
	if postingID == "" {
		postingID = pipeline.DefaultPostingID
	}

	in := pipeline.Input{
		Document: document.RawDocument{
			Data:      data,
			MediaType: req.FileType,
			Filename:  req.Filename,
		},
		Job: posting.Job{
			ID:           postingID,
			Title:        req.JobTitle,
			Description:  req.JobDescription,
			Requirements: req.Requirements,
			Keywords:     req.Keywords,
		},
		Applicant: req.Applicant,
	}

	log := s.logger.With(logger.DocumentFields("", postingID, req.Filename)...)
	log = log.With(zap.String("request_id", middleware.GetReqID(r.Context())))

	out, err := s.analyzer.Analyze(r.Context(), in, s.pool.Get(postingID))
	if err != nil {
		log.Warn("analysis failed", zap.Error(err))
		writeError(w, r, err, nil)
		return
	}

	writeJSON(w, http.StatusOK, analyzeResponse{
		RequestID: middleware.GetReqID(r.Context()),
		PostingID: postingID,
		Outcome:   out,
	})
}

func (s *Server) resetPosting(w http.ResponseWriter, r *http.Request) {
	postingID := chi.URLParam(r, "posting")
	if err := s.pool.Get(postingID).Reset(r.Context()); err != nil {
		s.logger.Error("reset posting scores", zap.String(logger.FieldPosting, postingID), zap.Error(err))
		writeError(w, r, err, nil)
		return
	}
	s.logger.Info("posting scores reset", zap.String(logger.FieldPosting, postingID))
	w.WriteHeader(http.StatusNoContent)
}

// fieldPath drops the top-level struct name from a validator namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}
