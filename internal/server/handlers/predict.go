package handlers

import (
	"log/slog"
	"net/http"

	"github.com/iudanet/prescient/internal/server/middleware"
	"github.com/iudanet/prescient/internal/server/scoring"
	"github.com/iudanet/prescient/pkg/api"
)

// PredictionRecorder counts served predictions by label.
type PredictionRecorder interface {
	Prediction(label string)
}

// PredictHandler обрабатывает запросы скоринга лидов
type PredictHandler struct {
	logger    *slog.Logger
	predictor scoring.Predictor
	recorder  PredictionRecorder
}

// NewPredictHandler создает handler скоринга. recorder может быть nil.
func NewPredictHandler(logger *slog.Logger, predictor scoring.Predictor, recorder PredictionRecorder) *PredictHandler {
	return &PredictHandler{
		logger:    logger,
		predictor: predictor,
		recorder:  recorder,
	}
}

// Predict обрабатывает POST /predict
func (h *PredictHandler) Predict(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.PredictRequest
	if err := decodeJSON(w, r, &req); err != nil {
		sendServiceError(h.logger, w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		sendError(h.logger, w, err.Error(), http.StatusBadRequest)
		return
	}

	probability, err := h.predictor.Predict(ctx, scoring.Lead{
		Job:          req.Job,
		PersonalLoan: req.PersonalLoan,
		HousingLoan:  req.HousingLoan,
		Marital:      req.Marital,
		Balance:      *req.Balance,
		Campaign:     *req.Campaign,
		Duration:     *req.Duration,
	})
	if err != nil {
		sendServiceError(h.logger, w, r, err)
		return
	}

	result := scoring.Classify(probability)

	username, _ := middleware.GetUsername(ctx)
	h.logger.InfoContext(ctx, "lead scored",
		slog.String("username", username),
		slog.String("label", result.Label))
	if h.recorder != nil {
		h.recorder.Prediction(result.Label)
	}

	sendJSON(h.logger, w, api.PredictResponse{
		PredictionScore:       result.Score,
		Label:                 result.Label,
		ProbabilityPercentage: result.Percentage,
		Recommendation:        result.Recommendation,
	}, http.StatusOK)
}
