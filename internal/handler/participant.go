package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/efreitasn/marketlab/internal/domain"
	"github.com/efreitasn/marketlab/internal/service"
)

// ParticipantHandler handles the participant-facing class endpoints.
type ParticipantHandler struct {
	participantSvc *service.ParticipantService
	roundSvc       *service.RoundService
	marketSvc      *service.MarketService
}

// NewParticipantHandler creates a new ParticipantHandler.
func NewParticipantHandler(
	participantSvc *service.ParticipantService,
	roundSvc *service.RoundService,
	marketSvc *service.MarketService,
) *ParticipantHandler {
	return &ParticipantHandler{
		participantSvc: participantSvc,
		roundSvc:       roundSvc,
		marketSvc:      marketSvc,
	}
}

// joinRequest is the JSON request body for POST /classes/{class_id}/participants.
type joinRequest struct {
	ParticipantID string `json:"participant_id"`
}

// joinResponse is the starting position handed out on join.
type joinResponse struct {
	ClassID       string `json:"class_id"`
	ParticipantID string `json:"participant_id"`
	Money         int64  `json:"money"`
	Holdings      int64  `json:"holdings"`
	Info          int64  `json:"info"`
	JoinedAt      string `json:"joined_at"`
}

// submitRequest is the JSON request body for a round submission.
type submitRequest struct {
	Side       string  `json:"side"`
	Valuations []int64 `json:"valuations"`
}

// submissionResponse echoes the accepted submission.
type submissionResponse struct {
	ClassID          string  `json:"class_id"`
	ParticipantID    string  `json:"participant_id"`
	Side             string  `json:"side"`
	DeclaredQuantity int     `json:"declared_quantity"`
	Valuations       []int64 `json:"valuations"`
	Submitted        bool    `json:"submitted"`
	UpdatedAt        string  `json:"updated_at"`
}

// participantViewResponse is what a participant sees about themselves.
type participantViewResponse struct {
	ClassID          string  `json:"class_id"`
	ParticipantID    string  `json:"participant_id"`
	Round            int     `json:"round"`
	Phase            string  `json:"phase"`
	Money            int64   `json:"money"`
	Holdings         int64   `json:"holdings"`
	Info             int64   `json:"info"`
	Side             string  `json:"side"`
	DeclaredQuantity int     `json:"declared_quantity"`
	Valuations       []int64 `json:"valuations"`
	Submitted        bool    `json:"submitted"`
	ClearingPrice    *int64  `json:"clearing_price"`
	MatchedUnits     *int64  `json:"matched_units"`
	Payoff           *int64  `json:"payoff"`
	UnitValue        *int64  `json:"unit_value"`
	UpdatedAt        string  `json:"updated_at"`
}

// roundResponse is the lifecycle state of a class round. UnitValue is only
// filled in where the caller may see it.
type roundResponse struct {
	ClassID       string `json:"class_id"`
	Round         int    `json:"round"`
	Phase         string `json:"phase"`
	UnitValue     *int64 `json:"unit_value,omitempty"`
	ClearingPrice *int64 `json:"clearing_price"`
	Cleared       bool   `json:"cleared"`
	Confirmed     bool   `json:"confirmed"`
	Participants  int    `json:"participants"`
	Submitted     int    `json:"submitted"`
	UpdatedAt     string `json:"updated_at"`
}

// curvePointResponse is one row of the demand/supply table.
type curvePointResponse struct {
	Price  int64 `json:"price"`
	Demand int64 `json:"demand"`
	Supply int64 `json:"supply"`
}

// curveResponse is the JSON response for the curve endpoints.
type curveResponse struct {
	ClassID       string               `json:"class_id"`
	Round         int                  `json:"round"`
	ClearingPrice *int64               `json:"clearing_price"`
	Points        []curvePointResponse `json:"points"`
}

// Join handles POST /classes/{class_id}/participants.
func (h *ParticipantHandler) Join(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	p, created, err := h.participantSvc.Join(r.Context(), service.JoinRequest{
		ClassID:       chi.URLParam(r, "class_id"),
		ParticipantID: req.ParticipantID,
	})
	if err != nil {
		mapParticipantError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	WriteJSON(w, status, joinResponse{
		ClassID:       p.ClassID,
		ParticipantID: p.ParticipantID,
		Money:         p.Money,
		Holdings:      p.Holdings,
		Info:          p.Info,
		JoinedAt:      formatTime(p.JoinedAt),
	})
}

// Get handles GET /classes/{class_id}/participants/{participant_id}.
func (h *ParticipantHandler) Get(w http.ResponseWriter, r *http.Request) {
	v, err := h.participantSvc.View(r.Context(), chi.URLParam(r, "class_id"), chi.URLParam(r, "participant_id"))
	if err != nil {
		mapParticipantError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, participantViewResponse{
		ClassID:          v.ClassID,
		ParticipantID:    v.ParticipantID,
		Round:            v.Round,
		Phase:            string(v.Phase),
		Money:            v.Money,
		Holdings:         v.Holdings,
		Info:             v.Info,
		Side:             string(v.Side),
		DeclaredQuantity: v.DeclaredQuantity,
		Valuations:       nonNil(v.Valuations),
		Submitted:        v.Submitted,
		ClearingPrice:    v.ClearingPrice,
		MatchedUnits:     v.MatchedUnits,
		Payoff:           v.Payoff,
		UnitValue:        v.UnitValue,
		UpdatedAt:        formatTime(v.UpdatedAt),
	})
}

// Submit handles POST /classes/{class_id}/participants/{participant_id}/submission.
func (h *ParticipantHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	p, err := h.participantSvc.Submit(r.Context(), service.SubmitRequest{
		ClassID:       chi.URLParam(r, "class_id"),
		ParticipantID: chi.URLParam(r, "participant_id"),
		Side:          domain.Side(req.Side),
		Valuations:    req.Valuations,
	})
	if err != nil {
		mapParticipantError(w, err)
		return
	}

	values, err := p.Declared()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, submissionResponse{
		ClassID:          p.ClassID,
		ParticipantID:    p.ParticipantID,
		Side:             string(p.Side),
		DeclaredQuantity: p.DeclaredQuantity,
		Valuations:       nonNil(values),
		Submitted:        p.Submitted,
		UpdatedAt:        formatTime(p.UpdatedAt),
	})
}

// Round handles GET /classes/{class_id}/round. The unit value stays hidden
// until the round is confirmed.
func (h *ParticipantHandler) Round(w http.ResponseWriter, r *http.Request) {
	state, err := h.roundSvc.State(r.Context(), chi.URLParam(r, "class_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildRoundResponse(state, state.Confirmed))
}

// Curve handles GET /classes/{class_id}/curve.
func (h *ParticipantHandler) Curve(w http.ResponseWriter, r *http.Request) {
	curve, err := h.marketSvc.Curve(r.Context(), chi.URLParam(r, "class_id"), true)
	if err != nil {
		mapParticipantError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildCurveResponse(curve))
}

func buildRoundResponse(st *service.RoundState, showUnitValue bool) roundResponse {
	resp := roundResponse{
		ClassID:       st.ClassID,
		Round:         st.Number,
		Phase:         string(st.Phase),
		ClearingPrice: st.ClearingPrice,
		Cleared:       st.Cleared,
		Confirmed:     st.Confirmed,
		Participants:  st.Participants,
		Submitted:     st.Submitted,
		UpdatedAt:     formatTime(st.UpdatedAt),
	}
	if showUnitValue {
		unitValue := st.UnitValue
		resp.UnitValue = &unitValue
	}
	return resp
}

func buildCurveResponse(c *service.CurveResponse) curveResponse {
	points := make([]curvePointResponse, len(c.Points))
	for i, pt := range c.Points {
		points[i] = curvePointResponse{Price: pt.Price, Demand: pt.Demand, Supply: pt.Supply}
	}
	return curveResponse{
		ClassID:       c.ClassID,
		Round:         c.Round,
		ClearingPrice: c.ClearingPrice,
		Points:        points,
	}
}

// nonNil keeps empty valuation lists encoded as [] rather than null.
func nonNil(values []int64) []int64 {
	if values == nil {
		return []int64{}
	}
	return values
}

// mapParticipantError maps domain errors to HTTP responses for participant
// endpoints.
func mapParticipantError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrParticipantNotFound):
		WriteError(w, http.StatusNotFound, "participant_not_found", "Participant not found")
	case errors.Is(err, domain.ErrRoundNotOpen):
		WriteError(w, http.StatusConflict, "round_not_open", "The current round is no longer accepting submissions")
	case errors.Is(err, domain.ErrResultsNotPublic):
		WriteError(w, http.StatusConflict, "results_not_public", "Results are published once the round is cleared")
	case errors.Is(err, domain.ErrInsufficientBalance):
		WriteError(w, http.StatusConflict, "insufficient_balance", err.Error())
	case errors.Is(err, domain.ErrInsufficientHoldings):
		WriteError(w, http.StatusConflict, "insufficient_holdings", err.Error())
	default:
		writeServiceError(w, err)
	}
}
