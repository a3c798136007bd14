package handler

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/efreitasn/marketlab/internal/domain"
	"github.com/efreitasn/marketlab/internal/engine"
	"github.com/efreitasn/marketlab/internal/service"
)

const defaultBookDepth = 10

// AdminHandler handles the administrator endpoints of a class.
type AdminHandler struct {
	participantSvc *service.ParticipantService
	roundSvc       *service.RoundService
	marketSvc      *service.MarketService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(
	participantSvc *service.ParticipantService,
	roundSvc *service.RoundService,
	marketSvc *service.MarketService,
) *AdminHandler {
	return &AdminHandler{
		participantSvc: participantSvc,
		roundSvc:       roundSvc,
		marketSvc:      marketSvc,
	}
}

// participantResponse is the full participant record.
type participantResponse struct {
	ParticipantID    string  `json:"participant_id"`
	Money            int64   `json:"money"`
	Holdings         int64   `json:"holdings"`
	Info             int64   `json:"info"`
	Side             string  `json:"side"`
	DeclaredQuantity int     `json:"declared_quantity"`
	Valuations       []int64 `json:"valuations"`
	Submitted        bool    `json:"submitted"`
	MatchedUnits     *int64  `json:"matched_units"`
	Payoff           *int64  `json:"payoff"`
	JoinedAt         string  `json:"joined_at"`
	UpdatedAt        string  `json:"updated_at"`
}

// participantListResponse is the JSON response for GET /admin/classes/{class_id}/participants.
type participantListResponse struct {
	ClassID      string                `json:"class_id"`
	Participants []participantResponse `json:"participants"`
}

// levelResponse is one aggregated valuation level.
type levelResponse struct {
	Value            int64 `json:"value"`
	Units            int64 `json:"units"`
	ParticipantCount int   `json:"participant_count"`
}

// bookResponse is the JSON response for GET /admin/classes/{class_id}/book.
type bookResponse struct {
	ClassID    string          `json:"class_id"`
	Round      int             `json:"round"`
	Buys       []levelResponse `json:"buys"`
	Sells      []levelResponse `json:"sells"`
	Gap        *int64          `json:"gap"`
	SnapshotAt string          `json:"snapshot_at"`
}

// fillResponse is one matched unit.
type fillResponse struct {
	BuyerID   string `json:"buyer_id"`
	BuySlot   int    `json:"buy_slot"`
	BuyValue  int64  `json:"buy_value"`
	SellerID  string `json:"seller_id"`
	SellSlot  int    `json:"sell_slot"`
	SellValue int64  `json:"sell_value"`
}

// clearResponse is the JSON response for POST /admin/classes/{class_id}/clear.
type clearResponse struct {
	ClassID       string           `json:"class_id"`
	Round         int              `json:"round"`
	ClearingPrice int64            `json:"clearing_price"`
	Volume        int64            `json:"volume"`
	Matched       map[string]int64 `json:"matched"`
	Fills         []fillResponse   `json:"fills"`
}

// historyRecordResponse is one settlement record.
type historyRecordResponse struct {
	RecordID         string  `json:"record_id"`
	ParticipantID    string  `json:"participant_id"`
	Round            int     `json:"round"`
	Side             string  `json:"side"`
	DeclaredQuantity int     `json:"declared_quantity"`
	Valuations       []int64 `json:"valuations"`
	MatchedUnits     int64   `json:"matched_units"`
	ClearingPrice    int64   `json:"clearing_price"`
	UnitValue        int64   `json:"unit_value"`
	Money            int64   `json:"money"`
	Holdings         int64   `json:"holdings"`
	Payoff           int64   `json:"payoff"`
	Info             int64   `json:"info"`
	RecordedAt       string  `json:"recorded_at"`
}

// historyResponse is the JSON response for GET /admin/classes/{class_id}/history.
type historyResponse struct {
	ClassID string                  `json:"class_id"`
	Records []historyRecordResponse `json:"records"`
}

// ListParticipants handles GET /admin/classes/{class_id}/participants.
func (h *AdminHandler) ListParticipants(w http.ResponseWriter, r *http.Request) {
	classID := chi.URLParam(r, "class_id")
	participants, err := h.participantSvc.List(r.Context(), classID)
	if err != nil {
		mapAdminError(w, err)
		return
	}

	resp := participantListResponse{
		ClassID:      classID,
		Participants: make([]participantResponse, len(participants)),
	}
	for i, p := range participants {
		values, err := p.Declared()
		if err != nil {
			mapAdminError(w, err)
			return
		}
		resp.Participants[i] = participantResponse{
			ParticipantID:    p.ParticipantID,
			Money:            p.Money,
			Holdings:         p.Holdings,
			Info:             p.Info,
			Side:             string(p.Side),
			DeclaredQuantity: p.DeclaredQuantity,
			Valuations:       nonNil(values),
			Submitted:        p.Submitted,
			MatchedUnits:     p.MatchedUnits,
			Payoff:           p.Payoff,
			JoinedAt:         formatTime(p.JoinedAt),
			UpdatedAt:        formatTime(p.UpdatedAt),
		}
	}
	WriteJSON(w, http.StatusOK, resp)
}

// Round handles GET /admin/classes/{class_id}/round.
func (h *AdminHandler) Round(w http.ResponseWriter, r *http.Request) {
	state, err := h.roundSvc.State(r.Context(), chi.URLParam(r, "class_id"))
	if err != nil {
		mapAdminError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildRoundResponse(state, true))
}

// Curve handles GET /admin/classes/{class_id}/curve.
func (h *AdminHandler) Curve(w http.ResponseWriter, r *http.Request) {
	curve, err := h.marketSvc.Curve(r.Context(), chi.URLParam(r, "class_id"), false)
	if err != nil {
		mapAdminError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildCurveResponse(curve))
}

// Book handles GET /admin/classes/{class_id}/book.
func (h *AdminHandler) Book(w http.ResponseWriter, r *http.Request) {
	depth := defaultBookDepth
	if d := r.URL.Query().Get("depth"); d != "" {
		parsed, err := strconv.Atoi(d)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "validation_error", "depth must be an integer")
			return
		}
		depth = parsed
	}

	book, err := h.marketSvc.Book(r.Context(), chi.URLParam(r, "class_id"), depth)
	if err != nil {
		mapAdminError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, bookResponse{
		ClassID:    book.ClassID,
		Round:      book.Round,
		Buys:       buildLevels(book.Buys),
		Sells:      buildLevels(book.Sells),
		Gap:        book.Gap,
		SnapshotAt: formatTime(book.SnapshotAt),
	})
}

// Clear handles POST /admin/classes/{class_id}/clear.
func (h *AdminHandler) Clear(w http.ResponseWriter, r *http.Request) {
	out, err := h.roundSvc.Clear(r.Context(), chi.URLParam(r, "class_id"))
	if err != nil {
		mapAdminError(w, err)
		return
	}

	fills := make([]fillResponse, len(out.Fills))
	for i, f := range out.Fills {
		fills[i] = fillResponse{
			BuyerID:   f.BuyerID,
			BuySlot:   f.BuySlot,
			BuyValue:  f.BuyValue,
			SellerID:  f.SellerID,
			SellSlot:  f.SellSlot,
			SellValue: f.SellValue,
		}
	}
	WriteJSON(w, http.StatusOK, clearResponse{
		ClassID:       out.ClassID,
		Round:         out.Round,
		ClearingPrice: out.Price,
		Volume:        out.Volume,
		Matched:       out.Matched,
		Fills:         fills,
	})
}

// Confirm handles POST /admin/classes/{class_id}/confirm.
func (h *AdminHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	state, err := h.roundSvc.Confirm(r.Context(), chi.URLParam(r, "class_id"))
	if err != nil {
		mapAdminError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildRoundResponse(state, true))
}

// Advance handles POST /admin/classes/{class_id}/advance.
func (h *AdminHandler) Advance(w http.ResponseWriter, r *http.Request) {
	state, err := h.roundSvc.Advance(r.Context(), chi.URLParam(r, "class_id"))
	if err != nil {
		mapAdminError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildRoundResponse(state, true))
}

// Reset handles POST /admin/classes/{class_id}/reset.
func (h *AdminHandler) Reset(w http.ResponseWriter, r *http.Request) {
	state, err := h.roundSvc.Reset(r.Context(), chi.URLParam(r, "class_id"))
	if err != nil {
		mapAdminError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildRoundResponse(state, true))
}

// History handles GET /admin/classes/{class_id}/history.
func (h *AdminHandler) History(w http.ResponseWriter, r *http.Request) {
	classID := chi.URLParam(r, "class_id")
	records, err := h.marketSvc.History(r.Context(), classID)
	if err != nil {
		mapAdminError(w, err)
		return
	}

	resp := historyResponse{
		ClassID: classID,
		Records: make([]historyRecordResponse, len(records)),
	}
	for i, rec := range records {
		resp.Records[i] = historyRecordResponse{
			RecordID:         rec.RecordID,
			ParticipantID:    rec.ParticipantID,
			Round:            rec.Round,
			Side:             string(rec.Side),
			DeclaredQuantity: rec.DeclaredQuantity,
			Valuations:       nonNil(rec.Valuations),
			MatchedUnits:     rec.MatchedUnits,
			ClearingPrice:    rec.ClearingPrice,
			UnitValue:        rec.UnitValue,
			Money:            rec.Money,
			Holdings:         rec.Holdings,
			Payoff:           rec.Payoff,
			Info:             rec.Info,
			RecordedAt:       formatTime(rec.RecordedAt),
		}
	}
	WriteJSON(w, http.StatusOK, resp)
}

// HistoryCSV handles GET /admin/classes/{class_id}/history.csv.
func (h *AdminHandler) HistoryCSV(w http.ResponseWriter, r *http.Request) {
	classID := chi.URLParam(r, "class_id")

	var buf bytes.Buffer
	if err := h.marketSvc.WriteHistoryCSV(r.Context(), &buf, classID); err != nil {
		mapAdminError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-history.csv"`, classID))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func buildLevels(levels []engine.PriceLevel) []levelResponse {
	out := make([]levelResponse, len(levels))
	for i, l := range levels {
		out[i] = levelResponse{Value: l.Value, Units: l.Units, ParticipantCount: l.ParticipantCount}
	}
	return out
}

// mapAdminError maps domain errors to HTTP responses for admin endpoints.
func mapAdminError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrRoundAlreadyCleared):
		WriteError(w, http.StatusConflict, "round_already_cleared", "The current round has already been cleared")
	case errors.Is(err, domain.ErrRoundNotCleared):
		WriteError(w, http.StatusConflict, "round_not_cleared", "The current round has not been cleared")
	case errors.Is(err, domain.ErrRoundNotConfirmed):
		WriteError(w, http.StatusConflict, "round_not_confirmed", "The current round has not been confirmed")
	default:
		writeServiceError(w, err)
	}
}
