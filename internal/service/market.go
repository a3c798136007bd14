package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/efreitasn/marketlab/internal/domain"
	"github.com/efreitasn/marketlab/internal/engine"
)

// CurveResponse is the demand/supply table of a class's current submissions.
type CurveResponse struct {
	ClassID       string
	Round         int
	ClearingPrice *int64
	Points        []engine.CurvePoint
}

// BookResponse is the aggregated valuation levels of the current submissions.
type BookResponse struct {
	ClassID    string
	Round      int
	Buys       []engine.PriceLevel
	Sells      []engine.PriceLevel
	Gap        *int64 // lowest sell valuation minus highest buy valuation; nil if either side empty
	SnapshotAt time.Time
}

// HistoryCSVHeader is the column order of the history export.
var HistoryCSVHeader = []string{
	"participant_id", "round", "side", "declared_quantity", "valuations", "matched_units",
	"clearing_price", "unit_value", "money", "holdings", "payoff", "info", "recorded_at",
}

// MarketService answers read-only market queries: curve, book and history.
type MarketService struct {
	store ClassStore
	rules Rules
	now   func() time.Time
}

// NewMarketService creates a new MarketService.
func NewMarketService(store ClassStore, rules Rules) *MarketService {
	return &MarketService{store: store, rules: rules, now: utcNow}
}

// Curve returns the demand/supply table over [0, MaxPrice]. With public set,
// the table is only available once the round has been cleared.
func (s *MarketService) Curve(ctx context.Context, classID string, public bool) (*CurveResponse, error) {
	class, err := s.store.Load(ctx, classID)
	if err != nil {
		return nil, err
	}
	if public && !class.Round.Cleared {
		return nil, domain.ErrResultsNotPublic
	}

	points, err := engine.Curve(class.SortedParticipants(), s.rules.MaxPrice, s.rules.MaxUnits)
	if err != nil {
		return nil, err
	}
	return &CurveResponse{
		ClassID:       classID,
		Round:         class.Round.Number,
		ClearingPrice: class.Round.ClearingPrice,
		Points:        points,
	}, nil
}

// Book returns the top depth valuation levels of each side.
func (s *MarketService) Book(ctx context.Context, classID string, depth int) (*BookResponse, error) {
	if depth < 1 || depth > 50 {
		return nil, &domain.ValidationError{
			Message: "depth must be between 1 and 50",
		}
	}

	class, err := s.store.Load(ctx, classID)
	if err != nil {
		return nil, err
	}

	book, err := engine.Book(class.SortedParticipants(), s.rules.MaxPrice, s.rules.MaxUnits)
	if err != nil {
		return nil, err
	}

	resp := &BookResponse{
		ClassID:    classID,
		Round:      class.Round.Number,
		Buys:       book.TopBuys(depth),
		Sells:      book.TopSells(depth),
		SnapshotAt: s.now(),
	}
	if len(resp.Buys) > 0 && len(resp.Sells) > 0 {
		gap := resp.Sells[0].Value - resp.Buys[0].Value
		resp.Gap = &gap
	}
	return resp, nil
}

// History returns every settlement record of a class ordered by round, then
// participant id.
func (s *MarketService) History(ctx context.Context, classID string) ([]domain.HistoryRecord, error) {
	return s.store.History(ctx, classID)
}

// WriteHistoryCSV writes the class history as CSV with a header row.
// Valuations are joined with ';'.
func (s *MarketService) WriteHistoryCSV(ctx context.Context, w io.Writer, classID string) error {
	records, err := s.store.History(ctx, classID)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(HistoryCSVHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range records {
		values := make([]string, len(r.Valuations))
		for i, v := range r.Valuations {
			values[i] = strconv.FormatInt(v, 10)
		}
		row := []string{
			r.ParticipantID,
			strconv.Itoa(r.Round),
			string(r.Side),
			strconv.Itoa(r.DeclaredQuantity),
			strings.Join(values, ";"),
			strconv.FormatInt(r.MatchedUnits, 10),
			strconv.FormatInt(r.ClearingPrice, 10),
			strconv.FormatInt(r.UnitValue, 10),
			strconv.FormatInt(r.Money, 10),
			strconv.FormatInt(r.Holdings, 10),
			strconv.FormatInt(r.Payoff, 10),
			strconv.FormatInt(r.Info, 10),
			r.RecordedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
