package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/efreitasn/marketlab/internal/domain"
)

// Schema creates the tables used by PostgresStore. It is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS rounds (
	class_id       text PRIMARY KEY,
	round_number   integer NOT NULL,
	unit_value     bigint NOT NULL,
	clearing_price bigint,
	cleared        boolean NOT NULL DEFAULT false,
	confirmed      boolean NOT NULL DEFAULT false,
	updated_at     timestamptz NOT NULL DEFAULT now(),
	CHECK (NOT confirmed OR cleared),
	CHECK ((clearing_price IS NOT NULL) = cleared)
);

CREATE TABLE IF NOT EXISTS participants (
	class_id          text NOT NULL REFERENCES rounds (class_id) ON DELETE CASCADE,
	participant_id    text NOT NULL,
	money             bigint NOT NULL,
	holdings          bigint NOT NULL,
	info              bigint NOT NULL,
	side              text NOT NULL DEFAULT '',
	declared_quantity integer NOT NULL DEFAULT 0,
	valuations        bigint[] NOT NULL,
	submitted         boolean NOT NULL DEFAULT false,
	matched_units     bigint,
	payoff            bigint,
	joined_at         timestamptz NOT NULL,
	updated_at        timestamptz NOT NULL,
	PRIMARY KEY (class_id, participant_id)
);

CREATE TABLE IF NOT EXISTS history (
	record_id         text PRIMARY KEY,
	class_id          text NOT NULL,
	participant_id    text NOT NULL,
	round             integer NOT NULL,
	side              text NOT NULL,
	declared_quantity integer NOT NULL,
	valuations        bigint[] NOT NULL,
	matched_units     bigint NOT NULL,
	clearing_price    bigint NOT NULL,
	unit_value        bigint NOT NULL,
	money             bigint NOT NULL,
	holdings          bigint NOT NULL,
	payoff            bigint NOT NULL,
	info              bigint NOT NULL,
	recorded_at       timestamptz NOT NULL
);

CREATE INDEX IF NOT EXISTS history_class_round_idx ON history (class_id, round, participant_id);
`

// Connect creates a pgx connection pool and verifies it with a ping.
func Connect(ctx context.Context, databaseURL string, maxConns int) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// PostgresStore keeps classes and history in PostgreSQL. Every update runs in
// one transaction holding the class's round row lock.
type PostgresStore struct {
	pool   *pgxpool.Pool
	retry  RetryPolicy
	logger *slog.Logger
}

// NewPostgresStore wraps an open pool.
func NewPostgresStore(pool *pgxpool.Pool, retry RetryPolicy, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{pool: pool, retry: retry, logger: logger}
}

// Migrate applies Schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// EnsureClass creates the class in round 1 with the given unit value unless it
// already exists.
func (s *PostgresStore) EnsureClass(ctx context.Context, classID string, unitValue int64) error {
	return s.retry.do(ctx, s.logger, "ensure class", func(ctx context.Context) error {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO rounds (class_id, round_number, unit_value)
			VALUES ($1, 1, $2)
			ON CONFLICT (class_id) DO NOTHING
		`, classID, unitValue)
		return err
	})
}

// Update runs fn inside a transaction on the class as currently committed.
// The transaction commits only if fn and every write succeed.
func (s *PostgresStore) Update(ctx context.Context, classID string, fn func(*domain.Class) error) error {
	return s.retry.do(ctx, s.logger, "update class", func(ctx context.Context) error {
		return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			class, err := loadClass(ctx, tx, classID, true)
			if err != nil {
				return err
			}
			if err := fn(class); err != nil {
				return err
			}
			return saveClass(ctx, tx, class)
		})
	})
}

// Load returns a consistent snapshot of the class.
func (s *PostgresStore) Load(ctx context.Context, classID string) (*domain.Class, error) {
	var class *domain.Class
	err := s.retry.do(ctx, s.logger, "load class", func(ctx context.Context) error {
		opts := pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}
		return pgx.BeginTxFunc(ctx, s.pool, opts, func(tx pgx.Tx) error {
			var err error
			class, err = loadClass(ctx, tx, classID, false)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return class, nil
}

// History returns the settlement records of a class ordered by round, then
// participant id.
func (s *PostgresStore) History(ctx context.Context, classID string) ([]domain.HistoryRecord, error) {
	var records []domain.HistoryRecord
	err := s.retry.do(ctx, s.logger, "load history", func(ctx context.Context) error {
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM rounds WHERE class_id = $1)`, classID,
		).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return domain.ErrClassNotFound
		}

		rows, err := s.pool.Query(ctx, `
			SELECT record_id, participant_id, round, side, declared_quantity, valuations,
			       matched_units, clearing_price, unit_value, money, holdings, payoff, info, recorded_at
			FROM history
			WHERE class_id = $1
			ORDER BY round, participant_id
		`, classID)
		if err != nil {
			return err
		}
		records, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.HistoryRecord, error) {
			r := domain.HistoryRecord{ClassID: classID}
			var side string
			err := row.Scan(&r.RecordID, &r.ParticipantID, &r.Round, &side, &r.DeclaredQuantity, &r.Valuations,
				&r.MatchedUnits, &r.ClearingPrice, &r.UnitValue, &r.Money, &r.Holdings, &r.Payoff, &r.Info, &r.RecordedAt)
			r.Side = domain.Side(side)
			return r, err
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func loadClass(ctx context.Context, tx pgx.Tx, classID string, forUpdate bool) (*domain.Class, error) {
	query := `
		SELECT round_number, unit_value, clearing_price, cleared, confirmed, updated_at
		FROM rounds
		WHERE class_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	class := domain.NewClass(classID, 0)
	r := &class.Round
	err := tx.QueryRow(ctx, query, classID).Scan(
		&r.Number, &r.UnitValue, &r.ClearingPrice, &r.Cleared, &r.Confirmed, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrClassNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load round: %w", err)
	}

	rows, err := tx.Query(ctx, `
		SELECT participant_id, money, holdings, info, side, declared_quantity, valuations,
		       submitted, matched_units, payoff, joined_at, updated_at
		FROM participants
		WHERE class_id = $1
	`, classID)
	if err != nil {
		return nil, fmt.Errorf("load participants: %w", err)
	}
	participants, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.Participant, error) {
		p := &domain.Participant{ClassID: classID}
		var (
			side  string
			slots []*int64
		)
		if err := row.Scan(&p.ParticipantID, &p.Money, &p.Holdings, &p.Info, &side, &p.DeclaredQuantity, &slots,
			&p.Submitted, &p.MatchedUnits, &p.Payoff, &p.JoinedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.Side = domain.Side(side)
		v, err := toValuations(p.ParticipantID, slots)
		if err != nil {
			return nil, err
		}
		p.Valuations = v
		return p, nil
	})
	if err != nil {
		return nil, fmt.Errorf("load participants: %w", err)
	}
	for _, p := range participants {
		class.Participants[p.ParticipantID] = p
	}
	return class, nil
}

func saveClass(ctx context.Context, tx pgx.Tx, class *domain.Class) error {
	r := class.Round
	if _, err := tx.Exec(ctx, `
		UPDATE rounds
		SET round_number = $2, unit_value = $3, clearing_price = $4, cleared = $5, confirmed = $6, updated_at = $7
		WHERE class_id = $1
	`, class.ID, r.Number, r.UnitValue, r.ClearingPrice, r.Cleared, r.Confirmed, r.UpdatedAt); err != nil {
		return fmt.Errorf("save round: %w", err)
	}

	ids := make([]string, 0, len(class.Participants))
	for id := range class.Participants {
		ids = append(ids, id)
	}
	if _, err := tx.Exec(ctx, `
		DELETE FROM participants
		WHERE class_id = $1 AND NOT (participant_id = ANY($2))
	`, class.ID, ids); err != nil {
		return fmt.Errorf("delete participants: %w", err)
	}

	if len(class.Participants) > 0 {
		batch := &pgx.Batch{}
		for _, p := range class.SortedParticipants() {
			batch.Queue(`
				INSERT INTO participants (class_id, participant_id, money, holdings, info, side, declared_quantity,
				                          valuations, submitted, matched_units, payoff, joined_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
				ON CONFLICT (class_id, participant_id) DO UPDATE SET
					money = EXCLUDED.money,
					holdings = EXCLUDED.holdings,
					info = EXCLUDED.info,
					side = EXCLUDED.side,
					declared_quantity = EXCLUDED.declared_quantity,
					valuations = EXCLUDED.valuations,
					submitted = EXCLUDED.submitted,
					matched_units = EXCLUDED.matched_units,
					payoff = EXCLUDED.payoff,
					updated_at = EXCLUDED.updated_at
			`, class.ID, p.ParticipantID, p.Money, p.Holdings, p.Info, string(p.Side), p.DeclaredQuantity,
				fromValuations(p.Valuations), p.Submitted, p.MatchedUnits, p.Payoff, p.JoinedAt, p.UpdatedAt)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("save participants: %w", err)
		}
	}

	if class.HistoryWiped {
		if _, err := tx.Exec(ctx, `DELETE FROM history WHERE class_id = $1`, class.ID); err != nil {
			return fmt.Errorf("delete history: %w", err)
		}
	}

	if len(class.PendingHistory) > 0 {
		rows := make([][]any, 0, len(class.PendingHistory))
		for _, h := range class.PendingHistory {
			valuations := h.Valuations
			if valuations == nil {
				valuations = []int64{}
			}
			rows = append(rows, []any{
				h.RecordID, h.ClassID, h.ParticipantID, h.Round, string(h.Side), h.DeclaredQuantity, valuations,
				h.MatchedUnits, h.ClearingPrice, h.UnitValue, h.Money, h.Holdings, h.Payoff, h.Info, h.RecordedAt,
			})
		}
		_, err := tx.CopyFrom(ctx, pgx.Identifier{"history"}, historyColumns, pgx.CopyFromRows(rows))
		if err != nil {
			return fmt.Errorf("insert history: %w", err)
		}
	}
	return nil
}

var historyColumns = []string{
	"record_id", "class_id", "participant_id", "round", "side", "declared_quantity", "valuations",
	"matched_units", "clearing_price", "unit_value", "money", "holdings", "payoff", "info", "recorded_at",
}

// fromValuations encodes slots as a fixed-length array with NULL for empty
// slots.
func fromValuations(v domain.Valuations) []*int64 {
	out := make([]*int64, len(v))
	for i, slot := range v {
		if slot.Set {
			value := slot.Value
			out[i] = &value
		}
	}
	return out
}

func toValuations(participantID string, slots []*int64) (domain.Valuations, error) {
	var v domain.Valuations
	if len(slots) > len(v) {
		return v, fmt.Errorf("participant %s: %d stored valuation slots: %w", participantID, len(slots), domain.ErrIntegrity)
	}
	for i, s := range slots {
		if s != nil {
			v[i] = domain.Slot{Value: *s, Set: true}
		}
	}
	return v, nil
}
