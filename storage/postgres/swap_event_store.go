package postgres

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/defistate/cpamm-engine/protocols/cpamm/types"
	"github.com/defistate/cpamm-engine/storage"
)

// SwapEventStore implements storage.SwapEventStore using PostgreSQL.
//
// u64 values travel as decimal text and are stored as NUMERIC.
type SwapEventStore struct {
	pool *Pool
}

// NewSwapEventStore creates a new SwapEventStore.
func NewSwapEventStore(pool *Pool) *SwapEventStore {
	return &SwapEventStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SwapEventStore = (*SwapEventStore)(nil)

const insertSwapEvent = `
	INSERT INTO swap_events (
		id, pool, trade_direction, collect_fee_mode, swap_mode, has_referral,
		amount_0, amount_1, amount_in, amount_out, amount_left,
		trading_fee, protocol_fee, partner_fee, referral_fee,
		next_sqrt_price, reserve_a, reserve_b, timestamp
	) VALUES (
		$1::text::numeric, $2, $3, $4, $5, $6,
		$7::text::numeric, $8::text::numeric, $9::text::numeric, $10::text::numeric, $11::text::numeric,
		$12::text::numeric, $13::text::numeric, $14::text::numeric, $15::text::numeric,
		$16::text::numeric, $17::text::numeric, $18::text::numeric, $19::text::numeric
	)
`

const selectSwapEvent = `
	SELECT id::text, pool, trade_direction, collect_fee_mode, swap_mode, has_referral,
		amount_0::text, amount_1::text, amount_in::text, amount_out::text, amount_left::text,
		trading_fee::text, protocol_fee::text, partner_fee::text, referral_fee::text,
		next_sqrt_price::text, reserve_a::text, reserve_b::text, timestamp::text
	FROM swap_events
`

func insertArgs(r *storage.SwapRecord) []any {
	nextSqrtPrice := r.NextSqrtPrice
	if nextSqrtPrice == "" {
		nextSqrtPrice = "0"
	}
	return []any{
		u64(r.ID), r.Pool.String(), int16(r.TradeDirection), int16(r.CollectFeeMode), int16(r.SwapMode), r.HasReferral,
		u64(r.Amount0), u64(r.Amount1), u64(r.AmountIn), u64(r.AmountOut), u64(r.AmountLeft),
		u64(r.TradingFee), u64(r.ProtocolFee), u64(r.PartnerFee), u64(r.ReferralFee),
		nextSqrtPrice, u64(r.ReserveA), u64(r.ReserveB), u64(r.Timestamp),
	}
}

// Insert adds a record. Returns ErrDuplicateKey if the ID exists.
func (s *SwapEventStore) Insert(ctx context.Context, r *storage.SwapRecord) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, insertSwapEvent, insertArgs(r)...); err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert swap event: %w", err)
	}
	return nil
}

// InsertBulk adds records atomically. Fails the entire batch on any duplicate.
func (s *SwapEventStore) InsertBulk(ctx context.Context, records []*storage.SwapRecord) error {
	if len(records) == 0 {
		return nil
	}
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return err
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(insertSwapEvent, insertArgs(r)...)
	}
	results := tx.SendBatch(ctx, batch)
	for range records {
		if _, err := results.Exec(); err != nil {
			results.Close()
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert swap event in bulk: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByPoolTimeRange returns the swaps of pool within [start, end), ordered by ID.
func (s *SwapEventStore) GetByPoolTimeRange(ctx context.Context, pool types.Pubkey, start, end uint64) ([]*storage.SwapRecord, error) {
	query := selectSwapEvent + `
		WHERE pool = $1 AND timestamp >= $2::text::numeric AND timestamp < $3::text::numeric
		ORDER BY id ASC
	`
	rows, err := s.pool.Query(ctx, query, pool.String(), u64(start), u64(end))
	if err != nil {
		return nil, fmt.Errorf("get swap events by pool/time range: %w", err)
	}
	defer rows.Close()

	var out []*storage.SwapRecord
	for rows.Next() {
		r, err := scanSwapEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate swap event rows: %w", err)
	}
	return out, nil
}

// GetByID returns a single record or ErrNotFound.
func (s *SwapEventStore) GetByID(ctx context.Context, id uint64) (*storage.SwapRecord, error) {
	row := s.pool.QueryRow(ctx, selectSwapEvent+` WHERE id = $1::text::numeric`, u64(id))
	r, err := scanSwapEvent(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return r, nil
}

// LastID returns the highest stored ID, or zero for an empty store.
func (s *SwapEventStore) LastID(ctx context.Context) (uint64, error) {
	var last string
	if err := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(id), 0)::text FROM swap_events`).Scan(&last); err != nil {
		return 0, fmt.Errorf("get last swap event id: %w", err)
	}
	return strconv.ParseUint(last, 10, 64)
}

// scanSwapEvent scans one row of selectSwapEvent.
func scanSwapEvent(row pgx.Row) (*storage.SwapRecord, error) {
	var (
		r                                         storage.SwapRecord
		pool                                      string
		direction, collectFeeMode, swapMode       int16
		id, amount0, amount1, amountIn, amountOut string
		amountLeft, tradingFee, protocolFee       string
		partnerFee, referralFee                   string
		reserveA, reserveB, timestamp             string
	)
	err := row.Scan(
		&id, &pool, &direction, &collectFeeMode, &swapMode, &r.HasReferral,
		&amount0, &amount1, &amountIn, &amountOut, &amountLeft,
		&tradingFee, &protocolFee, &partnerFee, &referralFee,
		&r.NextSqrtPrice, &reserveA, &reserveB, &timestamp,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("scan swap event row: %w", err)
	}

	if r.Pool, err = types.ParsePubkey(pool); err != nil {
		return nil, fmt.Errorf("scan swap event row: %w", err)
	}
	r.TradeDirection = types.TradeDirection(direction)
	r.CollectFeeMode = types.CollectFeeMode(collectFeeMode)
	r.SwapMode = uint8(swapMode)

	targets := []struct {
		dst *uint64
		src string
	}{
		{&r.ID, id}, {&r.Amount0, amount0}, {&r.Amount1, amount1},
		{&r.AmountIn, amountIn}, {&r.AmountOut, amountOut}, {&r.AmountLeft, amountLeft},
		{&r.TradingFee, tradingFee}, {&r.ProtocolFee, protocolFee},
		{&r.PartnerFee, partnerFee}, {&r.ReferralFee, referralFee},
		{&r.ReserveA, reserveA}, {&r.ReserveB, reserveB}, {&r.Timestamp, timestamp},
	}
	for _, t := range targets {
		if *t.dst, err = strconv.ParseUint(t.src, 10, 64); err != nil {
			return nil, fmt.Errorf("scan swap event row: %w", err)
		}
	}
	return &r, nil
}

func u64(v uint64) string {
	return strconv.FormatUint(v, 10)
}
