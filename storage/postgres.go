package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"polymarket-copytrader/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// PostgresStore wraps PostgreSQL persistence with Redis caching. Postgres is
// the durable record; Redis fronts the hot paths (seen-trade membership,
// peak net worth).
type PostgresStore struct {
	pool  *pgxpool.Pool
	redis *redis.Client
}

const (
	seenSetKey      = "copytrader:seen"
	peakNetWorthKey = "copytrader:peak_net_worth"
)

// NewPostgres creates a PostgreSQL store with connection pooling and Redis
// cache, configured from POSTGRES_* / REDIS_* env vars.
func NewPostgres() (*PostgresStore, error) {
	host := getEnv("POSTGRES_HOST", "localhost")
	port := getEnv("POSTGRES_PORT", "5432")
	user := getEnv("POSTGRES_USER", "copytrader")
	password := getEnv("POSTGRES_PASSWORD", "copytrader123")
	dbname := getEnv("POSTGRES_DB", "copytrader")

	connStr := fmt.Sprintf("postgres://%s:%s@%s:%s/%s",
		user, password, host, port, dbname)

	config, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}

	// A single worker loop needs few connections; the operator API shares
	// the pool.
	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute
	config.HealthCheckPeriod = 30 * time.Second

	config.ConnConfig.RuntimeParams["statement_timeout"] = "30000"
	config.ConnConfig.RuntimeParams["lock_timeout"] = "10000"

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	redisHost := getEnv("REDIS_HOST", "localhost")
	redisPort := getEnv("REDIS_PORT", "6379")
	redisPassword := getEnv("REDIS_PASSWORD", "")

	rdb := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", redisHost, redisPort),
		Password:     redisPassword,
		DB:           0,
		PoolSize:     20,
		MinIdleConns: 2,
		MaxRetries:   3,
	})

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		pool.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}

	store := &PostgresStore{pool: pool, redis: rdb}
	if err := store.ensureSchema(context.Background()); err != nil {
		store.Close()
		return nil, fmt.Errorf("postgres: ensure schema: %w", err)
	}
	return store, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS seen_trades (
			trade_id TEXT PRIMARY KEY,
			seen_at  TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_seen_trades_seen_at ON seen_trades (seen_at);

		CREATE TABLE IF NOT EXISTS copy_trades (
			id           BIGSERIAL PRIMARY KEY,
			trade_id     TEXT NOT NULL,
			client_key   TEXT NOT NULL,
			trader       TEXT NOT NULL,
			condition_id TEXT NOT NULL,
			token_id     TEXT NOT NULL,
			outcome      TEXT NOT NULL DEFAULT '',
			title        TEXT NOT NULL DEFAULT '',
			side         TEXT NOT NULL,
			target_price DOUBLE PRECISION NOT NULL DEFAULT 0,
			target_usdc  DOUBLE PRECISION NOT NULL DEFAULT 0,
			our_notional DOUBLE PRECISION NOT NULL DEFAULT 0,
			our_price    DOUBLE PRECISION NOT NULL DEFAULT 0,
			our_size     DOUBLE PRECISION NOT NULL DEFAULT 0,
			status       TEXT NOT NULL,
			reason       TEXT NOT NULL DEFAULT '',
			order_id     TEXT NOT NULL DEFAULT '',
			attempts     INT NOT NULL DEFAULT 0,
			realized_pnl DOUBLE PRECISION NOT NULL DEFAULT 0,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_copy_trades_created ON copy_trades (created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_copy_trades_status ON copy_trades (status);

		CREATE TABLE IF NOT EXISTS my_positions (
			token_id     TEXT PRIMARY KEY,
			condition_id TEXT NOT NULL,
			outcome      TEXT NOT NULL DEFAULT '',
			title        TEXT NOT NULL DEFAULT '',
			size         DOUBLE PRECISION NOT NULL,
			avg_price    DOUBLE PRECISION NOT NULL,
			total_cost   DOUBLE PRECISION NOT NULL,
			opened_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS risk_events (
			id             BIGSERIAL PRIMARY KEY,
			state          TEXT NOT NULL,
			prev_state     TEXT NOT NULL,
			reason         TEXT NOT NULL DEFAULT '',
			net_worth      DOUBLE PRECISION NOT NULL DEFAULT 0,
			daily_loss_pct DOUBLE PRECISION NOT NULL DEFAULT 0,
			drawdown_pct   DOUBLE PRECISION NOT NULL DEFAULT 0,
			created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS bot_state (
			key   TEXT PRIMARY KEY,
			value DOUBLE PRECISION NOT NULL
		);
	`)
	return err
}

// Close releases database connections
func (s *PostgresStore) Close() error {
	if s.redis != nil {
		s.redis.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// IsTradeSeen checks the Redis set first and falls back to Postgres on a
// cache miss, repopulating the cache on a hit.
func (s *PostgresStore) IsTradeSeen(ctx context.Context, tradeID string) (bool, error) {
	cached, err := s.redis.SIsMember(ctx, seenSetKey, tradeID).Result()
	if err == nil && cached {
		return true, nil
	}
	if err != nil {
		log.Printf("[Storage] Redis seen-check failed, falling back to Postgres: %v", err)
	}

	var exists bool
	err = s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM seen_trades WHERE trade_id = $1)`, tradeID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("seen check: %w", err)
	}
	if exists {
		s.redis.SAdd(ctx, seenSetKey, tradeID)
	}
	return exists, nil
}

// MarkTradesSeen durably records trade IDs, then mirrors them into Redis.
func (s *PostgresStore) MarkTradesSeen(ctx context.Context, tradeIDs []string, seenAt time.Time) error {
	if len(tradeIDs) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, id := range tradeIDs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO seen_trades (trade_id, seen_at) VALUES ($1, $2)
			ON CONFLICT (trade_id) DO NOTHING
		`, id, seenAt); err != nil {
			return fmt.Errorf("mark seen %s: %w", id, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	members := make([]interface{}, len(tradeIDs))
	for i, id := range tradeIDs {
		members[i] = id
	}
	if err := s.redis.SAdd(ctx, seenSetKey, members...).Err(); err != nil {
		log.Printf("[Storage] Redis SAdd failed (postgres is authoritative): %v", err)
	}
	return nil
}

// LoadSeenTrades returns IDs seen since the cutoff, for warm-starting the
// detector after a restart.
func (s *PostgresStore) LoadSeenTrades(ctx context.Context, since time.Time) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT trade_id FROM seen_trades WHERE seen_at >= $1`, since)
	if err != nil {
		return nil, fmt.Errorf("load seen trades: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// PruneSeenTrades drops entries older than the cutoff and resets the Redis
// mirror so it cannot serve pruned IDs.
func (s *PostgresStore) PruneSeenTrades(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM seen_trades WHERE seen_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("prune seen trades: %w", err)
	}
	if tag.RowsAffected() > 0 {
		if err := s.redis.Del(ctx, seenSetKey).Err(); err != nil {
			log.Printf("[Storage] Redis seen-set reset failed: %v", err)
		}
	}
	return tag.RowsAffected(), nil
}

// SaveCopyTrade appends one audit-log record.
func (s *PostgresStore) SaveCopyTrade(ctx context.Context, rec CopyTradeRecord) error {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO copy_trades (
			trade_id, client_key, trader, condition_id, token_id, outcome, title,
			side, target_price, target_usdc, our_notional, our_price, our_size,
			status, reason, order_id, attempts, realized_pnl, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
	`, rec.TradeID, rec.ClientKey, rec.Trader, rec.ConditionID, rec.TokenID,
		rec.Outcome, rec.Title, rec.Side, rec.TargetPrice, rec.TargetUSDC,
		rec.OurNotional, rec.OurPrice, rec.OurSize, rec.Status, rec.Reason,
		rec.OrderID, rec.Attempts, rec.RealizedPnL, createdAt)
	if err != nil {
		return fmt.Errorf("save copy trade: %w", err)
	}
	return nil
}

// ListCopyTrades returns the newest audit-log records.
func (s *PostgresStore) ListCopyTrades(ctx context.Context, limit int) ([]CopyTradeRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, trade_id, client_key, trader, condition_id, token_id, outcome,
			title, side, target_price, target_usdc, our_notional, our_price,
			our_size, status, reason, order_id, attempts, realized_pnl, created_at
		FROM copy_trades ORDER BY created_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list copy trades: %w", err)
	}
	defer rows.Close()

	var records []CopyTradeRecord
	for rows.Next() {
		var rec CopyTradeRecord
		if err := rows.Scan(&rec.ID, &rec.TradeID, &rec.ClientKey, &rec.Trader,
			&rec.ConditionID, &rec.TokenID, &rec.Outcome, &rec.Title, &rec.Side,
			&rec.TargetPrice, &rec.TargetUSDC, &rec.OurNotional, &rec.OurPrice,
			&rec.OurSize, &rec.Status, &rec.Reason, &rec.OrderID, &rec.Attempts,
			&rec.RealizedPnL, &rec.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// CountOrdersSince counts executed orders (filled or dry-run) after the
// cutoff, feeding the rate-limit checks.
func (s *PostgresStore) CountOrdersSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM copy_trades
		WHERE status IN ('filled', 'dry_run') AND created_at >= $1
	`, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count orders: %w", err)
	}
	return count, nil
}

// RealizedPnLSince sums realized PnL recorded after the cutoff.
func (s *PostgresStore) RealizedPnLSince(ctx context.Context, since time.Time) (float64, error) {
	var pnl float64
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(realized_pnl), 0) FROM copy_trades
		WHERE created_at >= $1
	`, since).Scan(&pnl)
	if err != nil {
		return 0, fmt.Errorf("sum realized pnl: %w", err)
	}
	return pnl, nil
}

// ApplyFill upserts a buy fill into my_positions, accumulating size and
// recomputing the average price.
func (s *PostgresStore) ApplyFill(ctx context.Context, pos models.Position) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO my_positions (token_id, condition_id, outcome, title, size, avg_price, total_cost, opened_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		ON CONFLICT (token_id) DO UPDATE SET
			size = my_positions.size + EXCLUDED.size,
			avg_price = (my_positions.total_cost + EXCLUDED.total_cost) / NULLIF(my_positions.size + EXCLUDED.size, 0),
			total_cost = my_positions.total_cost + EXCLUDED.total_cost,
			updated_at = NOW()
	`, pos.TokenID, pos.ConditionID, pos.Outcome, pos.Title, pos.Size, pos.AvgPrice, pos.CostBasis)
	if err != nil {
		return fmt.Errorf("apply fill: %w", err)
	}
	return nil
}

// ReducePosition removes sold size and returns the average entry price so the
// caller can compute realized PnL. Positions that drop below dust are deleted.
func (s *PostgresStore) ReducePosition(ctx context.Context, tokenID string, size float64) (float64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	var curSize, avgPrice float64
	err = tx.QueryRow(ctx,
		`SELECT size, avg_price FROM my_positions WHERE token_id = $1 FOR UPDATE`,
		tokenID).Scan(&curSize, &avgPrice)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("no position for token %s", tokenID)
	}
	if err != nil {
		return 0, fmt.Errorf("load position: %w", err)
	}

	remaining := curSize - size
	if remaining < 0.01 {
		if _, err := tx.Exec(ctx,
			`DELETE FROM my_positions WHERE token_id = $1`, tokenID); err != nil {
			return 0, fmt.Errorf("close position: %w", err)
		}
	} else {
		if _, err := tx.Exec(ctx, `
			UPDATE my_positions
			SET size = $2, total_cost = $2 * avg_price, updated_at = NOW()
			WHERE token_id = $1
		`, tokenID, remaining); err != nil {
			return 0, fmt.Errorf("reduce position: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return avgPrice, nil
}

// GetPosition returns one position or nil when absent.
func (s *PostgresStore) GetPosition(ctx context.Context, tokenID string) (*models.Position, error) {
	var pos models.Position
	err := s.pool.QueryRow(ctx, `
		SELECT token_id, condition_id, outcome, title, size, avg_price, total_cost, opened_at, updated_at
		FROM my_positions WHERE token_id = $1
	`, tokenID).Scan(&pos.TokenID, &pos.ConditionID, &pos.Outcome, &pos.Title,
		&pos.Size, &pos.AvgPrice, &pos.CostBasis, &pos.OpenedAt, &pos.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get position: %w", err)
	}
	return &pos, nil
}

// ListPositions returns all open positions, newest activity first.
func (s *PostgresStore) ListPositions(ctx context.Context) ([]models.Position, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT token_id, condition_id, outcome, title, size, avg_price, total_cost, opened_at, updated_at
		FROM my_positions ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	defer rows.Close()

	var positions []models.Position
	for rows.Next() {
		var pos models.Position
		if err := rows.Scan(&pos.TokenID, &pos.ConditionID, &pos.Outcome, &pos.Title,
			&pos.Size, &pos.AvgPrice, &pos.CostBasis, &pos.OpenedAt, &pos.UpdatedAt); err != nil {
			return nil, err
		}
		positions = append(positions, pos)
	}
	return positions, rows.Err()
}

// SaveRiskEvent appends a breaker transition.
func (s *PostgresStore) SaveRiskEvent(ctx context.Context, ev RiskEvent) error {
	createdAt := ev.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO risk_events (state, prev_state, reason, net_worth, daily_loss_pct, drawdown_pct, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, ev.State, ev.PrevState, ev.Reason, ev.NetWorth, ev.DailyLossPct, ev.DrawdownPct, createdAt)
	if err != nil {
		return fmt.Errorf("save risk event: %w", err)
	}
	return nil
}

// ListRiskEvents returns the newest breaker transitions.
func (s *PostgresStore) ListRiskEvents(ctx context.Context, limit int) ([]RiskEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, state, prev_state, reason, net_worth, daily_loss_pct, drawdown_pct, created_at
		FROM risk_events ORDER BY created_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list risk events: %w", err)
	}
	defer rows.Close()

	var events []RiskEvent
	for rows.Next() {
		var ev RiskEvent
		if err := rows.Scan(&ev.ID, &ev.State, &ev.PrevState, &ev.Reason,
			&ev.NetWorth, &ev.DailyLossPct, &ev.DrawdownPct, &ev.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// GetPeakNetWorth reads the tracked peak, Redis first then bot_state.
func (s *PostgresStore) GetPeakNetWorth(ctx context.Context) (float64, error) {
	if val, err := s.redis.Get(ctx, peakNetWorthKey).Float64(); err == nil {
		return val, nil
	}

	var value float64
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM bot_state WHERE key = 'peak_net_worth'`).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get peak net worth: %w", err)
	}
	s.redis.Set(ctx, peakNetWorthKey, value, 0)
	return value, nil
}

// SetPeakNetWorth persists the peak and refreshes the cache.
func (s *PostgresStore) SetPeakNetWorth(ctx context.Context, value float64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO bot_state (key, value) VALUES ('peak_net_worth', $1)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`, value)
	if err != nil {
		return fmt.Errorf("set peak net worth: %w", err)
	}
	if err := s.redis.Set(ctx, peakNetWorthKey, value, 0).Err(); err != nil {
		log.Printf("[Storage] Redis peak cache update failed: %v", err)
	}
	return nil
}

// Stats aggregates operator-facing counters for the status endpoint.
func (s *PostgresStore) Stats(ctx context.Context) (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	rows, err := s.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM copy_trades GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	defer rows.Close()

	byStatus := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		byStatus[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	stats["trades_by_status"] = byStatus

	var positionCount int
	var totalCost float64
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(SUM(total_cost), 0) FROM my_positions`).
		Scan(&positionCount, &totalCost); err != nil {
		return nil, fmt.Errorf("stats positions: %w", err)
	}
	stats["open_positions"] = positionCount
	stats["open_cost_basis"] = totalCost

	midnight := time.Now().UTC().Truncate(24 * time.Hour)
	pnlToday, err := s.RealizedPnLSince(ctx, midnight)
	if err != nil {
		return nil, err
	}
	stats["realized_pnl_today"] = pnlToday

	return stats, nil
}
