package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/magefree/battle-server-go/internal/battle"
	"go.uber.org/zap"
)

const schema = `
CREATE TABLE IF NOT EXISTS battle_records (
	game_id           TEXT        NOT NULL,
	battle_id         TEXT        NOT NULL,
	territory         TEXT        NOT NULL,
	battle_type       TEXT        NOT NULL,
	attacker          TEXT        NOT NULL,
	defender          TEXT        NOT NULL DEFAULT '',
	attacker_lost_tuv INTEGER     NOT NULL DEFAULT 0,
	defender_lost_tuv INTEGER     NOT NULL DEFAULT 0,
	result            TEXT        NOT NULL,
	recorded_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (game_id, battle_id)
);
CREATE INDEX IF NOT EXISTS battle_records_attacker_idx ON battle_records (game_id, attacker);
`

const upsertRecord = `
INSERT INTO battle_records
	(game_id, battle_id, territory, battle_type, attacker, defender, attacker_lost_tuv, defender_lost_tuv, result, recorded_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (game_id, battle_id) DO UPDATE SET
	defender = EXCLUDED.defender,
	attacker_lost_tuv = EXCLUDED.attacker_lost_tuv,
	defender_lost_tuv = EXCLUDED.defender_lost_tuv,
	result = EXCLUDED.result,
	recorded_at = EXCLUDED.recorded_at`

const selectRecords = `
SELECT game_id, battle_id, territory, battle_type, attacker, defender,
	attacker_lost_tuv, defender_lost_tuv, result, recorded_at
FROM battle_records`

// StoredRecord is a finished battle record as persisted.
type StoredRecord struct {
	GameID     string
	RecordedAt time.Time
	battle.BattleRecord
}

// PlayerLosses is the TUV a player lost over a game, as attacker and as defender.
type PlayerLosses struct {
	Player     string
	AsAttacker int
	AsDefender int
	Battles    int
}

// RecordRepository persists battle records in Postgres.
type RecordRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewRecordRepository connects to the database at databaseURL.
func NewRecordRepository(ctx context.Context, databaseURL string, logger *zap.Logger) (*RecordRepository, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	stat := pool.Stat()
	logger.Info("database connection pool initialized",
		zap.Int32("total_conns", stat.TotalConns()),
		zap.Int32("idle_conns", stat.IdleConns()),
	)
	return &RecordRepository{pool: pool, logger: logger}, nil
}

// Close releases the pool.
func (r *RecordRepository) Close() {
	r.pool.Close()
}

// Migrate creates the record table if it is missing.
func (r *RecordRepository) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// SaveRecords stores the finished records of a game in one transaction.
// Unfinished records are skipped; records already stored are updated.
func (r *RecordRepository) SaveRecords(ctx context.Context, gameID string, records []battle.BattleRecord) error {
	now := time.Now().UTC()
	batch := &pgx.Batch{}
	for _, rec := range records {
		if !rec.Finished {
			continue
		}
		batch.Queue(upsertRecord, recordArgs(gameID, rec, now)...)
	}
	if batch.Len() == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to store battle records: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	r.logger.Debug("battle records stored", zap.String("game_id", gameID), zap.Int("count", batch.Len()))
	return nil
}

// Sink returns a record sink bound to one game, for BattleDelegate.SetRecordSink.
func (r *RecordRepository) Sink(gameID string) battle.RecordSink {
	return func(ctx context.Context, records []battle.BattleRecord) error {
		return r.SaveRecords(ctx, gameID, records)
	}
}

// ListRecords returns the records of one game in the order they were stored.
func (r *RecordRepository) ListRecords(ctx context.Context, gameID string) ([]StoredRecord, error) {
	return r.query(ctx, selectRecords+" WHERE game_id = $1 ORDER BY recorded_at, territory, battle_id", gameID)
}

// ListAll returns every stored record.
func (r *RecordRepository) ListAll(ctx context.Context) ([]StoredRecord, error) {
	return r.query(ctx, selectRecords+" ORDER BY game_id, recorded_at, territory, battle_id")
}

func (r *RecordRepository) query(ctx context.Context, sql string, args ...any) ([]StoredRecord, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query battle records: %w", err)
	}
	defer rows.Close()

	var out []StoredRecord
	for rows.Next() {
		var row recordRow
		if err := rows.Scan(&row.gameID, &row.battleID, &row.territory, &row.battleType, &row.attacker,
			&row.defender, &row.attackerLost, &row.defenderLost, &row.result, &row.recordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan battle record: %w", err)
		}
		rec, err := row.record()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read battle records: %w", err)
	}
	return out, nil
}

// Losses sums the TUV each player lost in a game.
func (r *RecordRepository) Losses(ctx context.Context, gameID string) ([]PlayerLosses, error) {
	rows, err := r.pool.Query(ctx, `
SELECT player, SUM(as_attacker), SUM(as_defender), COUNT(*) FROM (
	SELECT attacker AS player, attacker_lost_tuv AS as_attacker, 0 AS as_defender
	FROM battle_records WHERE game_id = $1
	UNION ALL
	SELECT defender, 0, defender_lost_tuv
	FROM battle_records WHERE game_id = $1 AND defender <> ''
) losses GROUP BY player ORDER BY player`, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to query losses: %w", err)
	}
	defer rows.Close()

	var out []PlayerLosses
	for rows.Next() {
		var l PlayerLosses
		var battles int64
		if err := rows.Scan(&l.Player, &l.AsAttacker, &l.AsDefender, &battles); err != nil {
			return nil, fmt.Errorf("failed to scan losses: %w", err)
		}
		l.Battles = int(battles)
		out = append(out, l)
	}
	return out, rows.Err()
}

// DeleteGame removes every record of a game.
func (r *RecordRepository) DeleteGame(ctx context.Context, gameID string) error {
	if _, err := r.pool.Exec(ctx, "DELETE FROM battle_records WHERE game_id = $1", gameID); err != nil {
		return fmt.Errorf("failed to delete battle records: %w", err)
	}
	return nil
}

type recordRow struct {
	gameID       string
	battleID     string
	territory    string
	battleType   string
	attacker     string
	defender     string
	attackerLost int
	defenderLost int
	result       string
	recordedAt   time.Time
}

func recordArgs(gameID string, rec battle.BattleRecord, at time.Time) []any {
	return []any{
		gameID,
		rec.BattleID.String(),
		rec.Territory,
		rec.Type.String(),
		rec.Attacker,
		rec.Defender,
		rec.AttackerLostTUV,
		rec.DefenderLostTUV,
		rec.Result.String(),
		at,
	}
}

func (row recordRow) record() (StoredRecord, error) {
	id, err := uuid.Parse(row.battleID)
	if err != nil {
		return StoredRecord{}, fmt.Errorf("battle record %q: %w", row.battleID, err)
	}
	typ, ok := battle.ParseBattleType(row.battleType)
	if !ok {
		return StoredRecord{}, fmt.Errorf("battle record %s: unknown battle type %q", row.battleID, row.battleType)
	}
	result, ok := battle.ParseResultDescription(row.result)
	if !ok {
		return StoredRecord{}, fmt.Errorf("battle record %s: unknown result %q", row.battleID, row.result)
	}
	return StoredRecord{
		GameID:     row.gameID,
		RecordedAt: row.recordedAt,
		BattleRecord: battle.BattleRecord{
			BattleID:        id,
			Territory:       row.territory,
			Type:            typ,
			Attacker:        row.attacker,
			Defender:        row.defender,
			AttackerLostTUV: row.attackerLost,
			DefenderLostTUV: row.defenderLost,
			Result:          result,
			Finished:        true,
		},
	}, nil
}
