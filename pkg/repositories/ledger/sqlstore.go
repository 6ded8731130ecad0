package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fadedpez/wingo/pkg/db/migrations"
	"github.com/fadedpez/wingo/pkg/entities"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const (
	betColumns         = `id, user_id, game_type, duration_seconds, period, bet_kind, bet_value, stake, status, result, payout, created_at, settled_at`
	outcomeColumns     = `game_type, duration_seconds, period, number, colors, created_at`
	transactionColumns = `id, user_id, amount, type, reference_id, description, created_at, balance_after`
)

// sqlStore is the database/sql implementation shared by the SQLite and
// Postgres repositories. Queries are written with ? placeholders and rebound
// per dialect.
type sqlStore struct {
	db      *sql.DB
	dialect migrations.Dialect
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// q rewrites ? placeholders to $n for Postgres
func (s *sqlStore) q(query string) string {
	if s.dialect != migrations.DialectPostgres {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// forUpdate is the row lock suffix. SQLite serializes writers on its single
// connection so it needs none.
func (s *sqlStore) forUpdate() string {
	if s.dialect == migrations.DialectPostgres {
		return " FOR UPDATE"
	}
	return ""
}

func (s *sqlStore) timeArg(t time.Time) interface{} {
	if s.dialect == migrations.DialectPostgres {
		return t.UTC()
	}
	return formatTime(t)
}

// inPeriods builds a membership predicate on the period column
func (s *sqlStore) inPeriods(periods []string) (string, []interface{}) {
	if s.dialect == migrations.DialectPostgres {
		return "period = ANY(?)", []interface{}{pq.Array(periods)}
	}

	args := make([]interface{}, len(periods))
	for i, p := range periods {
		args[i] = p
	}
	return "period IN (" + strings.TrimSuffix(strings.Repeat("?,", len(periods)), ",") + ")", args
}

func (s *sqlStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing transaction: %w", err)
	}
	return nil
}

// GetWallet retrieves a wallet by user ID
func (s *sqlStore) GetWallet(ctx context.Context, userID string) (*entities.Wallet, error) {
	var wallet entities.Wallet
	var updatedAt string

	err := s.db.QueryRowContext(ctx, s.q(`SELECT user_id, balance, updated_at FROM wallets WHERE user_id = ?`), userID).Scan(
		&wallet.UserID,
		&wallet.Balance,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("error getting wallet: %w", err)
	}

	if wallet.LastUpdated, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &wallet, nil
}

// CreateWallet creates a wallet unless one already exists
func (s *sqlStore) CreateWallet(ctx context.Context, userID string, openingBalance int64) (*entities.Wallet, error) {
	if openingBalance < 0 {
		return nil, ErrInsufficientFunds
	}

	now := s.timeArg(time.Now())
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO wallets (user_id, balance, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id) DO NOTHING
	`), userID, openingBalance, now, now)
	if err != nil {
		return nil, fmt.Errorf("error creating wallet: %w", err)
	}

	return s.GetWallet(ctx, userID)
}

// AdjustBalance applies delta and records the transaction
func (s *sqlStore) AdjustBalance(ctx context.Context, userID string, delta int64, txType entities.TransactionType, referenceID, description string) (int64, error) {
	var balance int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		balance, err = s.adjustTx(ctx, tx, userID, delta, txType, referenceID, description, time.Now())
		return err
	})
	return balance, err
}

// adjustTx locks the wallet row, applies delta and appends the transaction
func (s *sqlStore) adjustTx(ctx context.Context, tx *sql.Tx, userID string, delta int64, txType entities.TransactionType, referenceID, description string, now time.Time) (int64, error) {
	var balance int64
	err := tx.QueryRowContext(ctx, s.q(`SELECT balance FROM wallets WHERE user_id = ?`+s.forUpdate()), userID).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrWalletNotFound
		}
		return 0, fmt.Errorf("error reading balance: %w", err)
	}
	if balance+delta < 0 {
		return balance, ErrInsufficientFunds
	}

	result, err := tx.ExecContext(ctx, s.q(`
		UPDATE wallets
		SET balance = balance + ?,
			updated_at = ?
		WHERE user_id = ? AND balance + ? >= 0
	`), delta, s.timeArg(now), userID, delta)
	if err != nil {
		return 0, fmt.Errorf("error updating balance: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("error getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return balance, ErrInsufficientFunds
	}

	newBalance := balance + delta
	_, err = tx.ExecContext(ctx, s.q(`
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`), uuid.New().String(), userID, delta, string(txType), referenceID, description, s.timeArg(now), newBalance)
	if err != nil {
		return 0, fmt.Errorf("error adding transaction: %w", err)
	}

	return newBalance, nil
}

// GetTransactions retrieves recent transactions for a user, newest first
func (s *sqlStore) GetTransactions(ctx context.Context, userID string, limit int) ([]*entities.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE user_id = ? ORDER BY created_at DESC`
	args := []interface{}{userID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("error getting transactions: %w", err)
	}
	defer rows.Close()

	transactions := make([]*entities.Transaction, 0)
	for rows.Next() {
		var t entities.Transaction
		var txType, timestamp string
		var referenceID, description sql.NullString

		if err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &txType, &referenceID, &description, &timestamp, &t.BalanceAfter); err != nil {
			return nil, fmt.Errorf("error scanning transaction: %w", err)
		}
		t.Type = entities.TransactionType(txType)
		t.ReferenceID = referenceID.String
		t.Description = description.String
		if t.Timestamp, err = parseTime(timestamp); err != nil {
			return nil, err
		}
		transactions = append(transactions, &t)
	}

	return transactions, rows.Err()
}

// CreateOutcome inserts an outcome unless the round already has one
func (s *sqlStore) CreateOutcome(ctx context.Context, outcome *entities.Outcome) error {
	if outcome.CreatedAt.IsZero() {
		outcome.CreatedAt = time.Now()
	}

	result, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO outcomes (`+outcomeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (game_type, duration_seconds, period) DO NOTHING
	`), string(outcome.GameType), outcome.Mode().DurationSeconds(), outcome.Period, outcome.Number,
		entities.EncodeColors(outcome.Colors), s.timeArg(outcome.CreatedAt))
	if err != nil {
		return fmt.Errorf("error creating outcome: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrOutcomeExists
	}
	return nil
}

// GetOutcome retrieves the outcome of a round
func (s *sqlStore) GetOutcome(ctx context.Context, mode entities.Mode, period string) (*entities.Outcome, error) {
	row := s.db.QueryRowContext(ctx, s.q(`
		SELECT `+outcomeColumns+` FROM outcomes
		WHERE game_type = ? AND duration_seconds = ? AND period = ?
	`), string(mode.GameType), mode.DurationSeconds(), period)

	outcome, err := scanOutcome(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOutcomeNotFound
		}
		return nil, fmt.Errorf("error getting outcome: %w", err)
	}
	return outcome, nil
}

// ListOutcomes returns the latest outcomes for a mode, newest first
func (s *sqlStore) ListOutcomes(ctx context.Context, mode entities.Mode, limit int) ([]*entities.Outcome, error) {
	query := `SELECT ` + outcomeColumns + ` FROM outcomes WHERE game_type = ? AND duration_seconds = ? ORDER BY period DESC`
	args := []interface{}{string(mode.GameType), mode.DurationSeconds()}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("error listing outcomes: %w", err)
	}
	defer rows.Close()

	outcomes := make([]*entities.Outcome, 0)
	for rows.Next() {
		outcome, err := scanOutcome(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning outcome: %w", err)
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, rows.Err()
}

// PlaceBet debits the stake and stores the bet in one transaction
func (s *sqlStore) PlaceBet(ctx context.Context, bet *entities.Bet) (int64, error) {
	if bet.Stake <= 0 {
		return 0, ErrInvalidStake
	}
	prepareBet(bet)

	var balance int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, s.q(`SELECT COUNT(*) FROM bets WHERE id = ?`), bet.ID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("error checking bet: %w", err)
		}
		if exists > 0 {
			return ErrDuplicateBet
		}

		balance, err = s.adjustTx(ctx, tx, bet.UserID, -bet.Stake, entities.TransactionTypeBet, bet.ID, betDescription(bet), bet.CreatedAt)
		if err != nil {
			return err
		}

		// a concurrent insert of the same ID can pass the check above
		result, err := tx.ExecContext(ctx, s.q(`
			INSERT INTO bets (`+betColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO NOTHING
		`), bet.ID, bet.UserID, string(bet.GameType), bet.Mode().DurationSeconds(), bet.Period,
			string(bet.Selection.Kind), bet.Selection.Value(), bet.Stake, string(bet.Status), nil, 0,
			s.timeArg(bet.CreatedAt), nil)
		if err != nil {
			return fmt.Errorf("error inserting bet: %w", err)
		}
		inserted, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("error getting rows affected: %w", err)
		}
		if inserted == 0 {
			return ErrDuplicateBet
		}
		return nil
	})
	return balance, err
}

// UnsettledBetsFor returns the unsettled bets of one round
func (s *sqlStore) UnsettledBetsFor(ctx context.Context, mode entities.Mode, period string) ([]*entities.Bet, error) {
	return s.queryBets(ctx, `
		SELECT `+betColumns+` FROM bets
		WHERE game_type = ? AND duration_seconds = ? AND period = ? AND status = ?
		ORDER BY created_at, id
	`, string(mode.GameType), mode.DurationSeconds(), period, string(entities.BetStatusUnsettled))
}

// AllUnsettledBets returns unsettled bets of any age, oldest first
func (s *sqlStore) AllUnsettledBets(ctx context.Context, limit int) ([]*entities.Bet, error) {
	query := `SELECT ` + betColumns + ` FROM bets WHERE status = ? ORDER BY created_at, id`
	args := []interface{}{string(entities.BetStatusUnsettled)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryBets(ctx, query, args...)
}

// MarkSettled settles a bet once and credits any payout in the same
// transaction
func (s *sqlStore) MarkSettled(ctx context.Context, betID string, result entities.BetResult, payout int64) (bool, error) {
	settled := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, s.q(`SELECT `+betColumns+` FROM bets WHERE id = ?`+s.forUpdate()), betID)
		bet, err := scanBet(row)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrBetNotFound
			}
			return fmt.Errorf("error reading bet: %w", err)
		}
		if bet.IsSettled() {
			return nil
		}

		now := time.Now()
		res, err := tx.ExecContext(ctx, s.q(`
			UPDATE bets
			SET status = ?, result = ?, payout = ?, settled_at = ?
			WHERE id = ? AND status = ?
		`), string(entities.BetStatusSettled), string(result), payout, s.timeArg(now),
			betID, string(entities.BetStatusUnsettled))
		if err != nil {
			return fmt.Errorf("error settling bet: %w", err)
		}
		rowsAffected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("error getting rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return nil
		}

		if payout > 0 {
			if _, err := s.adjustTx(ctx, tx, bet.UserID, payout, entities.TransactionTypePayout, bet.ID, payoutDescription(bet), now); err != nil {
				return fmt.Errorf("error crediting payout: %w", err)
			}
		}

		settled = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return settled, nil
}

// GetBetsByUser retrieves a player's bets, newest first
func (s *sqlStore) GetBetsByUser(ctx context.Context, userID string, limit int) ([]*entities.Bet, error) {
	query := `SELECT ` + betColumns + ` FROM bets WHERE user_id = ? ORDER BY created_at DESC, id DESC`
	args := []interface{}{userID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryBets(ctx, query, args...)
}

// PlayerStatistics aggregates settled bets per player
func (s *sqlStore) PlayerStatistics(ctx context.Context, gameType entities.GameType) ([]*entities.PlayerStatistics, error) {
	query := `
		SELECT user_id,
		       COUNT(*),
		       SUM(CASE WHEN result = 'win' THEN 1 ELSE 0 END),
		       SUM(CASE WHEN result = 'win' THEN 0 ELSE 1 END),
		       SUM(stake),
		       SUM(payout),
		       MAX(settled_at)
		FROM bets
		WHERE status = ?`
	args := []interface{}{string(entities.BetStatusSettled)}
	if gameType != "" {
		query += ` AND game_type = ?`
		args = append(args, string(gameType))
	}
	query += ` GROUP BY user_id`

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get player statistics: %w", err)
	}
	defer rows.Close()

	stats := make([]*entities.PlayerStatistics, 0)
	for rows.Next() {
		st := &entities.PlayerStatistics{GameType: gameType}
		var lastUpdated sql.NullString
		if err := rows.Scan(&st.PlayerID, &st.BetsPlaced, &st.Wins, &st.Losses, &st.TotalStaked, &st.TotalWinnings, &lastUpdated); err != nil {
			return nil, fmt.Errorf("failed to scan player statistics: %w", err)
		}
		if lastUpdated.Valid {
			if st.LastUpdated, err = parseTime(lastUpdated.String); err != nil {
				return nil, err
			}
		}
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	entities.SortByNetProfit(stats)
	return stats, nil
}

// DistinctPeriods lists every period referenced by outcomes or bets
func (s *sqlStore) DistinctPeriods(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT period FROM outcomes
		UNION
		SELECT period FROM bets
		ORDER BY period
	`)
	if err != nil {
		return nil, fmt.Errorf("error listing periods: %w", err)
	}
	defer rows.Close()

	periods := make([]string, 0)
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("error scanning period: %w", err)
		}
		periods = append(periods, p)
	}
	return periods, rows.Err()
}

// DeletePeriods removes outcomes and bets for the given periods, refunding
// unsettled stakes in the same transaction
func (s *sqlStore) DeletePeriods(ctx context.Context, periods []string) (int, int, error) {
	if len(periods) == 0 {
		return 0, 0, nil
	}

	var deletedOutcomes, deletedBets int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		predicate, args := s.inPeriods(periods)

		rows, err := tx.QueryContext(ctx, s.q(`SELECT `+betColumns+` FROM bets WHERE status = ? AND `+predicate),
			append([]interface{}{string(entities.BetStatusUnsettled)}, args...)...)
		if err != nil {
			return fmt.Errorf("error finding stale bets: %w", err)
		}
		var refunds []*entities.Bet
		for rows.Next() {
			bet, err := scanBet(rows)
			if err != nil {
				rows.Close()
				return fmt.Errorf("error scanning stale bet: %w", err)
			}
			refunds = append(refunds, bet)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		now := time.Now()
		for _, bet := range refunds {
			if _, err := s.adjustTx(ctx, tx, bet.UserID, bet.Stake, entities.TransactionTypeRefund, bet.ID, refundDescription(bet), now); err != nil {
				return fmt.Errorf("error refunding bet %s: %w", bet.ID, err)
			}
		}

		res, err := tx.ExecContext(ctx, s.q(`DELETE FROM outcomes WHERE `+predicate), args...)
		if err != nil {
			return fmt.Errorf("error deleting outcomes: %w", err)
		}
		if deletedOutcomes, err = res.RowsAffected(); err != nil {
			return fmt.Errorf("error getting rows affected: %w", err)
		}

		res, err = tx.ExecContext(ctx, s.q(`DELETE FROM bets WHERE `+predicate), args...)
		if err != nil {
			return fmt.Errorf("error deleting bets: %w", err)
		}
		if deletedBets, err = res.RowsAffected(); err != nil {
			return fmt.Errorf("error getting rows affected: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return int(deletedOutcomes), int(deletedBets), nil
}

// Ping checks the database connection
func (s *sqlStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *sqlStore) Close() error {
	return s.db.Close()
}

func (s *sqlStore) queryBets(ctx context.Context, query string, args ...interface{}) ([]*entities.Bet, error) {
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("error querying bets: %w", err)
	}
	defer rows.Close()

	bets := make([]*entities.Bet, 0)
	for rows.Next() {
		bet, err := scanBet(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning bet: %w", err)
		}
		bets = append(bets, bet)
	}
	return bets, rows.Err()
}

func scanBet(row rowScanner) (*entities.Bet, error) {
	var b entities.Bet
	var gameType, kind, value, status, createdAt string
	var durationSeconds int
	var result, settledAt sql.NullString

	err := row.Scan(&b.ID, &b.UserID, &gameType, &durationSeconds, &b.Period, &kind, &value,
		&b.Stake, &status, &result, &b.Payout, &createdAt, &settledAt)
	if err != nil {
		return nil, err
	}

	b.GameType = entities.GameType(gameType)
	b.Duration = time.Duration(durationSeconds) * time.Second
	b.Status = entities.BetStatus(status)
	b.Result = entities.BetResult(result.String)
	if b.Selection, err = entities.ParseSelection(kind, value); err != nil {
		return nil, fmt.Errorf("bet %s: %w", b.ID, err)
	}
	if b.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if settledAt.Valid {
		t, err := parseTime(settledAt.String)
		if err != nil {
			return nil, err
		}
		b.SettledAt = &t
	}
	return &b, nil
}

func scanOutcome(row rowScanner) (*entities.Outcome, error) {
	var o entities.Outcome
	var gameType, colors, createdAt string
	var durationSeconds int

	if err := row.Scan(&gameType, &durationSeconds, &o.Period, &o.Number, &colors, &createdAt); err != nil {
		return nil, err
	}

	o.GameType = entities.GameType(gameType)
	o.Duration = time.Duration(durationSeconds) * time.Second
	o.Colors = entities.DecodeColors(colors)

	var err error
	if o.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &o, nil
}
