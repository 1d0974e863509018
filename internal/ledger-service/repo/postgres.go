package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/radieske/chess-market-poc/pkg/contracts/models"
)

// Postgres implementa o Ledger Store do torneio
type Postgres struct{ db *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// ListUsers retorna os usuários em ordem de criação; o primeiro é a identidade padrão do cliente
func (p *Postgres) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// UpsertUser cria ou substitui o usuário inteiro e incrementa a versão.
// expectedVersion > 0 exige que a versão atual seja essa (senão ErrVersionConflict).
func (p *Postgres) UpsertUser(ctx context.Context, u models.User, expectedVersion int64) (models.User, error) {
	const q = `
		INSERT INTO users (id, name, balance, is_admin, version)
		VALUES ($1, $2, $3, $4, 1)
		ON CONFLICT (id) DO UPDATE SET
		  name       = EXCLUDED.name,
		  balance    = EXCLUDED.balance,
		  is_admin   = EXCLUDED.is_admin,
		  version    = users.version + 1,
		  updated_at = NOW()
		WHERE $5::bigint = 0 OR users.version = $5::bigint
		RETURNING ` + userColumns
	saved, err := scanUser(p.db.QueryRowContext(ctx, q, u.ID, u.Name, u.Balance, u.IsAdmin, expectedVersion))
	return saved, notFound(err, ErrVersionConflict)
}

// UpdateUserBalance altera só o saldo. Mesma regra de versão de UpsertUser.
func (p *Postgres) UpdateUserBalance(ctx context.Context, userID string, balance float64, expectedVersion int64) (models.User, error) {
	const q = `
		UPDATE users SET balance = $2, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND ($3::bigint = 0 OR version = $3::bigint)
		RETURNING ` + userColumns
	u, err := scanUser(p.db.QueryRowContext(ctx, q, userID, balance, expectedVersion))
	if errors.Is(err, sql.ErrNoRows) {
		var exists bool
		if qerr := p.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists); qerr != nil {
			return models.User{}, qerr
		}
		if !exists {
			return models.User{}, ErrNotFound
		}
		return models.User{}, ErrVersionConflict
	}
	return u, err
}

// ListGames retorna as partidas mais recentes primeiro
func (p *Postgres) ListGames(ctx context.Context) ([]models.Game, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+gameColumns+` FROM games ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// InsertGame grava a partida. Id repetido não é erro: retorna a partida já
// gravada com created=false, para que o replay do mesmo comando seja idempotente.
func (p *Postgres) InsertGame(ctx context.Context, g models.Game) (models.Game, bool, error) {
	if g.Status == "" {
		g.Status = models.GameUpcoming
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	const q = `
		INSERT INTO games (id, player1, player2, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
		RETURNING ` + gameColumns
	saved, err := scanGame(p.db.QueryRowContext(ctx, q, g.ID, g.Player1, g.Player2, g.Status, g.CreatedAt))
	if errors.Is(err, sql.ErrNoRows) {
		existing, gerr := scanGame(p.db.QueryRowContext(ctx, `SELECT `+gameColumns+` FROM games WHERE id = $1`, g.ID))
		return existing, false, notFound(gerr, ErrNotFound)
	}
	if err != nil {
		return models.Game{}, false, err
	}
	return saved, true, nil
}

// ListBets retorna todas as apostas em ordem de criação
func (p *Postgres) ListBets(ctx context.Context) ([]models.Bet, error) {
	return p.queryBets(ctx, `SELECT `+betColumns+` FROM bets ORDER BY created_at, id`)
}

// ListBetsByGame retorna as apostas de uma partida em ordem de criação
func (p *Postgres) ListBetsByGame(ctx context.Context, gameID string) ([]models.Bet, error) {
	return p.queryBets(ctx, `SELECT `+betColumns+` FROM bets WHERE game_id = $1 ORDER BY created_at, id`, gameID)
}

func (p *Postgres) queryBets(ctx context.Context, q string, args ...any) ([]models.Bet, error) {
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Bet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// InsertBet grava a aposta, debita ActualCost do apostador e acumula a taxa
// na conta da plataforma, tudo na mesma transação.
// Replay do mesmo id retorna o estado atual sem debitar de novo.
func (p *Postgres) InsertBet(ctx context.Context, b models.Bet) (BetResult, error) {
	if b.BetType == "" {
		b.BetType = models.BetTypeHedged
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return BetResult{}, err
	}
	defer tx.Rollback()

	var res BetResult

	// Idempotência por id da aposta
	existing, err := scanBet(tx.QueryRowContext(ctx, `SELECT `+betColumns+` FROM bets WHERE id = $1`, b.ID))
	switch {
	case err == nil:
		res.Bet = existing
		if res.User, err = scanUser(tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, existing.UserID)); err != nil {
			return BetResult{}, notFound(err, ErrUnknownUser)
		}
		if res.Platform, err = p.platform(ctx, tx); err != nil {
			return BetResult{}, err
		}
		return res, tx.Commit()
	case !errors.Is(err, sql.ErrNoRows):
		return BetResult{}, err
	}

	var gameExists bool
	if err = tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM games WHERE id = $1)`, b.GameID).Scan(&gameExists); err != nil {
		return BetResult{}, err
	}
	if !gameExists {
		return BetResult{}, ErrUnknownGame
	}

	// Debita o apostador com lock na linha
	res.User, err = scanUser(tx.QueryRowContext(ctx, `
		UPDATE users SET balance = balance - $2, version = version + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING `+userColumns, b.UserID, b.ActualCost))
	if err != nil {
		return BetResult{}, notFound(err, ErrUnknownUser)
	}

	res.Bet, err = scanBet(tx.QueryRowContext(ctx, `
		INSERT INTO bets (`+betColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		RETURNING `+betColumns,
		b.ID, b.GameID, b.UserID, b.UserName,
		b.Amount, b.Condition, b.Certainty, b.BetType,
		b.YesTokens, b.NoTokens, b.ActualCost, b.PlatformFee, b.NetCost,
		b.CreatedAt,
	))
	if err != nil {
		return BetResult{}, err
	}

	// Acúmulo atômico: sem read-modify-write no cliente
	res.Platform, err = scanPlatform(tx.QueryRowContext(ctx, `
		INSERT INTO platform_account (id, balance, total_fees, transaction_count, version)
		VALUES (1, $1, $1, 1, 1)
		ON CONFLICT (id) DO UPDATE SET
		  balance           = platform_account.balance + EXCLUDED.balance,
		  total_fees        = platform_account.total_fees + EXCLUDED.total_fees,
		  transaction_count = platform_account.transaction_count + 1,
		  version           = platform_account.version + 1,
		  updated_at        = NOW()
		RETURNING `+platformColumns, b.PlatformFee))
	if err != nil {
		return BetResult{}, err
	}

	if err = tx.Commit(); err != nil {
		return BetResult{}, err
	}
	res.Created = true
	return res, nil
}

// GetPlatformAccount retorna a conta da plataforma; sem linha, retorna conta zerada
func (p *Postgres) GetPlatformAccount(ctx context.Context) (models.PlatformAccount, error) {
	return p.platform(ctx, p.db)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (p *Postgres) platform(ctx context.Context, q queryRower) (models.PlatformAccount, error) {
	a, err := scanPlatform(q.QueryRowContext(ctx, `SELECT `+platformColumns+` FROM platform_account WHERE id = 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return models.PlatformAccount{}, nil
	}
	return a, err
}

// SavePlatformAccount sobrescreve a conta (ajuste administrativo) e incrementa a versão
func (p *Postgres) SavePlatformAccount(ctx context.Context, a models.PlatformAccount) (models.PlatformAccount, error) {
	const q = `
		INSERT INTO platform_account (id, balance, total_fees, transaction_count, version)
		VALUES (1, $1, $2, $3, 1)
		ON CONFLICT (id) DO UPDATE SET
		  balance           = EXCLUDED.balance,
		  total_fees        = EXCLUDED.total_fees,
		  transaction_count = EXCLUDED.transaction_count,
		  version           = platform_account.version + 1,
		  updated_at        = NOW()
		RETURNING ` + platformColumns
	return scanPlatform(p.db.QueryRowContext(ctx, q, a.Balance, a.TotalFees, a.TransactionCount))
}
