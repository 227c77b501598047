package postgres

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"

	"lending-adapters/internal/domain"
	"lending-adapters/internal/observability"
	"lending-adapters/internal/storage"
)

// MovementStore implements storage.MovementStore using PostgreSQL.
type MovementStore struct {
	pool *Pool
}

// NewMovementStore creates a new MovementStore.
func NewMovementStore(pool *Pool) *MovementStore {
	return &MovementStore{pool: pool}
}

// Compile-time interface check.
var _ storage.MovementStore = (*MovementStore)(nil)

const insertMovementQuery = `
	INSERT INTO movements (
		product, tx_hash, log_index, kind, block_number, amount, user_address,
		protocol_token, protocol_name, protocol_symbol, protocol_decimals,
		underlying_token, underlying_name, underlying_symbol, underlying_decimals
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
`

// Insert adds a new movement. Returns ErrDuplicateKey if
// (product, tx_hash, log_index) exists.
func (s *MovementStore) Insert(ctx context.Context, m *domain.Movement) error {
	if m == nil || m.Product == "" || m.Amount == nil {
		return storage.ErrInvalidInput
	}

	start := time.Now()
	_, err := s.pool.Exec(ctx, insertMovementQuery, movementArgs(m)...)
	observability.RecordDBQuery("postgres", "insert_movement", time.Since(start).Seconds(), err)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert movement: %w", err)
	}
	return nil
}

// InsertBulk adds multiple movements atomically. Fails entire batch on any duplicate.
func (s *MovementStore) InsertBulk(ctx context.Context, movements []*domain.Movement) error {
	if len(movements) == 0 {
		return nil
	}
	for _, m := range movements {
		if m == nil || m.Product == "" || m.Amount == nil {
			return storage.ErrInvalidInput
		}
	}

	start := time.Now()
	err := s.insertBulk(ctx, movements)
	observability.RecordDBQuery("postgres", "insert_movements_bulk", time.Since(start).Seconds(), err)
	return err
}

func (s *MovementStore) insertBulk(ctx context.Context, movements []*domain.Movement) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, m := range movements {
		if _, err := tx.Exec(ctx, insertMovementQuery, movementArgs(m)...); err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert movement in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

const selectMovementColumns = `
	product, tx_hash, log_index, kind, block_number, amount, user_address,
	protocol_token, protocol_name, protocol_symbol, protocol_decimals,
	underlying_token, underlying_name, underlying_symbol, underlying_decimals
`

// GetByUser retrieves a user's movements for a product, ordered by
// block number ASC, log index ASC.
func (s *MovementStore) GetByUser(ctx context.Context, product string, user common.Address) ([]*domain.Movement, error) {
	query := `
		SELECT ` + selectMovementColumns + `
		FROM movements
		WHERE product = $1 AND user_address = $2
		ORDER BY block_number ASC, log_index ASC
	`

	start := time.Now()
	rows, err := s.pool.Query(ctx, query, product, hexAddr(user))
	observability.RecordDBQuery("postgres", "get_movements_by_user", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("get movements by user: %w", err)
	}
	defer rows.Close()

	return scanMovements(rows)
}

// GetByPool retrieves movements for one market within [fromBlock, toBlock],
// ordered by block number ASC, log index ASC.
func (s *MovementStore) GetByPool(ctx context.Context, product string, protocolToken common.Address, fromBlock, toBlock uint64) ([]*domain.Movement, error) {
	query := `
		SELECT ` + selectMovementColumns + `
		FROM movements
		WHERE product = $1 AND protocol_token = $2
		  AND block_number >= $3 AND block_number <= $4
		ORDER BY block_number ASC, log_index ASC
	`

	start := time.Now()
	rows, err := s.pool.Query(ctx, query, product, hexAddr(protocolToken), fromBlock, toBlock)
	observability.RecordDBQuery("postgres", "get_movements_by_pool", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("get movements by pool: %w", err)
	}
	defer rows.Close()

	return scanMovements(rows)
}

func movementArgs(m *domain.Movement) []any {
	return []any{
		m.Product,
		m.TxHash.Hex(),
		m.LogIndex,
		string(m.Kind),
		m.BlockNumber,
		m.Amount.String(),
		hexAddr(m.User),
		hexAddr(m.ProtocolToken.Address),
		m.ProtocolToken.Name,
		m.ProtocolToken.Symbol,
		m.ProtocolToken.Decimals,
		hexAddr(m.UnderlyingToken.Address),
		m.UnderlyingToken.Name,
		m.UnderlyingToken.Symbol,
		m.UnderlyingToken.Decimals,
	}
}

// scanMovements scans multiple rows into a slice of Movement.
func scanMovements(rows pgx.Rows) ([]*domain.Movement, error) {
	var movements []*domain.Movement

	for rows.Next() {
		var (
			m                            domain.Movement
			txHash, user, amount, kind   string
			protocolToken, protocolName  string
			protocolSymbol               string
			underToken, underName        string
			underSymbol                  string
			protocolDecimals, underDecim uint8
		)

		err := rows.Scan(
			&m.Product,
			&txHash,
			&m.LogIndex,
			&kind,
			&m.BlockNumber,
			&amount,
			&user,
			&protocolToken,
			&protocolName,
			&protocolSymbol,
			&protocolDecimals,
			&underToken,
			&underName,
			&underSymbol,
			&underDecim,
		)
		if err != nil {
			return nil, fmt.Errorf("scan movement row: %w", err)
		}

		m.TxHash = common.HexToHash(txHash)
		m.Kind = domain.MovementKind(kind)
		m.User = common.HexToAddress(user)
		m.ProtocolToken = domain.Token{
			Address:  common.HexToAddress(protocolToken),
			Name:     protocolName,
			Symbol:   protocolSymbol,
			Decimals: protocolDecimals,
		}
		m.UnderlyingToken = domain.Token{
			Address:  common.HexToAddress(underToken),
			Name:     underName,
			Symbol:   underSymbol,
			Decimals: underDecim,
		}

		value, ok := new(big.Int).SetString(amount, 10)
		if !ok {
			return nil, fmt.Errorf("parse movement amount %q", amount)
		}
		m.Amount = value

		movements = append(movements, &m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate movement rows: %w", err)
	}

	return movements, nil
}

// hexAddr renders an address in lowercase hex for stable equality in SQL.
func hexAddr(a common.Address) string {
	return "0x" + common.Bytes2Hex(a.Bytes())
}
