package clickhouse

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/ethereum/go-ethereum/common"

	"lending-adapters/internal/domain"
	"lending-adapters/internal/observability"
	"lending-adapters/internal/storage"
)

// TVLSnapshotStore implements storage.TVLSnapshotStore using ClickHouse.
type TVLSnapshotStore struct {
	conn *Conn
}

// NewTVLSnapshotStore creates a new TVLSnapshotStore.
func NewTVLSnapshotStore(conn *Conn) *TVLSnapshotStore {
	return &TVLSnapshotStore{conn: conn}
}

// Compile-time interface check.
var _ storage.TVLSnapshotStore = (*TVLSnapshotStore)(nil)

// InsertBulk adds multiple snapshots. Fails entire batch on duplicate.
func (s *TVLSnapshotStore) InsertBulk(ctx context.Context, snapshots []*domain.TVLSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	start := time.Now()
	err := s.insertBulk(ctx, snapshots)
	observability.RecordDBQuery("clickhouse", "insert_tvl_snapshots_bulk", time.Since(start).Seconds(), err)
	return err
}

func (s *TVLSnapshotStore) insertBulk(ctx context.Context, snapshots []*domain.TVLSnapshot) error {
	// Check for intra-batch duplicates
	type key struct {
		product       string
		protocolToken common.Address
		blockNumber   uint64
	}
	seen := make(map[key]struct{})
	for _, snap := range snapshots {
		if snap == nil || snap.Product == "" ||
			snap.PoolSide == nil || snap.PeerToPeer == nil || snap.Total == nil {
			return storage.ErrInvalidInput
		}
		k := key{snap.Product, snap.ProtocolToken.Address, snap.BlockNumber}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	// Check for duplicates against existing DB rows; MergeTree does not
	// enforce uniqueness at insert time.
	for _, snap := range snapshots {
		exists, err := s.exists(ctx, snap.Product, snap.ProtocolToken.Address, snap.BlockNumber)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO tvl_snapshots (
			product, protocol_token, protocol_name, protocol_symbol, protocol_decimals,
			block_number, pool_side, peer_to_peer, total
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, snap := range snapshots {
		err = batch.Append(
			snap.Product,
			hexAddr(snap.ProtocolToken.Address),
			snap.ProtocolToken.Name,
			snap.ProtocolToken.Symbol,
			snap.ProtocolToken.Decimals,
			snap.BlockNumber,
			snap.PoolSide.String(),
			snap.PeerToPeer.String(),
			snap.Total.String(),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByPool retrieves all snapshots for one market, ordered by block number ASC.
func (s *TVLSnapshotStore) GetByPool(ctx context.Context, product string, protocolToken common.Address) ([]*domain.TVLSnapshot, error) {
	query := `
		SELECT product, protocol_token, protocol_name, protocol_symbol, protocol_decimals,
		       block_number, pool_side, peer_to_peer, total
		FROM tvl_snapshots
		WHERE product = ? AND protocol_token = ?
		ORDER BY block_number ASC
	`

	start := time.Now()
	rows, err := s.conn.Query(ctx, query, product, hexAddr(protocolToken))
	observability.RecordDBQuery("clickhouse", "get_tvl_snapshots_by_pool", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("query tvl snapshots by pool: %w", err)
	}
	defer rows.Close()

	return scanTVLSnapshots(rows)
}

// exists checks if a snapshot with the given key exists.
func (s *TVLSnapshotStore) exists(ctx context.Context, product string, protocolToken common.Address, blockNumber uint64) (bool, error) {
	query := `
		SELECT count(*) FROM tvl_snapshots
		WHERE product = ? AND protocol_token = ? AND block_number = ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query, product, hexAddr(protocolToken), blockNumber).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// scanTVLSnapshots scans multiple rows.
func scanTVLSnapshots(rows driver.Rows) ([]*domain.TVLSnapshot, error) {
	var snapshots []*domain.TVLSnapshot

	for rows.Next() {
		var (
			snap                           domain.TVLSnapshot
			token                          string
			poolSide, peerToPeer, totalStr string
		)

		err := rows.Scan(
			&snap.Product,
			&token,
			&snap.ProtocolToken.Name,
			&snap.ProtocolToken.Symbol,
			&snap.ProtocolToken.Decimals,
			&snap.BlockNumber,
			&poolSide,
			&peerToPeer,
			&totalStr,
		)
		if err != nil {
			return nil, fmt.Errorf("scan tvl snapshot row: %w", err)
		}

		snap.ProtocolToken.Address = common.HexToAddress(token)
		if snap.PoolSide, err = parseAmount(poolSide); err != nil {
			return nil, err
		}
		if snap.PeerToPeer, err = parseAmount(peerToPeer); err != nil {
			return nil, err
		}
		if snap.Total, err = parseAmount(totalStr); err != nil {
			return nil, err
		}

		snapshots = append(snapshots, &snap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tvl snapshot rows: %w", err)
	}

	return snapshots, nil
}

func parseAmount(s string) (*big.Int, error) {
	value, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("parse tvl amount %q", s)
	}
	return value, nil
}

// hexAddr renders an address in lowercase hex for stable equality in SQL.
func hexAddr(a common.Address) string {
	return "0x" + common.Bytes2Hex(a.Bytes())
}
