// Package main provides the batch indexer: reads TVL and movement
// history through the protocol adapters and persists them, TVL points
// to ClickHouse and movements to PostgreSQL. Runs once or on an
// interval.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"lending-adapters/internal/adapters"
	"lending-adapters/internal/adapters/pool"
	"lending-adapters/internal/domain"
	"lending-adapters/internal/evm"
	"lending-adapters/internal/observability"
	"lending-adapters/internal/storage"
	chstore "lending-adapters/internal/storage/clickhouse"
	"lending-adapters/internal/storage/memory"
	"lending-adapters/internal/storage/migrations"
	pgstore "lending-adapters/internal/storage/postgres"
)

// movementKinds holds every kind any product emits; per-product
// unsupported kinds are skipped at run time.
var movementKinds = []domain.MovementKind{
	domain.MovementSupply,
	domain.MovementWithdraw,
	domain.MovementBorrow,
	domain.MovementRepay,
	domain.MovementDeposit,
}

func main() {
	loadEnvFile()

	rpcEndpoint := flag.String("rpc-endpoint", os.Getenv("ETH_RPC_ENDPOINT"), "Ethereum JSON-RPC endpoint")
	products := flag.String("products", strings.Join(adapters.Products(), ","), "Comma-separated product IDs")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL/ClickHouse")
	block := flag.Int64("block", 0, "Block number for TVL reads (0 = latest)")
	users := flag.String("users", "", "Comma-separated user addresses to index movements for")
	fromBlock := flag.Uint64("from-block", 0, "Movement range start (inclusive)")
	toBlock := flag.Uint64("to-block", 0, "Movement range end (inclusive, 0 disables movements)")
	interval := flag.Duration("interval", 0, "Snapshot interval (0 = run once)")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics HTTP address (empty to disable)")
	cacheDir := flag.String("metadata-cache-dir", os.Getenv("METADATA_CACHE_DIR"), "Directory for the metadata file cache (empty to disable)")

	flag.Parse()

	logger := log.New(os.Stdout, "[snapshot] ", log.LstdFlags|log.Lshortfile)

	if *rpcEndpoint == "" {
		logger.Fatal("--rpc-endpoint is required (or set ETH_RPC_ENDPOINT)")
	}
	if !*useMemory && (*postgresDSN == "" || *clickhouseDSN == "") {
		logger.Fatal("--postgres-dsn and --clickhouse-dsn are required (use --use-memory for in-memory storage)")
	}

	// Start metrics server if enabled
	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})
			logger.Printf("Starting metrics server on %s", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil && err != http.ErrServerClosed {
				logger.Printf("Metrics server error: %v", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()
	}()

	if err := run(ctx, logger, *rpcEndpoint, *products, *postgresDSN, *clickhouseDSN,
		*useMemory, *block, *users, *fromBlock, *toBlock, *interval, *cacheDir); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("Error: %v", err)
	}

	logger.Println("Shutdown complete")
}

func run(ctx context.Context, logger *log.Logger, rpcEndpoint, products, postgresDSN, clickhouseDSN string,
	useMemory bool, block int64, users string, fromBlock, toBlock uint64, interval time.Duration, cacheDir string) error {

	client, err := evm.Dial(ctx, rpcEndpoint)
	if err != nil {
		return err
	}
	defer client.Close()
	backend := evm.NewInstrumentedBackend(client)

	// Create stores (use interfaces)
	var movementStore storage.MovementStore = memory.NewMovementStore()
	var tvlStore storage.TVLSnapshotStore = memory.NewTVLSnapshotStore()

	if !useMemory {
		pgPool, err := pgstore.NewPool(ctx, postgresDSN)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pgPool.Close()

		if err := migrations.RunPostgresMigrations(ctx, pgPool); err != nil {
			return fmt.Errorf("postgres migrations: %w", err)
		}
		movementStore = pgstore.NewMovementStore(pgPool)

		chConn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
		if err != nil {
			return fmt.Errorf("clickhouse migrations: %w", err)
		}
		defer chConn.Close()
		tvlStore = chstore.NewTVLSnapshotStore(chConn)
	}

	// Build adapters once
	var opts []pool.Option
	if cacheDir != "" {
		opts = append(opts, pool.WithMetadataCacheDir(cacheDir))
	}
	opts = append(opts, pool.WithLogger(logger))

	var productAdapters []adapters.Adapter
	for _, id := range strings.Split(products, ",") {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		adapter, err := adapters.New(id, backend, opts...)
		if err != nil {
			return err
		}
		productAdapters = append(productAdapters, adapter)
	}
	if len(productAdapters) == 0 {
		return fmt.Errorf("no products specified")
	}

	userList := parseAddresses(users)

	var blockNumber *big.Int
	if block > 0 {
		blockNumber = big.NewInt(block)
	}

	snapshot := func() error {
		for _, adapter := range productAdapters {
			if err := snapshotProduct(ctx, logger, adapter, movementStore, tvlStore,
				blockNumber, userList, fromBlock, toBlock); err != nil {
				return err
			}
		}
		observability.DefaultMetrics.LastSuccessfulSnapshot.SetToCurrentTime()
		return nil
	}

	if interval <= 0 {
		return snapshot()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Printf("Snapshotting every %s", interval)
	for {
		if err := snapshot(); err != nil {
			// Keep the loop alive; the next tick retries from scratch
			logger.Printf("Snapshot failed: %v", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// snapshotProduct persists one product's TVL and, when a block range is
// given, its users' movement histories.
func snapshotProduct(ctx context.Context, logger *log.Logger, adapter adapters.Adapter,
	movementStore storage.MovementStore, tvlStore storage.TVLSnapshotStore,
	blockNumber *big.Int, users []common.Address, fromBlock, toBlock uint64) error {

	product := adapter.Product().ID

	snapshots, err := adapter.TVL(ctx, blockNumber)
	if err != nil {
		return fmt.Errorf("%s: tvl: %w", product, err)
	}

	toInsert := make([]*domain.TVLSnapshot, 0, len(snapshots))
	for i := range snapshots {
		toInsert = append(toInsert, &snapshots[i])
	}
	if err := tvlStore.InsertBulk(ctx, toInsert); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			logger.Printf("%s: TVL at this block already captured, skipping", product)
		} else {
			return fmt.Errorf("%s: store tvl: %w", product, err)
		}
	} else {
		logger.Printf("%s: stored %d TVL points", product, len(toInsert))
	}

	if toBlock == 0 || len(users) == 0 {
		return nil
	}

	tokens, err := adapter.ProtocolTokens(ctx)
	if err != nil {
		return fmt.Errorf("%s: protocol tokens: %w", product, err)
	}

	var stored int
	for _, user := range users {
		for _, token := range tokens {
			for _, kind := range movementKinds {
				movements, err := adapter.Movements(ctx, kind, token.Address, user, fromBlock, toBlock)
				if err != nil {
					if errors.Is(err, pool.ErrUnsupportedMovement) {
						continue
					}
					return fmt.Errorf("%s: movements %s/%s: %w", product, token.Symbol, kind, err)
				}

				for i := range movements {
					err := movementStore.Insert(ctx, &movements[i])
					if errors.Is(err, storage.ErrDuplicateKey) {
						continue // already indexed
					}
					if err != nil {
						return fmt.Errorf("%s: store movement: %w", product, err)
					}
					stored++
				}
			}
		}
	}
	logger.Printf("%s: stored %d movements for %d users in blocks [%d, %d]",
		product, stored, len(users), fromBlock, toBlock)

	return nil
}

func parseAddresses(s string) []common.Address {
	var out []common.Address
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, common.HexToAddress(part))
	}
	return out
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
