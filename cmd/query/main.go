// Package main provides an ad-hoc CLI over the protocol adapters:
// protocol tokens, user positions, movement history, TVL and unwrap
// rates for one product, printed as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"lending-adapters/internal/adapters"
	"lending-adapters/internal/adapters/pool"
	"lending-adapters/internal/domain"
	"lending-adapters/internal/evm"
)

func main() {
	loadEnvFile()

	rpcEndpoint := flag.String("rpc-endpoint", os.Getenv("ETH_RPC_ENDPOINT"), "Ethereum JSON-RPC endpoint")
	product := flag.String("product", "", "Product ID: "+strings.Join(adapters.Products(), ", "))
	op := flag.String("op", "tokens", "Operation: tokens, positions, movements, tvl, unwrap")
	user := flag.String("user", "", "User address (positions, movements)")
	poolAddr := flag.String("pool", "", "Protocol token address (movements, unwrap)")
	kind := flag.String("kind", "", "Movement kind: supply, withdraw, borrow, repay, deposit")
	fromBlock := flag.Uint64("from-block", 0, "Range start for movements (inclusive)")
	toBlock := flag.Uint64("to-block", 0, "Range end for movements (inclusive)")
	block := flag.Int64("block", 0, "Block number for state reads (0 = latest)")
	cacheDir := flag.String("metadata-cache-dir", os.Getenv("METADATA_CACHE_DIR"), "Directory for the metadata file cache (empty to disable)")

	flag.Parse()

	logger := log.New(os.Stderr, "[query] ", log.LstdFlags)

	if *rpcEndpoint == "" {
		logger.Fatal("--rpc-endpoint is required (or set ETH_RPC_ENDPOINT)")
	}
	if *product == "" {
		logger.Fatalf("--product is required (known: %v)", adapters.Products())
	}

	ctx := context.Background()

	client, err := evm.Dial(ctx, *rpcEndpoint)
	if err != nil {
		logger.Fatalf("Error: %v", err)
	}
	defer client.Close()

	var opts []pool.Option
	if *cacheDir != "" {
		opts = append(opts, pool.WithMetadataCacheDir(*cacheDir))
	}
	opts = append(opts, pool.WithLogger(logger))

	adapter, err := adapters.New(*product, evm.NewInstrumentedBackend(client), opts...)
	if err != nil {
		logger.Fatalf("Error: %v", err)
	}

	var blockNumber *big.Int
	if *block > 0 {
		blockNumber = big.NewInt(*block)
	}

	result, err := run(ctx, adapter, *op, *user, *poolAddr, *kind, *fromBlock, *toBlock, blockNumber)
	if err != nil {
		logger.Fatalf("Error: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		logger.Fatalf("Encode result: %v", err)
	}
}

func run(ctx context.Context, adapter adapters.Adapter, op, user, poolAddr, kind string, fromBlock, toBlock uint64, blockNumber *big.Int) (any, error) {
	switch op {
	case "tokens":
		return adapter.ProtocolTokens(ctx)

	case "positions":
		if user == "" {
			return nil, fmt.Errorf("--user is required for positions")
		}
		return adapter.Positions(ctx, common.HexToAddress(user), blockNumber)

	case "movements":
		if user == "" || poolAddr == "" || kind == "" {
			return nil, fmt.Errorf("--user, --pool and --kind are required for movements")
		}
		if toBlock == 0 {
			return nil, fmt.Errorf("--to-block is required for movements")
		}
		return adapter.Movements(ctx, domain.MovementKind(kind),
			common.HexToAddress(poolAddr), common.HexToAddress(user), fromBlock, toBlock)

	case "tvl":
		return adapter.TVL(ctx, blockNumber)

	case "unwrap":
		if poolAddr == "" {
			return nil, fmt.Errorf("--pool is required for unwrap")
		}
		return adapter.Unwrap(ctx, common.HexToAddress(poolAddr), blockNumber)

	default:
		return nil, fmt.Errorf("unknown operation %q", op)
	}
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
