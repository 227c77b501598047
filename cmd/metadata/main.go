// Package main builds or refreshes the file-backed metadata cache for
// one or more products and prints the result as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"strings"

	"lending-adapters/internal/adapters"
	"lending-adapters/internal/adapters/pool"
	"lending-adapters/internal/domain"
	"lending-adapters/internal/evm"
)

func main() {
	loadEnvFile()

	rpcEndpoint := flag.String("rpc-endpoint", os.Getenv("ETH_RPC_ENDPOINT"), "Ethereum JSON-RPC endpoint")
	products := flag.String("products", strings.Join(adapters.Products(), ","), "Comma-separated product IDs")
	cacheDir := flag.String("metadata-cache-dir", envOr("METADATA_CACHE_DIR", ".metadata-cache"), "Directory for the metadata file cache")

	flag.Parse()

	logger := log.New(os.Stderr, "[metadata] ", log.LstdFlags)

	if *rpcEndpoint == "" {
		logger.Fatal("--rpc-endpoint is required (or set ETH_RPC_ENDPOINT)")
	}

	ctx := context.Background()

	client, err := evm.Dial(ctx, *rpcEndpoint)
	if err != nil {
		logger.Fatalf("Error: %v", err)
	}
	defer client.Close()
	backend := evm.NewInstrumentedBackend(client)

	result := make(map[string][]domain.Token)
	for _, id := range strings.Split(*products, ",") {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}

		adapter, err := adapters.New(id, backend,
			pool.WithMetadataCacheDir(*cacheDir), pool.WithLogger(logger))
		if err != nil {
			logger.Fatalf("Error: %v", err)
		}

		tokens, err := adapter.ProtocolTokens(ctx)
		if err != nil {
			logger.Fatalf("Error: %s: %v", id, err)
		}
		logger.Printf("%s: %d protocol tokens cached under %s", id, len(tokens), *cacheDir)
		result[id] = tokens
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		logger.Fatalf("Encode result: %v", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
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
