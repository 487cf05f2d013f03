package wallet

import (
	"encoding/csv"
	"fmt"
	"os"

	"go.uber.org/zap"
)

// LoadKeyedProviders loads named wallets from a CSV file with columns
// [Name, PrivateKeyHex] and binds each to the given RPC endpoint and chain.
// Rows that fail to parse are skipped.
func LoadKeyedProviders(path, rpcURL string, chainID int64, logger *zap.Logger) (map[string]*KeyedProvider, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("CSV file is empty or missing data")
	}

	providers := make(map[string]*KeyedProvider)
	for _, record := range records[1:] {
		if len(record) != 2 {
			continue
		}
		name := record[0]
		provider, err := NewKeyedProvider(rpcURL, record[1], chainID, logger)
		if err != nil {
			logger.Warn("Skipping wallet with invalid key", zap.String("name", name), zap.Error(err))
			continue
		}
		providers[name] = provider
	}
	return providers, nil
}
