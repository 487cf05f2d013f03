package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/certmint/trade-engine/internal/chain"
	"github.com/certmint/trade-engine/internal/trade"
)

// intentsFile is the YAML shape of the tasks file.
type intentsFile struct {
	Intents []struct {
		Name      string `yaml:"name"`
		Wallet    string `yaml:"wallet"`
		Operation string `yaml:"operation"`
		Token     string `yaml:"token"`
		TokenID   string `yaml:"token_id"`
		Amount    string `yaml:"amount"` // decimal, in wei or token units
		Currency  string `yaml:"currency,omitempty"`
		Recipient string `yaml:"recipient,omitempty"`
	} `yaml:"intents"`
}

// IntentTask pairs a trade intent with the wallet that should execute it.
type IntentTask struct {
	Name   string
	Wallet string
	Intent *trade.Intent
}

func parseKind(s string) (trade.Kind, error) {
	switch s {
	case "buy":
		return trade.KindBuy, nil
	case "sell":
		return trade.KindSell, nil
	case "burn":
		return trade.KindBurn, nil
	case "send":
		return trade.KindSend, nil
	default:
		return 0, fmt.Errorf("unsupported operation: %q", s)
	}
}

// LoadIntentTasks reads the tasks file, skipping rows that fail validation.
func LoadIntentTasks(path string, logger *zap.Logger) ([]*IntentTask, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read tasks file: %w", err)
	}

	var parsed intentsFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse tasks file: %w", err)
	}
	if len(parsed.Intents) == 0 {
		return nil, fmt.Errorf("no intents found in %s", path)
	}

	tasks := make([]*IntentTask, 0, len(parsed.Intents))
	for _, row := range parsed.Intents {
		kind, err := parseKind(row.Operation)
		if err != nil {
			logger.Warn("Skipping invalid intent",
				zap.String("name", row.Name),
				zap.Error(err))
			continue
		}
		if !common.IsHexAddress(row.Token) {
			logger.Warn("Skipping intent with invalid token address",
				zap.String("name", row.Name),
				zap.String("token", row.Token))
			continue
		}

		tokenID, err := chain.ParseBig(row.TokenID)
		if err != nil {
			logger.Warn("Skipping intent with invalid token id",
				zap.String("name", row.Name),
				zap.Error(err))
			continue
		}
		amount, err := chain.ParseBig(row.Amount)
		if err != nil {
			logger.Warn("Skipping intent with invalid amount",
				zap.String("name", row.Name),
				zap.Error(err))
			continue
		}

		intent := trade.NewIntent(kind, common.HexToAddress(row.Token), tokenID, amount)
		if row.Currency != "" {
			if !common.IsHexAddress(row.Currency) {
				logger.Warn("Skipping intent with invalid currency address",
					zap.String("name", row.Name),
					zap.String("currency", row.Currency))
				continue
			}
			intent.Currency = common.HexToAddress(row.Currency)
		}
		if row.Recipient != "" {
			if !common.IsHexAddress(row.Recipient) {
				logger.Warn("Skipping intent with invalid recipient address",
					zap.String("name", row.Name),
					zap.String("recipient", row.Recipient))
				continue
			}
			intent.Recipient = common.HexToAddress(row.Recipient)
		}

		tasks = append(tasks, &IntentTask{
			Name:   row.Name,
			Wallet: row.Wallet,
			Intent: intent,
		})
	}

	if len(tasks) == 0 {
		return nil, fmt.Errorf("no valid intents in %s", path)
	}
	return tasks, nil
}
