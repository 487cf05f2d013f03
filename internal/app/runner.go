// Package app wires configuration, wallets and engine components into a
// runnable batch of trade intents.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/certmint/trade-engine/internal/approval"
	"github.com/certmint/trade-engine/internal/balance"
	"github.com/certmint/trade-engine/internal/chain"
	"github.com/certmint/trade-engine/internal/config"
	"github.com/certmint/trade-engine/internal/domain"
	"github.com/certmint/trade-engine/internal/export"
	"github.com/certmint/trade-engine/internal/logger"
	"github.com/certmint/trade-engine/internal/permit"
	"github.com/certmint/trade-engine/internal/quote"
	"github.com/certmint/trade-engine/internal/sale"
	"github.com/certmint/trade-engine/internal/trade"
	"github.com/certmint/trade-engine/internal/wallet"
)

// Runner executes the configured trade intents one at a time. The flow is
// interactive-grade, not a server: no queue, no backpressure.
type Runner struct {
	logger     *logger.Logger
	cfg        *config.Config
	wallets    map[string]*wallet.KeyedProvider
	shutdownCh chan os.Signal
}

// NewRunner loads the wallet keystore and prepares a runner.
func NewRunner(cfg *config.Config, log *logger.Logger) (*Runner, error) {
	wallets, err := wallet.LoadKeyedProviders(cfg.WalletsFile, cfg.RPCList[0], cfg.ChainID, log.WithComponent("wallet"))
	if err != nil {
		return nil, fmt.Errorf("failed to load wallets: %w", err)
	}
	if len(wallets) == 0 {
		return nil, fmt.Errorf("no usable wallets in %s", cfg.WalletsFile)
	}

	return &Runner{
		logger:     log,
		cfg:        cfg,
		wallets:    wallets,
		shutdownCh: make(chan os.Signal, 1),
	}, nil
}

// Run loads intents and drives each to a terminal state. It returns an
// error when any intent ends in Failed.
func (r *Runner) Run(ctx context.Context) error {
	signal.Notify(r.shutdownCh, syscall.SIGINT, syscall.SIGTERM)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		sig := <-r.shutdownCh
		r.logger.Info("Signal received, cancelling", zap.String("signal", sig.String()))
		cancel()
	}()

	tasks, err := LoadIntentTasks(r.cfg.TasksFile, r.logger.WithComponent("tasks"))
	if err != nil {
		return err
	}
	r.logger.Info("Loaded trade intents", zap.Int("count", len(tasks)))

	var failed int
	records := make([]export.Record, 0, len(tasks))
	for _, task := range tasks {
		if runCtx.Err() != nil {
			r.logger.Info("Run cancelled, skipping remaining intents")
			break
		}
		result, err := r.runTask(runCtx, task)
		if err != nil {
			return err
		}
		if result.State == trade.StateFailed {
			failed++
		}
		record := export.Record{
			Name:      task.Name,
			IntentID:  task.Intent.ID,
			Kind:      task.Intent.Kind.String(),
			Token:     task.Intent.Token.Hex(),
			TokenID:   task.Intent.TokenID.String(),
			Amount:    task.Intent.Amount.String(),
			State:     result.State.String(),
			Reason:    string(result.Reason),
			Timestamp: time.Now(),
		}
		if result.TxHash != (common.Hash{}) {
			record.TxHash = result.TxHash.Hex()
		}
		records = append(records, record)
	}

	r.exportRecords(records)

	if failed > 0 {
		return fmt.Errorf("%d of %d intents failed", failed, len(tasks))
	}
	return nil
}

// runTask builds the component graph for the task's wallet and runs the
// intent through it.
func (r *Runner) runTask(ctx context.Context, task *IntentTask) (*trade.Result, error) {
	provider, ok := r.wallets[task.Wallet]
	if !ok {
		return nil, fmt.Errorf("intent %q references unknown wallet %q", task.Name, task.Wallet)
	}

	log := r.logger.WithIntent(task.Intent.ID)
	log.Info("Executing intent",
		zap.String("name", task.Name),
		zap.String("kind", task.Intent.Kind.String()),
		zap.String("wallet", task.Wallet))

	policy := chain.RetryPolicy{
		MaxAttempts: uint(r.cfg.Retries),
		BaseDelay:   time.Duration(r.cfg.RetryDelayMillis) * time.Millisecond,
		Jitter:      0.5,
	}
	client, err := chain.NewClient(r.cfg.RPCList, provider, log, chain.Options{
		Policy:      policy,
		ReceiptPoll: time.Duration(r.cfg.ReceiptPollMillis) * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build chain client: %w", err)
	}

	balances := balance.NewTracker(client, log)
	resolver := sale.NewResolver(client, common.HexToAddress(r.cfg.SalesConfigAddress), r.cfg.TimedSaleMintFeeWei(), log)
	curve := quote.NewCurveQuoter(client, common.HexToAddress(r.cfg.MarketAddress), log)
	aggregator := quote.NewAggregatorClient(r.cfg.AggregatorURL, common.HexToAddress(r.cfg.SwapFeeToken), policy, log)
	engine := quote.NewEngine(curve, aggregator, log)

	bus := domain.NewBus()
	bus.Subscribe(domain.SubscriberFunc(func(event domain.Event) {
		log.Info("Lifecycle event",
			zap.String("event", event.Type.String()),
			zap.Any("data", event.Data))
	}))

	r.prepareSale(ctx, task, resolver, engine, log)
	r.previewQuote(ctx, task, engine, log)

	orchestrator := trade.NewOrchestrator(trade.Deps{
		Wallet:    provider,
		Chain:     client,
		Balances:  balances,
		Quotes:    engine,
		Approvals: approval.NewGate(balances, log),
		Permits:   permit.NewSigner(provider, log),
		Bus:       bus,
		ChainID:   r.cfg.ChainID,
		Logger:    log,
	})

	result := orchestrator.Run(ctx, task.Intent)
	log.Info("Intent finished",
		zap.String("state", result.State.String()),
		zap.String("reason", string(result.Reason)))
	return result, nil
}

// exportRecords writes the finished trades to the configured export
// directory, if any. Export failures never fail the run.
func (r *Runner) exportRecords(records []export.Record) {
	if r.cfg.ExportDir == "" || len(records) == 0 {
		return
	}
	exporter := export.NewExporter(r.logger.WithComponent("export"))
	if _, err := exporter.Export(records, export.Options{
		Format:    export.Format(r.cfg.ExportFormat),
		OutputDir: r.cfg.ExportDir,
	}); err != nil {
		r.logger.Warn("Trade export failed", zap.Error(err))
	}
}

// prepareSale resolves the token's sale configuration for buys. The status
// is informational here; a fixed price found on the sale seeds the curve
// quoter's fallback cache.
func (r *Runner) prepareSale(ctx context.Context, task *IntentTask, resolver *sale.Resolver, engine *quote.Engine, log *zap.Logger) {
	if task.Intent.Kind != trade.KindBuy || r.cfg.SalesConfigAddress == "" {
		return
	}

	resolution, err := resolver.Resolve(ctx, task.Intent.Token, task.Intent.TokenID)
	if err != nil {
		log.Warn("Sale resolution failed", zap.Error(err))
		return
	}

	log.Info("Sale resolved",
		zap.String("kind", resolution.Config.Kind.String()),
		zap.String("status", resolution.Status.String()))

	if resolution.Config.PricePerToken != nil {
		engine.SeedLinearPrice(task.Intent.Token, task.Intent.TokenID, resolution.Config.PricePerToken)
	}
}

// previewQuote fetches an advisory quote for native buys through the
// debounce scheduler. Failures only log; the orchestrator quotes
// authoritatively before submitting.
func (r *Runner) previewQuote(ctx context.Context, task *IntentTask, engine *quote.Engine, log *zap.Logger) {
	if task.Intent.Kind != trade.KindBuy || !task.Intent.NativeDenominated() {
		return
	}

	scheduler := quote.NewScheduler(time.Duration(r.cfg.DebounceMillis)*time.Millisecond, log)
	defer scheduler.Unmount()

	done := make(chan struct{})
	scheduler.Schedule(func(generation uint64) {
		defer close(done)
		q, err := engine.QuoteBuy(ctx, task.Intent.Token, task.Intent.TokenID, task.Intent.Amount)
		if err != nil {
			log.Debug("Quote preview unavailable", zap.Error(err))
			return
		}
		if !scheduler.Accept(generation) {
			return
		}
		log.Info("Quote preview",
			zap.String("sell_amount", q.SellAmount.String()),
			zap.String("buy_amount", q.BuyAmount.String()))
	})

	select {
	case <-done:
	case <-ctx.Done():
	}
}

// Shutdown flushes the logger.
func (r *Runner) Shutdown() {
	r.logger.Info("Shutting down")
	if err := r.logger.Sync(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "failed to sync logger: %v\n", err)
	}
}
