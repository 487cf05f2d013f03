package trade

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/certmint/trade-engine/internal/approval"
	"github.com/certmint/trade-engine/internal/balance"
	"github.com/certmint/trade-engine/internal/chain"
	"github.com/certmint/trade-engine/internal/domain"
	"github.com/certmint/trade-engine/internal/permit"
	"github.com/certmint/trade-engine/internal/quote"
	"github.com/certmint/trade-engine/internal/wallet"
)

const tokenActionsABIJSON = `[
	{"constant":false,"inputs":[{"name":"_from","type":"address"},{"name":"_to","type":"address"},{"name":"_id","type":"uint256"},{"name":"_value","type":"uint256"},{"name":"_data","type":"bytes"}],"name":"safeTransferFrom","outputs":[],"type":"function"},
	{"constant":false,"inputs":[{"name":"_owner","type":"address"},{"name":"_id","type":"uint256"},{"name":"_value","type":"uint256"}],"name":"burn","outputs":[],"type":"function"}
]`

var tokenActionsABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(tokenActionsABIJSON))
	if err != nil {
		panic(fmt.Sprintf("invalid ABI literal: %v", err))
	}
	return parsed
}()

// Deps wires the orchestrator's collaborators. Every dependency is passed
// explicitly; no component reaches for a shared client.
type Deps struct {
	Wallet    wallet.Provider
	Chain     chain.Provider
	Balances  *balance.Tracker
	Quotes    *quote.Engine
	Approvals *approval.Gate
	Permits   *permit.Signer
	Bus       *domain.Bus
	ChainID   int64
	Logger    *zap.Logger
}

// Orchestrator runs one trade intent at a time through the lifecycle state
// machine. Every terminal outcome is reported exactly once on the event bus.
type Orchestrator struct {
	deps   Deps
	logger *zap.Logger
}

// NewOrchestrator creates a trade orchestrator
func NewOrchestrator(deps Deps) *Orchestrator {
	return &Orchestrator{
		deps:   deps,
		logger: deps.Logger.Named("orchestrator"),
	}
}

// Run drives the intent to a terminal state. The outcome is carried both in
// the returned result and in the emitted lifecycle events; Run itself never
// returns an error because every failure is a reportable terminal state.
func (o *Orchestrator) Run(ctx context.Context, intent *Intent) *Result {
	log := o.logger.With(
		zap.String("intent_id", intent.ID),
		zap.String("kind", intent.Kind.String()),
		zap.String("token", intent.Token.Hex()))

	o.emit(domain.EventValidating, intent, nil)
	if err := o.validate(ctx, intent); err != nil {
		return o.fail(intent, log, err)
	}

	if err := o.ensureChain(ctx, log); err != nil {
		return o.fail(intent, log, err)
	}

	q, err := o.buildPlan(ctx, intent)
	if err != nil {
		return o.fail(intent, log, err)
	}
	o.emit(domain.EventQuoted, intent, &domain.QuotedData{
		SellToken:  q.SellToken.Hex(),
		BuyToken:   q.BuyToken.Hex(),
		SellAmount: q.SellAmount.String(),
		BuyAmount:  q.BuyAmount.String(),
	})

	if !intent.NativeDenominated() {
		done, result := o.checkApproval(ctx, intent, q, log)
		if done {
			return result
		}
	}

	data := q.Transaction.Data
	if q.Permit2 != nil {
		o.emit(domain.EventSigning, intent, nil)
		data, err = o.deps.Permits.Sign(ctx, q)
		if err != nil {
			return o.fail(intent, log, err)
		}
	}

	start := time.Now()
	txHash, err := o.deps.Wallet.SendTransaction(ctx, chain.TxRequest{
		From:     o.deps.Wallet.Address(),
		To:       q.Transaction.To,
		Data:     data,
		Value:    q.Transaction.Value,
		Gas:      q.Transaction.Gas,
		GasPrice: q.Transaction.GasPrice,
	})
	if err != nil {
		return o.fail(intent, log, err)
	}
	o.emit(domain.EventSubmitted, intent, &domain.SubmittedData{TxHash: txHash.Hex()})
	log.Info("Transaction submitted", zap.String("tx_hash", txHash.Hex()))

	receipt, err := o.deps.Chain.WaitForReceipt(ctx, txHash)
	if err != nil {
		return o.fail(intent, log, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return o.fail(intent, log, fmt.Errorf("transaction %s reverted", txHash.Hex()))
	}

	o.invalidateBalances(intent, q)
	o.emit(domain.EventConfirmed, intent, &domain.ConfirmedData{
		TxHash:   txHash.Hex(),
		GasUsed:  receipt.GasUsed,
		Block:    receipt.BlockNumber.Uint64(),
		Duration: time.Since(start),
	})
	log.Info("Trade settled",
		zap.String("tx_hash", txHash.Hex()),
		zap.Uint64("block", receipt.BlockNumber.Uint64()))

	return &Result{State: StateSettled, TxHash: txHash}
}

// validate rejects malformed intents before any network call is made.
func (o *Orchestrator) validate(ctx context.Context, intent *Intent) error {
	if intent.Amount == nil || intent.Amount.Sign() <= 0 {
		return ErrNonPositiveAmount
	}
	if intent.Kind == KindSend && intent.Recipient == (common.Address{}) {
		return ErrBadRecipient
	}

	if intent.Kind == KindBuy {
		return nil
	}

	held, err := o.deps.Balances.ERC1155Balance(ctx, intent.Token, o.deps.Wallet.Address(), intent.TokenID)
	if err != nil {
		return fmt.Errorf("failed to read token balance: %w", err)
	}
	if intent.Amount.Cmp(held) > 0 {
		return fmt.Errorf("insufficient funds: have %s tokens, want %s", held.String(), intent.Amount.String())
	}
	return nil
}

// ensureChain switches the wallet to the required network if needed. A 4902
// response means the wallet does not know the network; the flow halts rather
// than guessing a fallback.
func (o *Orchestrator) ensureChain(ctx context.Context, log *zap.Logger) error {
	current, err := o.deps.Wallet.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("failed to read wallet chain: %w", err)
	}
	if current == o.deps.ChainID {
		return nil
	}

	log.Info("Requesting network switch",
		zap.Int64("from", current),
		zap.Int64("to", o.deps.ChainID))
	return o.deps.Wallet.SwitchNetwork(ctx, o.deps.ChainID)
}

// buildPlan produces the transaction to execute: a quote for buys and sells,
// a direct token call for burns and sends.
func (o *Orchestrator) buildPlan(ctx context.Context, intent *Intent) (*quote.Quote, error) {
	switch intent.Kind {
	case KindBuy:
		if intent.NativeDenominated() {
			return o.deps.Quotes.QuoteBuy(ctx, intent.Token, intent.TokenID, intent.Amount)
		}
		return o.deps.Quotes.QuoteSwap(ctx, quote.SwapRequest{
			SellToken:  intent.Currency,
			BuyToken:   intent.Token,
			SellAmount: intent.Amount,
			Taker:      o.deps.Wallet.Address(),
		})
	case KindSell:
		return o.deps.Quotes.QuoteSwap(ctx, quote.SwapRequest{
			SellToken:  intent.Token,
			BuyToken:   intent.Currency,
			SellAmount: intent.Amount,
			Taker:      o.deps.Wallet.Address(),
		})
	case KindBurn:
		data, err := tokenActionsABI.Pack("burn", o.deps.Wallet.Address(), intent.TokenID, intent.Amount)
		if err != nil {
			return nil, fmt.Errorf("failed to encode burn: %w", err)
		}
		return directPlan(intent, data), nil
	case KindSend:
		data, err := tokenActionsABI.Pack("safeTransferFrom",
			o.deps.Wallet.Address(), intent.Recipient, intent.TokenID, intent.Amount, []byte{})
		if err != nil {
			return nil, fmt.Errorf("failed to encode transfer: %w", err)
		}
		return directPlan(intent, data), nil
	default:
		return nil, fmt.Errorf("unsupported trade kind %d", intent.Kind)
	}
}

// directPlan wraps a non-quoted token call in the quote shape so the rest of
// the pipeline is uniform. Burns and sends have no buy side.
func directPlan(intent *Intent, data []byte) *quote.Quote {
	return &quote.Quote{
		SellToken:  intent.Token,
		BuyToken:   common.Address{},
		SellAmount: new(big.Int).Set(intent.Amount),
		BuyAmount:  big.NewInt(0),
		Transaction: quote.TxPlan{
			To:   intent.Token,
			Data: data,
		},
	}
}

// checkApproval runs the allowance gate on the token the quote spends. For
// buys that is the payment currency; for sells it is the certificate itself,
// which merely pays out in the currency. When an approval is needed it is
// submitted, confirmed, reported, and the flow halts: the approval and the
// trade are two separate user-confirmed transactions, so the user
// re-initiates the trade afterwards.
func (o *Orchestrator) checkApproval(ctx context.Context, intent *Intent, q *quote.Quote, log *zap.Logger) (bool, *Result) {
	spender := q.Transaction.To
	decision, err := o.deps.Approvals.Check(ctx, q.SellToken, o.deps.Wallet.Address(), spender, q.SellAmount)
	if err != nil {
		return true, o.fail(intent, log, err)
	}
	if !decision.Needed {
		return false, nil
	}

	o.emit(domain.EventApprovalRequired, intent, &domain.ApprovalData{
		Token:   q.SellToken.Hex(),
		Spender: spender.Hex(),
	})
	o.emit(domain.EventApproving, intent, nil)

	txHash, err := o.deps.Wallet.SendTransaction(ctx, *decision.Tx)
	if err != nil {
		return true, o.fail(intent, log, err)
	}
	receipt, err := o.deps.Chain.WaitForReceipt(ctx, txHash)
	if err != nil {
		return true, o.fail(intent, log, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return true, o.fail(intent, log, fmt.Errorf("approval %s reverted", txHash.Hex()))
	}

	o.deps.Balances.Invalidate(q.SellToken)
	o.emit(domain.EventApprovalSettled, intent, &domain.ApprovalData{
		Token:   q.SellToken.Hex(),
		Spender: spender.Hex(),
		TxHash:  txHash.Hex(),
	})
	log.Info("Approval settled, awaiting re-initiation",
		zap.String("tx_hash", txHash.Hex()))

	return true, &Result{State: StateApproved, TxHash: txHash}
}

// invalidateBalances drops cached balances for every token the settled
// transaction touched.
func (o *Orchestrator) invalidateBalances(intent *Intent, q *quote.Quote) {
	o.deps.Balances.Invalidate(intent.Token)
	if !intent.NativeDenominated() {
		o.deps.Balances.Invalidate(intent.Currency)
	}
	if q.BuyToken != (common.Address{}) && q.BuyToken != intent.Token {
		o.deps.Balances.Invalidate(q.BuyToken)
	}
}

// fail converts an error into the right terminal state. User rejections end
// in Cancelled; everything else in Failed with a classified reason.
func (o *Orchestrator) fail(intent *Intent, log *zap.Logger, err error) *Result {
	reason, message := Classify(err)

	if reason == ReasonUserRejected {
		log.Info("Trade cancelled by user")
		o.emit(domain.EventCancelled, intent, &domain.FailedData{
			Reason:  string(reason),
			Message: message,
		})
		return &Result{State: StateCancelled, Reason: reason, Message: message}
	}

	log.Error("Trade failed",
		zap.String("reason", string(reason)),
		zap.Error(err))
	o.emit(domain.EventFailed, intent, &domain.FailedData{
		Reason:  string(reason),
		Message: message,
	})
	return &Result{State: StateFailed, Reason: reason, Message: message}
}

func (o *Orchestrator) emit(eventType domain.EventType, intent *Intent, data interface{}) {
	o.deps.Bus.Publish(domain.NewEvent(eventType, intent.ID, data))
}
