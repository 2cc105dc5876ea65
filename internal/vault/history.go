package vault

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"aether-vault/internal/domain"
)

// DefaultHistoryLimit is the number of rows shown in the history view.
const DefaultHistoryLimit = 10

// HistoryEntry is a transaction prepared for display.
type HistoryEntry struct {
	ID          string          `json:"id"`
	Type        domain.TxKind   `json:"type"`
	Description string          `json:"description"`
	Amount      string          `json:"amount"`
	Status      domain.TxStatus `json:"status"`
	Timestamp   time.Time       `json:"timestamp"`
}

// Describe renders the one-line summary of a transaction.
func Describe(tx domain.Transaction) string {
	switch {
	case tx.ToPool != "":
		switch tx.Kind {
		case domain.TxDeposit:
			return "Deposited to " + tx.ToPool
		case domain.TxWithdraw:
			return "Withdrew from " + tx.ToPool
		default:
			return "Rebalanced to " + tx.ToPool
		}
	case tx.FromPool != "":
		return "Withdrew from " + tx.FromPool
	default:
		return "Transaction " + string(tx.Kind)
	}
}

// FormatAmount renders "$12.34", or "-" when the transaction has no amount.
func FormatAmount(amount *decimal.Decimal) string {
	if amount == nil || amount.IsZero() {
		return "-"
	}
	return "$" + amount.StringFixed(2)
}

// History lists the newest transactions of a wallet.
func (s *Service) History(ctx context.Context, wallet string, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	txs, err := s.store.ListTransactionsByWallet(ctx, wallet, limit)
	if err != nil {
		return nil, storeErr(err)
	}
	entries := make([]HistoryEntry, 0, len(txs))
	for _, tx := range txs {
		entries = append(entries, HistoryEntry{
			ID:          tx.ID,
			Type:        tx.Kind,
			Description: Describe(tx),
			Amount:      FormatAmount(tx.Amount),
			Status:      tx.Status,
			Timestamp:   tx.CreatedAt,
		})
	}
	return entries, nil
}

// BalancePoint is the vault balance right after one transaction.
type BalancePoint struct {
	At      time.Time
	Kind    domain.TxKind
	Amount  decimal.Decimal
	Balance decimal.Decimal
}

// BalanceSeries replays the owner's completed deposits and withdrawals.
func (s *Service) BalanceSeries(ctx context.Context, owner string) ([]BalancePoint, error) {
	v, err := s.GetVault(ctx, owner)
	if err != nil {
		return nil, err
	}
	txs, err := s.store.ListTransactionsByVault(ctx, v.ID)
	if err != nil {
		return nil, storeErr(err)
	}

	points := make([]BalancePoint, 0, len(txs))
	running := decimal.Zero
	for _, tx := range txs {
		if tx.Amount == nil || tx.Status != domain.TxCompleted {
			continue
		}
		switch tx.Kind {
		case domain.TxDeposit:
			running = running.Add(*tx.Amount)
		case domain.TxWithdraw:
			running = running.Sub(*tx.Amount)
		default:
			continue
		}
		points = append(points, BalancePoint{At: tx.CreatedAt, Kind: tx.Kind, Amount: *tx.Amount, Balance: running})
	}
	if len(points) > 0 && !points[len(points)-1].Balance.Equal(v.Balance) {
		s.logger.Warn().
			Str("vault_id", v.ID).
			Str("replayed", points[len(points)-1].Balance.String()).
			Str("stored", v.Balance.String()).
			Msg("replayed balance differs from stored balance")
	}
	return points, nil
}
