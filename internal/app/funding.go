package app

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"aether-vault/internal/domain"
	"aether-vault/internal/vault"
)

// withVaults opens the repository for the duration of fn.
func (a *App) withVaults(ctx context.Context, fn func(*vault.Service) error) error {
	repo, err := a.openRepository(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()
	return fn(a.newVaultService(repo, nil))
}

func requireIdentity(id Identity) error {
	if !id.Complete() {
		return domain.ErrUnauthenticated
	}
	return nil
}

// Deposit adds raw (a decimal string) to the caller's vault.
func (a *App) Deposit(ctx context.Context, id Identity, raw string) error {
	if err := requireIdentity(id); err != nil {
		return err
	}
	amount, err := domain.ParseAndValidateAmount(raw)
	if err != nil {
		return err
	}
	return a.withVaults(ctx, func(svc *vault.Service) error {
		v, err := svc.Deposit(ctx, id.UserID, id.WalletAddress, amount)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.Out, "Deposited %s USDC. Balance: %s USDC\n", domain.FormatUSDC(amount), domain.FormatUSDC(v.Balance))
		return nil
	})
}

// Withdraw removes raw from the caller's vault.
func (a *App) Withdraw(ctx context.Context, id Identity, raw string) error {
	if err := requireIdentity(id); err != nil {
		return err
	}
	amount, err := domain.ParseAndValidateAmount(raw)
	if err != nil {
		return err
	}
	return a.withVaults(ctx, func(svc *vault.Service) error {
		v, err := svc.Withdraw(ctx, id.UserID, id.WalletAddress, amount)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.Out, "Withdrew %s USDC. Balance: %s USDC\n", domain.FormatUSDC(amount), domain.FormatUSDC(v.Balance))
		return nil
	})
}

// ShowVault prints the caller's vault.
func (a *App) ShowVault(ctx context.Context, id Identity) error {
	if id.UserID == "" {
		return domain.ErrUnauthenticated
	}
	return a.withVaults(ctx, func(svc *vault.Service) error {
		v, err := svc.GetVault(ctx, id.UserID)
		if err != nil {
			return err
		}
		printVault(a, v)
		return nil
	})
}

// SetProfile stores the strategy profile on the caller's vault.
func (a *App) SetProfile(ctx context.Context, id Identity, raw string) error {
	if err := requireIdentity(id); err != nil {
		return err
	}
	profile, err := domain.ParseProfile(raw)
	if err != nil {
		return err
	}
	return a.withVaults(ctx, func(svc *vault.Service) error {
		v, err := svc.SetProfile(ctx, id.UserID, id.WalletAddress, profile)
		if err != nil {
			return err
		}
		printVault(a, v)
		return nil
	})
}

func printVault(a *App, v domain.Vault) {
	w := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Vault\t%s\n", v.ID)
	fmt.Fprintf(w, "Wallet\t%s\n", v.WalletAddress)
	fmt.Fprintf(w, "Balance\t%s USDC\n", domain.FormatUSDC(v.Balance))
	fmt.Fprintf(w, "Strategy\t%s\n", v.StrategyProfile)
	fmt.Fprintf(w, "Guardian\t%s\n", onOff(v.GuardianEnabled))
	fmt.Fprintf(w, "Updated\t%s\n", v.UpdatedAt.UTC().Format(time.RFC3339))
	w.Flush()
}

// History prints the newest transactions of the caller's wallet.
func (a *App) History(ctx context.Context, id Identity, opts ListOptions) error {
	if id.WalletAddress == "" {
		return domain.NewValidationError("wallet", "Wallet address is required")
	}
	return a.withVaults(ctx, func(svc *vault.Service) error {
		entries, err := svc.History(ctx, id.WalletAddress, opts.Limit)
		if err != nil {
			return err
		}
		if opts.JSON {
			return writeJSON(a, entries)
		}
		if len(entries) == 0 {
			fmt.Fprintln(a.Out, "no transactions found")
			return nil
		}
		w := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "Time (UTC)\tType\tDescription\tAmount\tStatus")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				e.Timestamp.UTC().Format(time.RFC3339), e.Type, e.Description, e.Amount, e.Status)
		}
		w.Flush()
		return nil
	})
}

func writeJSON(a *App, v any) error {
	enc := json.NewEncoder(a.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
