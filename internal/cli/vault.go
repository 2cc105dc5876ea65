package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"aether-vault/internal/app"
)

// identity flags shared by the vault commands
var (
	userID        string
	walletAddress string
	onboardReset  bool
	historyLimit  int
	historyJSON   bool
)

func identity() app.Identity {
	return app.Identity{UserID: userID, WalletAddress: walletAddress}
}

func addIdentityFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&userID, "user", "", "Owner user id")
	cmd.Flags().StringVar(&walletAddress, "wallet", "", "Connected wallet address")
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Walk through strategy, guardian and initial deposit setup",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Onboard(cmd.Context(), cmd.InOrStdin(), app.OnboardOptions{
			Identity: identity(),
			Reset:    onboardReset,
		})
	},
}

var depositCmd = &cobra.Command{
	Use:   "deposit AMOUNT",
	Short: "Deposit USDC into the vault",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Deposit(cmd.Context(), identity(), args[0])
	},
}

var withdrawCmd = &cobra.Command{
	Use:   "withdraw AMOUNT",
	Short: "Withdraw USDC from the vault",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Withdraw(cmd.Context(), identity(), args[0])
	},
}

var vaultCmd = &cobra.Command{
	Use:   "vault",
	Short: "Show the vault balance and preferences",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ShowVault(cmd.Context(), identity())
	},
}

var profileCmd = &cobra.Command{
	Use:       "profile conservative|balanced|aggressive",
	Short:     "Change the strategy profile",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"conservative", "balanced", "aggressive"},
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().SetProfile(cmd.Context(), identity(), args[0])
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent vault transactions",
	RunE: func(cmd *cobra.Command, args []string) error {
		if historyLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}
		return getApp().History(cmd.Context(), identity(), app.ListOptions{Limit: historyLimit, JSON: historyJSON})
	},
}

func init() {
	for _, cmd := range []*cobra.Command{onboardCmd, depositCmd, withdrawCmd, vaultCmd, profileCmd, historyCmd} {
		addIdentityFlags(cmd)
	}
	onboardCmd.Flags().BoolVar(&onboardReset, "reset", false, "Show onboarding again even if already completed")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 10, "Number of transactions to display")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Print JSON instead of a table")
}
