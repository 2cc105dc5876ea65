package cli

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"aether-vault/internal/app"
)

var (
	listLimit  int
	listJSON   bool
	listFilter string

	recommendProfile string

	predictPool       string
	predictSpike      bool
	predictConfidence string

	tokenTTL time.Duration
)

var poolsCmd = &cobra.Command{
	Use:   "pools",
	Short: "List high-liquidity AMM pools",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Pools(cmd.Context(), app.ListOptions{JSON: listJSON})
	},
}

var recommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Ask the AI agent for a strategy over the current pools",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Recommend(cmd.Context(), recommendProfile, listJSON)
	},
}

var riskEventsCmd = &cobra.Command{
	Use:   "risk-events",
	Short: "Display recent guardian risk events",
	RunE: func(cmd *cobra.Command, args []string) error {
		if listLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}
		return getApp().RiskEvents(cmd.Context(), app.ListOptions{Limit: listLimit, JSON: listJSON})
	},
}

var predictionsCmd = &cobra.Command{
	Use:   "predictions",
	Short: "Display AI volume-spike predictions and accuracy",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Predictions(cmd.Context(), app.ListOptions{Filter: listFilter, JSON: listJSON})
	},
}

var predictionsRecordCmd = &cobra.Command{
	Use:   "record",
	Short: "Store a new prediction",
	RunE: func(cmd *cobra.Command, args []string) error {
		confidence, err := decimal.NewFromString(predictConfidence)
		if err != nil {
			return fmt.Errorf("invalid --confidence value: %w", err)
		}
		return getApp().RecordPrediction(cmd.Context(), predictPool, predictSpike, confidence)
	},
}

var walletCmd = &cobra.Command{
	Use:   "wallet ADDRESS",
	Short: "Show the on-chain SOL balance of a wallet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().WalletBalance(cmd.Context(), args[0])
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a development bearer token for the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		tok, err := getApp().IssueToken(identity(), tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	for _, cmd := range []*cobra.Command{poolsCmd, recommendCmd, riskEventsCmd, predictionsCmd} {
		cmd.Flags().BoolVar(&listJSON, "json", false, "Print JSON instead of a table")
	}
	riskEventsCmd.Flags().IntVar(&listLimit, "limit", 10, "Number of events to display")
	predictionsCmd.Flags().StringVar(&listFilter, "filter", "all", "all, success or miss")
	recommendCmd.Flags().StringVar(&recommendProfile, "profile", "balanced", "Strategy profile")

	predictionsRecordCmd.Flags().StringVar(&predictPool, "pool", "", "Pool id")
	predictionsRecordCmd.Flags().BoolVar(&predictSpike, "spike", true, "Whether a volume spike is predicted")
	predictionsRecordCmd.Flags().StringVar(&predictConfidence, "confidence", "0", "Confidence score 0-100")
	predictionsCmd.AddCommand(predictionsRecordCmd)

	addIdentityFlags(tokenCmd)
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "Token lifetime (defaults to auth.token_ttl)")
}
