package cli

import (
	"github.com/spf13/cobra"
)

var guardianJSON bool

var guardianCmd = &cobra.Command{
	Use:   "guardian",
	Short: "Guardian Mode: SOL price risk monitoring",
}

var guardianRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Poll for risk while the local guardian toggle is on",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().RunGuardian(cmd.Context())
	},
}

var guardianCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Run one risk check",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().CheckRisk(cmd.Context(), guardianJSON)
	},
}

var guardianEnableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Turn Guardian Mode on for this device",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().SetLocalGuardian(cmd.Context(), true)
	},
}

var guardianDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Turn Guardian Mode off for this device",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().SetLocalGuardian(cmd.Context(), false)
	},
}

var guardianStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the local guardian and onboarding flags",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().GuardianStatus(cmd.Context())
	},
}

func init() {
	guardianCheckCmd.Flags().BoolVar(&guardianJSON, "json", false, "Print JSON")
	guardianCmd.AddCommand(guardianRunCmd, guardianCheckCmd, guardianEnableCmd, guardianDisableCmd, guardianStatusCmd)
}
