package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	marketID    uint64
	outcomeFlag string
	resolvedBy  string
	skipBonus   bool
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "手动结算市场并派彩",
	Long: `手动结算指定市场：抢占结算权、分批派彩、写入推荐佣金。
默认随后同步执行 NFT 加成，--skip-bonus 可跳过。`,
	RunE: runResolve,
}

var bonusCmd = &cobra.Command{
	Use:   "bonus",
	Short: "对已结算市场执行（或重试）NFT 加成",
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, closeApp, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer closeApp()
		res, err := app.Bonuses.ApplyBonuses(cmd.Context(), marketID)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

var payoutsCmd = &cobra.Command{
	Use:   "payouts",
	Short: "补发已结算市场中失败批次的派彩",
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, closeApp, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer closeApp()
		res, err := app.Resolver.RetryPayouts(cmd.Context(), marketID)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

func init() {
	for _, c := range []*cobra.Command{resolveCmd, bonusCmd, payoutsCmd} {
		c.Flags().Uint64Var(&marketID, "market", 0, "市场 ID")
		_ = c.MarkFlagRequired("market")
	}
	resolveCmd.Flags().StringVar(&outcomeFlag, "outcome", "", "结果：yes 或 no")
	resolveCmd.Flags().StringVar(&resolvedBy, "by", "", "操作人")
	resolveCmd.Flags().BoolVar(&skipBonus, "skip-bonus", false, "结算后不执行 NFT 加成")
	_ = resolveCmd.MarkFlagRequired("outcome")
	_ = resolveCmd.MarkFlagRequired("by")
}

func parseOutcomeFlag(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes":
		return true, nil
	case "no":
		return false, nil
	}
	return false, fmt.Errorf("--outcome 必须为 yes 或 no，收到 %q", s)
}

func runResolve(cmd *cobra.Command, _ []string) error {
	outcome, err := parseOutcomeFlag(outcomeFlag)
	if err != nil {
		return err
	}
	app, closeApp, err := openApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer closeApp()

	res, err := app.Resolver.ResolveMarket(cmd.Context(), marketID, outcome, resolvedBy)
	if err != nil {
		return err
	}
	if err := printJSON(cmd.OutOrStdout(), res); err != nil {
		return err
	}
	if skipBonus {
		return nil
	}
	bonus, err := app.Bonuses.ApplyBonuses(cmd.Context(), marketID)
	if err != nil {
		return fmt.Errorf("结算已完成，NFT 加成失败（可用 bonus 子命令重试）: %w", err)
	}
	return printJSON(cmd.OutOrStdout(), bonus)
}

func ResolveCommand() *cobra.Command {
	return resolveCmd
}

func BonusCommand() *cobra.Command {
	return bonusCmd
}

func PayoutsCommand() *cobra.Command {
	return payoutsCmd
}
