package main

import (
	"fmt"
	"os"

	"PoolSettle/internal/cmd"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "poolsettle",
	Short: "积分制预测市场：下注、结算派彩与自动结算",
	Long: `poolsettle 提供彩池制 YES/NO 预测市场的下注、赔率查询、手动/自动结算、
推荐佣金与 NFT 持有加成。serve 启动 HTTP 服务，其余子命令用于运维。`,
	SilenceUsage: true,
}

func init() {
	cmd.AddGlobalFlags(rootCmd)

	rootCmd.AddCommand(cmd.ServeCommand())
	rootCmd.AddCommand(cmd.MigrateCommand())
	rootCmd.AddCommand(cmd.ResolveCommand())
	rootCmd.AddCommand(cmd.BonusCommand())
	rootCmd.AddCommand(cmd.PayoutsCommand())
	rootCmd.AddCommand(cmd.SweepCommand())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
