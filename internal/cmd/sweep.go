package cmd

import (
	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "立即执行一次自动结算扫描",
	Long:  `获取全局锁后扫描已过收盘宽限期的自动结算市场。锁被其他进程持有时输出空列表。`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, closeApp, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer closeApp()
		results, err := app.AutoResolve.RunSweep(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), results)
	},
}

func SweepCommand() *cobra.Command {
	return sweepCmd
}
