package cmd

import (
	"PoolSettle/internal/bootstrap"
	"PoolSettle/internal/config"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "创建或更新数据库表结构",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.LoadConfigFrom(configDir)
		if err != nil {
			return err
		}
		logger := bootstrap.NewLogger(cfg.Log)
		db, err := bootstrap.OpenDatabase(cfg.Database, logger)
		if err != nil {
			return err
		}
		if sqlDB, err := db.DB(); err == nil {
			defer sqlDB.Close()
		}
		if err := bootstrap.Migrate(db); err != nil {
			return err
		}
		logger.Info("数据库表结构检查完成")
		return nil
	},
}

func MigrateCommand() *cobra.Command {
	return migrateCmd
}
