// Package cmd 命令行子命令：serve / migrate / resolve / bonus / payouts / sweep
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"PoolSettle/internal/bootstrap"
	"PoolSettle/internal/config"

	"github.com/spf13/cobra"
)

var configDir string

// AddGlobalFlags 注册所有子命令共用的参数
func AddGlobalFlags(root *cobra.Command) {
	root.PersistentFlags().StringVar(&configDir, "config", "./config", "config.yaml 所在目录")
}

// openApp 加载配置、连接数据库并装配服务，调用方负责 Close
func openApp(ctx context.Context, migrate bool) (*bootstrap.App, func(), error) {
	cfg, err := config.LoadConfigFrom(configDir)
	if err != nil {
		return nil, nil, err
	}
	logger := bootstrap.NewLogger(cfg.Log)
	db, err := bootstrap.OpenDatabase(cfg.Database, logger)
	if err != nil {
		return nil, nil, err
	}
	closeDB := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if migrate {
		if err := bootstrap.Migrate(db); err != nil {
			closeDB()
			return nil, nil, err
		}
	}
	app, err := bootstrap.BuildApp(ctx, cfg, db, logger)
	if err != nil {
		closeDB()
		return nil, nil, err
	}
	return app, func() {
		app.Close()
		closeDB()
	}, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("输出结果失败: %w", err)
	}
	return nil
}
