// Package bootstrap 负责按配置装配数据库、外部依赖、服务与路由
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"PoolSettle/internal/api"
	"PoolSettle/internal/archive"
	rediscache "PoolSettle/internal/cache/redis"
	"PoolSettle/internal/config"
	"PoolSettle/internal/interfaces"
	"PoolSettle/internal/nft"
	"PoolSettle/internal/oracle"
	"PoolSettle/internal/repository"
	"PoolSettle/internal/scheduler"
	"PoolSettle/internal/service"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// App 进程内共享的服务集合
type App struct {
	Config      *config.Config
	DB          *gorm.DB
	Logger      *logrus.Logger
	Bets        *service.BetService
	Resolver    *service.ResolutionService
	Bonuses     *service.BonusService
	AutoResolve *service.AutoResolveService
	Scheduler   *scheduler.AutoResolveScheduler

	closers []func()
}

// BuildApp 装配全部服务。Redis 不可用时降级为直连预言机与日志徽章触发
func BuildApp(ctx context.Context, cfg *config.Config, db *gorm.DB, logger *logrus.Logger) (*App, error) {
	app := &App{Config: cfg, DB: db, Logger: logger}

	markets := repository.NewMarketRepository(db)
	bets := repository.NewBetRepository(db)
	stats := repository.NewStatsRepository(db)
	points := repository.NewPointsRepository(db)
	wins := repository.NewWinRecordRepository(db)
	referrals := repository.NewReferralRepository(db)
	users := repository.NewUserRepository(db)
	locks := repository.NewLockRepository(db)

	var (
		priceOracle interfaces.PriceOracle = oracle.NewClient(cfg.Oracle, logger)
		badges      interfaces.BadgeTrigger = service.NewLogBadgeTrigger(logger)
	)
	if cfg.Redis.Enabled {
		rc, err := rediscache.New(ctx, cfg.Redis)
		if err != nil {
			logger.WithError(err).Warn("Redis 不可用，价格缓存与徽章事件已降级")
		} else {
			app.closers = append(app.closers, func() { _ = rc.Close() })
			priceOracle = oracle.NewCachedOracle(priceOracle, rediscache.NewPriceCache(rc, cfg.Oracle.CacheTTL), logger)
			badges = rediscache.NewBadgePublisher(rc)
		}
	}

	var lookup interfaces.NFTMultiplierLookup = nft.Static(1)
	if cfg.NFT.RPCURL != "" {
		l, closeFn, err := nft.Dial(ctx, cfg.NFT, logger)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("连接 NFT RPC 失败: %w", err)
		}
		app.closers = append(app.closers, closeFn)
		lookup = l
	} else {
		logger.Warn("nft.rpc_url 未配置，NFT 倍数固定为 1")
	}

	var archiver interfaces.SettlementArchiver
	if cfg.Archive.Enabled {
		a, err := archive.NewS3Archiver(ctx, cfg.Archive, logger)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("初始化结算归档失败: %w", err)
		}
		archiver = a
	}

	app.Bets = service.NewBetService(db, markets, bets, stats, points, referrals, logger)
	app.Resolver = service.NewResolutionService(db, markets, bets, points, wins, referrals, badges, archiver, cfg.Settlement, logger)
	app.Bonuses = service.NewBonusService(db, markets, wins, points, users, lookup, cfg.Settlement, cfg.NFT, logger)
	app.AutoResolve = service.NewAutoResolveService(locks, markets, priceOracle, app.Resolver, app.Bonuses, cfg.AutoResolve, logger)
	app.Scheduler = scheduler.NewAutoResolveScheduler(app.AutoResolve, cfg.AutoResolve.Cron, cfg.AutoResolve.LockTTL+30*time.Second, logger)
	return app, nil
}

// NewRouter 注册全部 HTTP 路由
func (a *App) NewRouter() *gin.Engine {
	gin.SetMode(a.Config.Server.Mode)
	r := gin.New()
	r.Use(gin.Recovery(), api.AccessLog(a.Logger), api.RequestTimeout(a.Config.Server.RequestTimeout))

	// pprof 方便排查性能问题
	pprof.Register(r)

	api.RegisterHealth(r, a.DB)
	api.NewBetHandler(a.Bets, a.Logger).Register(r)
	api.NewSettlementHandler(a.Resolver, a.Bonuses, a.AutoResolve, a.Logger).Register(r)
	return r
}

// Close 逆序释放外部连接
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
