package oracle

import (
	"context"
	"time"

	"PoolSettle/internal/interfaces"

	"github.com/sirupsen/logrus"
)

// PriceCache 历史价格缓存
type PriceCache interface {
	Get(ctx context.Context, asset string, at time.Time) (float64, bool, error)
	Set(ctx context.Context, asset string, at time.Time, price float64) error
}

// CachedOracle 为 GetPriceNear 增加缓存；缓存读写失败只记录日志，不影响取价
type CachedOracle struct {
	interfaces.PriceOracle
	cache  PriceCache
	logger *logrus.Logger
}

func NewCachedOracle(next interfaces.PriceOracle, cache PriceCache, logger *logrus.Logger) *CachedOracle {
	return &CachedOracle{PriceOracle: next, cache: cache, logger: logger}
}

func (o *CachedOracle) GetPriceNear(ctx context.Context, assetID string, at time.Time) (float64, error) {
	price, ok, err := o.cache.Get(ctx, assetID, at)
	if err != nil {
		o.logger.WithError(err).WithField("asset", assetID).Warn("读取价格缓存失败")
	} else if ok {
		return price, nil
	}

	price, err = o.PriceOracle.GetPriceNear(ctx, assetID, at)
	if err != nil {
		return 0, err
	}
	if err := o.cache.Set(ctx, assetID, at, price); err != nil {
		o.logger.WithError(err).WithField("asset", assetID).Warn("写入价格缓存失败")
	}
	return price, nil
}
