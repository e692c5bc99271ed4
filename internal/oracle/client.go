// Package oracle 价格预言机客户端（CoinGecko 兼容 API）
package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"PoolSettle/internal/config"
	"PoolSettle/internal/utils/httpclient"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// ErrNoPriceData 容差窗口内没有价格点
var ErrNoPriceData = errors.New("oracle: no price data in tolerance window")

const apiKeyHeader = "x-cg-pro-api-key"

// Client 带退避重试的 HTTP 价格客户端，429/5xx 与网络错误会重试，其余错误立即返回
type Client struct {
	baseURL        string
	apiKey         string
	httpClient     *http.Client
	maxRetries     int
	initialBackoff time.Duration
	tolerance      time.Duration
	logger         *logrus.Logger
}

// NewClient 创建预言机客户端
func NewClient(cfg config.OracleConfig, logger *logrus.Logger) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:         cfg.APIKey,
		httpClient:     httpclient.NewHTTPClient(httpclient.Options{Timeout: cfg.Timeout, Proxy: cfg.Proxy}, logger),
		maxRetries:     cfg.MaxRetries,
		initialBackoff: cfg.InitialBackoff,
		tolerance:      cfg.Tolerance,
		logger:         logger,
	}
	if c.initialBackoff <= 0 {
		c.initialBackoff = 500 * time.Millisecond
	}
	if c.tolerance <= 0 {
		c.tolerance = 30 * time.Minute
	}
	return c
}

// statusError 非 2xx 响应
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("oracle: status %d: %s", e.code, e.body)
}

func retryable(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// GetPriceNear 在 [at-tolerance, at+tolerance] 内取距离 at 最近的价格点
func (c *Client) GetPriceNear(ctx context.Context, assetID string, at time.Time) (float64, error) {
	endpoint := c.SourceURL(assetID, at)

	var chart struct {
		Prices [][2]float64 `json:"prices"`
	}
	if err := c.getJSON(ctx, endpoint, &chart); err != nil {
		return 0, err
	}
	return nearestPrice(chart.Prices, at, c.tolerance)
}

// nearestPrice 价格点格式为 [毫秒时间戳, 价格]
func nearestPrice(points [][2]float64, at time.Time, tolerance time.Duration) (float64, error) {
	target := float64(at.UnixMilli())
	limit := float64(tolerance.Milliseconds())
	best, bestDist := 0.0, math.Inf(1)
	for _, p := range points {
		dist := math.Abs(p[0] - target)
		if dist <= limit && dist < bestDist {
			best, bestDist = p[1], dist
		}
	}
	if math.IsInf(bestDist, 1) {
		return 0, ErrNoPriceData
	}
	return best, nil
}

// GetCurrentPrice 当前美元价格
func (c *Client) GetCurrentPrice(ctx context.Context, assetID string) (float64, error) {
	q := url.Values{}
	q.Set("ids", assetID)
	q.Set("vs_currencies", "usd")
	endpoint := fmt.Sprintf("%s/simple/price?%s", c.baseURL, q.Encode())

	var prices map[string]map[string]float64
	if err := c.getJSON(ctx, endpoint, &prices); err != nil {
		return 0, err
	}
	p, ok := prices[assetID]["usd"]
	if !ok {
		return 0, ErrNoPriceData
	}
	return p, nil
}

// SourceURL 可审计的价格来源（不含 API Key）
func (c *Client) SourceURL(assetID string, at time.Time) string {
	q := url.Values{}
	q.Set("vs_currency", "usd")
	q.Set("from", strconv.FormatInt(at.Add(-c.tolerance).Unix(), 10))
	q.Set("to", strconv.FormatInt(at.Add(c.tolerance).Unix(), 10))
	return fmt.Sprintf("%s/coins/%s/market_chart/range?%s", c.baseURL, url.PathEscape(assetID), q.Encode())
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialBackoff
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(max(c.maxRetries, 0))), ctx)

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")
		if c.apiKey != "" {
			req.Header.Set(apiKeyHeader, c.apiKey)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			serr := &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(body))}
			if retryable(resp.StatusCode) {
				return serr
			}
			return backoff.Permanent(serr)
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return backoff.Permanent(fmt.Errorf("oracle: decode response: %w", err))
		}
		return nil
	}
	notify := func(err error, wait time.Duration) {
		c.logger.WithError(err).WithField("wait", wait.String()).Warn("预言机请求失败，准备重试")
	}
	return backoff.RetryNotify(op, policy, notify)
}
