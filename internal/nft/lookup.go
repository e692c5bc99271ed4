// Package nft 通过 ERC-721 balanceOf 查询钱包持有的 NFT，换算奖励倍数
package nft

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"PoolSettle/internal/config"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"
)

const erc721BalanceOfABI = `[
	{"name":"balanceOf","type":"function","stateMutability":"view",
	 "inputs":[{"name":"owner","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]}
]`

// ContractCaller 只读合约调用，*ethclient.Client 满足该接口
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

type collection struct {
	address    common.Address
	multiplier float64
}

// Lookup 实现 interfaces.NFTMultiplierLookup。主 RPC 失败时走备用 RPC（更短超时）
type Lookup struct {
	primary         ContractCaller
	fallback        ContractCaller
	primaryTimeout  time.Duration
	fallbackTimeout time.Duration
	collections     []collection
	maxMultiplier   float64
	erc721          abi.ABI
	logger          *logrus.Logger
}

// NewLookup fallback 可为 nil
func NewLookup(primary, fallback ContractCaller, cfg config.NFTConfig, logger *logrus.Logger) (*Lookup, error) {
	parsed, err := abi.JSON(strings.NewReader(erc721BalanceOfABI))
	if err != nil {
		return nil, fmt.Errorf("parse erc721 abi: %w", err)
	}
	l := &Lookup{
		primary:         primary,
		fallback:        fallback,
		primaryTimeout:  cfg.Timeout,
		fallbackTimeout: cfg.FallbackTimeout,
		maxMultiplier:   cfg.MaxMultiplier,
		erc721:          parsed,
		logger:          logger,
	}
	if l.primaryTimeout <= 0 {
		l.primaryTimeout = 4 * time.Second
	}
	if l.fallbackTimeout <= 0 {
		l.fallbackTimeout = 2 * time.Second
	}
	for _, c := range cfg.Collections {
		if !common.IsHexAddress(c.Address) {
			return nil, fmt.Errorf("invalid nft collection address %q", c.Address)
		}
		l.collections = append(l.collections, collection{address: common.HexToAddress(c.Address), multiplier: c.Multiplier})
	}
	return l, nil
}

// Dial 连接主/备 RPC，返回的 closer 负责关闭连接
func Dial(ctx context.Context, cfg config.NFTConfig, logger *logrus.Logger) (*Lookup, func(), error) {
	if cfg.RPCURL == "" {
		return nil, nil, errors.New("nft rpc_url 未配置")
	}
	primary, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, nil, fmt.Errorf("dial rpc: %w", err)
	}
	closers := []func(){primary.Close}
	var fallback ContractCaller
	if cfg.FallbackRPCURL != "" {
		fb, err := ethclient.DialContext(ctx, cfg.FallbackRPCURL)
		if err != nil {
			logger.WithError(err).Warn("备用 RPC 连接失败，仅使用主 RPC")
		} else {
			fallback = fb
			closers = append(closers, fb.Close)
		}
	}
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}
	l, err := NewLookup(primary, fallback, cfg, logger)
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	return l, closeAll, nil
}

// GetMultiplier 取持有合约中最高的倍数并按上限截断；未持有或地址无效返回 1
func (l *Lookup) GetMultiplier(ctx context.Context, walletAddress string) (float64, error) {
	if !common.IsHexAddress(walletAddress) {
		return 1, nil
	}
	owner := common.HexToAddress(walletAddress)
	best := 1.0
	for _, c := range l.collections {
		if c.multiplier <= best {
			continue
		}
		held, err := l.holds(ctx, c.address, owner)
		if err != nil {
			return 0, fmt.Errorf("balanceOf %s: %w", c.address.Hex(), err)
		}
		if held {
			best = c.multiplier
		}
	}
	if l.maxMultiplier > 1 && best > l.maxMultiplier {
		best = l.maxMultiplier
	}
	return best, nil
}

func (l *Lookup) holds(ctx context.Context, contract, owner common.Address) (bool, error) {
	data, err := l.erc721.Pack("balanceOf", owner)
	if err != nil {
		return false, err
	}
	msg := ethereum.CallMsg{To: &contract, Data: data}

	raw, err := l.call(ctx, l.primary, l.primaryTimeout, msg)
	if err != nil && l.fallback != nil {
		l.logger.WithError(err).WithField("contract", contract.Hex()).Debug("主 RPC 查询失败，使用备用 RPC")
		raw, err = l.call(ctx, l.fallback, l.fallbackTimeout, msg)
	}
	if err != nil {
		return false, err
	}

	out, err := l.erc721.Unpack("balanceOf", raw)
	if err != nil {
		return false, fmt.Errorf("unpack balanceOf: %w", err)
	}
	balance, ok := out[0].(*big.Int)
	if !ok {
		return false, fmt.Errorf("unexpected balanceOf output %T", out[0])
	}
	return balance.Sign() > 0, nil
}

func (l *Lookup) call(ctx context.Context, caller ContractCaller, timeout time.Duration, msg ethereum.CallMsg) ([]byte, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return caller.CallContract(callCtx, msg, nil)
}

// Static 固定倍数，未配置 RPC 时使用
type Static float64

func (s Static) GetMultiplier(context.Context, string) (float64, error) {
	if s < 1 {
		return 1, nil
	}
	return float64(s), nil
}
