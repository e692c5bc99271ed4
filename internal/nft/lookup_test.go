package nft

import (
	"context"
	"errors"
	"io"
	"math/big"
	"testing"
	"time"

	"PoolSettle/internal/config"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

const (
	silver = "0x1111111111111111111111111111111111111111"
	gold   = "0x2222222222222222222222222222222222222222"
	holder = "0x00000000000000000000000000000000000000aa"
)

// fakeCaller 按合约地址返回余额
type fakeCaller struct {
	balances map[common.Address]int64
	err      error
	calls    int
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	l, _ := NewLookup(nil, nil, config.NFTConfig{}, nil)
	return l.erc721.Methods["balanceOf"].Outputs.Pack(big.NewInt(f.balances[*msg.To]))
}

func newTestLookup(t *testing.T, primary, fallback ContractCaller) *Lookup {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	l, err := NewLookup(primary, fallback, config.NFTConfig{
		Timeout:         time.Second,
		FallbackTimeout: time.Second,
		MaxMultiplier:   2,
		Collections: []config.NFTCollection{
			{Address: silver, Multiplier: 1.5},
			{Address: gold, Multiplier: 2.5},
		},
	}, logger)
	if err != nil {
		t.Fatalf("NewLookup: %v", err)
	}
	return l
}

func TestGetMultiplier(t *testing.T) {
	cases := []struct {
		name     string
		balances map[common.Address]int64
		want     float64
	}{
		{"none", map[common.Address]int64{}, 1},
		{"silver", map[common.Address]int64{common.HexToAddress(silver): 1}, 1.5},
		{"gold capped", map[common.Address]int64{common.HexToAddress(silver): 3, common.HexToAddress(gold): 1}, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l := newTestLookup(t, &fakeCaller{balances: tc.balances}, nil)
			got, err := l.GetMultiplier(context.Background(), holder)
			if err != nil {
				t.Fatalf("GetMultiplier: %v", err)
			}
			if got != tc.want {
				t.Errorf("multiplier = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestGetMultiplierInvalidAddress(t *testing.T) {
	primary := &fakeCaller{}
	got, err := newTestLookup(t, primary, nil).GetMultiplier(context.Background(), "not-an-address")
	if err != nil || got != 1 {
		t.Fatalf("GetMultiplier = %v, %v; want 1, nil", got, err)
	}
	if primary.calls != 0 {
		t.Errorf("rpc called %d times for invalid address", primary.calls)
	}
}

func TestGetMultiplierFallback(t *testing.T) {
	primary := &fakeCaller{err: errors.New("primary down")}
	fallback := &fakeCaller{balances: map[common.Address]int64{common.HexToAddress(silver): 1}}
	got, err := newTestLookup(t, primary, fallback).GetMultiplier(context.Background(), holder)
	if err != nil {
		t.Fatalf("GetMultiplier: %v", err)
	}
	if got != 1.5 || fallback.calls == 0 {
		t.Errorf("multiplier = %v, fallback calls = %d", got, fallback.calls)
	}
}

func TestGetMultiplierBothFail(t *testing.T) {
	primary := &fakeCaller{err: errors.New("primary down")}
	fallback := &fakeCaller{err: errors.New("fallback down")}
	if _, err := newTestLookup(t, primary, fallback).GetMultiplier(context.Background(), holder); err == nil {
		t.Fatal("expected error when both rpcs fail")
	}
}

func TestNewLookupRejectsBadCollection(t *testing.T) {
	_, err := NewLookup(nil, nil, config.NFTConfig{Collections: []config.NFTCollection{{Address: "0x12", Multiplier: 2}}}, nil)
	if err == nil {
		t.Fatal("expected error for invalid collection address")
	}
}

func TestStatic(t *testing.T) {
	if m, _ := Static(0).GetMultiplier(context.Background(), holder); m != 1 {
		t.Errorf("Static(0) = %v", m)
	}
	if m, _ := Static(1.25).GetMultiplier(context.Background(), holder); m != 1.25 {
		t.Errorf("Static(1.25) = %v", m)
	}
}
