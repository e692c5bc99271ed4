package model

import (
	"encoding/json"

	"gorm.io/datatypes"
)

// TxMetadata 积分流水 metadata 字段，JSON key 保持与前端/历史数据一致
type TxMetadata struct {
	MarketID        uint64   `json:"marketId,omitempty"`
	BetID           uint64   `json:"betId,omitempty"`
	Outcome         *bool    `json:"outcome,omitempty"`
	BetAmount       int64    `json:"betAmount,omitempty"`
	PreviousAmount  int64    `json:"previousAmount,omitempty"`
	BasePayout      int64    `json:"basePayout,omitempty"`
	OriginalPayout  int64    `json:"originalPayout,omitempty"`
	NFTBonusPending *bool    `json:"nftBonusPending,omitempty"`
	NFTMultiplier   *float64 `json:"nftMultiplier,omitempty"`
	NFTBonusApplied *bool    `json:"nftBonusApplied,omitempty"`
	NFTBonusAmount  int64    `json:"nftBonusAmount,omitempty"`
	NFTBonusError   string   `json:"nftBonusError,omitempty"`
	ReferralCode    string   `json:"referralCode,omitempty"`
	ReferredUserID  uint64   `json:"referredUserId,omitempty"`
	Profit          int64    `json:"profit,omitempty"`
}

// JSON 序列化为 datatypes.JSON
func (m TxMetadata) JSON() datatypes.JSON {
	b, _ := json.Marshal(m)
	return datatypes.JSON(b)
}

// ParseTxMetadata 解析流水 metadata，空值返回零值
func ParseTxMetadata(raw datatypes.JSON) (TxMetadata, error) {
	var m TxMetadata
	if len(raw) == 0 {
		return m, nil
	}
	err := json.Unmarshal(raw, &m)
	return m, err
}

// BoolPtr 便于构造可选布尔字段
func BoolPtr(v bool) *bool { return &v }
