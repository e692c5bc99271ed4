package repository

import (
	"context"

	"PoolSettle/internal/model"

	"gorm.io/gorm"
)

// UserRepository 用户（钱包地址）
type UserRepository interface {
	Create(ctx context.Context, u *model.User) error
	WalletsByIDs(ctx context.Context, ids []uint64) (map[uint64]string, error)
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository 创建用户仓储
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, u *model.User) error {
	return r.db.WithContext(ctx).Create(u).Error
}

// WalletsByIDs 批量查询钱包地址，缺失的用户不出现在结果中
func (r *userRepository) WalletsByIDs(ctx context.Context, ids []uint64) (map[uint64]string, error) {
	out := make(map[uint64]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var users []*model.User
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	for _, u := range users {
		out[u.ID] = u.WalletAddress
	}
	return out, nil
}
