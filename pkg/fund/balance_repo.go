// 文件: pkg/fund/balance_repo.go
// 账本模块 - 现金余额仓库 (GORM 实现)
//
// 核心约束: 所有变更都是单行条件写
// - Debit 的 WHERE 子句自带 amount >= ? 守卫, RowsAffected = 0 即拒绝
// - 守卫在写入时刻生效, 即使调用方校验用的是过期读数, 余额也不会为负

package fund

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BalanceRepo 现金余额仓库
type BalanceRepo struct {
	db *gorm.DB
}

// NewBalanceRepo 创建现金余额仓库
func NewBalanceRepo(db *gorm.DB) *BalanceRepo {
	return &BalanceRepo{db: db}
}

// Get 查询用户余额, 不存在返回 nil
func (r *BalanceRepo) Get(ctx context.Context, username string) (*BalanceRecord, error) {
	var record BalanceRecord
	err := r.db.WithContext(ctx).
		Where("username = ?", username).
		First(&record).Error

	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// Credit 入账 (充值 / 卖单收款)
// 记录不存在则创建, 返回变更后余额
func (r *BalanceRepo) Credit(ctx context.Context, username string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	record := &BalanceRecord{
		Username:  username,
		Amount:    amount,
		Version:   1,
		UpdatedAt: time.Now(),
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "username"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"amount":     gorm.Expr("amount + ?", amount),
				"version":    gorm.Expr("version + 1"),
				"updated_at": time.Now(),
			}),
		}).
		Create(record).Error
	if err != nil {
		return 0, err
	}

	return r.currentAmount(ctx, username)
}

// Debit 出账 (提现 / 买单付款)
// 条件写: 余额不足或记录不存在都不会产生任何变更
func (r *BalanceRepo) Debit(ctx context.Context, username string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	result := r.db.WithContext(ctx).
		Model(&BalanceRecord{}).
		Where("username = ? AND amount >= ?", username, amount).
		Updates(map[string]interface{}{
			"amount":     gorm.Expr("amount - ?", amount),
			"version":    gorm.Expr("version + 1"),
			"updated_at": time.Now(),
		})

	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected == 0 {
		return 0, ErrInsufficientFunds
	}

	return r.currentAmount(ctx, username)
}

// currentAmount 变更后再读一次
// 调用方持有用户锁, 两步之间不会有其他写入者
func (r *BalanceRepo) currentAmount(ctx context.Context, username string) (int64, error) {
	record, err := r.Get(ctx, username)
	if err != nil {
		return 0, err
	}
	if record == nil {
		return 0, gorm.ErrRecordNotFound
	}
	return record.Amount, nil
}
