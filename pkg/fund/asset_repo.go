// 文件: pkg/fund/asset_repo.go
// 账本模块 - 资产余额仓库 (GORM 实现)
//
// 与现金仓库同一套守卫语义:
// - Credit 首笔写入建行, 增量必须为正 (不能卖出从未买入的资产)
// - Debit 条件写, quantity >= ? 不满足即拒绝

package fund

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AssetRepo 资产余额仓库
type AssetRepo struct {
	db *gorm.DB
}

// NewAssetRepo 创建资产余额仓库
func NewAssetRepo(db *gorm.DB) *AssetRepo {
	return &AssetRepo{db: db}
}

// Get 查询用户单资产余额, 不存在返回 nil
func (r *AssetRepo) Get(ctx context.Context, username, asset string) (*AssetBalanceRecord, error) {
	var record AssetBalanceRecord
	err := r.db.WithContext(ctx).
		Where("username = ? AND asset = ?", username, asset).
		First(&record).Error

	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// GetAllByUser 查询用户全部资产余额
func (r *AssetRepo) GetAllByUser(ctx context.Context, username string) ([]*AssetBalanceRecord, error) {
	var records []*AssetBalanceRecord
	err := r.db.WithContext(ctx).
		Where("username = ?", username).
		Order("asset ASC").
		Find(&records).Error
	return records, err
}

// Credit 增加资产 (买入成交)
// 记录不存在则创建 (首次买入), 返回变更后数量
func (r *AssetRepo) Credit(ctx context.Context, username, asset string, qty int64) (int64, error) {
	if qty <= 0 {
		return 0, ErrInvalidAmount
	}

	record := &AssetBalanceRecord{
		Username:  username,
		Asset:     asset,
		Quantity:  qty,
		Version:   1,
		UpdatedAt: time.Now(),
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "username"}, {Name: "asset"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"quantity":   gorm.Expr("quantity + ?", qty),
				"version":    gorm.Expr("version + 1"),
				"updated_at": time.Now(),
			}),
		}).
		Create(record).Error
	if err != nil {
		return 0, err
	}

	return r.currentQuantity(ctx, username, asset)
}

// Debit 减少资产 (卖出成交)
// 条件写: 持仓不足或记录不存在都不会产生任何变更
func (r *AssetRepo) Debit(ctx context.Context, username, asset string, qty int64) (int64, error) {
	if qty <= 0 {
		return 0, ErrInvalidAmount
	}

	result := r.db.WithContext(ctx).
		Model(&AssetBalanceRecord{}).
		Where("username = ? AND asset = ? AND quantity >= ?", username, asset, qty).
		Updates(map[string]interface{}{
			"quantity":   gorm.Expr("quantity - ?", qty),
			"version":    gorm.Expr("version + 1"),
			"updated_at": time.Now(),
		})

	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected == 0 {
		return 0, ErrInsufficientAsset
	}

	return r.currentQuantity(ctx, username, asset)
}

func (r *AssetRepo) currentQuantity(ctx context.Context, username, asset string) (int64, error) {
	record, err := r.Get(ctx, username, asset)
	if err != nil {
		return 0, err
	}
	if record == nil {
		return 0, gorm.ErrRecordNotFound
	}
	return record.Quantity, nil
}
