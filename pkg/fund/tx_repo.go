// 文件: pkg/fund/tx_repo.go
// 账本模块 - 流水仓库 (GORM 实现)
//
// 流水行只追加, 以订单号做幂等键:
// INSERT IGNORE + 唯一索引, 提交协议和修复 worker 重复写入都不会产生第二条

package fund

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TransactionRepo 流水仓库
type TransactionRepo struct {
	db *gorm.DB
}

// NewTransactionRepo 创建流水仓库
func NewTransactionRepo(db *gorm.DB) *TransactionRepo {
	return &TransactionRepo{db: db}
}

// =============================================================================
// 写入 (幂等)
// =============================================================================

// InsertBalanceTx 插入现金流水
// 同一 (order_id, type) 重复插入是 no-op
func (r *TransactionRepo) InsertBalanceTx(ctx context.Context, tx *BalanceTransaction) error {
	return r.db.WithContext(ctx).
		Clauses(clause.Insert{Modifier: "IGNORE"}).
		Create(tx).Error
}

// InsertAssetTx 插入资产流水
// 同一 order_id 重复插入是 no-op
func (r *TransactionRepo) InsertAssetTx(ctx context.Context, tx *AssetTransaction) error {
	return r.db.WithContext(ctx).
		Clauses(clause.Insert{Modifier: "IGNORE"}).
		Create(tx).Error
}

// =============================================================================
// 查询
// =============================================================================

// ListBalanceTxByUser 查询用户现金流水 (按时间倒序)
func (r *TransactionRepo) ListBalanceTxByUser(ctx context.Context, username string, limit, offset int) ([]*BalanceTransaction, error) {
	var records []*BalanceTransaction
	err := r.db.WithContext(ctx).
		Where("username = ?", username).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&records).Error
	return records, err
}

// ListAssetTxByUser 查询用户资产流水, asset 为空则不过滤
func (r *TransactionRepo) ListAssetTxByUser(ctx context.Context, username, asset string, limit, offset int) ([]*AssetTransaction, error) {
	query := r.db.WithContext(ctx).
		Where("username = ?", username).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset)

	if asset != "" {
		query = query.Where("asset = ?", asset)
	}

	var records []*AssetTransaction
	err := query.Find(&records).Error
	return records, err
}

// GetBalanceTxByOrder 按订单查现金流水, 不存在返回 nil
func (r *TransactionRepo) GetBalanceTxByOrder(ctx context.Context, orderID int64) (*BalanceTransaction, error) {
	var record BalanceTransaction
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		First(&record).Error

	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// GetAssetTxByOrder 按订单查资产流水, 不存在返回 nil
func (r *TransactionRepo) GetAssetTxByOrder(ctx context.Context, orderID int64) (*AssetTransaction, error) {
	var record AssetTransaction
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		First(&record).Error

	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}
