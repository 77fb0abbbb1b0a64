// 文件: pkg/price/catalog.go
// 资产目录 - 可交易资产的规格与状态
//
// 校验器回答"这个资产存在吗、能交易吗"靠这里。
// 规格落 MySQL, 读路径走进程内缓存 (规格变更频率极低)

package price

import (
	"context"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// =============================================================================
// 资产状态
// =============================================================================

// AssetStatus 资产状态
type AssetStatus int8

const (
	AssetStatusPending  AssetStatus = iota // 待上线
	AssetStatusTrading                     // 交易中
	AssetStatusHalted                      // 暂停交易
	AssetStatusDelisted                    // 已下架
)

func (s AssetStatus) String() string {
	switch s {
	case AssetStatusPending:
		return "PENDING"
	case AssetStatusTrading:
		return "TRADING"
	case AssetStatusHalted:
		return "HALTED"
	case AssetStatusDelisted:
		return "DELISTED"
	default:
		return "UNKNOWN"
	}
}

// =============================================================================
// AssetSpec - 资产规格
// =============================================================================

// AssetSpec 资产规格
// 创建后视为只读, 变更走 Upsert + Reload
type AssetSpec struct {
	ID uint `gorm:"primaryKey;autoIncrement"`

	Asset string `gorm:"column:asset;type:varchar(32);uniqueIndex"`
	Name  string `gorm:"column:name;type:varchar(64)"`

	Status AssetStatus `gorm:"column:status"`

	// 下单数量边界 (1e8 定点数), 0 表示不限制
	MinOrderQty int64 `gorm:"column:min_order_qty"`
	MaxOrderQty int64 `gorm:"column:max_order_qty"`

	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (AssetSpec) TableName() string {
	return "asset_specs"
}

// Tradable 是否可交易
func (s *AssetSpec) Tradable() bool {
	return s.Status == AssetStatusTrading
}

// =============================================================================
// CatalogRepo - 规格仓库 (GORM)
// =============================================================================

// CatalogRepo 资产规格仓库
type CatalogRepo struct {
	db *gorm.DB
}

// NewCatalogRepo 创建规格仓库
func NewCatalogRepo(db *gorm.DB) *CatalogRepo {
	return &CatalogRepo{db: db}
}

// Upsert 写入或更新规格
func (r *CatalogRepo) Upsert(ctx context.Context, spec *AssetSpec) error {
	spec.UpdatedAt = time.Now()
	if spec.CreatedAt.IsZero() {
		spec.CreatedAt = spec.UpdatedAt
	}

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "asset"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"name":          spec.Name,
				"status":        spec.Status,
				"min_order_qty": spec.MinOrderQty,
				"max_order_qty": spec.MaxOrderQty,
				"updated_at":    spec.UpdatedAt,
			}),
		}).
		Create(spec).Error
}

// UpdateStatus 变更资产状态 (上线/暂停/下架)
func (r *CatalogRepo) UpdateStatus(ctx context.Context, asset string, status AssetStatus) error {
	return r.db.WithContext(ctx).
		Model(&AssetSpec{}).
		Where("asset = ?", asset).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		}).Error
}

// List 全量规格
func (r *CatalogRepo) List(ctx context.Context) ([]*AssetSpec, error) {
	var specs []*AssetSpec
	err := r.db.WithContext(ctx).Order("asset ASC").Find(&specs).Error
	return specs, err
}

// =============================================================================
// Catalog - 进程内缓存
// =============================================================================

// Catalog 资产目录缓存
// repo 为 nil 时是纯静态目录 (测试/模拟器用)
type Catalog struct {
	mu    sync.RWMutex
	specs map[string]*AssetSpec
	repo  *CatalogRepo
}

// NewCatalog 创建目录, 随后需调用 Reload 装载
func NewCatalog(repo *CatalogRepo) *Catalog {
	return &Catalog{
		specs: make(map[string]*AssetSpec),
		repo:  repo,
	}
}

// NewStaticCatalog 静态目录
func NewStaticCatalog(specs ...*AssetSpec) *Catalog {
	c := &Catalog{specs: make(map[string]*AssetSpec, len(specs))}
	for _, s := range specs {
		c.specs[s.Asset] = s
	}
	return c
}

// Reload 从仓库重新装载
func (c *Catalog) Reload(ctx context.Context) error {
	specs, err := c.repo.List(ctx)
	if err != nil {
		return err
	}

	next := make(map[string]*AssetSpec, len(specs))
	for _, s := range specs {
		next[s.Asset] = s
	}

	c.mu.Lock()
	c.specs = next
	c.mu.Unlock()
	return nil
}

// Get 查询规格, 第二返回值表示是否存在
func (c *Catalog) Get(asset string) (*AssetSpec, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s, ok := c.specs[asset]
	return s, ok
}

// IsTradable 资产存在且处于交易状态
func (c *Catalog) IsTradable(asset string) bool {
	s, ok := c.Get(asset)
	return ok && s.Tradable()
}
