// 文件: pkg/order/order_test.go
// 订单模型与仓库测试

package order

import (
	"context"
	"sync"
	"testing"
)

// TestGenerateOrderID_Unique 并发生成不重复
func TestGenerateOrderID_Unique(t *testing.T) {
	const n = 1000
	ids := make(chan int64, n)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < n/10; j++ {
				ids <- GenerateOrderID()
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]bool, n)
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate order ID: %d", id)
		}
		seen[id] = true
	}
}

// TestNew 新订单初始状态
func TestNew(t *testing.T) {
	o := New("alice", "BTC", TypeMarketBuy, 100)

	if o.Status != StatusPending {
		t.Errorf("new order status = %v, want PENDING", o.Status)
	}
	if o.Terminal() {
		t.Error("new order must not be terminal")
	}
	if o.OrderID == 0 {
		t.Error("order ID not assigned")
	}
	if o.CreatedAt == 0 {
		t.Error("created_at not set")
	}
	if o.ExecutionPrice != 0 || o.TotalAmount != 0 {
		t.Error("execution fields must be zero before completion")
	}
}

// TestMemoryRepository_TerminalOnce 终态只设置一次, 后写是 no-op
func TestMemoryRepository_TerminalOnce(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	o := New("bob", "XRP", TypeMarketSell, 500)
	if err := repo.Create(ctx, o); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := repo.MarkCompleted(ctx, o.OrderID, 300, 1500); err != nil {
		t.Fatalf("mark completed: %v", err)
	}

	// 已成交的订单不能再标失败
	if err := repo.MarkFailed(ctx, o.OrderID, "late failure"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	got, err := repo.GetByOrderID(ctx, o.OrderID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Errorf("status = %v, want COMPLETED", got.Status)
	}
	if got.ExecutionPrice != 300 || got.TotalAmount != 1500 {
		t.Errorf("execution fields = (%d, %d), want (300, 1500)", got.ExecutionPrice, got.TotalAmount)
	}
	if got.Reason != "" {
		t.Errorf("reason = %q, want empty", got.Reason)
	}

	// 重复标记成交也是 no-op (修复 worker 可能重放)
	if err := repo.MarkCompleted(ctx, o.OrderID, 999, 9999); err != nil {
		t.Fatalf("re-mark completed: %v", err)
	}
	got, _ = repo.GetByOrderID(ctx, o.OrderID)
	if got.ExecutionPrice != 300 {
		t.Error("terminal fields overwritten by repeated mark")
	}
}

// TestMemoryRepository_GetByUser 按用户倒序分页
func TestMemoryRepository_GetByUser(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	var last int64
	for i := 0; i < 5; i++ {
		o := New("carol", "BTC", TypeMarketBuy, int64(i+1))
		repo.Create(ctx, o)
		last = o.OrderID
	}
	repo.Create(ctx, New("dave", "BTC", TypeMarketBuy, 1))

	got, err := repo.GetByUser(ctx, "carol", 3)
	if err != nil {
		t.Fatalf("get by user: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	// 最新的在最前
	if got[0].OrderID != last {
		t.Errorf("first order = %d, want most recent %d", got[0].OrderID, last)
	}
	for _, o := range got {
		if o.Username != "carol" {
			t.Errorf("foreign user's order returned: %s", o.Username)
		}
	}
}
