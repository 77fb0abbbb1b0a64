package main

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"moon.com/pkg/fund"
	"moon.com/pkg/lock"
	"moon.com/pkg/order"
	"moon.com/pkg/price"
	"moon.com/pkg/spot"
)

// =============================================================================
// 全内存模拟: 不依赖 MySQL / Redis / Kafka / NATS
// 账本、锁、订单仓库、价格服务全部用内存实现在单进程里跑通交易闭环
// =============================================================================

func main() {
	log.SetFlags(log.Ltime | log.Lmicroseconds)
	log.Println("🚀 Starting Ledger Simulation...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. 初始化 账本与锁
	// -------------------------------------------------------------------------
	ledger := spot.NewMemoryLedger()
	orders := order.NewMemoryRepository()
	locks := lock.NewMemoryManager(lock.DefaultManagerConfig())
	log.Println("✅ In-memory ledger ready")

	// 2. 初始化 价格服务 + 行情模拟器
	// -------------------------------------------------------------------------
	prices := price.NewMemoryService()
	prices.OnUpdate(func(q price.Quote) {
		if rand.Float32() < 0.02 { // 抽样打印, 不刷屏
			log.Printf("[Market] %s = %.2f", q.Asset, fund.ToFloat(q.Price))
		}
	})

	tickers := []*price.SimTicker{
		price.NewSimTicker("BTC", 50000, 100*time.Millisecond, prices),
		price.NewSimTicker("ETH", 2000, 100*time.Millisecond, prices),
		price.NewSimTicker("XRP", 3, 100*time.Millisecond, prices),
	}
	for _, tk := range tickers {
		tk.Start()
		defer tk.Stop()
	}
	log.Println("✅ Market simulator started (BTC/ETH/XRP)")

	// 3. 初始化 执行器
	// -------------------------------------------------------------------------
	catalog := price.NewStaticCatalog(
		&price.AssetSpec{Asset: "BTC", Name: "Bitcoin", Status: price.AssetStatusTrading},
		&price.AssetSpec{Asset: "ETH", Name: "Ethereum", Status: price.AssetStatusTrading},
		&price.AssetSpec{Asset: "XRP", Name: "Ripple", Status: price.AssetStatusTrading},
	)

	validator := spot.NewValidator(catalog, prices, ledger.Balances(), ledger.Assets())
	executor := spot.NewExecutor(
		spot.DefaultExecutorConfig(),
		locks, validator, prices,
		ledger.Balances(), ledger.Assets(), ledger, orders,
	)
	valuator := spot.NewValuator(ledger.Balances(), ledger.Assets(), prices)
	log.Println("✅ Order executor ready")

	// 等行情模拟器先推出第一批报价
	time.Sleep(200 * time.Millisecond)

	// 4. 演示场景
	// -------------------------------------------------------------------------
	runScenarios(ctx, executor, valuator)

	// 5. 并发风暴: 多用户随机交易, 周期性自检账目
	// -------------------------------------------------------------------------
	go storm(ctx, executor, ledger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("🛑 Shutting down...")
}

// runScenarios 顺序跑一遍核心交易路径
func runScenarios(ctx context.Context, executor *spot.Executor, valuator *spot.Valuator) {
	log.Println("---- Scenario: deposit + market buy ----")

	if _, err := executor.Deposit(ctx, "alice", fund.ToFixed(1000)); err != nil {
		log.Fatalf("deposit: %v", err)
	}

	o, err := executor.PlaceOrder(ctx, "alice", "BTC", order.TypeMarketBuy, fund.ToFixed(0.01))
	if err != nil {
		log.Fatalf("buy: %v", err)
	}
	log.Printf("[Order] ✅ %d BUY 0.01 BTC @ %.2f, paid %.2f",
		o.OrderID, fund.ToFloat(o.ExecutionPrice), fund.ToFloat(o.TotalAmount))

	log.Println("---- Scenario: market sell ----")

	if _, err := executor.Deposit(ctx, "bob", fund.ToFixed(500)); err != nil {
		log.Fatalf("deposit: %v", err)
	}
	if _, err := executor.PlaceOrder(ctx, "bob", "XRP", order.TypeMarketBuy, fund.ToFixed(57)); err != nil {
		log.Fatalf("buy xrp: %v", err)
	}

	o, err = executor.PlaceOrder(ctx, "bob", "XRP", order.TypeMarketSell, fund.ToFixed(25))
	if err != nil {
		log.Fatalf("sell: %v", err)
	}
	log.Printf("[Order] ✅ %d SELL 25 XRP @ %.2f, received %.2f",
		o.OrderID, fund.ToFloat(o.ExecutionPrice), fund.ToFloat(o.TotalAmount))

	log.Println("---- Scenario: insufficient funds rejection ----")

	_, err = executor.PlaceOrder(ctx, "alice", "BTC", order.TypeMarketBuy, fund.ToFixed(100))
	if errors.Is(err, spot.ErrInsufficientFunds) {
		log.Printf("[Order] ✅ rejected as expected: %v", err)
	} else {
		log.Fatalf("expected insufficient funds, got: %v", err)
	}

	log.Println("---- Scenario: concurrent withdrawals ----")

	if _, err := executor.Deposit(ctx, "carol", fund.ToFixed(100)); err != nil {
		log.Fatalf("deposit: %v", err)
	}
	var succeeded atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, werr := executor.Withdraw(ctx, "carol", fund.ToFixed(60)); werr == nil {
				succeeded.Add(1)
			}
		}()
	}
	wg.Wait()
	log.Printf("[Withdraw] ✅ 2 concurrent withdraw(60) vs balance 100: %d succeeded", succeeded.Load())

	log.Println("---- Scenario: portfolio valuation ----")

	p, err := valuator.Value(ctx, "alice")
	if err != nil {
		log.Fatalf("valuation: %v", err)
	}
	log.Printf("[Portfolio] alice: cash %.2f, total %.2f", fund.ToFloat(p.CashBalance), fund.ToFloat(p.TotalValue))
	for _, pos := range p.Positions {
		log.Printf("[Portfolio]   %s x %.8f @ %.2f = %.2f (%s%%)",
			pos.Asset, fund.ToFloat(pos.Quantity), fund.ToFloat(pos.Price), fund.ToFloat(pos.Value), pos.Allocation)
	}
}

// storm 多用户随机交易, 每秒对一次账
func storm(ctx context.Context, executor *spot.Executor, ledger *spot.MemoryLedger) {
	users := []string{"u1", "u2", "u3", "u4", "u5"}
	assets := []string{"BTC", "ETH", "XRP"}

	for _, u := range users {
		if _, err := executor.Deposit(ctx, u, fund.ToFixed(100000)); err != nil {
			log.Fatalf("seed deposit: %v", err)
		}
	}
	log.Println("🌪  Trading storm started (5 users, Ctrl-C to stop)")

	var placed, completed, rejected atomic.Int64
	var wg sync.WaitGroup
	for _, u := range users {
		wg.Add(1)
		go func(username string) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				default:
				}

				asset := assets[rand.Intn(len(assets))]
				typ := order.TypeMarketBuy
				if rand.Float32() < 0.5 {
					typ = order.TypeMarketSell
				}
				qty := fund.ToFixed(float64(rand.Intn(100)+1) / 100)

				placed.Add(1)
				if _, err := executor.PlaceOrder(ctx, username, asset, typ, qty); err == nil {
					completed.Add(1)
				} else {
					rejected.Add(1)
				}
				time.Sleep(time.Duration(rand.Intn(20)) * time.Millisecond)
			}
		}(u)
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case <-ticker.C:
			// 对账: 每个用户余额和持仓都必须非负
			for _, u := range users {
				rec, _ := ledger.Balances().Get(ctx, u)
				if rec != nil && rec.Amount < 0 {
					log.Fatalf("💥 INVARIANT VIOLATED: user %s balance %d < 0", u, rec.Amount)
				}
				holdings, _ := ledger.Assets().GetAllByUser(ctx, u)
				for _, h := range holdings {
					if h.Quantity < 0 {
						log.Fatalf("💥 INVARIANT VIOLATED: user %s %s quantity %d < 0", u, h.Asset, h.Quantity)
					}
				}
			}
			log.Printf("[Storm] orders=%d completed=%d rejected=%d (invariants OK)",
				placed.Load(), completed.Load(), rejected.Load())
		}
	}
}
