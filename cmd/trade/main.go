package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"moon.com/pkg/fund"
	"moon.com/pkg/lock"
	"moon.com/pkg/nats"
	"moon.com/pkg/order"
	"moon.com/pkg/price"
	"moon.com/pkg/spot"
)

// 交易运维 CLI: 生产装配 (MySQL + Redis 锁 + Redis 价格缓存 + Kafka/NATS),
// 执行单个账户操作后退出
//
// 用法:
//   trade [flags] deposit  <user> <amount>
//   trade [flags] withdraw <user> <amount>
//   trade [flags] buy      <user> <asset> <qty>
//   trade [flags] sell     <user> <asset> <qty>
//   trade [flags] portfolio <user>
//   trade [flags] orders    <user>
//   trade [flags] history   <user>
//   trade [flags] asset-add  <asset> <name>
//   trade [flags] asset-halt <asset>

func main() {
	log.SetFlags(0)

	var (
		dsn      = flag.String("dsn", "root:123456@tcp(127.0.0.1:3307)/my_ledger?charset=utf8mb4&parseTime=True&loc=Local", "MySQL DSN")
		redisURL = flag.String("redis", "localhost:6379", "Redis address")
		brokers  = flag.String("brokers", "", "Kafka brokers (comma separated, empty disables the audit stream)")
		natsURL  = flag.String("nats", "", "NATS URL (empty disables order events)")
		nodeID   = flag.Int64("node", 1, "snowflake node ID")
	)
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		log.Fatal("missing command")
	}

	if err := order.InitSnowflake(*nodeID); err != nil {
		log.Fatalf("init snowflake: %v", err)
	}

	// 1. 存储
	// -------------------------------------------------------------------------
	db, err := gorm.Open(mysql.Open(*dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		log.Fatalf("connect MySQL: %v", err)
	}
	if err := db.AutoMigrate(
		&fund.BalanceRecord{}, &fund.AssetBalanceRecord{},
		&fund.BalanceTransaction{}, &fund.AssetTransaction{},
		&order.Order{}, &price.AssetSpec{},
	); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: *redisURL})
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("connect Redis: %v", err)
	}

	balances := fund.NewBalanceRepo(db)
	assets := fund.NewAssetRepo(db)
	txs := fund.NewTransactionRepo(db)
	orders := order.NewMySQLRepository(db)
	catalogRepo := price.NewCatalogRepo(db)

	// 2. 目录与价格
	// -------------------------------------------------------------------------
	catalog := price.NewCatalog(catalogRepo)
	if err := catalog.Reload(ctx); err != nil {
		log.Fatalf("load catalog: %v", err)
	}
	prices := price.NewRedisStore(rdb, price.DefaultRedisStoreConfig())

	// 3. 执行器
	// -------------------------------------------------------------------------
	locks := lock.NewManager(rdb, lock.DefaultManagerConfig())
	validator := spot.NewValidator(catalog, prices, balances, assets)
	executor := spot.NewExecutor(
		spot.DefaultExecutorConfig(),
		locks, validator, prices,
		balances, assets, txs, orders,
	)

	if *brokers != "" {
		sink, perr := fund.NewEventPublisher(strings.Split(*brokers, ","))
		if perr != nil {
			log.Fatalf("connect Kafka: %v", perr)
		}
		defer sink.Close()
		executor.SetEventSink(sink)
	}
	if *natsURL != "" {
		bus, perr := nats.NewPublisher(*natsURL)
		if perr != nil {
			log.Fatalf("connect NATS: %v", perr)
		}
		defer bus.Close()
		executor.SetEventBus(bus)
	}

	valuator := spot.NewValuator(balances, assets, prices)

	// 4. 执行命令
	// -------------------------------------------------------------------------
	if err := run(ctx, flag.Args(), executor, valuator, orders, txs, catalogRepo); err != nil {
		log.Fatalf("%s: %v", flag.Arg(0), err)
	}
}

func run(ctx context.Context, args []string,
	executor *spot.Executor, valuator *spot.Valuator,
	orders order.Repository, txs *fund.TransactionRepo, catalogRepo *price.CatalogRepo,
) error {
	cmd := args[0]

	switch cmd {
	case "deposit", "withdraw":
		if len(args) != 3 {
			return fmt.Errorf("usage: %s <user> <amount>", cmd)
		}
		amount, err := parseMoney(args[2])
		if err != nil {
			return err
		}
		var newBal int64
		if cmd == "deposit" {
			newBal, err = executor.Deposit(ctx, args[1], amount)
		} else {
			newBal, err = executor.Withdraw(ctx, args[1], amount)
		}
		if err != nil {
			return err
		}
		fmt.Printf("%s %s %.2f -> balance %.2f\n", cmd, args[1], fund.ToFloat(amount), fund.ToFloat(newBal))
		return nil

	case "buy", "sell":
		if len(args) != 4 {
			return fmt.Errorf("usage: %s <user> <asset> <qty>", cmd)
		}
		qty, err := parseMoney(args[3])
		if err != nil {
			return err
		}
		typ := order.TypeMarketBuy
		if cmd == "sell" {
			typ = order.TypeMarketSell
		}
		o, err := executor.PlaceOrder(ctx, args[1], args[2], typ, qty)
		if err != nil {
			return err
		}
		fmt.Printf("order %d %s: %s %.8f %s @ %.2f, total %.2f\n",
			o.OrderID, o.Status, o.Type, fund.ToFloat(o.Quantity), o.Asset,
			fund.ToFloat(o.ExecutionPrice), fund.ToFloat(o.TotalAmount))
		return nil

	case "portfolio":
		if len(args) != 2 {
			return fmt.Errorf("usage: portfolio <user>")
		}
		p, err := valuator.Value(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Printf("%s: cash %.2f (%s%%), total %.2f\n",
			p.Username, fund.ToFloat(p.CashBalance), p.CashAllocation(), fund.ToFloat(p.TotalValue))
		for _, pos := range p.Positions {
			fmt.Printf("  %-6s %.8f @ %.2f = %.2f (%s%%)\n",
				pos.Asset, fund.ToFloat(pos.Quantity), fund.ToFloat(pos.Price),
				fund.ToFloat(pos.Value), pos.Allocation)
		}
		return nil

	case "orders":
		if len(args) != 2 {
			return fmt.Errorf("usage: orders <user>")
		}
		list, err := orders.GetByUser(ctx, args[1], 20)
		if err != nil {
			return err
		}
		for _, o := range list {
			fmt.Printf("%d  %-9s %-11s %-6s qty %.8f total %.2f  %s\n",
				o.OrderID, o.Status, o.Type, o.Asset,
				fund.ToFloat(o.Quantity), fund.ToFloat(o.TotalAmount), o.Reason)
		}
		return nil

	case "history":
		if len(args) != 2 {
			return fmt.Errorf("usage: history <user>")
		}
		list, err := txs.ListBalanceTxByUser(ctx, args[1], 50, 0)
		if err != nil {
			return err
		}
		for _, tx := range list {
			fmt.Printf("%s  %-14s %+12.2f -> %.2f\n",
				tx.CreatedAt.Format("2006-01-02 15:04:05"), tx.Type,
				fund.ToFloat(tx.Amount), fund.ToFloat(tx.ResultingBalance))
		}
		return nil

	case "asset-add":
		if len(args) != 3 {
			return fmt.Errorf("usage: asset-add <asset> <name>")
		}
		if err := catalogRepo.Upsert(ctx, &price.AssetSpec{
			Asset:  args[1],
			Name:   args[2],
			Status: price.AssetStatusTrading,
		}); err != nil {
			return err
		}
		fmt.Printf("asset %s listed as TRADING\n", args[1])
		return nil

	case "asset-halt":
		if len(args) != 2 {
			return fmt.Errorf("usage: asset-halt <asset>")
		}
		if err := catalogRepo.UpdateStatus(ctx, args[1], price.AssetStatusHalted); err != nil {
			return err
		}
		fmt.Printf("asset %s halted\n", args[1])
		return nil

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// parseMoney 十进制字符串转 1e8 定点数, 拒绝负数和超过 8 位的小数
func parseMoney(s string) (int64, error) {
	whole, frac, _ := strings.Cut(s, ".")
	if strings.HasPrefix(whole, "-") {
		return 0, fmt.Errorf("negative amount %q", s)
	}
	if len(frac) > 8 {
		return 0, fmt.Errorf("more than 8 decimal places in %q", s)
	}

	v := int64(0)
	for _, part := range []string{whole, frac + strings.Repeat("0", 8-len(frac))} {
		for _, c := range part {
			if c < '0' || c > '9' {
				return 0, fmt.Errorf("bad amount %q", s)
			}
			v = v*10 + int64(c-'0')
		}
	}
	if v <= 0 {
		return 0, fmt.Errorf("amount must be positive, got %q", s)
	}
	return v, nil
}
