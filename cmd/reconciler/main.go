package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"moon.com/pkg/fund"
	"moon.com/pkg/order"
)

// 修复 worker: 消费修复任务队列, 把越过不可回退点的残缺订单补写完整。
// 和交易进程分开部署, 崩溃重启后从消费位点继续

func main() {
	log.SetFlags(log.Ltime | log.Lmicroseconds)

	var (
		dsn     = flag.String("dsn", "root:123456@tcp(127.0.0.1:3307)/my_ledger?charset=utf8mb4&parseTime=True&loc=Local", "MySQL DSN")
		brokers = flag.String("brokers", "localhost:9092", "Kafka brokers, comma separated")
		groupID = flag.String("group", "ledger_reconciler", "Kafka consumer group")
		nodeID  = flag.Int64("node", 1, "snowflake node ID")
	)
	flag.Parse()

	log.Println("🚀 Starting Ledger Reconciler...")

	// 1. MySQL
	// -------------------------------------------------------------------------
	db, err := gorm.Open(mysql.Open(*dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		log.Fatalf("connect MySQL: %v", err)
	}
	if err := db.AutoMigrate(
		&fund.BalanceRecord{}, &fund.AssetBalanceRecord{},
		&fund.BalanceTransaction{}, &fund.AssetTransaction{},
		&order.Order{},
	); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	log.Println("✅ MySQL connected")

	// 2. 雪花ID (补写流水行需要新 tx_id)
	// -------------------------------------------------------------------------
	if err := order.InitSnowflake(*nodeID); err != nil {
		log.Fatalf("init snowflake: %v", err)
	}

	// 3. 修复 worker
	// -------------------------------------------------------------------------
	cfg := fund.DefaultReconcilerConfig(strings.Split(*brokers, ","))
	cfg.GroupID = *groupID

	reconciler, err := fund.NewReconciler(
		cfg,
		fund.NewAssetRepo(db),
		fund.NewTransactionRepo(db),
		order.NewMySQLRepository(db),
		order.GenerateTxID,
	)
	if err != nil {
		log.Fatalf("create reconciler: %v", err)
	}

	reconciler.Start()
	log.Println("✅ Reconciler consuming", fund.TopicReconcileTasks)

	// 周期性打统计
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				s := reconciler.Stats()
				log.Printf("[Stats] received=%d repaired=%d errors=%d",
					s.ReceivedCount, s.RepairedCount, s.ErrorCount)
			}
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("🛑 Shutting down...")
	close(done)
	if err := reconciler.Stop(); err != nil {
		log.Printf("stop reconciler: %v", err)
	}
}
