package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"moon.com/pkg/nats"
	"moon.com/pkg/price"
)

// 行情进程, 两种角色:
//   -mode publish  模拟行情生成, 推到 NATS price.ticks 并写 Redis 价格缓存
//   -mode relay    订阅 price.ticks, 物化到本地 Redis (交易进程读 Redis)

// natsSink 把价格更新转发到 NATS
type natsSink struct {
	pub *nats.Publisher
}

func (s *natsSink) SetPrice(_ context.Context, asset string, p int64) error {
	return s.pub.Publish(nats.SubjectPriceTicks, price.Quote{
		Asset: asset,
		Price: p,
		AsOf:  time.Now(),
	})
}

// multiSink 依次写多个下游, 任一失败整体失败
type multiSink []price.Sink

func (m multiSink) SetPrice(ctx context.Context, asset string, p int64) error {
	for _, s := range m {
		if err := s.SetPrice(ctx, asset, p); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	log.SetFlags(log.Ltime | log.Lmicroseconds)

	var (
		mode     = flag.String("mode", "publish", "publish | relay")
		natsURL  = flag.String("nats", "nats://localhost:4222", "NATS server URL")
		redisURL = flag.String("redis", "localhost:6379", "Redis address")
		assets   = flag.String("assets", "BTC:50000,ETH:2000,XRP:3", "asset:startPrice pairs (publish mode)")
		interval = flag.Duration("interval", 500*time.Millisecond, "tick interval (publish mode)")
	)
	flag.Parse()

	rdb := redis.NewClient(&redis.Options{Addr: *redisURL})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("connect Redis: %v", err)
	}
	store := price.NewRedisStore(rdb, price.DefaultRedisStoreConfig())

	switch *mode {
	case "publish":
		runPublisher(*natsURL, *assets, *interval, store)
	case "relay":
		runRelay(*natsURL, store)
	default:
		log.Fatalf("unknown mode: %q", *mode)
	}
}

// runPublisher 模拟行情 → NATS + Redis
func runPublisher(natsURL, assetList string, interval time.Duration, store *price.RedisStore) {
	log.Println("🚀 Starting Price Publisher...")

	pub, err := nats.NewPublisher(natsURL)
	if err != nil {
		log.Fatalf("connect NATS: %v", err)
	}
	defer pub.Close()

	sink := multiSink{store, &natsSink{pub: pub}}

	var tickers []*price.SimTicker
	for _, pair := range strings.Split(assetList, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(parts) != 2 {
			log.Fatalf("bad asset pair %q, want ASSET:PRICE", pair)
		}
		start, perr := strconv.ParseFloat(parts[1], 64)
		if perr != nil || start <= 0 {
			log.Fatalf("bad start price in %q: %v", pair, perr)
		}

		tk := price.NewSimTicker(parts[0], start, interval, sink)
		tk.Start()
		tickers = append(tickers, tk)
		log.Printf("✅ Ticking %s from %.2f", parts[0], start)
	}
	defer func() {
		for _, tk := range tickers {
			tk.Stop()
		}
	}()

	waitSignal()
}

// runRelay NATS → Redis
func runRelay(natsURL string, store *price.RedisStore) {
	log.Println("🚀 Starting Price Relay...")

	feed, err := price.NewFeed(natsURL, store)
	if err != nil {
		log.Fatalf("subscribe price feed: %v", err)
	}
	defer feed.Close()
	log.Println("✅ Subscribed", nats.SubjectPriceTicks)

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				log.Printf("[Stats] quotes received=%d", feed.Received())
			}
		}
	}()

	waitSignal()
	close(done)
}

func waitSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("🛑 Shutting down...")
}
