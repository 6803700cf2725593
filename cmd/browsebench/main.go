// Command browsebench measures public browse latency against PostgreSQL with
// and without the Redis page cache.
package main

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alaskacg/tongass-listings/internal/cache"
	"github.com/alaskacg/tongass-listings/internal/config"
	"github.com/alaskacg/tongass-listings/internal/model"
	"github.com/alaskacg/tongass-listings/internal/repository"
)

var (
	categories = []string{"vehicles", "boats", "homes", "land", "rentals", "mining", "guides", "excavation", "general"}
	regions    = []string{"kenai", "anchorage", "tongass", "alcan", "bristol", "bethel", "prudhoe", "chugach", "statewide"}
)

func main() {
	ctx := context.Background()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		dsn = "host=localhost user=postgres password=postgres dbname=postgres port=5434 sslmode=disable"
	}
	listingCount := envInt("LISTINGS", 20000)
	requestCount := envInt("REQUESTS", 9000)

	db := must(repository.Open(config.DatabaseConfig{Driver: "postgres", DSN: dsn, MaxOpenConns: 20}))
	mustDo(db.Exec("DROP TABLE IF EXISTS listings CASCADE").Error)
	mustDo(repository.AutoMigrate(db))

	fmt.Printf("Seeding %d listings...\n", listingCount)
	mustDo(db.CreateInBatches(seed(listingCount), 1000).Error)

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6380"
	}
	client := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer client.Close()
	if err := client.Ping(ctx).Err(); err != nil {
		panic(fmt.Sprintf("Failed to connect to Redis at %s: %v", redisAddr, err))
	}

	repo := repository.NewListingRepository(db)
	browse := cache.NewBrowseCache(client, 10*time.Minute)
	now := time.Now().UTC()
	reqs := makeFilters(requestCount)

	direct := func(ctx context.Context, f repository.BrowseFilter) error {
		_, _, err := repo.Browse(ctx, f, now)
		return err
	}
	cached := func(ctx context.Context, f repository.BrowseFilter) error {
		_, err := browse.Fetch(ctx, f, func(ctx context.Context) (cache.BrowsePage, error) {
			items, total, err := repo.Browse(ctx, f, now)
			return cache.BrowsePage{Items: items, Total: total}, err
		})
		return err
	}

	noCache := runScenario(ctx, client, browse, reqs, false, direct)
	warm := runScenario(ctx, client, browse, reqs, true, cached)

	// 每 50 个请求发生一次状态变更，缓存整体失效
	churn := runScenario(ctx, client, browse, reqs, true, func(ctx context.Context, f repository.BrowseFilter) error {
		if rand.Intn(50) == 0 {
			browse.Invalidate(ctx)
		}
		return cached(ctx, f)
	})

	fmt.Printf("\nBrowse latency (%d req, %d listings, PostgreSQL + Redis)\n", len(reqs), listingCount)
	report("No cache", noCache)
	report("Page cache", warm)
	report("Cache + churn", churn)
}

func seed(n int) []model.Listing {
	rnd := rand.New(rand.NewSource(42))
	base := time.Now().UTC().Add(-30 * 24 * time.Hour)
	rows := make([]model.Listing, n)
	for i := range rows {
		created := base.Add(time.Duration(i) * time.Second)
		exp := created.Add(model.ListingDuration)
		status, paid := model.ListingStatusActive, model.PaymentStatusPaid
		if rnd.Float64() < 0.25 {
			status, paid = model.ListingStatusPending, model.PaymentStatusUnpaid
		}
		rows[i] = model.Listing{
			ID:            uuid.NewString(),
			UserID:        fmt.Sprintf("seller_%d", i%2000),
			Category:      categories[rnd.Intn(len(categories))],
			Region:        regions[rnd.Intn(len(regions))],
			Title:         fmt.Sprintf("Listing %d", i),
			Price:         float64(rnd.Intn(5000000)) / 100,
			Description:   "Pickup in town, cash or check",
			Images:        []string{},
			ContactName:   "Seller",
			ContactEmail:  fmt.Sprintf("seller_%d@example.com", i%2000),
			Status:        status,
			PaymentStatus: paid,
			CreatedAt:     created,
			UpdatedAt:     created,
			ExpiresAt:     &exp,
		}
	}
	return rows
}

// makeFilters 多数请求集中在首页与少数热门分类
func makeFilters(n int) []repository.BrowseFilter {
	sorts := []string{"newest", "newest", "newest", "price-low", "price-high", "oldest"}
	rnd := rand.New(rand.NewSource(42))
	out := make([]repository.BrowseFilter, n)
	for i := range out {
		f := repository.BrowseFilter{Sort: sorts[rnd.Intn(len(sorts))], PageSize: 20, Page: 1}
		if rnd.Float64() < 0.6 {
			f.Category = categories[rnd.Intn(3)]
		}
		if rnd.Float64() < 0.4 {
			f.Region = regions[rnd.Intn(len(regions))]
		}
		if rnd.Float64() > 0.8 {
			f.Page = 2 + rnd.Intn(20)
		}
		f.Normalize()
		out[i] = f
	}
	return out
}

type scenarioResult struct {
	durations   []time.Duration
	counters    cache.Counters
	cacheKeys   int
	memoryBytes int64
}

func runScenario(ctx context.Context, client *redis.Client, browse *cache.BrowseCache, reqs []repository.BrowseFilter, warm bool, call func(context.Context, repository.BrowseFilter) error) scenarioResult {
	client.FlushAll(ctx)
	if warm {
		fmt.Print("  Warming cache...")
		for _, f := range reqs {
			mustDo(call(ctx, f))
		}
		fmt.Println(" done")
	}
	browse.ResetCounters()

	fmt.Print("  Running benchmark...")
	out := make([]time.Duration, 0, len(reqs))
	for _, f := range reqs {
		start := time.Now()
		mustDo(call(ctx, f))
		out = append(out, time.Since(start))
	}
	fmt.Println(" done")

	keys, _ := client.Keys(ctx, "listings:browse:*").Result()
	var mem int64
	if info, err := client.Info(ctx, "memory").Result(); err == nil {
		mem = usedMemory(info)
	}
	return scenarioResult{durations: out, counters: browse.Counters(), cacheKeys: len(keys), memoryBytes: mem}
}

func report(name string, r scenarioResult) {
	fmt.Printf("%-14s avg=%v p95=%v p99=%v hits=%d misses=%d db_loads=%d cache_keys=%d mem=%s\n",
		name, avg(r.durations), pct(r.durations, 0.95), pct(r.durations, 0.99),
		r.counters.Hits, r.counters.Misses, r.counters.Loads, r.cacheKeys, formatBytes(r.memoryBytes))
}

// usedMemory reads used_memory from Redis INFO output.
func usedMemory(info string) int64 {
	for _, line := range strings.Split(info, "\n") {
		if v, ok := strings.CutPrefix(strings.TrimSpace(line), "used_memory:"); ok {
			n, _ := strconv.ParseInt(v, 10, 64)
			return n
		}
	}
	return 0
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func avg(vs []time.Duration) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	var sum time.Duration
	for _, v := range vs {
		sum += v
	}
	return sum / time.Duration(len(vs))
}

func pct(vs []time.Duration, p float64) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), vs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}

func envInt(key string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil && v > 0 {
		return v
	}
	return def
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func mustDo(err error) {
	if err != nil {
		panic(err)
	}
}
