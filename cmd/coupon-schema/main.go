// Command coupon-schema creates the coupon tables in PostgreSQL ahead of the first deploy.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/lilgiftcorner/server/internal/config"
	"github.com/lilgiftcorner/server/internal/coupons"
	"github.com/lilgiftcorner/server/internal/dbpool"
)

func main() {
	_ = godotenv.Load()

	connStr := flag.String("postgres-url", os.Getenv("COUPON_POSTGRES_URL"), "PostgreSQL connection string")
	flag.Parse()

	if *connStr == "" {
		log.Fatal("postgres url required: pass -postgres-url or set COUPON_POSTGRES_URL")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := dbpool.Open(ctx, *connStr, config.PostgresPoolConfig{MaxOpenConns: 2, MaxIdleConns: 1})
	if err != nil {
		log.Fatal("Failed to connect:", err)
	}
	defer pool.Close()

	fmt.Println("✓ Connected to database successfully")

	if err := coupons.NewPostgresRepositoryWithDB(pool.DB()).EnsureSchema(ctx); err != nil {
		log.Fatal("Failed to create coupon schema:", err)
	}

	fmt.Println("✓ Coupon tables are ready")
}
