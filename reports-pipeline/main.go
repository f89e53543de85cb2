package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ClickHouse/clickhouse-go/v2"
	_ "github.com/lib/pq"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	runOnce := flag.Bool("once", false, "Run a single pipeline cycle and exit (for external schedulers)")
	flag.Parse()

	log.Println("🔧 Loading configuration from", *configPath)

	config, err := LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := config.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	log.Printf("📋 Service: %s", config.Service.Name)
	log.Printf("📋 Poll interval: %v", config.PollInterval())
	log.Printf("📋 Overlap: %v, days back: %d", config.Overlap(), config.Pipeline.DaysBack)

	// Connect to CRM (operational Postgres)
	log.Println("🔗 Connecting to CRM (Postgres)...")
	crmDB, err := sql.Open("postgres", config.CRM.ConnectionString())
	if err != nil {
		log.Fatalf("Failed to connect to CRM: %v", err)
	}
	defer crmDB.Close()

	if err := crmDB.Ping(); err != nil {
		log.Fatalf("Failed to ping CRM: %v", err)
	}
	log.Println("✅ Connected to CRM")

	// Connect to warehouse (ClickHouse)
	log.Println("🔗 Connecting to warehouse (ClickHouse)...")
	chConn, err := clickhouse.Open(config.Warehouse.Options())
	if err != nil {
		log.Fatalf("Failed to connect to warehouse: %v", err)
	}
	defer chConn.Close()

	if err := chConn.Ping(context.Background()); err != nil {
		log.Fatalf("Failed to ping warehouse: %v", err)
	}
	log.Println("✅ Connected to warehouse")

	// Initialize components
	warehouse := NewWarehouse(chConn)
	crmReader := NewCRMReader(crmDB)
	watermarks := NewWatermarkStore(crmDB, config.Pipeline.WatermarkTable, config.Service.Name)
	extractor := NewDeltaExtractor(crmReader, warehouse, watermarks, config.Overlap())
	refresher := NewMartRefresher(warehouse, warehouse, warehouse, config.Pipeline.DaysBack)

	var seeder *Seeder
	if config.Seed.Enabled {
		log.Println("🌱 Demo data seeding enabled")
		seeder = NewSeeder(crmDB, crmReader, warehouse, config.Seed)
	}

	metrics := NewMetrics()
	runner := NewRunner(config, crmDB, warehouse, watermarks, extractor, refresher, seeder, metrics)

	if *runOnce {
		if err := runner.RunCycle(); err != nil {
			log.Fatalf("Pipeline run failed: %v", err)
		}
		log.Println("👋 Single run complete")
		return
	}

	// Start health server
	healthServer := NewHealthServer(config.Service.HealthPort, runner, metrics)
	if err := healthServer.Start(); err != nil {
		log.Fatalf("Health server failed: %v", err)
	}
	defer healthServer.Stop()

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Println("🛑 Shutdown signal received...")
		runner.Stop()
	}()

	// Start runner (blocks until stopped)
	if err := runner.Start(); err != nil {
		log.Fatalf("Pipeline runner failed: %v", err)
	}

	log.Println("👋 Shutdown complete")
}
