package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"math/rand"
	"time"
)

// Seeder loads demo data for local environments: a handful of CRM customers
// and randomized telemetry for them. Production never enables it; telemetry
// arrives through the external ingestion path.
type Seeder struct {
	crmDB     *sql.DB
	crm       *CRMReader
	warehouse *Warehouse
	config    SeedConfig
}

// NewSeeder creates a new demo data seeder
func NewSeeder(crmDB *sql.DB, crm *CRMReader, warehouse *Warehouse, config SeedConfig) *Seeder {
	return &Seeder{
		crmDB:     crmDB,
		crm:       crm,
		warehouse: warehouse,
		config:    config,
	}
}

var demoCustomers = []CustomerRecord{
	{CustomerID: "c1", FullName: "Alex Ivanov", Email: "alex@example.com", Country: "RU"},
	{CustomerID: "c2", FullName: "Ivan Smirnov", Email: "ivan@example.com", Country: "RU"},
	{CustomerID: "c3", FullName: "Anton Petrov", Email: "anton@example.com", Country: "RU"},
	{CustomerID: "c4", FullName: "Elena Sidorova", Email: "elena@example.com", Country: "RU"},
}

// Run seeds CRM customers once (skipped when any exist), then inserts a
// fresh batch of telemetry for whatever customers are present.
func (s *Seeder) Run(ctx context.Context) error {
	ids, err := s.crm.ListCustomerIDs(ctx)
	if err != nil {
		return err
	}

	if len(ids) == 0 {
		if err := s.seedCustomers(ctx); err != nil {
			return err
		}
		ids, err = s.crm.ListCustomerIDs(ctx)
		if err != nil {
			return err
		}
	}

	return s.seedTelemetry(ctx, ids)
}

func (s *Seeder) seedCustomers(ctx context.Context) error {
	n := s.config.Customers
	if n <= 0 || n > len(demoCustomers) {
		n = len(demoCustomers)
	}

	for _, c := range demoCustomers[:n] {
		_, err := s.crmDB.ExecContext(ctx, `
			INSERT INTO customers (customer_id, full_name, email, country, updated_at)
			VALUES ($1, $2, $3, $4, now())
			ON CONFLICT (customer_id) DO UPDATE
			SET full_name = EXCLUDED.full_name,
			    email = EXCLUDED.email,
			    country = EXCLUDED.country,
			    updated_at = EXCLUDED.updated_at
		`, c.CustomerID, c.FullName, c.Email, c.Country)
		if err != nil {
			return storeUnavailable("seed customer", err)
		}
	}

	log.Printf("🌱 Seeded %d demo customers", n)
	return nil
}

func (s *Seeder) seedTelemetry(ctx context.Context, customerIDs []string) error {
	if len(customerIDs) == 0 {
		return nil
	}

	responses := []float64{120, 150, 180, 220, 300, 450}
	batteries := []float64{88.0, 85.0, 82.0, 80.0, 78.0}

	now := time.Now().UTC()
	var events []TelemetryEvent
	for _, cid := range customerIDs {
		pid := fmt.Sprintf("p%d", rand.Intn(2)+1)
		for j := 0; j < s.config.EventsPerCustomer; j++ {
			events = append(events, TelemetryEvent{
				TS:           now.Add(-time.Duration(rand.Intn(10)+1)*time.Minute - time.Duration(rand.Intn(60))*time.Second),
				CustomerID:   cid,
				ProsthesisID: pid,
				ResponseMS:   responses[rand.Intn(len(responses))],
				IsError:      errorFlag(rand.Float64() < 0.2),
				BatteryLevel: batteries[rand.Intn(len(batteries))],
			})
		}
	}

	if err := s.warehouse.InsertTelemetry(ctx, events); err != nil {
		return err
	}

	log.Printf("🌱 Seeded %d demo telemetry events", len(events))
	return nil
}

func errorFlag(isErr bool) uint8 {
	if isErr {
		return 1
	}
	return 0
}
