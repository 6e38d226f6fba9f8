package seed

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// demoTable is one sample table with its comments. Comments matter here:
// they become the embedded table documents the retrieval step searches.
type demoTable struct {
	name       string
	createSQL  string
	comment    string
	colComment map[string]string
}

func demoTables() []demoTable {
	return []demoTable{
		{
			name: "hosts",
			createSQL: `
				CREATE TABLE IF NOT EXISTS hosts (
					id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
					hostname TEXT NOT NULL UNIQUE,
					region TEXT NOT NULL,
					environment TEXT NOT NULL
				)
			`,
			comment: "Inventory of monitored machines",
			colComment: map[string]string{
				"hostname":    "DNS name of the machine",
				"region":      "Deployment region, e.g. us-east-1",
				"environment": "prod, staging, or dev",
			},
		},
		{
			name: "cpu_metrics",
			createSQL: `
				CREATE TABLE IF NOT EXISTS cpu_metrics (
					id BIGSERIAL PRIMARY KEY,
					host_id UUID NOT NULL REFERENCES hosts(id) ON DELETE CASCADE,
					ts TIMESTAMPTZ NOT NULL,
					usage_percent DOUBLE PRECISION NOT NULL,
					load_1m DOUBLE PRECISION NOT NULL
				)
			`,
			comment: "Per-host CPU samples at one minute resolution",
			colComment: map[string]string{
				"ts":            "Sample timestamp",
				"usage_percent": "CPU utilization 0-100",
				"load_1m":       "One minute load average",
			},
		},
		{
			name: "disk_metrics",
			createSQL: `
				CREATE TABLE IF NOT EXISTS disk_metrics (
					id BIGSERIAL PRIMARY KEY,
					host_id UUID NOT NULL REFERENCES hosts(id) ON DELETE CASCADE,
					ts TIMESTAMPTZ NOT NULL,
					mount_point TEXT NOT NULL,
					used_bytes BIGINT NOT NULL,
					total_bytes BIGINT NOT NULL
				)
			`,
			comment: "Per-host disk usage samples by mount point",
			colComment: map[string]string{
				"ts":          "Sample timestamp",
				"mount_point": "Filesystem mount point, e.g. /var",
				"used_bytes":  "Bytes in use on the filesystem",
				"total_bytes": "Filesystem capacity in bytes",
			},
		},
	}
}

// SeedDemoData creates sample metric tables and fills them with a day of
// synthetic samples so the agent has something to answer questions about.
func (s *Seeder) SeedDemoData(ctx context.Context) error {
	for _, t := range demoTables() {
		if _, err := s.pool.Exec(ctx, t.createSQL); err != nil {
			return fmt.Errorf("create %s: %w", t.name, err)
		}
		comment := fmt.Sprintf("COMMENT ON TABLE %s IS '%s'", t.name, t.comment)
		if _, err := s.pool.Exec(ctx, comment); err != nil {
			return fmt.Errorf("comment %s: %w", t.name, err)
		}
		for col, text := range t.colComment {
			colComment := fmt.Sprintf("COMMENT ON COLUMN %s.%s IS '%s'", t.name, col, text)
			if _, err := s.pool.Exec(ctx, colComment); err != nil {
				return fmt.Errorf("comment %s.%s: %w", t.name, col, err)
			}
		}
	}

	hostIDs, err := s.seedHosts(ctx)
	if err != nil {
		return err
	}
	return s.seedSamples(ctx, hostIDs)
}

// DropDemoData removes the sample tables.
func (s *Seeder) DropDemoData(ctx context.Context) error {
	for _, table := range []string{"disk_metrics", "cpu_metrics", "hosts"} {
		if _, err := s.pool.Exec(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE"); err != nil {
			return err
		}
		s.logger.Info("dropped table", "table", table)
	}
	return nil
}

func (s *Seeder) seedHosts(ctx context.Context) ([]string, error) {
	hosts := []struct {
		hostname, region, env string
	}{
		{"web-01.example.net", "us-east-1", "prod"},
		{"web-02.example.net", "us-east-1", "prod"},
		{"db-01.example.net", "us-west-2", "prod"},
		{"ci-01.example.net", "us-west-2", "staging"},
	}

	var ids []string
	for _, h := range hosts {
		var id string
		err := s.pool.QueryRow(ctx, `
			INSERT INTO hosts (hostname, region, environment)
			VALUES ($1, $2, $3)
			ON CONFLICT (hostname) DO UPDATE SET region = EXCLUDED.region
			RETURNING id
		`, h.hostname, h.region, h.env).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("seed host %s: %w", h.hostname, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// seedSamples writes 24 hours of samples per host at 5 minute resolution.
func (s *Seeder) seedSamples(ctx context.Context, hostIDs []string) error {
	rng := rand.New(rand.NewSource(42))
	start := time.Now().UTC().Truncate(time.Hour).Add(-24 * time.Hour)

	for _, hostID := range hostIDs {
		base := 20 + rng.Float64()*30
		for ts := start; ts.Before(start.Add(24 * time.Hour)); ts = ts.Add(5 * time.Minute) {
			usage := base + rng.Float64()*25
			if usage > 100 {
				usage = 100
			}
			_, err := s.pool.Exec(ctx, `
				INSERT INTO cpu_metrics (host_id, ts, usage_percent, load_1m)
				VALUES ($1, $2, $3, $4)
			`, hostID, ts, usage, usage/25)
			if err != nil {
				return fmt.Errorf("seed cpu sample: %w", err)
			}
		}

		for _, mount := range []string{"/", "/var"} {
			total := int64(100 << 30)
			used := int64(float64(total) * (0.3 + rng.Float64()*0.4))
			for ts := start; ts.Before(start.Add(24 * time.Hour)); ts = ts.Add(time.Hour) {
				used += int64(rng.Float64() * float64(1<<28))
				_, err := s.pool.Exec(ctx, `
					INSERT INTO disk_metrics (host_id, ts, mount_point, used_bytes, total_bytes)
					VALUES ($1, $2, $3, $4, $5)
				`, hostID, ts, mount, used, total)
				if err != nil {
					return fmt.Errorf("seed disk sample: %w", err)
				}
			}
		}
	}

	s.logger.Info("demo data seeded", "hosts", len(hostIDs))
	return nil
}
