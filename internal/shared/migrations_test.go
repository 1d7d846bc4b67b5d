package shared

import (
	"testing"
)

func TestMigrationRunner(t *testing.T) {
	t.Run("loadMigrations", func(t *testing.T) {
		migrations, err := loadMigrations()
		if err != nil {
			t.Fatalf("failed to load migrations: %v", err)
		}
		if len(migrations) < 2 {
			t.Fatalf("expected at least two migrations, got %d", len(migrations))
		}

		for i := 1; i < len(migrations); i++ {
			if migrations[i].Version <= migrations[i-1].Version {
				t.Errorf("migrations not sorted: version %d comes after %d", migrations[i].Version, migrations[i-1].Version)
			}
		}

		if migrations[1].Name != "create_kv_records" {
			t.Errorf("expected name create_kv_records, got %q", migrations[1].Name)
		}
	})

	t.Run("RunMigrations And Rollback", func(t *testing.T) {
		db, err := NewDatabase(":memory:")
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		defer db.Close()

		if err := RunMigrations(db); err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}

		if _, err := db.Exec("SELECT 1 FROM kv_records LIMIT 1"); err != nil {
			t.Errorf("kv_records table should exist after migrations: %v", err)
		}
		if _, err := db.Exec("SELECT 1 FROM cache_entries LIMIT 1"); err != nil {
			t.Errorf("cache_entries table should exist after migrations: %v", err)
		}

		if err := RollbackMigration(db); err != nil {
			t.Fatalf("failed to rollback migration: %v", err)
		}
		if _, err := db.Exec("SELECT 1 FROM kv_records LIMIT 1"); err == nil {
			t.Error("kv_records table should be dropped after rollback")
		}

		status, err := Migrations(db)
		if err != nil {
			t.Fatalf("failed to read status: %v", err)
		}
		if !status[0].Applied || status[1].Applied {
			t.Errorf("unexpected status after rollback: %+v", status)
		}
	})

	t.Run("Rollback with nothing applied", func(t *testing.T) {
		db, err := NewDatabase(":memory:")
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		defer db.Close()

		if err := createMigrationsTable(db); err != nil {
			t.Fatalf("failed to create table: %v", err)
		}
		if err := RollbackMigration(db); err == nil {
			t.Error("expected error rolling back an empty database")
		}
	})

	t.Run("Idempotent Migrations", func(t *testing.T) {
		db, err := NewDatabase(":memory:")
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		defer db.Close()

		if err := RunMigrations(db); err != nil {
			t.Fatalf("failed to run migrations first time: %v", err)
		}
		if err := RunMigrations(db); err != nil {
			t.Fatalf("failed to run migrations second time: %v", err)
		}

		var count int
		if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
			t.Fatalf("failed to query schema_migrations: %v", err)
		}

		migrations, _ := loadMigrations()
		if count != len(migrations) {
			t.Errorf("expected %d migrations to be applied, got %d", len(migrations), count)
		}
	})
}

func TestLimitDatabaseSize(t *testing.T) {
	db, err := NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	defer db.Close()

	if err := LimitDatabaseSize(db, 1<<20); err != nil {
		t.Fatalf("LimitDatabaseSize failed: %v", err)
	}

	var pageSize, maxPages int64
	if err := db.QueryRow("PRAGMA page_size").Scan(&pageSize); err != nil {
		t.Fatalf("page_size: %v", err)
	}
	if err := db.QueryRow("PRAGMA max_page_count").Scan(&maxPages); err != nil {
		t.Fatalf("max_page_count: %v", err)
	}
	if maxPages != (1<<20)/pageSize {
		t.Errorf("expected %d pages, got %d", (1<<20)/pageSize, maxPages)
	}

	t.Run("non-positive size is a no-op", func(t *testing.T) {
		if err := LimitDatabaseSize(db, 0); err != nil {
			t.Errorf("expected nil, got %v", err)
		}
	})
}
