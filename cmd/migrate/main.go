package main

import (
	"database/sql"
	"flag"
	"log"
	"os"
	"path/filepath"
	"sort"

	"prediction-amm/internal/config"
	"prediction-amm/internal/database"

	_ "github.com/lib/pq"
)

func main() {
	sqlPath := flag.String("sql", "", "apply a .sql file, or every .sql file in a directory, instead of AutoMigrate (postgres only)")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if *sqlPath == "" {
		if err := database.Connect(cfg.Database.Driver, cfg.GetDSN()); err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		if err := database.AutoMigrate(database.GetDB()); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
		log.Println("AutoMigrate completed successfully")
		return
	}

	if cfg.Database.Driver != "postgres" {
		log.Fatalf("-sql requires DB_DRIVER=postgres, got %s", cfg.Database.Driver)
	}

	files, err := migrationFiles(*sqlPath)
	if err != nil {
		log.Fatalf("Failed to list migrations: %v", err)
	}

	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	for _, f := range files {
		migrationSQL, err := os.ReadFile(f)
		if err != nil {
			log.Fatalf("Failed to read migration file %s: %v", f, err)
		}
		log.Printf("Applying migration: %s", filepath.Base(f))
		if _, err := db.Exec(string(migrationSQL)); err != nil {
			log.Fatalf("Failed to apply migration %s: %v", f, err)
		}
	}

	log.Printf("Applied %d migration(s) successfully", len(files))
}

// migrationFiles returns path itself, or the .sql files inside it sorted by
// name.
func migrationFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	files, err := filepath.Glob(filepath.Join(path, "*.sql"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
