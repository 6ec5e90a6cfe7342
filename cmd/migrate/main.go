// The migrate binary applies the SQL files in migrations/ in name order.
// Each file runs in its own transaction. The schema uses IF NOT EXISTS
// throughout, so re-running against an up-to-date database is harmless.
package main

import (
	"database/sql"
	"flag"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "github.com/lib/pq"

	"github.com/ignite/campaign-engine/internal/pkg/logger"
)

func main() {
	dir := flag.String("dir", "migrations", "directory with .sql files")
	list := flag.Bool("list", false, "list public tables and exit")
	flag.Parse()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		logger.Error("connect failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Error("ping failed", "error", err)
		os.Exit(1)
	}

	if *list {
		listTables(db)
		return
	}

	files, err := sqlFiles(*dir)
	if err != nil {
		logger.Error("read migrations dir failed", "dir", *dir, "error", err)
		os.Exit(1)
	}

	failed := 0
	for _, f := range files {
		if err := applyFile(db, filepath.Join(*dir, f)); err != nil {
			logger.Error("migration failed", "file", f, "error", err)
			failed++
			continue
		}
		logger.Info("migration applied", "file", f)
	}
	if failed > 0 {
		os.Exit(1)
	}
}

func sqlFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

func applyFile(db *sql.DB, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(string(data)); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func listTables(db *sql.DB) {
	rows, err := db.Query(`SELECT tablename FROM pg_tables WHERE schemaname = 'public' ORDER BY tablename`)
	if err != nil {
		logger.Error("list tables failed", "error", err)
		os.Exit(1)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			continue
		}
		logger.Info("table", "name", t)
		n++
	}
	logger.Info("listed tables", "count", n)
}
