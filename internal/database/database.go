package database

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the SQL database connection
type DB struct {
	*sql.DB
}

// New opens (and creates if needed) the SQLite database at the given path
func New(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows a single writer; keep the pool small
	db.SetMaxOpenConns(1)
	db.SetConnMaxIdleTime(1 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("✅ SQLite database connected")

	return &DB{db}, nil
}

// Initialize creates all required tables
func (db *DB) Initialize() error {
	log.Println("🔍 Checking database schema...")

	schema := []string{
		`CREATE TABLE IF NOT EXISTS projects (
			slug              TEXT PRIMARY KEY,
			title             TEXT NOT NULL DEFAULT 'Untitled',
			engine            TEXT NOT NULL DEFAULT 'volcengine',
			style_generations INTEGER NOT NULL DEFAULT 0,
			slide_generations INTEGER NOT NULL DEFAULT 0,
			created_at        TIMESTAMP NOT NULL,
			updated_at        TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS slides (
			sid           TEXT PRIMARY KEY,
			slug          TEXT NOT NULL REFERENCES projects(slug) ON DELETE CASCADE,
			content       TEXT NOT NULL,
			position      INTEGER NOT NULL,
			selected_hash TEXT,
			created_at    TIMESTAMP NOT NULL,
			updated_at    TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_slides_slug_position ON slides(slug, position)`,
		`CREATE TABLE IF NOT EXISTS images (
			sid        TEXT NOT NULL REFERENCES slides(sid) ON DELETE CASCADE,
			slug       TEXT NOT NULL,
			hash       TEXT NOT NULL,
			path       TEXT NOT NULL,
			thumb_path TEXT NOT NULL DEFAULT '',
			matched    INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			PRIMARY KEY (sid, hash)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_images_slug ON images(slug)`,
		`CREATE TABLE IF NOT EXISTS styles (
			slug       TEXT PRIMARY KEY REFERENCES projects(slug) ON DELETE CASCADE,
			prompt     TEXT NOT NULL,
			image_path TEXT NOT NULL,
			style_type TEXT,
			style_name TEXT,
			created_at TIMESTAMP NOT NULL
		)`,
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	log.Println("✅ Database initialized successfully")
	return nil
}
