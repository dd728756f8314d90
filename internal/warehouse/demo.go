package warehouse

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// Migration is a single step of the demo warehouse schema.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// demoMigrations builds a local stand-in for the KENYA_DASHBOARD schema.
// Append new steps to the end with incrementing Version numbers.
var demoMigrations = []Migration{
	{
		Version:     1,
		Description: "dashboard tables",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS IMPACT_TRENDS (
    INDICATOR_NAME TEXT PRIMARY KEY,
    CURRENT_VALUE REAL NOT NULL,
    TARGET_VALUE REAL NOT NULL,
    UNIT TEXT NOT NULL,
    TREND_DIRECTION TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS POLICY_TRACKER (
    CRC_PRINCIPLE TEXT PRIMARY KEY,
    PROGRESS_PCT REAL NOT NULL,
    CHILDREN_ACT_SECTION TEXT NOT NULL
);
`)
			return err
		},
	},
	{
		Version:     2,
		Description: "sample indicator rows",
		Up: func(tx *sql.Tx) error {
			for _, r := range demoImpact {
				if _, err := tx.Exec(
					`INSERT OR REPLACE INTO IMPACT_TRENDS VALUES (?, ?, ?, ?, ?)`,
					r.name, r.current, r.target, r.unit, r.trend,
				); err != nil {
					return err
				}
			}
			for _, r := range demoPolicy {
				if _, err := tx.Exec(
					`INSERT OR REPLACE INTO POLICY_TRACKER VALUES (?, ?, ?)`,
					r.principle, r.progress, r.section,
				); err != nil {
					return err
				}
			}
			return nil
		},
	},
}

var demoImpact = []struct {
	name            string
	current, target float64
	unit, trend     string
}{
	{"Stunting (Under 5)", 18, 14, "Percentage", "Improving"},
	{"Birth Registration", 76, 100, "Percentage", "Improving"},
	{"Under-5 Mortality (per 1,000)", 41, 25, "Other", "Declining"},
	{"Primary Completion Rate", 84, 100, "Percentage", "Stable"},
}

var demoPolicy = []struct {
	principle, section string
	progress           float64
}{
	{"Best Interests of the Child", "Section 8", 82},
	{"Non-Discrimination", "Section 5", 64},
	{"Right to Life, Survival & Development", "Section 4", 71},
	{"Child Participation", "Section 20", 47},
}

// DemoQueries are the statements that read the seeded tables.
var DemoQueries = struct{ Impact, Policy string }{
	Impact: "SELECT * FROM IMPACT_TRENDS",
	Policy: "SELECT * FROM POLICY_TRACKER",
}

// SeedDemo creates or upgrades a SQLite warehouse at path with sample data.
func SeedDemo(path string, logger *zap.SugaredLogger) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("opening demo warehouse: %w", err)
	}
	defer conn.Close()

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("setting journal mode: %w", err)
	}
	return migrate(conn, logger)
}

func latestVersion() int {
	return demoMigrations[len(demoMigrations)-1].Version
}

// schemaVersion reads PRAGMA user_version from the database.
func schemaVersion(conn *sql.DB) (int, error) {
	var version int
	if err := conn.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return version, nil
}

// migrate brings the demo schema up to the latest version, tracking progress
// in PRAGMA user_version.
func migrate(conn *sql.DB, logger *zap.SugaredLogger) error {
	current, err := schemaVersion(conn)
	if err != nil {
		return err
	}
	if current >= latestVersion() {
		return nil
	}

	for _, m := range demoMigrations {
		if m.Version <= current {
			continue
		}

		logger.Infof("applying demo migration %d: %s", m.Version, m.Description)

		tx, err := conn.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if err := m.Up(tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}

		// modernc/sqlite will not set user_version inside the transaction.
		if _, err := conn.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.Version)); err != nil {
			return fmt.Errorf("setting version %d: %w", m.Version, err)
		}
	}

	return nil
}
