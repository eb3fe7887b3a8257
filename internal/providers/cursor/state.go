package cursor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	_ "github.com/mattn/go-sqlite3"
)

const cachedEmailKey = "cursorAuth/cachedEmail"

// stateDBPath is the Cursor desktop app's global state database.
func stateDBPath(home, goos string) string {
	switch goos {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Cursor", "User", "globalStorage", "state.vscdb")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		return filepath.Join(appData, "Cursor", "User", "globalStorage", "state.vscdb")
	default:
		return filepath.Join(home, ".config", "Cursor", "User", "globalStorage", "state.vscdb")
	}
}

// StateDBPath is where the desktop app keeps its state on this OS.
func StateDBPath(home string) string {
	return stateDBPath(home, runtime.GOOS)
}

// readCachedEmail returns the signed-in email the desktop app cached. A
// missing database or key yields "".
func readCachedEmail(ctx context.Context, dbPath string) (string, error) {
	if _, err := os.Stat(dbPath); err != nil {
		return "", nil
	}
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro&_journal_mode=WAL", dbPath))
	if err != nil {
		return "", fmt.Errorf("opening state DB: %w", err)
	}
	defer db.Close()

	var email string
	err = db.QueryRowContext(ctx, `SELECT value FROM ItemTable WHERE key = ?`, cachedEmailKey).Scan(&email)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("querying cached email: %w", err)
	}
	return email, nil
}
