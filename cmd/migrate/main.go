// CLI tool to apply or roll back the embedded database migrations.
// Usage: go run ./cmd/migrate [up|down N|version]
package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/joho/godotenv"

	"lg/nutrition-log-api/db"
)

func main() {
	_ = godotenv.Load()

	dbURL := os.Getenv("DB_URL")
	if dbURL == "" {
		fmt.Fprintln(os.Stderr, "DB_URL is not set")
		os.Exit(1)
	}

	m, err := db.NewMigrator(dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer m.Close()

	cmd := "up"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	switch cmd {
	case "up":
		err = m.Up()
	case "down":
		// Roll back one step unless told otherwise; never everything by accident.
		steps := 1
		if len(os.Args) > 2 {
			steps, err = strconv.Atoi(os.Args[2])
			if err != nil || steps <= 0 {
				fmt.Fprintf(os.Stderr, "Invalid step count %q\n", os.Args[2])
				os.Exit(1)
			}
		}
		err = m.Steps(-steps)
	case "version":
		version, dirty, verr := m.Version()
		if errors.Is(verr, migrate.ErrNilVersion) {
			fmt.Println("No migrations applied.")
			return
		}
		if verr != nil {
			fmt.Fprintf(os.Stderr, "Error reading version: %v\n", verr)
			os.Exit(1)
		}
		fmt.Printf("Version %d (dirty: %t)\n", version, dirty)
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q (want up, down or version)\n", cmd)
		os.Exit(1)
	}

	if errors.Is(err, migrate.ErrNoChange) {
		fmt.Println("No pending migrations.")
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error running %s: %v\n", cmd, err)
		os.Exit(1)
	}
	fmt.Printf("Migrations %s complete.\n", cmd)
}
