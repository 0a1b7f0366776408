// Command migrate prepares the database of the configured SQL store:
// it creates the mysql database when missing and applies every pending migration.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	huddle "github.com/putto11262002/huddle/app"
	"github.com/putto11262002/huddle/core"
	"github.com/putto11262002/huddle/migrations"
	"github.com/putto11262002/huddle/pkg/logger"
)

func main() {
	config, err := huddle.LoadConfig()
	if err != nil {
		fail(err)
	}
	if err := config.Validate(); err != nil {
		fail(fmt.Errorf("invalid config:\n%s", huddle.FormatValidationErrors(err)))
	}

	l, err := logger.New(config.Log.Level, logger.FormatConsole)
	if err != nil {
		fail(err)
	}
	defer l.Sync()

	switch config.Store.Driver {
	case huddle.StoreMySQL:
		fmt.Println("Using DB host:", config.MySQL.Host)
		fmt.Println("Using DB user:", config.MySQL.User)
		fmt.Println("Using DB password:", maskPassword(config.MySQL.Password))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := core.EnsureMySQLDatabase(ctx, huddle.MySQLOption(config)); err != nil {
			fail(err)
		}
	case huddle.StoreSQLite:
		fmt.Println("Using sqlite file:", config.SQLite.File)
	default:
		fmt.Printf("store driver %q has no schema to migrate\n", config.Store.Driver)
		return
	}

	db, err := huddle.OpenDB(config)
	if err != nil {
		fail(err)
	}
	defer db.Close()

	if err := db.Migrate(migrations.FS, migrations.Dir(db.Dialect()), l.Named("migrate")); err != nil {
		fail(err)
	}
	fmt.Println("Database and tables created (or already exist).")
}

func maskPassword(password string) string {
	if password == "" {
		return "(empty)"
	}
	return "********"
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "\nError setting up database. Possible causes:")
	fmt.Fprintln(os.Stderr, " - database server not running or refusing connections")
	fmt.Fprintln(os.Stderr, " - incorrect credentials in .env or config.yaml")
	fmt.Fprintln(os.Stderr, " - database configured on a non-default port or host")
	fmt.Fprintln(os.Stderr, "\nDetailed error:")
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
