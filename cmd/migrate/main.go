// Command migrate applies or rolls back the SQL migrations under MIGRATIONS_DIR.
//
//	migrate [up|down|version]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"event-ticketing/internal/config"
	"event-ticketing/internal/database"
	"event-ticketing/internal/database/migrations"
	"event-ticketing/internal/logger"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	dir := flag.String("dir", cfg.Migrations.Dir, "directory holding the migration files")
	flag.Parse()

	command := "up"
	if flag.NArg() > 0 {
		command = flag.Arg(0)
	}

	log := logger.NewWithWriter(os.Stdout)
	bunDB, err := database.Connect(context.Background(), cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}

	runner := migrations.NewRunner(bunDB, *dir, log)
	defer func() {
		if err := runner.Close(); err != nil {
			log.Error("MIGRATION", err.Error())
		}
	}()

	switch command {
	case "up":
		err = runner.Up()
	case "down":
		err = runner.Down()
	case "version":
		var (
			v     uint
			dirty bool
		)
		if v, dirty, err = runner.Version(); err == nil {
			fmt.Printf("version %d (dirty: %t)\n", v, dirty)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q, expected up, down or version\n", command)
		os.Exit(2)
	}
	if err != nil {
		log.Error("MIGRATION", err.Error())
		os.Exit(1)
	}
	log.Info("MIGRATION", fmt.Sprintf("%s finished", command))
}
