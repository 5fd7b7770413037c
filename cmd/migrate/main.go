package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"crewdock.io/internal/migrate"
)

func main() {
	log.SetFlags(0)
	var (
		dsn            = flag.String("dsn", os.Getenv("CREWDOCK_PG_DSN"), "PostgreSQL DSN")
		migrationsPath = flag.String("migrations", "migrations", "Path to SQL migrations")
		seedsPath      = flag.String("seeds", "migrations/seeds", "Path to SQL seeds")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or CREWDOCK_PG_DSN")
	}
	if len(flag.Args()) == 0 {
		log.Fatal("usage: migrate [up|down|seed|status]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	mgr := migrate.NewManager(db, *migrationsPath, *seedsPath)

	switch flag.Arg(0) {
	case "up":
		var n int
		n, err = mgr.Up(ctx)
		if err == nil {
			fmt.Printf("applied %d migration(s)\n", n)
		}
	case "down":
		var name string
		name, err = mgr.Down(ctx)
		if err == nil {
			fmt.Printf("rolled back %s\n", name)
		}
	case "seed":
		var n int
		n, err = mgr.Seed(ctx)
		if err == nil {
			fmt.Printf("applied %d seed(s)\n", n)
		}
	case "status":
		var st migrate.Status
		st, err = mgr.State(ctx)
		if err == nil {
			for _, rec := range st.Applied {
				fmt.Printf("applied  %s  %s\n", rec.Name, rec.AppliedAt.Format(time.RFC3339))
			}
			for _, name := range st.Pending {
				fmt.Printf("pending  %s\n", name)
			}
		}
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}
	if err != nil {
		log.Fatalf("migrate %s: %v", flag.Arg(0), err)
	}
}
