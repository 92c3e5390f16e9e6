package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/you/courier/internal/auth"
	"github.com/you/courier/internal/storage"
	"github.com/you/courier/migrations"
)

func main() {
	var seedUser, seedPass string
	flag.StringVar(&seedUser, "seed-admin-user", "", "create an admin account after migrating")
	flag.StringVar(&seedPass, "seed-admin-password", "", "password for -seed-admin-user")
	flag.Parse()

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		log.Fatal(err)
	}

	command := "up"
	if args := flag.Args(); len(args) > 0 {
		command = args[0]
	}

	ctx := context.Background()
	if err := goose.RunContext(ctx, command, db, "."); err != nil {
		log.Fatalf("goose %s: %v", command, err)
	}

	if seedUser != "" {
		if seedPass == "" {
			log.Fatal("-seed-admin-password is required with -seed-admin-user")
		}
		hash, err := auth.HashPassword(seedPass)
		if err != nil {
			log.Fatal(err)
		}
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			log.Fatal(err)
		}
		defer pool.Close()
		if err := storage.New(pool).SeedAdmin(ctx, seedUser, hash); err != nil {
			log.Fatal(err)
		}
		log.Printf("admin %q ready", seedUser)
	}
}
