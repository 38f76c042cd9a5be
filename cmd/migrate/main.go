package main

import (
	"errors"
	"flag"
	"github.com/ariefcatur/go-order-reconciler/internal/config"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joho/godotenv"
	"log"
)

func main() {
	_ = godotenv.Load()

	dir := flag.String("path", "migrations", "directory with *.up.sql / *.down.sql")
	down := flag.Bool("down", false, "roll back one step instead of applying all")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	m, err := migrate.New("file://"+*dir, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("migrate init: %v", err)
	}
	defer m.Close()

	if *down {
		err = m.Steps(-1)
	} else {
		err = m.Up()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Fatalf("migrate: %v", err)
	}

	v, dirty, _ := m.Version()
	log.Printf("migrations at version %d (dirty=%v)", v, dirty)
}
