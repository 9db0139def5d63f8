package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/cppla/memevault/config"
	"github.com/cppla/memevault/migrations"
	"github.com/cppla/memevault/utils"
)

const usage = `usage: migrate [flags] <command>

commands:
  up        apply all pending migrations (default)
  down      roll back the latest migration
  status    print applied and pending migrations
  version   print the current schema version
`

func main() {
	timeout := flag.Duration("timeout", 5*time.Minute, "overall deadline")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	cmd := "up"
	if flag.NArg() > 0 {
		cmd = flag.Arg(0)
	}

	cfg := config.Load()
	if err := utils.InitLogger(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer utils.Logger.Sync()

	if err := run(cfg, cmd, *timeout); err != nil {
		utils.Sugar.Errorf("migrate %s failed: %v", cmd, err)
		os.Exit(1)
	}
}

func run(cfg config.AppConfig, cmd string, timeout time.Duration) error {
	gdb, err := config.OpenDatabase(cfg)
	if err != nil {
		return err
	}
	db, err := gdb.DB()
	if err != nil {
		return err
	}
	defer db.Close()

	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("mysql"); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	switch cmd {
	case "up":
		utils.Sugar.Info("running migrations")
		if err := goose.UpContext(ctx, db, "."); err != nil {
			return err
		}
		utils.Sugar.Info("migrations complete")
	case "down":
		return goose.DownContext(ctx, db, ".")
	case "status":
		return goose.StatusContext(ctx, db, ".")
	case "version":
		return goose.VersionContext(ctx, db, ".")
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}
