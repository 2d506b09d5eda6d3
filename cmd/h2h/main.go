package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	appcfg "github.com/park285/h2h-ledger/internal/config"
	"github.com/park285/h2h-ledger/internal/ledgerbuilder"
	"github.com/park285/h2h-ledger/internal/obslog"
	"go.uber.org/zap"
)

const usage = `usage: h2h <command> [flags]

commands:
  board                      show the comparison board
  history [-detail]          list recorded matches, newest first
  add [match flags]          record a match
  edit <n> [match flags]     replace match #n (flags not given keep their value)
  delete <n>                 remove match #n
  sync                       flush offline operations and reload aggregates
  photo <p1|p2> <file>       attach a picture to a participant

match flags: -date YYYY-MM-DD -time HH:MM -result win|draw|loss
             -me_n -me_p -me_f -me_c -me_og -fr_n -fr_p -fr_f -fr_c -fr_og
mutating commands ask for the access code unless -code is given`

func main() {
	os.Exit(realMain(os.Args[1:]))
}

func realMain(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, usage)
		return 2
	}
	if err := obslog.InitFromEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
	}
	defer func() { _ = obslog.L().Sync() }()

	cfg, err := appcfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := ledgerbuilder.New(ctx, cfg, obslog.L())
	if err != nil {
		fmt.Fprintf(os.Stderr, "init error: %v\n", err)
		return 1
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := deps.Close(closeCtx); err != nil {
			obslog.L().Warn("close_failed", zap.Error(err))
		}
	}()
	if err := deps.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "init error: %v\n", err)
		return 1
	}

	app := &app{cfg: cfg, deps: deps, in: os.Stdin, out: os.Stdout}
	return app.run(ctx, args[0], args[1:])
}
