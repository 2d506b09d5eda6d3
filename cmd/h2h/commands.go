package main

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	appcfg "github.com/park285/h2h-ledger/internal/config"
	"github.com/park285/h2h-ledger/internal/gate"
	"github.com/park285/h2h-ledger/internal/ledger"
	"github.com/park285/h2h-ledger/internal/ledgerbuilder"
	"github.com/park285/h2h-ledger/internal/match"
	"github.com/park285/h2h-ledger/internal/reconcile"
	"github.com/park285/h2h-ledger/internal/scoreboard"
	"github.com/park285/h2h-ledger/internal/statestore"
)

type app struct {
	cfg  *appcfg.AppConfig
	deps *ledgerbuilder.Deps
	in   io.Reader
	out  io.Writer
}

func (a *app) run(ctx context.Context, cmd string, args []string) int {
	switch cmd {
	case "board":
		return a.board(ctx)
	case "history":
		return a.history(ctx, args)
	case "add":
		return a.mutate(ctx, reconcile.ActionAdd, args)
	case "edit":
		return a.mutate(ctx, reconcile.ActionEdit, args)
	case "delete":
		return a.mutate(ctx, reconcile.ActionDelete, args)
	case "sync":
		return a.sync(ctx)
	case "photo":
		return a.photo(ctx, args)
	case "help", "-h", "--help":
		fmt.Fprintln(a.out, usage)
		return 0
	default:
		fmt.Fprintf(a.out, "unknown command %q\n\n%s\n", cmd, usage)
		return 2
	}
}

func (a *app) view() *scoreboard.Formatter { return a.deps.Formatter }

func (a *app) println(s string) { fmt.Fprintln(a.out, s) }

func (a *app) board(ctx context.Context) int {
	snap := a.deps.State.Snapshot()
	queued, _ := a.deps.Outbox.Len(ctx)
	a.println(a.view().Board(scoreboard.Build(snap.Pair), scoreboard.Status{
		Stale:   snap.Stale,
		Offline: snap.Mode == statestore.ModeOffline || queued > 0,
		Queued:  queued,
	}))
	return 0
}

func (a *app) history(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(a.out)
	detail := fs.Bool("detail", false, "show the goal breakdown of every match")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	entries, err := a.deps.Ledger.Load(ctx)
	if err != nil {
		a.println(a.view().Message("result.failed", map[string]any{"Action": "history", "Reason": err.Error()}))
		return 1
	}
	a.println(a.view().History(entries, a.cfg.PlayerOne, a.cfg.PlayerTwo, *detail))
	return 0
}

// matchFlags registers the form fields on fs.
type matchFlags struct {
	date, clock, result *string
	goals               map[string]*int
}

func newMatchFlags(fs *flag.FlagSet) *matchFlags {
	mf := &matchFlags{
		date:   fs.String("date", "", "match date YYYY-MM-DD"),
		clock:  fs.String("time", "", "kick-off HH:MM"),
		result: fs.String("result", "", "win, draw or loss from player one's view"),
		goals:  make(map[string]*int, len(match.FormKeys)),
	}
	for _, k := range match.FormKeys {
		mf.goals[k] = fs.Int(k, 0, "goal count")
	}
	return mf
}

// entry builds the submitted entry on top of base; only flags set on the
// command line replace base values. A date given without -time means 00:00.
func (mf *matchFlags) entry(fs *flag.FlagSet, base match.Entry) (match.Entry, error) {
	form, date, clock := match.FromEntry(base)
	result := base.Result

	given := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { given[f.Name] = true })

	if given["date"] {
		date, clock = *mf.date, ""
	}
	if given["time"] {
		clock = *mf.clock
	}
	if given["result"] {
		r, err := match.ParseResult(*mf.result)
		if err != nil {
			return match.Entry{}, err
		}
		result = r
	}
	for k, p := range mf.goals {
		if given[k] {
			form[k] = *p
		}
	}
	if !result.Valid() {
		return match.Entry{}, reconcile.ErrInvalidResult
	}
	return match.Normalize(form, date, clock, result), nil
}

func (a *app) mutate(ctx context.Context, kind reconcile.ActionKind, args []string) int {
	fs := flag.NewFlagSet(string(kind), flag.ContinueOnError)
	fs.SetOutput(a.out)
	code := fs.String("code", "", "access code")
	var mf *matchFlags
	if kind != reconcile.ActionDelete {
		mf = newMatchFlags(fs)
	}

	action := reconcile.Action{Kind: kind}
	if kind != reconcile.ActionAdd {
		if len(args) == 0 {
			a.println(usage)
			return 2
		}
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			a.println(a.view().Message("result.out_of_range", map[string]any{"Index": args[0]}))
			return 2
		}
		action.Index = n - 1
		args = args[1:]
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if err := gate.Check(a.accessCode(*code), a.cfg.AccessCode); err != nil {
		a.println(a.view().Message("result.denied", nil))
		return 1
	}

	if mf != nil {
		base := match.Entry{MatchDate: time.Now().Format("2006-01-02T15:04")}
		if kind == reconcile.ActionEdit {
			old, err := a.deps.Ledger.At(ctx, action.Index)
			if err != nil {
				return a.report(action, err)
			}
			base = old
		}
		e, err := mf.entry(fs, base)
		if err != nil {
			return a.report(action, err)
		}
		action.Entry = e
	}

	res := <-a.deps.Engine.Dispatch(ctx, action)
	return a.report(action, res.Err)
}

func (a *app) accessCode(flagValue string) string {
	if strings.TrimSpace(flagValue) != "" || strings.TrimSpace(a.cfg.AccessCode) == "" {
		return flagValue
	}
	fmt.Fprint(a.out, "access code: ")
	line, _ := bufio.NewReader(a.in).ReadString('\n')
	return line
}

// report prints exactly one line for the outcome of a mutating action.
func (a *app) report(action reconcile.Action, err error) int {
	n := action.Index + 1
	if err == nil {
		switch action.Kind {
		case reconcile.ActionAdd:
			a.println(a.view().Message("result.add_ok", nil))
		case reconcile.ActionEdit:
			a.println(a.view().Message("result.edit_ok", map[string]any{"Index": n}))
		default:
			a.println(a.view().Message("result.delete_ok", map[string]any{"Index": n}))
		}
		return 0
	}

	var ee *reconcile.EditError
	switch {
	case errors.Is(err, reconcile.ErrEntryBusy):
		a.println(a.view().Message("result.busy", map[string]any{"Index": n}))
	case errors.Is(err, reconcile.ErrIndexOutOfRange), errors.Is(err, ledger.ErrEntryNotFound):
		a.println(a.view().Message("result.out_of_range", map[string]any{"Index": n}))
	case errors.As(err, &ee) && ee.Compensated:
		a.println(a.view().Message("result.compensated", map[string]any{"Action": string(action.Kind), "Reason": ee.Cause.Error()}))
	default:
		a.println(a.view().Message("result.failed", map[string]any{"Action": string(action.Kind), "Reason": err.Error()}))
	}
	return 1
}

func (a *app) sync(ctx context.Context) int {
	report, err := a.deps.Engine.Sync(ctx)
	if err != nil {
		a.println(a.view().Message("result.failed", map[string]any{"Action": "sync", "Reason": err.Error()}))
		return 1
	}
	a.println(a.view().Message("result.sync_ok", map[string]any{"Flushed": report.Flushed}))
	return 0
}

func (a *app) photo(ctx context.Context, args []string) int {
	if len(args) != 2 {
		a.println(usage)
		return 2
	}
	side, name := match.P1, a.cfg.PlayerOne
	switch strings.ToLower(args[0]) {
	case "p1", "me":
	case "p2", "friend":
		side, name = match.P2, a.cfg.PlayerTwo
	default:
		a.println(usage)
		return 2
	}
	raw, err := os.ReadFile(args[1])
	if err != nil {
		a.println(a.view().Message("result.failed", map[string]any{"Action": "photo", "Reason": err.Error()}))
		return 1
	}
	blob := "data:" + http.DetectContentType(raw) + ";base64," + base64.StdEncoding.EncodeToString(raw)
	if err := a.deps.Photos.Set(ctx, side, blob); err != nil {
		a.println(a.view().Message("result.failed", map[string]any{"Action": "photo", "Reason": err.Error()}))
		return 1
	}
	a.println(a.view().Message("result.photo_ok", map[string]any{"Name": name}))
	return 0
}
