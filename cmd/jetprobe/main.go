package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/wippyai/jet-runtime/capability"
	"github.com/wippyai/jet-runtime/config"
	"github.com/wippyai/jet-runtime/dispatch"
	"github.com/wippyai/jet-runtime/runtime"
)

func main() {
	var (
		cfgFile     = flag.String("config", "", "Config file (default: ./jet.{yaml,toml,json} when present)")
		libPath     = flag.String("lib", "", "Engine build to load (.wasm or shared library)")
		kind        = flag.String("kind", "", "Backend: memory, wasm or native")
		version     = flag.String("version", "", "Version override (8.1, 0x81000000)")
		list        = flag.Bool("list", false, "List capabilities and bound entry points and exit")
		smoke       = flag.Bool("smoke", false, "Run an instance/session/transaction round trip")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	cfg, err := config.Load(*cfgFile)
	if err != nil {
		fail(err)
	}
	if *kind != "" {
		cfg.Backend = *kind
	}
	if *libPath != "" {
		cfg.Library = *libPath
	}
	if *version != "" {
		cfg.Version = *version
	}
	if err := cfg.Validate(); err != nil {
		fail(err)
	}

	if !*list && !*smoke && !*interactive {
		fmt.Fprintln(os.Stderr, "Usage: jetprobe [-kind memory|wasm|native] [-lib path] [-version v] -list")
		fmt.Fprintln(os.Stderr, "       jetprobe ... -smoke")
		fmt.Fprintln(os.Stderr, "       jetprobe ... -i  (interactive mode)")
		os.Exit(1)
	}

	if *interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fail(fmt.Errorf("interactive mode needs a terminal"))
		}
		if err := runInteractive(cfg); err != nil {
			fail(err)
		}
		return
	}

	if err := run(cfg, os.Stdout, *list, *smoke); err != nil {
		fail(err)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func open(ctx context.Context, cfg *config.Config) (*runtime.Runtime, error) {
	log, err := cfg.Logger()
	if err != nil {
		return nil, err
	}
	lib, err := config.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", cfg.Backend, err)
	}
	opts, err := cfg.RuntimeOptions(log)
	if err != nil {
		_ = lib.Close(ctx)
		return nil, err
	}
	rt, err := runtime.New(ctx, lib, opts...)
	if err != nil {
		_ = lib.Close(ctx)
		return nil, fmt.Errorf("attach: %w", err)
	}
	return rt, nil
}

func run(cfg *config.Config, w io.Writer, list, smoke bool) error {
	ctx := context.Background()

	rt, err := open(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close(ctx)

	caps := rt.Capabilities()
	fmt.Fprintf(w, "Engine: %s (%s)\n", caps.Version(), cfg.Backend)
	if list {
		printCapabilities(w, caps)
		fmt.Fprintf(w, "\nEntry points:\n")
		for _, s := range dispatch.Catalog {
			v, err := rt.Variant(s.Op)
			if err != nil {
				fmt.Fprintf(w, "  %-20s unavailable\n", s.Op)
				continue
			}
			fmt.Fprintf(w, "  %-20s %s\n", s.Op, v.Symbol)
		}
	}

	if smoke {
		fmt.Fprintf(w, "\nSmoke test:\n")
		if err := roundTrip(ctx, rt, cfg, w); err != nil {
			return fmt.Errorf("smoke: %w", err)
		}
		fmt.Fprintf(w, "ok\n")
	}
	return nil
}

func printCapabilities(w io.Writer, caps capability.Set) {
	fmt.Fprintf(w, "\nCapabilities:\n")
	for _, f := range capability.Flags() {
		mark := " "
		if caps.Has(f) {
			mark = "x"
		}
		fmt.Fprintf(w, "  [%s] %-24s since %s\n", mark, f, f.Since())
	}
}

// roundTrip walks the ownership tree once: instance, session, a nested
// transaction pair, then terminate with everything still open.
func roundTrip(ctx context.Context, rt *runtime.Runtime, cfg *config.Config, w io.Writer) error {
	name, opts := cfg.InstanceOptions()
	inst, _, err := rt.CreateInstance(ctx, name, opts)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "  instance %s\n", inst.Name())

	if _, err := inst.Init(ctx, runtime.InitOptions{}); err != nil {
		return err
	}
	sess, _, err := inst.BeginSession(ctx, runtime.SessionOptions{})
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "  session %#x\n", sess.Handle())

	tx, _, err := sess.BeginTransaction(ctx, runtime.BeginOptions{})
	if err != nil {
		return err
	}
	if _, err := tx.Begin(ctx); err != nil {
		return err
	}
	fmt.Fprintf(w, "  transaction depth %d\n", sess.Depth())
	if _, _, err := tx.Commit(ctx, runtime.CommitOptions{}); err != nil {
		return err
	}
	if _, err := tx.Rollback(ctx); err != nil {
		return err
	}
	fmt.Fprintf(w, "  transaction depth %d\n", sess.Depth())

	return inst.Terminate(ctx, runtime.TermOptions{})
}
