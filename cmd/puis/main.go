// Command puis tracks the latest upstream releases of distribution
// packages.
//
// Usage:
//
//	puis <abbs-db> <puis-db>                      one detection + poll cycle,
//	                                              then the Anitya mirror sync
//	puis generate [-d abbs.db] [-e base.yaml] [output]
//	puis run [-k minutes] [-d puis.db] [-c chores.yaml]
//	puis check [-f term|text|atom|template] [-n N] [-T tpl] [output]
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/aosc-dev/puis/internal/anitya"
	"github.com/aosc-dev/puis/internal/chores"
	"github.com/aosc-dev/puis/internal/probe"
	"github.com/aosc-dev/puis/internal/render"
	"github.com/aosc-dev/puis/internal/scheduler"
	"github.com/aosc-dev/puis/internal/store"
)

func main() {
	log.SetFlags(log.LstdFlags)

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "generate":
		execGenerate(os.Args[2:])
	case "run":
		execRun(os.Args[2:])
	case "check":
		execCheck(os.Args[2:])
	case "-h", "--help", "help":
		usage()
	default:
		// No subcommand: the two-database full cycle.
		if len(os.Args) != 3 {
			usage()
			os.Exit(2)
		}
		execCycle(os.Args[1], os.Args[2])
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage:\n"+
		"  %[1]s <abbs-db> <puis-db>\n"+
		"  %[1]s generate [-d abbs.db] [-e existing.yaml] [output]\n"+
		"  %[1]s run [-k minutes] [-d puis.db] [-c chores.yaml]\n"+
		"  %[1]s check [-f term|text|atom|template] [-n N] [-T tpl] [output]\n",
		os.Args[0])
}

// execCycle runs one detection + poll cycle over the abbs catalog and then
// synchronizes the release-monitoring mirror.
func execCycle(abbsPath, dbPath string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	abbs, err := store.OpenAbbs(abbsPath)
	if err != nil {
		log.Fatalf("Failed to open abbs database: %v", err)
	}
	defer abbs.Close()

	st, err := store.Open(dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer st.Close()

	packages, err := abbs.ListPackages(ctx)
	if err != nil {
		log.Fatalf("Failed to read package catalog: %v", err)
	}

	client := probe.NewClient()
	sched := scheduler.New(st, client)
	if err := sched.RunCycle(ctx, packages); err != nil {
		log.Fatalf("Poll cycle failed: %v", err)
	}

	if ctx.Err() != nil {
		log.Println("Interrupted; skipping Anitya sync")
		return
	}
	syncAnitya(ctx, st, client, packages)
}

// syncAnitya mirrors the release-monitoring index and rebuilds the
// name-match links. Failures are logged, not fatal: the poll results are
// already committed.
func syncAnitya(ctx context.Context, st *store.Store, client *probe.Client, packages []store.Package) {
	ac := anitya.NewClient("", client)
	projects, err := ac.FetchProjects(ctx)
	if err != nil {
		log.Printf("Anitya sync failed: %v", err)
		return
	}
	if err := st.ReplaceAnityaProjects(ctx, projects); err != nil {
		log.Printf("Failed to store Anitya projects: %v", err)
		return
	}

	names := make([]string, 0, len(packages))
	seen := make(map[string]bool, len(packages))
	for _, pkg := range packages {
		if !seen[pkg.Name] {
			seen[pkg.Name] = true
			names = append(names, pkg.Name)
		}
	}
	links := anitya.DetectLinks(names, projects)
	if err := st.ReplaceAnityaLinks(ctx, links); err != nil {
		log.Printf("Failed to store Anitya links: %v", err)
	}
}

func execGenerate(args []string) {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	abbsPath := fs.String("d", "", "abbs database file")
	existingPath := fs.String("e", "", "base the output on this existing config")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s generate [-d abbs.db] [-e existing.yaml] [output]\n", os.Args[0])
	}
	if err := fs.Parse(args); err != nil {
		log.Fatalf("parse args: %v", err)
	}

	output := "chores.yaml"
	if fs.NArg() > 0 {
		output = fs.Arg(0)
	}

	existing := chores.Config{}
	if *existingPath != "" {
		var err error
		existing, err = chores.Load(*existingPath)
		if err != nil {
			log.Fatalf("Failed to load existing config: %v", err)
		}
	}

	var packages []store.Package
	if *abbsPath != "" {
		abbs, err := store.OpenAbbs(*abbsPath)
		if err != nil {
			log.Fatalf("Failed to open abbs database: %v", err)
		}
		defer abbs.Close()
		packages, err = abbs.ListPackages(context.Background())
		if err != nil {
			log.Fatalf("Failed to read package catalog: %v", err)
		}
	}

	cfg, failed := chores.Generate(packages, existing)
	if err := chores.Save(output, cfg, failed); err != nil {
		log.Fatalf("Failed to write config: %v", err)
	}
	log.Printf("Wrote %d chores to %s (%d upstreams not detected)", len(cfg), output, len(failed))
}

func execRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	keep := fs.Int("k", 0, "keep running, re-polling every N minutes")
	dbPath := fs.String("d", "puis.db", "database file")
	cfgPath := fs.String("c", "chores.yaml", "chores config file")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s run [-k minutes] [-d db] [-c chores.yaml]\n", os.Args[0])
	}
	if err := fs.Parse(args); err != nil {
		log.Fatalf("parse args: %v", err)
	}

	cfg, err := chores.Load(*cfgPath)
	if err != nil {
		log.Fatalf("Failed to load chores config: %v", err)
	}
	if len(cfg) == 0 {
		log.Fatalf("No chores configured in %s", *cfgPath)
	}

	st, err := store.Open(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	runner := chores.NewRunner(st, probe.NewClient())
	runner.KeepInterval = time.Duration(*keep) * time.Minute
	if err := runner.Run(ctx, cfg); err != nil {
		log.Fatalf("Chore run failed: %v", err)
	}
}

func execCheck(args []string) {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	format := fs.String("f", "term", "output format: term, text, atom or template")
	count := fs.Int("n", 50, "number of events")
	tplPath := fs.String("T", "", "template file for -f template")
	dbPath := fs.String("d", "puis.db", "database file")
	feedID := fs.String("i", "https://puis.invalid/events", "feed id for atom output")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s check [-f term|text|atom|template] [-n N] [-T tpl] [output]\n", os.Args[0])
	}
	if err := fs.Parse(args); err != nil {
		log.Fatalf("parse args: %v", err)
	}

	st, err := store.Open(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer st.Close()

	events, err := st.RecentEvents(context.Background(), *count)
	if err != nil {
		log.Fatalf("Failed to query events: %v", err)
	}

	var out io.Writer = os.Stdout
	if fs.NArg() > 0 && fs.Arg(0) != "-" {
		f, err := os.Create(fs.Arg(0))
		if err != nil {
			log.Fatalf("Failed to create output file: %v", err)
		}
		defer f.Close()
		out = f
	}

	switch *format {
	case "term":
		err = render.Term(out, events)
	case "text":
		err = render.Text(out, events)
	case "atom":
		err = render.Atom(out, events, *feedID, "PUIS events")
	case "template":
		if *tplPath == "" {
			fs.Usage()
			os.Exit(2)
		}
		err = render.Template(out, events, *tplPath)
	default:
		fs.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("Failed to render events: %v", err)
	}
}
