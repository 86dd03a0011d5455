// Command callgraph is the CLI front end: it wires the package walker, the
// three analysis passes, the lint pass, and the JSON/FASTEN encoders
// behind a single `analyze` subcommand, grounded on
// escalier-lang-escalier/cmd/escalier/main.go's flag.NewFlagSet dispatch.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/viant/callgraph/callgraph"
	"github.com/viant/callgraph/internal/config"
	"github.com/viant/callgraph/internal/emit"
	"github.com/viant/callgraph/internal/lint"
	"github.com/viant/callgraph/internal/source"
	"github.com/viant/callgraph/importresolver"
	"github.com/viant/callgraph/pass1"
	"github.com/viant/callgraph/pass2"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	if len(os.Args) < 2 || os.Args[1] != "analyze" {
		fmt.Fprintln(os.Stderr, "expected 'analyze' subcommand")
		os.Exit(1)
	}

	if err := analyze(os.Args[2:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type analyzeFlags struct {
	packageRoot string
	fasten      bool
	product     string
	forge       string
	version     string
	timestamp   string
	lint        bool
	verbose     bool
}

func parseAnalyzeFlags(args []string) (*analyzeFlags, []string, error) {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	f := &analyzeFlags{}
	fs.StringVar(&f.packageRoot, "package", "", "package root directory all modules resolve relative to")
	fs.BoolVar(&f.fasten, "fasten", false, "emit the FASTEN dependency-graph schema instead of the default schema")
	fs.StringVar(&f.product, "product", "", "FASTEN product name")
	fs.StringVar(&f.forge, "forge", "", "FASTEN forge name")
	fs.StringVar(&f.version, "version", "", "FASTEN version")
	fs.StringVar(&f.timestamp, "timestamp", "", "FASTEN timestamp")
	fs.BoolVar(&f.lint, "lint", false, "report dict-literal subscripts whose key was never assigned, to stderr")
	fs.BoolVar(&f.verbose, "verbose", false, "enable debug-level logging")
	// flag stops at the first positional argument, so parsing resumes
	// after each entry point to accept flags given after them.
	var positional []string
	rest := args
	for {
		if err := fs.Parse(rest); err != nil {
			return nil, nil, err
		}
		rest = fs.Args()
		if len(rest) == 0 {
			break
		}
		positional = append(positional, rest[0])
		rest = rest[1:]
	}
	return f, positional, nil
}

func analyze(args []string) error {
	flags, entryPoints, err := parseAnalyzeFlags(args)
	if err != nil {
		return fmt.Errorf("analyze: %w", err)
	}
	if len(entryPoints) == 0 {
		return fmt.Errorf("analyze: at least one entry point is required")
	}
	if flags.packageRoot == "" {
		return fmt.Errorf("analyze: --package is required")
	}
	if flags.verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	cfg := config.Default()
	cfg.PackageRoot = flags.packageRoot
	cfg.EntryPoints = entryPoints
	cfg.Product = flags.product
	cfg.Forge = flags.forge
	cfg.Version = flags.version
	cfg.Timestamp = flags.timestamp
	cfg.Lint = flags.lint

	ctx := context.Background()
	resolver := importresolver.NewResolver(cfg.BuiltinModules)
	defer resolver.WithRoot(cfg.PackageRoot)()

	files, index, err := source.WalkPackage(ctx, cfg.PackageRoot, ".py", cfg.InitializerFilename, resolver.ReadFile)
	if err != nil {
		return fmt.Errorf("analyze: walk package: %w", err)
	}
	log.Info().Int("files", len(files)).Str("root", cfg.PackageRoot).Msg("discovered source files")

	store := pass1.NewStore(cfg, resolver)
	store.ReadFile = resolver.ReadFile
	store.ResolveModule = source.Resolver(index)

	for _, entry := range entryPoints {
		modNS, absPath, ok := resolveEntry(entry, index)
		if !ok {
			return fmt.Errorf("analyze: entry point %q not found under %q", entry, cfg.PackageRoot)
		}
		if err := store.Preprocess(ctx, modNS, absPath); err != nil {
			return fmt.Errorf("analyze: preprocess %s: %w", modNS, err)
		}
	}

	if _, err := pass2.Run(ctx, store); err != nil {
		return fmt.Errorf("analyze: postprocess: %w", err)
	}

	graph, err := callgraph.Run(ctx, store)
	if err != nil {
		return fmt.Errorf("analyze: emit: %w", err)
	}

	if cfg.Lint {
		for _, finding := range lint.Check(ctx, store) {
			fmt.Fprintf(os.Stderr, "lint: key %q never assigned into %s (%s:%d)\n",
				finding.Key, finding.Namespace, finding.Module, finding.Line)
		}
	}

	if flags.fasten {
		return emit.Fasten(os.Stdout, graph, emit.FastenOptions{
			Product:   cfg.Product,
			Forge:     cfg.Forge,
			Version:   cfg.Version,
			Timestamp: cfg.Timestamp,
		})
	}
	return emit.Default(os.Stdout, graph)
}

// resolveEntry maps a CLI-supplied entry-point path (an absolute or
// root-relative .py file, as WalkPackage recorded it) to its module
// namespace, falling back to treating the argument itself as an
// already-dotted namespace.
func resolveEntry(entry string, index map[string]string) (modNS, absPath string, ok bool) {
	for name, path := range index {
		if path == entry {
			return name, path, true
		}
	}
	if path, ok := index[entry]; ok {
		return entry, path, true
	}
	return "", "", false
}
