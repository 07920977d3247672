package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/shpitdev/specsynth/internal/app"
	"github.com/shpitdev/specsynth/internal/version"
	"github.com/shpitdev/specsynth/pkg/pipeline/core"
	"github.com/shpitdev/specsynth/pkg/pipeline/describe/gemini"
	localio "github.com/shpitdev/specsynth/pkg/pipeline/io/local"
	"github.com/shpitdev/specsynth/pkg/pipeline/redact"
	"github.com/shpitdev/specsynth/pkg/pipeline/spec"
	"github.com/shpitdev/specsynth/pkg/pipeline/worker"
	"github.com/shpitdev/specsynth/pkg/registry"
	"github.com/shpitdev/specsynth/pkg/specstore"
	"github.com/shpitdev/specsynth/pkg/specstore/postgres"
)

const (
	exitOK       = 0
	exitFailure  = 1
	exitUsage    = 2
	exitConflict = 3
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(exitUsage)
	}

	var code int
	switch os.Args[1] {
	case "help", "-h", "--help":
		usage(os.Stdout)
	case "version", "--version":
		_, _ = fmt.Fprintln(os.Stdout, version.Current)
	case "list":
		code = runList(ctx, os.Args[2:])
	case "generate":
		code = runGenerate(ctx, os.Args[2:])
	case "batch":
		code = runBatch(ctx, os.Args[2:])
	default:
		_, _ = fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		usage(os.Stderr)
		code = exitUsage
	}
	stop()
	os.Exit(code)
}

// commonFlags are shared by every command that talks to a registry.
type commonFlags struct {
	registryDir string
	conventions string
	describe    bool
	geminiModel string
}

func (c *commonFlags) register(fs *flag.FlagSet, gem gemini.Config) {
	fs.StringVar(&c.registryDir, "registry-dir", os.Getenv("SPECSYNTH_REGISTRY_DIR"), "Read artifacts from a local <group>/<artifact>.{json,avsc} tree instead of the registry (env: SPECSYNTH_REGISTRY_DIR)")
	fs.StringVar(&c.conventions, "conventions", os.Getenv("SPECSYNTH_CONVENTIONS"), "YAML naming conventions file (env: SPECSYNTH_CONVENTIONS)")
	fs.BoolVar(&c.describe, "describe", false, "Suggest a spec description with Gemini (requires GEMINI_API_KEY)")
	fs.StringVar(&c.geminiModel, "gemini-model", gem.Model, "Gemini model name (env: GEMINI_MODEL)")
}

func runList(ctx context.Context, args []string) int {
	logger, code := newLogger()
	if code != exitOK {
		return code
	}
	gemEnv, err := loadGeminiConfigFromEnv()
	if err != nil {
		return configError(err)
	}

	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var common commonFlags
	common.register(fs, gemEnv)
	group := fs.String("group", "", "Only list artifacts of this group")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	deps, cleanup, err := buildDeps(ctx, logger, common, gemEnv, false)
	if err != nil {
		return configError(err)
	}
	defer cleanup()

	if err := app.RunList(ctx, deps, *group, os.Stdout); err != nil {
		return runError("list", err)
	}
	return exitOK
}

func runGenerate(ctx context.Context, args []string) int {
	logger, code := newLogger()
	if code != exitOK {
		return code
	}
	gemEnv, err := loadGeminiConfigFromEnv()
	if err != nil {
		return configError(err)
	}

	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var common commonFlags
	common.register(fs, gemEnv)
	var opts app.GenerateOptions
	fs.StringVar(&opts.GroupID, "group", "", "Registry group id")
	fs.StringVar(&opts.ArtifactID, "artifact", "", "Registry artifact id (required)")
	fs.StringVar(&opts.Version, "version", "", "Artifact version; defaults to the group's convention")
	fs.StringVar(&opts.SchemaFile, "schema-file", "", "Replace the synthesized schema with this hand-edited JSON before finalizing")
	fs.BoolVar(&opts.DraftOnly, "draft", false, "Print the draft schema text (registry names) and stop")
	fs.BoolVar(&opts.Submit, "submit", false, "Submit the spec to the spec store")
	fs.StringVar(&opts.OutDir, "out", "", "Write <containerName>.json into this directory instead of stdout")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if strings.TrimSpace(opts.ArtifactID) == "" {
		_, _ = fmt.Fprintln(os.Stderr, "generate requires --artifact")
		return exitUsage
	}

	deps, cleanup, err := buildDeps(ctx, logger, common, gemEnv, opts.Submit)
	if err != nil {
		return configError(err)
	}
	defer cleanup()

	opts.Out = os.Stdout
	if _, err := app.RunGenerate(ctx, deps, opts); err != nil {
		return runError("generate", err)
	}
	return exitOK
}

func runBatch(ctx context.Context, args []string) int {
	logger, code := newLogger()
	if code != exitOK {
		return code
	}
	gemEnv, err := loadGeminiConfigFromEnv()
	if err != nil {
		return configError(err)
	}
	wopts, err := loadWorkerOptionsFromEnv()
	if err != nil {
		return configError(err)
	}

	fs := flag.NewFlagSet("batch", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var common commonFlags
	common.register(fs, gemEnv)
	var opts app.BatchOptions
	fs.StringVar(&opts.GroupID, "group", "", "Generate every artifact of this group")
	fs.StringVar(&opts.ManifestPath, "manifest", "", "CSV of artifacts (groupId,artifactId[,version][,artifactType])")
	fs.BoolVar(&opts.Submit, "submit", false, "Submit specs to the spec store")
	fs.StringVar(&opts.OutDir, "out", "", "Write <containerName>.json files into this directory")
	fs.IntVar(&wopts.Workers, "workers", wopts.Workers, "Concurrent artifacts (env: WORKERS)")
	fs.IntVar(&wopts.MaxRetries, "max-retries", wopts.MaxRetries, "Retries per artifact for transient failures (env: MAX_RETRIES)")
	fs.DurationVar(&wopts.ItemTimeout, "item-timeout", wopts.ItemTimeout, "Per-artifact timeout (env: ITEM_TIMEOUT)")
	fs.Float64Var(&wopts.RateLimitRPS, "rate-limit-rps", wopts.RateLimitRPS, "Global registry request rate (RPS), 0 disables (env: RATE_LIMIT_RPS)")
	failFast := fs.Bool("fail-fast", wopts.FailurePolicy == worker.FailurePolicyFailFast, "Stop on the first failed artifact (env: FAIL_FAST)")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	wopts.FailurePolicy = worker.FailurePolicyContinue
	if *failFast {
		wopts.FailurePolicy = worker.FailurePolicyFailFast
	}
	opts.Worker = wopts

	deps, cleanup, err := buildDeps(ctx, logger, common, gemEnv, opts.Submit)
	if err != nil {
		return configError(err)
	}
	defer cleanup()

	sum, err := app.RunBatch(ctx, deps, opts)
	if err != nil {
		return runError("batch", err)
	}
	_, _ = fmt.Fprintf(os.Stdout, "ok=%d conflicts=%d failed=%d\n", sum.OK, sum.Conflicts, sum.Failed)
	for _, it := range sum.Items {
		if it.Err != nil && !it.Conflict {
			_, _ = fmt.Fprintf(os.Stdout, "  %s: %s\n", it.Ref.String(), redact.Error(it.Err))
		}
	}
	if sum.Failed > 0 {
		return exitFailure
	}
	return exitOK
}

// buildDeps wires the artifact source, optional spec store and describer. The
// returned cleanup closes any database handle.
func buildDeps(ctx context.Context, logger *slog.Logger, common commonFlags, gem gemini.Config, needStore bool) (app.Deps, func(), error) {
	cleanup := func() {}
	conv, err := spec.LoadConventions(common.conventions)
	if err != nil {
		return app.Deps{}, cleanup, err
	}
	deps := app.Deps{Conventions: conv, Logger: logger}

	var env registry.Env
	if dir := strings.TrimSpace(common.registryDir); dir != "" {
		src, err := localio.NewDirSource(dir)
		if err != nil {
			return app.Deps{}, cleanup, err
		}
		deps.Source = src
	} else {
		if env, err = registry.LoadEnv(); err != nil {
			return app.Deps{}, cleanup, err
		}
		client, err := registry.NewClient(env.Services.Registry, env.Token, env.DefaultCAPath)
		if err != nil {
			return app.Deps{}, cleanup, err
		}
		deps.Source = registry.NewCachingClient(client, env.CacheTTL, env.CacheFile, logger)
	}

	if needStore {
		store, closeFn, err := buildStore(ctx, logger, env)
		if err != nil {
			return app.Deps{}, cleanup, err
		}
		deps.Store = store
		cleanup = closeFn
	}

	if common.describe {
		gem.Model = common.geminiModel
		d, err := gemini.New(ctx, gem)
		if err != nil {
			cleanup()
			return app.Deps{}, func() {}, fmt.Errorf("gemini config error: %w", err)
		}
		deps.Describer = d
	}
	return deps, cleanup, nil
}

// buildStore prefers a direct Postgres connection (SPEC_STORE_DSN) over the HTTP
// spec store API.
func buildStore(ctx context.Context, logger *slog.Logger, env registry.Env) (core.SpecStore, func(), error) {
	noop := func() {}
	if dsn := strings.TrimSpace(os.Getenv("SPEC_STORE_DSN")); dsn != "" {
		db, err := postgres.Connect(ctx, dsn)
		if err != nil {
			return nil, noop, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, noop, err
		}
		closeFn := func() { _ = sqlDB.Close() }
		if err := postgres.AutoMigrate(db); err != nil {
			closeFn()
			return nil, noop, fmt.Errorf("migrate spec store: %w", err)
		}
		return postgres.NewRepository(db, logger), closeFn, nil
	}

	storeURL := strings.TrimSpace(env.Services.SpecStore)
	if storeURL == "" {
		storeURL = strings.TrimSpace(os.Getenv("SPEC_STORE_URL"))
	}
	if storeURL == "" {
		return nil, noop, fmt.Errorf("spec store is not configured (set SPEC_STORE_URL, SPEC_STORE_DSN, or spec_store in service discovery)")
	}
	token := env.SpecStoreToken
	if token == "" {
		token = strings.TrimSpace(os.Getenv("SPEC_STORE_TOKEN"))
	}
	client, err := specstore.NewClient(storeURL, token, env.DefaultCAPath)
	if err != nil {
		return nil, noop, err
	}
	return client, noop, nil
}

func newLogger() (*slog.Logger, int) {
	lvl, err := logLevelFromEnv()
	if err != nil {
		return nil, configError(err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Value.Kind() == slog.KindString {
				a.Value = slog.StringValue(redact.Secrets(a.Value.String()))
			}
			return a
		},
	}))
	slog.SetDefault(logger)
	return logger, exitOK
}

func configError(err error) int {
	_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", redact.Error(err))
	return exitUsage
}

func runError(command string, err error) int {
	if core.IsConflict(err) {
		_, _ = fmt.Fprintf(os.Stderr, "%s: %s\n", command, redact.Error(err))
		return exitConflict
	}
	_, _ = fmt.Fprintf(os.Stderr, "%s failed: %s\n", command, redact.Error(err))
	return exitFailure
}

func usage(w *os.File) {
	_, _ = fmt.Fprintf(w, `specsynth: synthesize container specs from schema registry artifacts

Usage:
  specsynth <command> [flags]

Commands:
  list      List registry artifacts by group
  generate  Build one spec (--group, --artifact; --submit, --schema-file, --describe)
  batch     Build specs for a whole group (--group) or a CSV manifest (--manifest)
  version   Print the version

Examples:
  specsynth list --group online
  specsynth generate --group online --artifact TxServices_Informix_loc.response --out ./specs
  specsynth batch --group bid-tools --submit --workers 8

Exit codes: 0 ok, 1 run failure, 2 usage/config error, 3 spec already exists.

Environment (registry):
  REGISTRY_URL                Registry API base URL (e.g. https://registry.example.com/apis/registry/v2)
  REGISTRY_SERVICE_DISCOVERY  YAML file with schema_registry / spec_store URLs (instead of REGISTRY_URL)
  REGISTRY_TOKEN              Bearer token, literal or file path
  REGISTRY_CACHE_TTL          Listing cache TTL (default 30m, 0 disables)
  REGISTRY_CACHE_FILE         Persist the listing cache across runs
  DEFAULT_CA_PATH             PEM bundle to trust for TLS

Environment (spec store):
  SPEC_STORE_URL    Spec store API base URL (e.g. https://specs.example.com/api/v1)
  SPEC_STORE_TOKEN  Bearer token, literal or file path (defaults to REGISTRY_TOKEN)
  SPEC_STORE_DSN    Postgres DSN; stores specs directly instead of via the API

Environment (batch):
  WORKERS, MAX_RETRIES, ITEM_TIMEOUT, RATE_LIMIT_RPS, FAIL_FAST

Environment (Gemini, --describe only):
  GEMINI_API_KEY, GEMINI_MODEL, GEMINI_BASE_URL, GEMINI_MAX_FIELDS

Other:
  SPECSYNTH_CONVENTIONS   YAML naming conventions file
  SPECSYNTH_REGISTRY_DIR  Offline registry tree
  LOG_LEVEL               debug, info, warn or error

`)
}
