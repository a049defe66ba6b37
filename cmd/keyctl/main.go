package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/sing3demons/jwks-server/internal/config"
	"github.com/sing3demons/jwks-server/internal/database"
	"github.com/sing3demons/jwks-server/internal/jwks"
	"github.com/sing3demons/jwks-server/pkg/kafka"
	"github.com/sing3demons/jwks-server/pkg/logger"
)

type CLI struct {
	Driver  string `help:"Key store driver, sqlite or mongo (overrides STORE_DRIVER)"`
	DBPath  string `name:"db-path" help:"SQLite key file (overrides DB_PATH)"`
	Verbose bool   `short:"v" help:"Write detail logs to the console"`

	List      ListCmd      `cmd:"" help:"List stored keys"`
	Generate  GenerateCmd  `cmd:"" help:"Generate and store a key"`
	Bootstrap BootstrapCmd `cmd:"" help:"Ensure the store holds one valid and one expired key"`
	JWKS      JWKSCmd      `cmd:"" name:"jwks" help:"Print the discovery document"`
}

// Env is bound into every command's Run.
type Env struct {
	Config *config.AppConfig
	Repo   jwks.IKeyRepository
	Out    io.Writer

	publisher jwks.KeyEventPublisher
	cache     database.ICacheClient
}

func (e *Env) bootstrapper() *jwks.Bootstrapper {
	opts := []jwks.BootstrapOption{jwks.WithPublisher(e.publisher)}
	if e.cache != nil {
		svc := jwks.NewJWKSService(e.Config, e.Repo, e.cache)
		opts = append(opts, jwks.WithKeyCreatedHook(svc.InvalidateJWKS))
	}
	return jwks.NewBootstrapper(e.Repo, e.Config.KeyConfig, opts...)
}

type ListCmd struct {
	JSON bool `help:"Print JSON instead of a table"`
}

func (c *ListCmd) Run(ctx context.Context, env *Env) error {
	records, err := env.Repo.FetchAll(ctx)
	if err != nil {
		return err
	}
	now := time.Now()

	if c.JSON {
		type row struct {
			Kid   string `json:"kid"`
			Exp   int64  `json:"exp"`
			Valid bool   `json:"valid"`
		}
		rows := make([]row, 0, len(records))
		for _, rec := range records {
			rows = append(rows, row{Kid: rec.KidString(), Exp: rec.Exp, Valid: rec.IsValid(now)})
		}
		return writeJSON(env.Out, rows)
	}

	tw := tabwriter.NewWriter(env.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KID\tEXP\tEXPIRES AT\tVALID")
	for _, rec := range records {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%t\n", rec.Kid, rec.Exp, time.Unix(rec.Exp, 0).UTC().Format(time.RFC3339), rec.IsValid(now))
	}
	return tw.Flush()
}

type GenerateCmd struct {
	TTL time.Duration `name:"ttl" default:"1h" help:"Key lifetime from now; negative values store an already expired key"`
}

func (c *GenerateCmd) Run(ctx context.Context, env *Env) error {
	rec, err := env.bootstrapper().CreateKey(ctx, time.Now().Add(c.TTL).Unix())
	if err != nil {
		return err
	}
	return writeJSON(env.Out, map[string]any{"kid": rec.KidString(), "exp": rec.Exp, "valid": rec.IsValid(time.Now())})
}

type BootstrapCmd struct{}

func (c *BootstrapCmd) Run(ctx context.Context, env *Env) error {
	result, err := env.bootstrapper().EnsureMinimum(ctx)
	if err != nil {
		return err
	}
	return writeJSON(env.Out, result)
}

type JWKSCmd struct{}

func (c *JWKSCmd) Run(ctx context.Context, env *Env) error {
	doc, err := jwks.NewJWKSService(env.Config, env.Repo, nil).GetJWKS(ctx)
	if err != nil {
		return err
	}
	return writeJSON(env.Out, doc)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (cli *CLI) loadConfig() (*config.AppConfig, error) {
	cfg := config.NewConfigManager()
	if cli.Driver != "" {
		cfg.StoreConfig.Driver = cli.Driver
	}
	if cli.DBPath != "" {
		cfg.StoreConfig.Path = cli.DBPath
	}
	cfg.LoggerConfig.Detail.Console = cli.Verbose
	cfg.LoggerConfig.Summary.Console = cli.Verbose
	if err := cfg.LoadDefaults(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// run opens the store, binds the environment and dispatches the parsed command.
func run(ctx context.Context, kctx *kong.Context, cli *CLI, out io.Writer) error {
	cfg, err := cli.loadConfig()
	if err != nil {
		return err
	}
	ctx = logger.NewContext(ctx, logger.NewLoggerWithConfig(cfg.ServiceName, cfg.Version, &cfg.LoggerConfig))

	repo, store, err := jwks.OpenKeyRepository(cfg.StoreConfig)
	if err != nil {
		return fmt.Errorf("failed to open key store: %w", err)
	}
	defer store.Close()

	env := &Env{Config: cfg, Repo: repo, Out: out, publisher: jwks.NewNoopKeyEventPublisher()}

	if cfg.KafkaConfig.Enabled() {
		producer, err := kafka.New(&kafka.Config{
			Brokers:      cfg.KafkaConfig.Brokers,
			BatchSize:    cfg.KafkaConfig.BatchSize,
			BatchBytes:   cfg.KafkaConfig.BatchBytes,
			BatchTimeout: cfg.KafkaConfig.BatchTimeout,
		})
		if err != nil {
			return fmt.Errorf("failed to create kafka producer: %w", err)
		}
		defer producer.Close()
		env.publisher = jwks.NewKafkaKeyEventPublisher(producer, cfg.KafkaConfig.Topic)
	}

	// only a shared cache outlives this process
	if cfg.RedisConfig.Enabled() {
		cache, err := database.NewRedisClient(&cfg.RedisConfig)
		if err != nil {
			return err
		}
		defer cache.Close()
		env.cache = cache
	}

	kctx.BindTo(ctx, (*context.Context)(nil))
	kctx.Bind(env)
	return kctx.Run()
}

func main() {
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("keyctl"),
		kong.Description("Inspect and manage the JWKS signing key store."),
		kong.UsageOnError(),
	)

	if err := run(ctx, kctx, &cli, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "keyctl: %v\n", err)
		os.Exit(1)
	}
}
