package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"modelrunner/internal/config"
	"modelrunner/internal/manager"
	"modelrunner/internal/runner"
)

// errNoCommand is returned when the root command runs without a subcommand.
var errNoCommand = errors.New("a subcommand is required")

// app carries state shared by every command of one invocation.
type app struct {
	configPath string
	envFiles   []string
	flags      *flagBinder

	cfg config.Config
	log zerolog.Logger
}

// buildRootCmd constructs the command tree.
func buildRootCmd() *cobra.Command {
	a := &app{flags: newFlagBinder()}
	root := &cobra.Command{
		Use:           "modelrunner",
		Short:         "Registry-driven model runtime with a streaming HTTP API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = cmd.Help()
			return errNoCommand
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "Config file (.yaml, .yml, .json or .toml)")
	pf.StringSliceVar(&a.envFiles, "env-file", []string{".env"}, "KEY=VALUE files loaded before reading MODELRUNNER_* variables")
	b := a.flags
	b.str(pf, "log-level", func(c *config.Config) *string { return &c.LogLevel }, "Log level: debug|info|warn|error")
	b.str(pf, "log-format", func(c *config.Config) *string { return &c.LogFormat }, "Log format: console|json|auto")
	b.str(pf, "registry", func(c *config.Config) *string { return &c.RegistryPath }, "Model registry JSON document")
	b.str(pf, "models-dir", func(c *config.Config) *string { return &c.ModelsDir }, "Directory scanned for *.gguf files")
	b.num(pf, "probe-timeout-ms", func(c *config.Config) *int { return &c.ProbeTimeoutMs }, "Health probe timeout in milliseconds")
	b.str(pf, "llama-bin", func(c *config.Config) *string { return &c.LlamaBin }, "llama-server binary for spawned runners")
	b.str(pf, "llama-host", func(c *config.Config) *string { return &c.LlamaHost }, "Bind host for spawned llama-server processes")
	b.num(pf, "llama-port-start", func(c *config.Config) *int { return &c.LlamaPortStart }, "First port tried for spawned servers")
	b.num(pf, "llama-port-end", func(c *config.Config) *int { return &c.LlamaPortEnd }, "Last port tried for spawned servers")
	b.num(pf, "llama-ctx", func(c *config.Config) *int { return &c.LlamaCtx }, "Context size passed to llama.cpp (0 = model default)")
	b.num(pf, "llama-threads", func(c *config.Config) *int { return &c.LlamaThreads }, "Threads used by llama.cpp (0 = default)")
	b.num(pf, "llama-ngl", func(c *config.Config) *int { return &c.LlamaNGL }, "Layers offloaded to the GPU")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := a.resolveConfig(cmd)
		if err != nil {
			return err
		}
		log, err := newLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
		if err != nil {
			return err
		}
		a.cfg, a.log = cfg, log
		return nil
	}

	root.AddCommand(
		newServeCmd(a),
		newGenerateCmd(a),
		newModelsCmd(a),
		newProbeCmd(a),
		newVersionCmd(),
		newCompletionCmd(root),
	)
	return root
}

// resolveConfig merges, lowest precedence first: built-in defaults, the
// config file, MODELRUNNER_* variables (after env files are loaded), and
// flags set on the command line.
func (a *app) resolveConfig(cmd *cobra.Command) (config.Config, error) {
	if err := config.LoadEnvFile(a.envFiles...); err != nil {
		return config.Config{}, err
	}
	cfg := config.Defaults()
	if a.configPath != "" {
		fc, err := config.Load(a.configPath)
		if err != nil {
			return config.Config{}, fmt.Errorf("load config %s: %w", a.configPath, err)
		}
		cfg.Overlay(fc)
		if fc.EnvFile != "" {
			if err := config.LoadEnvFile(fc.EnvFile); err != nil {
				return config.Config{}, err
			}
		}
	}
	ec, err := config.FromEnv(os.Getenv)
	if err != nil {
		return config.Config{}, err
	}
	cfg.Overlay(ec)
	a.flags.apply(cmd.Flags(), &cfg)
	return cfg, nil
}

// managerConfig maps service settings onto the runtime manager.
func managerConfig(cfg config.Config, log zerolog.Logger) manager.Config {
	return manager.Config{
		RegistryPath: cfg.RegistryPath,
		ModelsDir:    cfg.ModelsDir,
		ProbeTimeout: time.Duration(cfg.ProbeTimeoutMs) * time.Millisecond,
		Spawn: runner.SpawnOptions{
			Bin:       cfg.LlamaBin,
			Host:      cfg.LlamaHost,
			PortStart: cfg.LlamaPortStart,
			PortEnd:   cfg.LlamaPortEnd,
			CtxSize:   cfg.LlamaCtx,
			Threads:   cfg.LlamaThreads,
			NGL:       cfg.LlamaNGL,
		},
		InProcess: runner.InProcessOptions{
			CtxSize: cfg.LlamaCtx,
			Threads: cfg.LlamaThreads,
		},
		Logger: log,
	}
}

// flagBinder records, per flag name, how a flag value lands in a Config.
// Only flags the user actually set are applied.
type flagBinder struct {
	vals config.Config
	set  map[string]func(*config.Config)
}

func newFlagBinder() *flagBinder {
	return &flagBinder{set: map[string]func(*config.Config){}}
}

func (b *flagBinder) str(fs *pflag.FlagSet, name string, field func(*config.Config) *string, usage string) {
	p := field(&b.vals)
	fs.StringVar(p, name, *field(ptrDefaults()), usage)
	b.set[name] = func(c *config.Config) { *field(c) = *p }
}

func (b *flagBinder) num(fs *pflag.FlagSet, name string, field func(*config.Config) *int, usage string) {
	p := field(&b.vals)
	fs.IntVar(p, name, *field(ptrDefaults()), usage)
	b.set[name] = func(c *config.Config) { *field(c) = *p }
}

func (b *flagBinder) float(fs *pflag.FlagSet, name string, field func(*config.Config) *float64, usage string) {
	p := field(&b.vals)
	fs.Float64Var(p, name, *field(ptrDefaults()), usage)
	b.set[name] = func(c *config.Config) { *field(c) = *p }
}

func (b *flagBinder) list(fs *pflag.FlagSet, name string, field func(*config.Config) *[]string, usage string) {
	p := field(&b.vals)
	fs.StringSliceVar(p, name, nil, usage)
	b.set[name] = func(c *config.Config) { *field(c) = append([]string(nil), (*p)...) }
}

// apply copies every changed, bound flag in fs onto cfg.
func (b *flagBinder) apply(fs *pflag.FlagSet, cfg *config.Config) {
	fs.Visit(func(f *pflag.Flag) {
		if set, ok := b.set[f.Name]; ok {
			set(cfg)
		}
	})
}

func ptrDefaults() *config.Config {
	d := config.Defaults()
	return &d
}

// MainWithArgs runs the CLI with explicit arguments and writers and returns
// the process exit code.
func MainWithArgs(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := buildRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		if errors.Is(err, errNoCommand) {
			return 2
		}
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	return 0
}

// Main runs the CLI against the process arguments.
func Main(ctx context.Context) int {
	return MainWithArgs(ctx, os.Args[1:], os.Stdout, os.Stderr)
}
