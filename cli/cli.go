package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/pkg/browser"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/cargowatch/cargowatch/dispatch"
	"github.com/cargowatch/cargowatch/manifest"
	"github.com/cargowatch/cargowatch/supervise"
)

const AppName = "cargowatch"

type App struct {
	logger zerolog.Logger
	cli    *cli.App
}

func New() *App {

	// Set default log level to info
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	logger :=
		log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339Nano,
		})

	app := &App{
		logger: logger,
		cli: &cli.App{
			Name:  AppName,
			Usage: "Supervise cargo builds and capture structured diagnostics",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "verbose",
					Usage: "Enable verbose (debug) logging",
				},
			},
			Before: func(ctx *cli.Context) error {
				if ctx.Bool("verbose") {
					zerolog.SetGlobalLevel(zerolog.DebugLevel)
				}
				return nil
			},
		},
	}
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:      "run",
		Usage:     "Run a build command with full output capture",
		ArgsUsage: "[--] <command> [args...]",
		Action:    app.run,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "manifest-dir",
				Usage: "Directory containing Cargo.toml (default: discovered upward from the working directory)",
			},
			&cli.Int64Flag{
				Name:  "estimate-bytes",
				Usage: "Expected total output size, enables percentage progress reporting",
			},
			&cli.BoolFlag{
				Name:  "open-urls",
				Usage: "Open URLs the supervised program announces (e.g. a dev server's listen address)",
			},
			&cli.BoolFlag{
				Name:  "no-color",
				Usage: "Disable colored diagnostic output",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a cargowatch config file (default: .cargowatch.yaml if present)",
			},
		},
		Description: `Run a build command under supervision.

Both output streams are captured: stdout is decoded as the build tool's
structured JSON messages, stderr is reassembled into structured
diagnostics (errors, warnings, notes, suggestions, backtraces). After
the command exits a timing and diagnostic summary is printed.

Examples:
  cargowatch run -- cargo run --message-format json-rendered
  cargowatch run --estimate-bytes 500000 -- cargo build --message-format json`,
	})
	return app
}

func (a *App) Run(args []string) error {
	return a.cli.Run(args)
}

// SetVersion sets the version information for the CLI application
func (a *App) SetVersion(version, commit, date string) {
	a.cli.Version = version
	if commit != "none" && commit != "" {
		a.cli.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit[:8], date)
	}
}

func (a *App) run(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx.String("config"))
	if err != nil {
		a.logger.Warn().Err(err).Msg("Failed to load config, using defaults")
	}

	args := ctx.Args().Slice()
	// remove -- if given as separator
	if len(args) > 0 && args[0] == "--" {
		args = args[1:]
	}
	if len(args) == 0 {
		return fmt.Errorf("no command specified: please provide the build command to supervise (e.g. 'cargo run --message-format json-rendered')")
	}

	manifestDir := ctx.String("manifest-dir")
	if manifestDir == "" {
		cwd, err := os.Getwd()
		if err == nil {
			if dir, err := manifest.Find(cwd); err == nil {
				manifestDir = dir
			} else {
				a.logger.Debug().Err(err).Msg("No manifest found, diagnostic paths stay relative")
			}
		}
	}
	var targetName string
	if manifestDir != "" {
		if name, err := manifest.PackageName(manifestDir); err == nil {
			targetName = name
		} else {
			a.logger.Debug().Err(err).Msg("Failed to read package name from manifest")
		}
	}

	estimate := ctx.Int64("estimate-bytes")
	if estimate == 0 {
		estimate = cfg.EstimateBytes
	}
	openURLs := ctx.Bool("open-urls") || cfg.OpenURLs
	useColor := !ctx.Bool("no-color")
	if cfg.Color != nil && !*cfg.Color {
		useColor = false
	}

	progress := make(chan string, 16)
	responses := make(chan dispatch.Response, 64)

	handle, err := supervise.Spawn(a.logger, supervise.Options{
		Command:        args[0],
		Args:           args[1:],
		ManifestDir:    manifestDir,
		TargetName:     targetName,
		FilterPrefixes: cfg.FilterPrefixes,
		EstimateBytes:  estimate,
		Progress:       progress,
		Responses:      responses,
		Echo:           os.Stdout,
	})
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to start supervised command")
		return err
	}

	a.logger.Info().
		Int("pid", handle.PID()).
		Str("target", targetName).
		Msg("Supervising build command")

	done := make(chan struct{})
	go a.consumeNotifications(progress, responses, openURLs, done)

	result, err := handle.Wait()
	close(done)
	if err != nil {
		a.logger.Error().Err(err).Msg("Supervised run failed")
		return err
	}

	a.printResult(result, useColor)

	if result.ExitCode != 0 {
		return cli.Exit(fmt.Sprintf("command exited with code %d", result.ExitCode), result.ExitCode)
	}
	return nil
}

// consumeNotifications drains the live progress and response channels
// until the run completes.
func (a *App) consumeNotifications(progress <-chan string, responses <-chan dispatch.Response, openURLs bool, done <-chan struct{}) {
	for {
		select {
		case p := <-progress:
			a.logger.Debug().Str("progress", p).Msg("Output progress")
		case resp := <-responses:
			switch resp.Kind {
			case dispatch.KindOpenedURL:
				a.logger.Info().Str("url", resp.Message).Msg("Detected server URL")
				if openURLs {
					if err := browser.OpenURL(resp.Message); err != nil {
						a.logger.Warn().Err(err).Str("url", resp.Message).Msg("Failed to open URL")
					}
				}
			case dispatch.KindError:
				a.logger.Error().Str("detail", resp.Message).Msg("Panic detected")
			case dispatch.KindNote:
				a.logger.Debug().Str("note", resp.Message).Msg("Build note")
			}
		case <-done:
			return
		}
	}
}
