// Package main is a command line tool that matches and aligns the image pairs of a scenario file.
package main

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"go.viam.com/stereo/config"
	"go.viam.com/stereo/logging"
	"go.viam.com/stereo/stereo/session"
)

const (
	flagConfig   = "config"
	flagScenario = "scenario"
	flagOutput   = "output"
	flagQuiet    = "quiet"
	flagDebug    = "debug"
)

func main() {
	logger := logging.NewLogger("ipmatch")
	if err := newApp().RunContext(context.Background(), os.Args); err != nil {
		logger.Errorw("ipmatch failed", "error", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "ipmatch",
		Usage: "match interest points between overlapping images and align them",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "match",
				Usage:     "match and align every pair of a scenario",
				UsageText: "ipmatch match --config <file> --scenario <file> [--output <file>]",
				Flags:     commandFlags(),
				Action:    matchAction,
			},
			{
				Name:      "bootstrap",
				Usage:     "estimate rough homographies from camera geometry alone",
				UsageText: "ipmatch bootstrap --config <file> --scenario <file> [--output <file>]",
				Flags:     commandFlags(),
				Action:    bootstrapAction,
			},
			{
				Name:  "sessions",
				Usage: "list the supported session types",
				Action: func(c *cli.Context) error {
					return listSessions(c.App.Writer)
				},
			},
		},
	}
}

func commandFlags() []cli.Flag {
	return []cli.Flag{
		&cli.PathFlag{
			Name:     flagConfig,
			Aliases:  []string{"c"},
			Usage:    "load configuration from `FILE`",
			Required: true,
		},
		&cli.PathFlag{
			Name:     flagScenario,
			Aliases:  []string{"s"},
			Usage:    "read image pairs from `FILE`",
			Required: true,
		},
		&cli.PathFlag{
			Name:    flagOutput,
			Aliases: []string{"o"},
			Usage:   "write the report to `FILE` instead of stdout",
		},
		&cli.BoolFlag{
			Name:  flagQuiet,
			Usage: "do not show progress",
		},
	}
}

// env is everything a command needs after reading its inputs.
type env struct {
	cfg      *config.Config
	sess     session.Session
	scenario *Scenario
	logger   logging.Logger
}

func setup(c *cli.Context) (*env, error) {
	logger := logging.NewLogger("ipmatch")
	cfg, err := config.Read(c.Context, c.Path(flagConfig), logger)
	if err != nil {
		return nil, errors.Wrap(err, "reading config")
	}
	logger.SetLevel(cfg.Level())
	if c.Bool(flagDebug) {
		logger.SetLevel(logging.DEBUG)
	}

	sess, err := cfg.NewSession(logger)
	if err != nil {
		return nil, err
	}
	scenario, err := ReadScenario(c.Path(flagScenario))
	if err != nil {
		return nil, errors.Wrap(err, "reading scenario")
	}
	return &env{cfg: cfg, sess: sess, scenario: scenario, logger: logger}, nil
}
