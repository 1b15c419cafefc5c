package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/docmesh-go/internal/infra/buildinfo"
	"github.com/yndnr/docmesh-go/internal/infra/confloader"
	"github.com/yndnr/docmesh-go/internal/server/config"
)

func main() {
	if err := App().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// App creates the docmesh-server command line.
func App() *cli.App {
	return &cli.App{
		Name:    "docmesh-server",
		Usage:   "document replication node",
		Version: buildinfo.Get().Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the YAML configuration file",
				EnvVars: []string{"DOCMESH_CONFIG"},
			},
		},
		Action: runAction,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "start the node (default)",
				Action: runAction,
			},
			{
				Name:   "check",
				Usage:  "validate the configuration and print it",
				Action: checkAction,
			},
			{
				Name:  "version",
				Usage: "print build information",
				Action: func(c *cli.Context) error {
					_, err := fmt.Fprintln(c.App.Writer, buildinfo.Get().String())
					return err
				},
			},
		},
	}
}

func runAction(c *cli.Context) error {
	return run(c.Context, c.String("config"))
}

func checkAction(c *cli.Context) error {
	cfg, err := loadConfig(c.String("config"))
	if err != nil {
		return err
	}
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(config.Sanitize(cfg))
}

// loadConfig reads defaults, the file and the environment, then verifies
// the result.
func loadConfig(path string) (*config.ServerConfig, error) {
	cfg := config.Default()
	if err := confloader.NewLoader(confloader.WithConfigFile(path)).Load(cfg); err != nil {
		return nil, err
	}
	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
