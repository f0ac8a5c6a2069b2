package main

import (
	"fmt"
	"math/rand"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"agora/internal/catalog"
	"agora/internal/config"
	"agora/internal/sim"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	app := &cli.App{
		Name:  "agora",
		Usage: "multi-product market simulator",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "catalog",
				Usage:    "path to the product catalog JSON file",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to the simulation YAML config",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "enable debug logging",
			},
		},
		Before: func(ctx *cli.Context) error {
			level := zerolog.InfoLevel
			if ctx.Bool("verbose") {
				level = zerolog.DebugLevel
			}
			zerolog.SetGlobalLevel(level)
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:   "validate",
				Usage:  "load and validate a catalog file",
				Action: validateAction,
			},
			{
				Name:  "run",
				Usage: "run the simulation for a number of ticks",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "ticks",
						Usage: "number of ticks to simulate",
						Value: 10,
					},
					&cli.IntFlag{
						Name:  "agents",
						Usage: "number of synthetic noise traders",
						Value: 8,
					},
					&cli.Int64Flag{
						Name:  "seed",
						Usage: "random seed for the noise traders",
						Value: 1,
					},
				},
				Action: runAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("agora exited")
	}
}

func loadInputs(ctx *cli.Context) (*catalog.Catalog, config.Config, error) {
	cfg := config.Default()
	if path := ctx.String("config"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, config.Config{}, err
		}
	}
	c, err := catalog.LoadFile(ctx.String("catalog"))
	if err != nil {
		return nil, config.Config{}, err
	}
	return c, cfg, nil
}

func validateAction(ctx *cli.Context) error {
	c, _, err := loadInputs(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("catalog ok: %d products\n", c.Len())
	return nil
}

func runAction(ctx *cli.Context) error {
	c, cfg, err := loadInputs(ctx)
	if err != nil {
		return err
	}

	coordinator := sim.New(c, cfg)
	rng := rand.New(rand.NewSource(ctx.Int64("seed")))
	for i := 0; i < ctx.Int("agents"); i++ {
		coordinator.AddAgent(newNoiseTrader(c, rng))
	}

	for i := 0; i < ctx.Int("ticks"); i++ {
		report := coordinator.RunTick()
		for _, pr := range report.Products {
			product, err := c.Get(pr.ProductID)
			if err != nil {
				continue
			}
			event := log.Debug().
				Uint64("tick", report.Tick).
				Str("product", product.Name).
				Float64("price", product.Price).
				Float64("cost", product.Cost)
			if pr.Volume > 0 {
				event = event.
					Float64("clearing_price", pr.ClearingPrice).
					Int64("volume", pr.Volume)
			}
			event.Msg("product state")
		}
	}
	return nil
}
