package main

import (
	"os"

	"github.com/urfave/cli/v2"

	"github.com/jackiewangjingchun-cpu/wattcoin/build"
)

const (
	FlagMarketRepo = "market-repo"
)

func main() {
	app := &cli.App{
		Name:                 "wattmarket",
		Usage:                "Job-routing and worker-node marketplace daemon. Compute providers stake the marketplace token, advertise capabilities and earn rewards for completed jobs.",
		EnableBashCompletion: true,
		Version:              build.UserVersion(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    FlagMarketRepo,
				EnvVars: []string{"WATTMARKET_PATH"},
				Usage:   "market repo path",
				Value:   "~/.wattcoin/market",
			},
		},
		Commands: []*cli.Command{
			runCmd,
			nodeCmd,
			jobCmd,
			settlementCmd,
		},
	}
	app.Setup()

	if err := app.Run(os.Args); err != nil {
		os.Stderr.WriteString("Error: " + err.Error() + "\n")
	}
}
