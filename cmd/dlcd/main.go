package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dlc-network/dlcd/internal/config"
	restservice "github.com/dlc-network/dlcd/internal/interface/rest"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

//nolint:all
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var urlFlag = &cli.StringFlag{
	Name:  "url",
	Usage: "the url of the dlcd REST API",
	Value: fmt.Sprintf("http://localhost:%d", config.DefaultPort),
}

func main() {
	app := cli.NewApp()
	app.Name = "dlcd"
	app.Usage = "Discreet Log Contracts daemon"
	app.Version = fmt.Sprintf("%s (%s, %s)", version, commit, date)
	app.Flags = []cli.Flag{urlFlag}
	app.Action = mainAction
	app.Commands = append(
		cli.Commands{},
		offerCmd,
		acceptCmd,
		rejectCmd,
		contractsCmd,
		relayCmd,
		oracleCmd,
	)

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// mainAction runs the daemon until it gets a termination signal.
func mainAction(_ *cli.Context) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("invalid config: %s", err)
	}

	log.SetLevel(log.Level(cfg.LogLevel))
	log.Debugf("loaded config: %s", cfg)

	svcConfig := restservice.Config{
		Port: cfg.Port,
	}
	svc, err := restservice.NewService(svcConfig, cfg)
	if err != nil {
		return err
	}

	log.RegisterExitHandler(svc.Stop)

	log.Info("starting service...")
	if err := svc.Start(); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT, os.Interrupt)
	<-sigChan

	log.Info("shutting down service...")
	log.Exit(0)
	return nil
}
