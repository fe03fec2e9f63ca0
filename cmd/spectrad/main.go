package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	cli "github.com/urfave/cli/v2"
	bolt "go.etcd.io/bbolt"

	"spectrad/pkg/config"
	"spectrad/pkg/drivers/simulator"
	"spectrad/pkg/server"
	"spectrad/pkg/spectro"
	"spectrad/pkg/telemetry"
	"spectrad/templates"
)

func run(c *cli.Context) error {
	if c.Bool("debug") {
		log.SetLevel(log.DebugLevel)
	}

	log.Info("Spectrad Server")

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %v", err)
	}
	if c.IsSet("port") {
		cfg.Server.Port = c.Int("port")
	}

	tmpl, err := templates.LoadTemplates()
	if err != nil {
		return fmt.Errorf("failed to load templates: %v", err)
	}

	db, err := bolt.Open(cfg.Server.DatabasePath, 0600, nil)
	if err != nil {
		return fmt.Errorf("failed to open database: %v", err)
	}
	defer db.Close()

	store, err := server.NewStore(db)
	if err != nil {
		return fmt.Errorf("failed to create store: %v", err)
	}

	adapter := simulator.New(log.WithField("device", "simulator"))
	ctrl := spectro.New(adapter, log.StandardLogger())
	defer ctrl.Close()

	srv := server.New(ctrl, store, tmpl, log.StandardLogger())
	srv.RestoreConfiguration(cfg.Instrument)

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: srv.AddRoutes(),
	}

	// Channel to listen for interrupt or terminate signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		log.Debugf("Server started on %s", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v\n", httpSrv.Addr, err)
		}
		wg.Done()
	}()

	if cfg.MQTT.Broker != "" {
		pub, err := telemetry.NewPublisher(cfg.MQTT, srv, cfg.PollInterval(), log.StandardLogger())
		if err != nil {
			return fmt.Errorf("failed to start telemetry publisher: %v", err)
		}

		wg.Add(1)
		go func() {
			pub.Run(ctx)
			wg.Done()
		}()
	}

	<-ctx.Done()

	log.Info("Shutting down server...")

	ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(ctx2); err != nil {
		return fmt.Errorf("server forced to shutdown: %v", err)
	}

	wg.Wait()
	log.Info("Server stopped")
	return nil
}

func main() {
	app := cli.App{
		Name:  "spectrad",
		Usage: "HTTP control service for a cooled grating imaging spectrometer",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "debug",
				Aliases: []string{"d"},
				Usage:   "Enable debug logging",
				Value:   false,
				EnvVars: []string{"DEBUG"},
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML configuration file",
				EnvVars: []string{"SPECTRAD_CONFIG"},
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to listen on (overrides the configuration file)",
				Value:   8090,
				EnvVars: []string{"SPECTRAD_PORT"},
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Error: %v", err)
	}
}
