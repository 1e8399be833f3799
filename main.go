package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"branchdesk/pkg/api"
	"branchdesk/pkg/app"
	"branchdesk/pkg/config"

	log "github.com/sirupsen/logrus"
)

// sessions older than this are dropped
const sessionMaxAge = 12 * time.Hour

func main() {
	verbose := flag.Bool("v", false, "Verbose logging")
	configFile := flag.String("config", "branchdesk.toml", "Path to the TOML config file")
	envFile := flag.String("env", ".env", "Optional dotenv file holding the sheet credentials")
	memory := flag.Bool("memory", false, "Serve a seeded in-memory workbook instead of Google Sheets")

	flag.Parse()
	if *verbose {
		log.SetLevel(log.DebugLevel)
	}
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})

	cfg, err := config.New(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	backend, err := app.Backend(context.Background(), cfg, *envFile, *memory)
	if errors.Is(err, config.ErrMissingCredentials) {
		log.Fatalf("%v: set them in the environment or in %s", err, *envFile)
	}
	if err != nil {
		log.Fatalf("Failed to connect to the spreadsheet: %v", err)
	}

	a := app.New(cfg, backend)
	router := api.GetRouter(api.NewHandler(a.Auth, a.Store, a.Sessions, cfg.Location()))
	go startServer(cfg.Store.Server.ListenAddress, router)

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)
	prune := time.NewTicker(time.Hour)
	defer prune.Stop()

mainloop:
	for {
		select {
		case <-prune.C:
			if n := a.Sessions.Prune(sessionMaxAge); n > 0 {
				log.WithField("sessions", n).Debug("pruned stale sessions")
			}
			if n := a.Auth.Lockouts().Prune(); n > 0 {
				log.WithField("users", n).Debug("pruned idle login failure counts")
			}
		case <-signalChan:
			log.Info("Signalled, breaking main loop")
			break mainloop
		}
	}
}

func startServer(addr string, router http.Handler) {
	server := http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 2 * time.Second,
	}
	log.Infof("listening for HTTP on: %s", server.Addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatal("ListenAndServeError", err)
	}
}
