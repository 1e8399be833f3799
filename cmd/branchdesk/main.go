package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	_ "time/tzdata"

	"branchdesk/pkg/app"
	"branchdesk/pkg/config"
	"branchdesk/pkg/schema"
	"branchdesk/pkg/store"

	log "github.com/sirupsen/logrus"
)

func main() {
	verbose := flag.Bool("v", false, "Verbose logging")
	configFile := flag.String("config", "branchdesk.toml", "Path to the TOML config file")
	envFile := flag.String("env", ".env", "Optional dotenv file holding the sheet credentials")
	migrate := flag.Bool("migrate-passwords", false, "Hash every plaintext password in the user table")
	tables := flag.Bool("tables", false, "List the tables of the spreadsheet and what each is enabled for")
	describe := flag.String("describe", "", "Print the inferred input fields of a table")

	flag.Parse()
	if *verbose {
		log.SetLevel(log.DebugLevel)
	}
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})

	if !*migrate && !*tables && *describe == "" {
		log.Error("You must specify one of -migrate-passwords, -tables or -describe")
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.New(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	ctx := context.Background()
	backend, err := app.Backend(ctx, cfg, *envFile, false)
	if err != nil {
		log.Fatalf("Failed to connect to the spreadsheet: %v", err)
	}
	a := app.New(cfg, backend)

	if *migrate {
		n, err := a.Auth.MigratePasswords(ctx)
		if err != nil {
			log.Fatalf("Failed to migrate passwords: %v", err)
		}
		log.Infof("user table holds %d users, all passwords hashed", n)
	}

	if *tables {
		names, err := a.Gateway.ListTables(ctx)
		if err != nil {
			log.Fatalf("Failed to list tables: %v", err)
		}
		caps, err := a.Store.Capabilities(ctx)
		if err != nil {
			log.Warnf("Unable to read the %s table: %v", cfg.Store.Sheet.ConfigTable, err)
		}
		for _, name := range names {
			fmt.Printf("%-24s", name)
			for _, c := range []store.Capability{store.Searchable, store.Enterable, store.Viewable} {
				if caps.Allows(name, c) {
					fmt.Printf(" %s", c)
				}
			}
			fmt.Println()
		}
	}

	if *describe != "" {
		cols, err := a.Store.Describe(ctx, *describe)
		if err != nil {
			log.Fatalf("Failed to describe %s: %v", *describe, err)
		}
		for _, c := range schema.UserColumns(cols) {
			marker := ""
			if c.Required {
				marker = schema.RequiredMarker
			}
			fmt.Printf("%-24s %-6s %s\n", c.Name+marker, c.Format, c.Header)
		}
	}
}
