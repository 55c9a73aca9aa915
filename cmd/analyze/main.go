// Command analyze runs one stage for one wallet and prints the result as JSON.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/AlanMarvin/polytrak/internal/config"
	"github.com/AlanMarvin/polytrak/internal/engine"
	"github.com/AlanMarvin/polytrak/internal/polymarket/dataapi"
	"github.com/AlanMarvin/polytrak/internal/polymarket/gammaapi"
	"github.com/AlanMarvin/polytrak/internal/stagecache"
)

func main() {
	address := flag.String("address", "", "wallet address (0x...)")
	stageName := flag.String("stage", "full", "profile, openPositions, recentTrades, closedPositionsSummary or full")
	verbose := flag.Bool("v", false, "log fetch progress to stderr")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetOutput(os.Stderr)
	log.SetLevel(logrus.WarnLevel)
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	if *address == "" {
		flag.Usage()
		os.Exit(2)
	}

	stage, err := engine.ParseStage(*stageName)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cache := stagecache.New(stagecache.NewMemoryStore(), cfg.Tuning.CacheTTL, log)
	eng := engine.New(cfg, dataapi.NewClient(cfg), gammaapi.NewClient(cfg), cache, log)

	resp, err := eng.Analyze(ctx, *address, stage)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		if engine.IsValidation(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}

	out := []byte(resp.Data)
	if stage != engine.StageFull {
		if out, err = json.Marshal(resp); err != nil {
			log.WithError(err).Fatal("Failed to encode response")
		}
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, out, "", "  "); err != nil {
		log.WithError(err).Fatal("Failed to format response")
	}
	pretty.WriteByte('\n')
	_, _ = pretty.WriteTo(os.Stdout)
}
