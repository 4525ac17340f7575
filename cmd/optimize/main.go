// Command optimize builds routes for a date range outside the HTTP API, for cron-style runs.
package main

import (
	"context"
	"field-route-service/internal/bootstrap"
	"field-route-service/internal/config"
	"field-route-service/internal/platform/logging"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

type summary struct {
	Start    string            `json:"start_date"`
	End      string            `json:"end_date"`
	Routes   int               `json:"routes"`
	ByDate   map[string]int    `json:"routes_by_date"`
	Failures map[string]string `json:"failures,omitempty"`
}

func main() {
	start := flag.String("start", time.Now().UTC().Format(time.DateOnly), "first date (YYYY-MM-DD)")
	end := flag.String("end", "", "last date (YYYY-MM-DD), defaults to -start")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	if *end == "" {
		*end = *start
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *start, *end); err != nil {
		log.Fatal().Err(err).Msg("optimize")
	}
}

func run(ctx context.Context, cfg *config.Config, startArg, endArg string) error {
	startDate, err := time.Parse(time.DateOnly, startArg)
	if err != nil {
		return fmt.Errorf("parse -start: %w", err)
	}
	endDate, err := time.Parse(time.DateOnly, endArg)
	if err != nil {
		return fmt.Errorf("parse -end: %w", err)
	}

	app, err := bootstrap.Compose(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.InitSchema(ctx); err != nil {
		return err
	}

	result, err := app.Optimizer.OptimizeForRange(ctx, startDate, endDate)
	if err != nil {
		return err
	}

	out := summary{
		Start:  startArg,
		End:    endArg,
		Routes: len(result.Routes),
		ByDate: make(map[string]int),
	}
	for _, route := range result.Routes {
		out.ByDate[route.RouteDate.Format(time.DateOnly)]++
	}
	if len(result.Failures) > 0 {
		out.Failures = make(map[string]string, len(result.Failures))
		for _, f := range result.Failures {
			out.Failures[f.Date.Format(time.DateOnly)] = f.Err.Error()
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
