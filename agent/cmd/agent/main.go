package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"github.com/hvacdiag/hvacdiag/agent/internal/compute"
	"github.com/hvacdiag/hvacdiag/agent/internal/config"
	"github.com/hvacdiag/hvacdiag/agent/internal/scraper"
	"github.com/hvacdiag/hvacdiag/agent/internal/shipper"
	"github.com/hvacdiag/hvacdiag/pkg/diagnostic"
	"github.com/hvacdiag/hvacdiag/pkg/logging"
	"github.com/hvacdiag/hvacdiag/pkg/types"
)

func main() {
	configPath := flag.String("config", "agent.yaml", "path to config file")
	analyzePath := flag.String("analyze", "", "analyze a local CSV sensor log, print the report and exit")
	format := flag.String("format", "json", "report format for -analyze: json | text")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "hvacdiag-agent: load .env: %v\n", err)
	}

	if *analyzePath != "" {
		os.Exit(analyzeFile(*analyzePath, *format, os.Stdout))
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hvacdiag-agent: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Agent.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hvacdiag-agent: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()
	slog.SetDefault(logger.Logger)

	slog.Info("hvacdiag-agent starting",
		"config", *configPath,
		"server_endpoint", cfg.Agent.ServerEndpoint,
		"sources", len(cfg.Agent.Sources),
		"scrape_interval", cfg.Agent.ScrapeInterval,
		"window_size", cfg.Agent.WindowSize,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	type pipeline struct {
		src config.Source
		s   scraper.Scraper
	}
	var pipelines []pipeline
	for _, src := range cfg.Agent.Sources {
		s, err := scraper.New(src)
		if err != nil {
			slog.Error("skipping source, could not build scraper", "source", src.ID, "err", err)
			continue
		}
		pipelines = append(pipelines, pipeline{src: src, s: s})
		slog.Info("registered source", "id", src.ID, "type", src.Type, "endpoint", src.Endpoint)
	}
	if len(pipelines) == 0 {
		slog.Warn("no sources configured, agent will idle")
	}

	// Sources are fixed at startup; a reload only changes the log level.
	go func() {
		if err := config.Watch(ctx, *configPath, func(updated *config.Config) {
			if err := logger.SetLevel(updated.Agent.Log.Level); err != nil {
				slog.Warn("config hot-reload: bad log level", "err", err)
			}
			slog.Info("config hot-reloaded", "sources", len(updated.Agent.Sources), "level", updated.Agent.Log.Level)
		}); err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	ship, err := shipper.New(cfg.Agent)
	if err != nil {
		slog.Error("failed to build shipper", "err", err)
		os.Exit(1)
	}
	go ship.Run(ctx)

	engine := compute.NewEngine(cfg.Agent.WindowSize)
	cycle := func(now time.Time) {
		for _, p := range pipelines {
			res, err := p.s.Scrape(ctx)
			if err != nil {
				slog.Warn("scrape error", "source", p.src.ID, "err", err)
				continue
			}
			result := engine.Process(res, now)
			if !result.OK() {
				continue
			}
			ship.Ship(result)
			slog.Debug("queued run",
				"source", p.src.ID,
				"score", result.Report.EfficiencyScore,
				"grade", result.Grade,
				"issues", len(result.Report.Issues),
				"window", result.WindowLen,
			)
		}
	}

	go func() {
		cycle(time.Now())
		ticker := time.NewTicker(cfg.Agent.ScrapeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case t := <-ticker.C:
				cycle(t)
			}
		}
	}()

	<-ctx.Done()
	slog.Info("hvacdiag-agent shutting down", "pending_runs", ship.Pending())
}

// analyzeFile runs the engine over a CSV file and writes the report to w.
// It returns the process exit code.
func analyzeFile(path, format string, w io.Writer) int {
	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hvacdiag-agent: %v\n", err)
		return 1
	}
	defer f.Close()

	rep, err := diagnostic.AnalyzeCSV(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hvacdiag-agent: %s: %v\n", path, err)
		return 1
	}

	switch format {
	case "text":
		err = writeText(w, rep)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		err = enc.Encode(rep)
	default:
		fmt.Fprintf(os.Stderr, "hvacdiag-agent: unknown format %q\n", format)
		return 2
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "hvacdiag-agent: write report: %v\n", err)
		return 1
	}
	return 0
}

func writeText(w io.Writer, rep types.Report) error {
	fmt.Fprintf(w, "Efficiency score: %d (%s)\n", rep.EfficiencyScore, diagnostic.Grade(rep.EfficiencyScore))
	fmt.Fprintf(w, "Rows analysed:    %d\n", rep.RowCount)
	fmt.Fprintf(w, "Total cost:       $%d\n", rep.TotalCost)
	fmt.Fprintf(w, "Unoccupied run:   %g min\n\n", rep.OccupancyWasted)

	if len(rep.Issues) == 0 {
		_, err := fmt.Fprintln(w, "No issues detected.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEVERITY\tTIME\tISSUE\tEVIDENCE\tCOST\tACTION\tNOTES")
	for _, iss := range rep.Issues {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t$%d\t%s\t%s\n",
			iss.Severity, iss.Time, iss.Issue, iss.Evidence, iss.Cost, iss.Action, iss.Notes)
	}
	return tw.Flush()
}
