package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"vol-core/internal/analytics"
	"vol-core/internal/api"
	"vol-core/internal/events"
	"vol-core/internal/gateway"
	"vol-core/internal/monitor"
	"vol-core/internal/persistence"
	"vol-core/internal/quote"
	"vol-core/pkg/broker"
	"vol-core/pkg/broker/bridge"
	"vol-core/pkg/config"
	"vol-core/pkg/db"
	"vol-core/pkg/i18n"
)

func main() {
	issueToken := flag.String("token", "", "print a status API token for the given operator name and exit")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf(i18n.Get("ConfigLoadFailed"), err)
	}
	i18n.SetLanguage(i18n.Language(cfg.Language))

	if *issueToken != "" {
		token, err := api.IssueToken(*issueToken, cfg.JWTSecret, 30*24*time.Hour)
		if err != nil {
			log.Fatalf("issue token: %v", err)
		}
		fmt.Println(token)
		return
	}

	log.Println(i18n.Get("Starting"))
	log.Printf(i18n.Get("ConfigLoaded"), cfg.Mode, cfg.TWSHost, cfg.TWSPort)
	log.Printf(i18n.Get("UsingDBPath"), cfg.DBPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage
	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf(i18n.Get("DBInitFailed"), err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatalf(i18n.Get("DBMigrationsFailed"), err)
	}
	writer := persistence.NewBatchWriter(database.DB, cfg.BatchSize, cfg.BatchFlushEvery)
	defer writer.Close()
	series := persistence.NewSeriesStore(database, writer)

	// Observability
	bus := events.NewBus()
	metrics := monitor.NewMetrics(prometheus.DefaultRegisterer)
	alerter := &monitor.Alerter{Bus: bus, Sink: monitor.LogSink{}}
	alerter.Start(ctx)

	watchlist, err := quote.LoadWatchlist(cfg.WatchlistPath)
	if err != nil {
		log.Fatalf(i18n.Get("WatchlistFailed"), err)
	}
	log.Printf(i18n.Get("WatchlistLoaded"), len(watchlist.Tickers), len(watchlist.Monitors))
	if cfg.UseMockFeed {
		log.Println(i18n.Get("MockFeedStarted"))
	} else {
		log.Printf(i18n.Get("BridgeTarget"), bridge.NewClient().URL(cfg.TWSHost, cfg.TWSPort, 0))
	}

	deps := api.Deps{
		Bus:      bus,
		Series:   series,
		Metrics:  metrics,
		Gatherer: prometheus.DefaultGatherer,
		Meta: api.SystemMeta{
			Mode:        cfg.Mode,
			UseMockFeed: cfg.UseMockFeed,
			Version:     buildVersion(),
		},
	}

	switch cfg.Mode {
	case config.ModeFetch:
		hist := gateway.NewHistoricalGateway(newTransport(cfg), series, bus, historicalConfig(cfg))
		hist.SetRecorder(metrics)
		deps.Historical = hist

		srv := startAPI(cfg, deps)
		runFetch(ctx, hist, series, watchlist)
		stopAPI(srv)

	case config.ModeLive:
		live := gateway.NewLiveGateway(newTransport(cfg), bus, gateway.LiveConfig{
			Host:         cfg.TWSHost,
			Port:         cfg.TWSPort,
			ClientID:     cfg.LiveClientID,
			PollInterval: cfg.PollInterval,
			ReadyCeiling: cfg.ReadyCeiling,
			DrainGrace:   cfg.DrainGrace,
		})
		live.SetRecorder(metrics)
		book := quote.NewBook(watchlist.Monitors, false)
		journal := persistence.NewOrderJournal(database, uuid.NewString())

		// The journal keeps recording through the gateway's drain grace.
		journalCtx, stopJournal := context.WithCancel(context.Background())
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			journal.Run(journalCtx, bus)
		}()

		deps.Live = live
		deps.Book = book
		deps.Journal = journal
		srv := startAPI(cfg, deps)

		runLive(ctx, live, book)
		stopAPI(srv)
		stopJournal()
		wg.Wait()
	}

	log.Println(i18n.Get("ShuttingDown"))
}

func buildVersion() string {
	if v := os.Getenv("APP_VERSION"); v != "" {
		return v
	}
	return "v0.1-dev"
}

// newTransport returns the synthetic feed or a bridge connection. Each
// gateway gets its own connection.
func newTransport(cfg *config.Config) broker.Transport {
	if cfg.UseMockFeed {
		return broker.NewSyntheticTransport(cfg.MockTickInterval)
	}
	return bridge.NewClient()
}

func historicalConfig(cfg *config.Config) gateway.HistoricalConfig {
	hc := gateway.HistoricalConfig{
		Host:         cfg.TWSHost,
		Port:         cfg.TWSPort,
		ClientID:     cfg.HistoricalClientID,
		PollInterval: cfg.PollInterval,
		WaitCeiling:  cfg.WaitCeiling,
		Windows: gateway.DefaultWindows{
			broker.KindImpliedVol:    cfg.DefaultWindowIV,
			broker.KindHistoricalVol: cfg.DefaultWindowHV,
			broker.KindPrice:         cfg.DefaultWindowStock,
		},
	}
	if cfg.HistoricalPacing > 0 {
		hc.Pacing = rate.Every(10 * time.Minute / time.Duration(cfg.HistoricalPacing))
		hc.Burst = cfg.HistoricalPacing
	}
	return hc
}

func runFetch(ctx context.Context, hist *gateway.HistoricalGateway, series *persistence.SeriesStore, wl *quote.Watchlist) {
	kinds, err := wl.DataKinds()
	if err != nil {
		log.Printf(i18n.Get("WatchlistFailed"), err)
		return
	}
	if err := hist.Start(ctx); err != nil {
		log.Printf(i18n.Get("HistoricalConnectFailed"), err)
		return
	}
	defer hist.Close()

	log.Printf(i18n.Get("HistoricalFetchStarted"), len(kinds), len(wl.Tickers), hist.SessionID())
	started := time.Now()
	issued, err := hist.RequestAll(ctx, wl.Tickers, kinds)
	if err != nil {
		log.Printf(i18n.Get("HistoricalRequestFailed"), err)
	}
	if err := hist.AwaitCompletion(ctx, 0); err != nil {
		log.Printf(i18n.Get("HistoricalWaitTimedOut"), err)
	}
	log.Printf(i18n.Get("HistoricalFetchDone"), len(issued), time.Since(started).Round(time.Millisecond))

	if err := series.Flush(ctx); err != nil {
		log.Printf("❌ flush series: %v", err)
	}
	printSummaries(ctx, series, wl.Tickers)
}

// printSummaries logs a one-year IV and HV rank, the IV against HV
// comparison and the stock HV with position sizing per ticker.
func printSummaries(ctx context.Context, series analytics.Reader, tickers []string) {
	for _, ticker := range tickers {
		for _, kind := range []broker.DataKind{broker.KindImpliedVol, broker.KindHistoricalVol} {
			list, err := analytics.PeriodList(ctx, series, kind, ticker, 365)
			if err != nil {
				log.Printf(i18n.Get("SummaryUnavailable"), kind, ticker, err)
				continue
			}
			s, err := analytics.Summarize(list)
			if err != nil {
				log.Printf(i18n.Get("SummaryUnavailable"), kind, ticker, err)
				continue
			}
			log.Printf(i18n.Get("VolSummary"), kind, ticker, s.Current, s.Min, s.Max, s.Average,
				s.MinMaxRank, s.PercentileRank, s.WeightedRank)
		}
		if m, err := analytics.MixedVolFor(ctx, series, ticker, 365); err == nil {
			log.Printf(i18n.Get("MixedSummary"), ticker, m.IVCurrentToHVAverage, m.IVAverageToHVAverage,
				m.PositiveDifferenceRatio, m.Differences, m.DifferenceAverage)
		}

		closes, err := analytics.Closes(ctx, series, ticker, 365)
		if err != nil {
			log.Printf(i18n.Get("SummaryUnavailable"), broker.KindPrice, ticker, err)
			continue
		}
		hv, err := analytics.HistoricalVol(closes)
		if err != nil {
			log.Printf(i18n.Get("SummaryUnavailable"), broker.KindPrice, ticker, err)
			continue
		}
		toMA, _ := analytics.CurrentToMA(closes)
		log.Printf(i18n.Get("StockSummary"), ticker, hv, toMA)
		if sz, err := analytics.SizeFor(closes); err == nil {
			log.Printf(i18n.Get("SizingSummary"), ticker, sz.VolRatio, sz.Directional, sz.Neutral)
		}
	}
}

func runLive(ctx context.Context, live *gateway.LiveGateway, book *quote.Book) {
	if err := live.Start(ctx); err != nil {
		log.Printf(i18n.Get("LiveConnectFailed"), err)
		return
	}
	log.Println(i18n.Get("LiveReady"))

	for _, w := range book.All() {
		id, err := live.Subscribe(ctx, w)
		if err != nil {
			log.Printf(i18n.Get("LiveSubscribeFail"), w.Contract().Symbol, err)
			continue
		}
		log.Printf(i18n.Get("LiveSubscribed"), w.Contract().Symbol, id)
	}

	<-ctx.Done()

	log.Printf(i18n.Get("LiveStopping"), len(live.Subscriptions()))
	closeCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := live.Close(closeCtx); err != nil {
		log.Printf("❌ close live gateway: %v", err)
	}
}

func startAPI(cfg *config.Config, deps api.Deps) *http.Server {
	if !cfg.EnableAPI {
		return nil
	}
	srv := api.NewServer(deps, cfg.JWTSecret).HTTPServer(":" + cfg.Port)
	go func() {
		log.Printf(i18n.Get("ServerListening"), cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf(i18n.Get("APIServerError"), err)
		}
	}()
	return srv
}

func stopAPI(srv *http.Server) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf(i18n.Get("APIServerError"), err)
	}
}
