package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"github.com/uhyunpark/exchange/params"
	"github.com/uhyunpark/exchange/pkg/api"
	"github.com/uhyunpark/exchange/pkg/app/exchange"
	"github.com/uhyunpark/exchange/pkg/app/feed"
	"github.com/uhyunpark/exchange/pkg/kafka"
	"github.com/uhyunpark/exchange/pkg/metrics"
	"github.com/uhyunpark/exchange/pkg/storage"
	"github.com/uhyunpark/exchange/pkg/util"
)

func main() {
	cfg := params.LoadFromEnv("")

	logger, err := util.NewLoggerWithFile(cfg.Node.LogFile, os.Getenv("VERBOSE") == "true")
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Node.LogFile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ex := exchange.New(exchange.Config{
		Mode:            exchange.Mode(cfg.Exchange.OrderingMode),
		RejectSelfMatch: cfg.Exchange.RejectSelfMatch,
	}, logger)

	// ---- Storage ----
	store, err := storage.NewPebbleStore(filepath.Join(cfg.Node.DataDir, "pebble"))
	if err != nil {
		sugar.Fatalw("storage_open_failed", "err", err)
	}
	defer store.Close()
	store.SetLogger(logger)
	store.SetRunID(ex.RunID())
	ex.Register(store)

	if cfg.Node.JournalFile != "" && cfg.Feed.Mode != "journal" {
		j, err := storage.NewFileJournal(cfg.Node.JournalFile)
		if err != nil {
			sugar.Fatalw("journal_open_failed", "err", err)
		}
		defer func() {
			if err := j.Close(); err != nil {
				sugar.Errorw("journal_incomplete", "path", cfg.Node.JournalFile, "err", err)
			}
		}()
		ex.SetJournal(j)
	}

	// ---- Metrics and API ----
	m := metrics.NewPublisher()
	ex.Register(m)

	if cfg.Node.APIAddr != "" {
		srv := api.NewServer(ex, store, m.Handler(), logger)
		ex.Register(srv.Hub())
		go func() {
			if err := srv.Start(ctx, cfg.Node.APIAddr); err != nil {
				sugar.Fatalw("api_server_failed", "err", err)
			}
		}()
	}

	// ---- Kafka results ----
	if cfg.Kafka.ResultsTopic != "" {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.ResultsTopic)
		defer producer.Close()
		kp := kafka.NewPublisher(producer, ex.RunID(), logger)
		kp.OnFailure(func() { m.PublishFailed("kafka") })
		ex.Register(kp)
	}

	// ---- Sources ----
	feeds, err := buildFeeds(cfg, logger)
	if err != nil {
		sugar.Fatalw("feeds_failed", "mode", cfg.Feed.Mode, "err", err)
	}
	if err := ex.SetSources(feeds...); err != nil {
		sugar.Fatalw("set_sources_failed", "err", err)
	}

	defer closeFeeds(feeds, sugar)

	if err := ex.Start(ctx); err != nil {
		sugar.Fatalw("exchange_start_failed", "err", err)
	}
	if err := ex.Wait(ctx); err != nil {
		sugar.Errorw("exchange_stopped", "state", ex.State().String(), "err", err)
		return
	}
	if err := store.Err(); err != nil {
		sugar.Errorw("storage_incomplete", "err", err)
	}

	digest, _ := ex.FinalDigest()
	elapsed, _ := ex.Elapsed()
	sugar.Infow("run_complete",
		"run_id", ex.RunID(),
		"digest", digest.Hex(),
		"books", len(ex.Symbols()),
		"elapsed_ms", elapsed.Milliseconds())

	// Keep serving the final books until interrupted.
	if cfg.Node.APIAddr != "" {
		<-ctx.Done()
	}
}

// closeFeeds releases broker readers and reports records they could not decode.
func closeFeeds(feeds []feed.Feed, sugar *zap.SugaredLogger) {
	for _, f := range feeds {
		kf, ok := f.(*kafka.Feed)
		if !ok {
			continue
		}
		if n := kf.Skipped(); n > 0 {
			sugar.Warnw("records_skipped", "source", kf.SourceID(), "count", n)
		}
		if err := kf.Close(); err != nil {
			sugar.Warnw("feed_close_failed", "source", kf.SourceID(), "err", err)
		}
	}
}

func buildFeeds(cfg params.Config, logger *zap.Logger) ([]feed.Feed, error) {
	switch cfg.Feed.Mode {
	case "kafka":
		feeds := make([]feed.Feed, len(cfg.Exchange.Sources))
		for i, src := range cfg.Exchange.Sources {
			feeds[i] = kafka.NewFeed(cfg.Kafka.Brokers, cfg.Kafka.FeedTopicPrefix, src, logger)
		}
		return feeds, nil
	case "journal":
		return storage.JournalFeeds(cfg.Node.JournalFile)
	default:
		gc := feed.DefaultGeneratorConfig()
		gc.Sources = cfg.Exchange.Sources
		gc.Symbols = cfg.Exchange.Symbols
		gc.MessagesPerSource = cfg.Feed.Generator.MessagesPerSource
		gc.Seed = cfg.Feed.Generator.Seed
		gc.CancelPct = cfg.Feed.Generator.CancelPct
		return feed.NewGenerator(gc).Feeds(), nil
	}
}
