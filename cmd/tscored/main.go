// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of tscore.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command tscored runs the time-series persister core as a standalone
// daemon: it loads configuration, connects to the wide-column store,
// starts the single-writer-per-series dispatcher, subscribes to the
// configured ingestion transport, and serves a minimal health/admin/
// metrics surface.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-co-op/gocron/v2"
	"github.com/google/gops/agent"

	"github.com/netsage-project/tscore/internal/config"
	tslog "github.com/netsage-project/tscore/internal/log"
	"github.com/netsage-project/tscore/internal/obsmetrics"
	"github.com/netsage-project/tscore/pkg/archive"
	"github.com/netsage-project/tscore/pkg/ingest"
	"github.com/netsage-project/tscore/pkg/persister"
	"github.com/netsage-project/tscore/pkg/query"
	"github.com/netsage-project/tscore/pkg/store"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the JSON configuration file")
	envFile := flag.String("env-file", "", "optional .env file applying credential overrides")
	gopsDebug := flag.Bool("gops", false, "start the gops diagnostics agent")
	flag.Parse()

	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		println("tscored: " + err.Error())
		os.Exit(1)
	}

	logger := tslog.New(tslog.Config{Level: cfg.LogLevel, Pretty: cfg.LogFormat == "console"})
	log := logger.With("main")

	if *gopsDebug {
		if err := agent.Listen(agent.Options{}); err != nil {
			log.Warnf("gops agent failed to start: %v", err)
		}
	}

	metrics := obsmetrics.New()

	adapter, err := store.Open(store.Config{
		Keyspace: cfg.CassandraKeyspace,
		Servers:  cfg.CassandraServers,
		Username: cfg.CassandraUser,
		Password: cfg.CassandraPass,
		Replicas: cfg.CassandraReplicas,
	}, logger, metrics)
	if err != nil {
		log.Fatalf("connect to store: %v", err)
	}
	defer adapter.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := adapter.EnsureSchema(ctx); err != nil {
		log.Fatalf("ensure schema: %v", err)
	}

	aggFreqs := map[int64][]int64{} // populated from per-series configuration in a full deployment
	p := persister.New(adapter, metrics, logger, aggFreqs)
	dispatcher := persister.NewDispatcher(p, 8, 256, logger)
	dispatcher.Run(ctx)

	planner := query.New(adapter, logger, metrics)

	var archiveWriter *archive.Writer
	if cfg.ArchiveS3Bucket != "" {
		var opts []func(*awsconfig.LoadOptions) error
		if ak, sk := os.Getenv("TSCORE_ARCHIVE_ACCESS_KEY"), os.Getenv("TSCORE_ARCHIVE_SECRET_KEY"); ak != "" && sk != "" {
			opts = append(opts, awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(ak, sk, os.Getenv("TSCORE_ARCHIVE_SESSION_TOKEN")),
			))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			log.Warnf("archive disabled: load aws config: %v", err)
		} else {
			s3Client := s3.NewFromConfig(awsCfg)
			archiveWriter = archive.NewWriter(s3Client, cfg.ArchiveS3Bucket, cfg.ArchiveS3Prefix, logger)
		}
	}

	var natsSub *ingest.NatsSubscriber
	if cfg.NatsAddress != "" {
		natsSub, err = ingest.NewNatsSubscriber(ctx, ingest.NatsConfig{
			Address: cfg.NatsAddress,
			Subject: cfg.NatsSubject,
		}, dispatcher, logger)
		if err != nil {
			log.Warnf("nats subscriber not started: %v", err)
		}
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		log.Fatalf("create scheduler: %v", err)
	}
	if _, err := scheduler.NewJob(
		gocron.DurationJob(30*time.Second),
		gocron.NewTask(func() {
			if err := adapter.Flush(ctx); err != nil {
				log.Warnf("periodic flush failed: %v", err)
			}
		}),
	); err != nil {
		log.Fatalf("schedule flush job: %v", err)
	}
	if archiveWriter != nil {
		if _, err := scheduler.NewJob(
			gocron.DurationJob(24*time.Hour),
			gocron.NewTask(func() {
				runArchiveCycle(ctx, adapter, archiveWriter, p, logger)
			}),
		); err != nil {
			log.Fatalf("schedule archive job: %v", err)
		}
	}
	scheduler.Start()

	admin := newAdminServer(cfg.MetricsAddr, adapter, planner, metrics, logger)
	go admin.Run()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Infof("shutting down")
	cancel()
	dispatcher.Wait()
	if natsSub != nil {
		natsSub.Close()
	}
	_ = scheduler.Shutdown()
	_ = admin.Shutdown(context.Background())
}
