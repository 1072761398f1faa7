package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"

	playsight "github.com/playsight/go-playsight"
	"github.com/playsight/go-playsight/metrics"
	"github.com/playsight/go-playsight/session"
	"github.com/playsight/go-playsight/stats"
)

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		log.WithError(err).Fatalf("failed loading configuration")
	}

	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	} else {
		log.WithError(err).Warnf("invalid log level, keeping default")
	}

	log.Infof("%s starting", playsight.VersionString())

	playsight.SetEarlyStartGaps(cfg.EarlyStartGaps)
	gap := playsight.EarlyStartGap(cfg.Platform)
	log.Debugf("early-start gap for %s is %ds", cfg.Platform, gap)

	var state playsight.AppState
	if err := state.Read(cfg.StateDir); err != nil {
		log.WithError(err).Fatalf("failed reading app state")
	}
	if err := state.Acquire(); err != nil {
		log.WithError(err).Fatalf("failed acquiring state directory")
	}
	defer state.Release()

	logPreviousExit(&state)

	logger := LogrusAdapter{Log: log.NewEntry(log.StandardLogger())}
	clock := playsight.SystemClock{}

	startupStats := stats.New()
	m := metrics.New()

	ingress := NewIngress(cfg.Ingress.Url, logger)

	var apiServer *ApiServer
	sess := session.NewMachine(session.Options{
		Log:           logger,
		Clock:         clock,
		EarlyStartGap: gap,
		Publish: func(snapshot *session.Snapshot) {
			if apiServer != nil {
				apiServer.PublishSessionSnapshot(snapshot)
			}
		},
	})
	sess.AddListener(m)

	bindings := NewBindings(logger, clock, ingress, sess, startupStats, m)
	bindings.Wire()

	apiServer, err = NewApiServer(cfg.Server.Address, cfg.Server.AllowOrigin, bindings, startupStats, m.Handler())
	if err != nil {
		log.WithError(err).Fatalf("failed starting api server")
	}
	sess.AddListener(apiServer)

	err = backoff.Retry(func() error {
		return ingress.Connect(context.Background())
	}, backoff.NewExponentialBackOff())
	if err != nil {
		log.WithError(err).Fatalf("failed connecting to player bridge")
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	<-signals

	log.Infof("shutting down")

	persistExit(&state, apiServer.LastSessionSnapshot())
	ingress.Close()
	apiServer.Close()
}

// logPreviousExit surfaces why the last session on this device ended.
func logPreviousExit(state *playsight.AppState) {
	if len(state.LastExit) == 0 {
		return
	}

	var snapshot session.Snapshot
	if err := json.Unmarshal(state.LastExit, &snapshot); err != nil {
		log.WithError(err).Warnf("unreadable previous exit snapshot")
		return
	}

	entry := log.WithField("stage", snapshot.Stage.String())
	if snapshot.Cause != nil {
		entry = entry.WithField("cause", snapshot.Cause.Code)
	}
	entry.Infof("previous session exit")
}

func persistExit(state *playsight.AppState, snapshot *session.Snapshot) {
	if snapshot == nil {
		return
	}

	raw, err := json.Marshal(snapshot)
	if err != nil {
		log.WithError(err).Warnf("failed marshalling exit snapshot")
		return
	}

	state.LastExit = raw
	if err := state.Write(); err != nil {
		log.WithError(err).Errorf("failed persisting app state")
	}
}
