// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of tscore.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/version"

	tslog "github.com/netsage-project/tscore/internal/log"
	"github.com/netsage-project/tscore/internal/obsmetrics"
	"github.com/netsage-project/tscore/pkg/query"
	"github.com/netsage-project/tscore/pkg/seriesid"
	"github.com/netsage-project/tscore/pkg/store"
)

// testDropper is satisfied by store adapters that support the test-only
// keyspace-clear operation. It is deliberately not part of store.Adapter:
// the design notes route this through a dedicated admin interface rather
// than a constructor option or a method every adapter must carry.
type testDropper interface {
	DropKeyspace(ctx context.Context) error
}

// adminServer exposes /healthz, /metrics, /debug/query/raw, and an
// /admin/keyspace/drop endpoint — the one sanctioned path to the
// test-only keyspace-clear behavior. The drop endpoint works whenever the
// adapter implements testDropper; no configuration setting turns it off.
type adminServer struct {
	srv *http.Server
	log *tslog.Logger
}

func newAdminServer(addr string, adapter store.Adapter, planner *query.Planner, m *obsmetrics.Metrics, logger *tslog.Logger) *adminServer {
	if addr == "" {
		addr = ":6060"
	}

	reg := prometheus.NewRegistry()
	m.Register(reg)

	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":  "ok",
			"version": version.Version,
			"commit":  version.Revision,
		})
	}).Methods(http.MethodGet)

	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	// /debug/query is an ad hoc inspection endpoint for operators, not the
	// series query API: a full REST query surface is an external
	// collaborator per the design notes. It exercises the Query Planner
	// directly against raw_data for quick troubleshooting.
	r.HandleFunc("/debug/query/raw", func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		freq, err := strconv.ParseInt(q.Get("freq"), 10, 64)
		if err != nil {
			http.Error(w, "invalid or missing freq", http.StatusBadRequest)
			return
		}
		tMin, err := strconv.ParseInt(q.Get("t_min"), 10, 64)
		if err != nil {
			http.Error(w, "invalid or missing t_min", http.StatusBadRequest)
			return
		}
		tMax, err := strconv.ParseInt(q.Get("t_max"), 10, 64)
		if err != nil {
			http.Error(w, "invalid or missing t_max", http.StatusBadRequest)
			return
		}
		path := seriesid.Split(q.Get("path"))
		pts, err := planner.QueryRaw(req.Context(), seriesid.ID{Path: path, Freq: freq}, tMin, tMax, 0)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(pts)
	}).Methods(http.MethodGet)

	r.HandleFunc("/admin/keyspace/drop", func(w http.ResponseWriter, req *http.Request) {
		dropper, ok := adapter.(testDropper)
		if !ok {
			http.Error(w, "adapter does not support keyspace drop", http.StatusNotImplemented)
			return
		}
		if err := dropper.DropKeyspace(req.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodPost)

	return &adminServer{
		srv: &http.Server{Addr: addr, Handler: r},
		log: logger.With("admin"),
	}
}

func (a *adminServer) Run() {
	a.log.Infof("admin surface listening on %s", a.srv.Addr)
	if err := a.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		a.log.Errorf("admin server: %v", err)
	}
}

func (a *adminServer) Shutdown(ctx context.Context) error {
	return a.srv.Shutdown(ctx)
}
