package main

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cuemby/ingestord/pkg/ingest"
	"github.com/cuemby/ingestord/pkg/log"
	"github.com/cuemby/ingestord/pkg/types"
)

// newMux wires the HTTP surface ingestord exposes: per-format ingest
// endpoints over d.core.Ingest, Prometheus metrics, and a liveness
// probe built from the two health monitors. This transport layer is
// deliberately thin and lives in the binary rather than pkg/ingest,
// matching pkg/metrics's own note that exposing collectors over HTTP is
// a handler-layer concern outside the ingestion core's scope.
func (d *daemon) newMux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("POST /api/{org}/{streamType}/{stream}/_json", d.ingestHandler(ingest.FormatJSONArray))
	mux.Handle("POST /api/{org}/{streamType}/{stream}/_multi", d.ingestHandler(ingest.FormatNDJSON))
	mux.Handle("POST /api/{org}/{streamType}/{stream}/_bulk", d.ingestHandler(ingest.FormatBulk))
	mux.Handle("POST /api/{org}/{streamType}/{stream}/_kinesis_firehose", d.ingestHandler(ingest.FormatKinesisFirehose))
	mux.Handle("POST /api/{org}/{streamType}/{stream}/_sub", d.ingestHandler(ingest.FormatGCPPubSub))
	mux.Handle("POST /api/{org}/{streamType}/{stream}/_rum", d.ingestHandler(ingest.FormatRUM))
	mux.Handle("POST /api/{org}/{streamType}/{stream}/_usage", d.ingestHandler(ingest.FormatUsage))

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", d.healthHandler)

	return mux
}

func (d *daemon) ingestHandler(format ingest.Format) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID := r.PathValue("org")
		streamType := types.StreamType(r.PathValue("streamType"))
		streamName := r.PathValue("stream")
		user := r.Header.Get("X-Ingestord-User")

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "read body: "+err.Error(), http.StatusBadRequest)
			return
		}

		resp, err := d.core.Ingest(r.Context(), 0, orgID, streamType, streamName, ingest.Request{Format: format, Body: body}, user)
		if err != nil {
			log.Errorf("ingest request failed", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		status := http.StatusOK
		if resp.Errors {
			status = http.StatusMultiStatus
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func (d *daemon) healthHandler(w http.ResponseWriter, r *http.Request) {
	meta := d.metaHealth.Status()
	obj := d.objHealth.Status()

	healthy := meta.Healthy && obj.Healthy
	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(struct {
		Healthy     bool      `json:"healthy"`
		MetaStore   bool      `json:"meta_store_healthy"`
		ObjectStore bool      `json:"object_store_healthy"`
		CheckedAt   time.Time `json:"checked_at"`
	}{
		Healthy:     healthy,
		MetaStore:   meta.Healthy,
		ObjectStore: obj.Healthy,
		CheckedAt:   time.Now(),
	})
}
