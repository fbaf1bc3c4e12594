package knowledge

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/evcomx/ragcore/internal/validation"
)

var (
	documentsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragcore",
			Subsystem: "knowledge",
			Name:      "documents_ingested_total",
			Help:      "Documents stored, by document type.",
		},
		[]string{"type"},
	)

	chunksStored = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ragcore",
			Subsystem: "knowledge",
			Name:      "chunks_stored_total",
			Help:      "Chunk embeddings stored across all tenants.",
		},
	)

	ingestFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragcore",
			Subsystem: "knowledge",
			Name:      "ingest_failures_total",
			Help:      "Rejected or failed ingestions, by reason.",
		},
		[]string{"reason"},
	)
)

func failureReason(err error) string {
	if errors.Is(err, validation.ErrInvalid) {
		return "validation"
	}
	return "internal"
}
