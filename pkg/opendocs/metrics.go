package opendocs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	migratedEntries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opendocs_migration_entries_total",
		Help: "Persisted recent-document entries seen by the migration pass, by outcome",
	}, []string{"outcome"})

	migrationRewrites = promauto.NewCounter(prometheus.CounterOpts{
		Name: "opendocs_migration_rewrites_total",
		Help: "Migration passes that changed the persisted mapping",
	})

	documentsEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "opendocs_documents_evicted_total",
		Help: "Recent documents dropped because the list was over capacity",
	})

	storeWrites = promauto.NewCounter(prometheus.CounterOpts{
		Name: "opendocs_store_writes_total",
		Help: "Recent-document mappings written to the session store",
	})

	listenerEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opendocs_listener_events_total",
		Help: "Record lifecycle events received by the listener, by event and disposition",
	}, []string{"event", "disposition"})

	enrichmentOmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opendocs_enrichment_omitted_total",
		Help: "Recent documents left out of a listing, by reason",
	}, []string{"reason"})
)

func observeMigration(report MigrationReport) {
	if report.Kept > 0 {
		migratedEntries.WithLabelValues("kept").Add(float64(report.Kept))
	}
	if report.Salvaged > 0 {
		migratedEntries.WithLabelValues("salvaged").Add(float64(report.Salvaged))
	}
	if report.Discarded > 0 {
		migratedEntries.WithLabelValues("discarded").Add(float64(report.Discarded))
	}
	if report.Changed {
		migrationRewrites.Inc()
	}
}
