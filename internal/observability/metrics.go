package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatsift_messages_ingested_total",
		Help: "The total number of chat messages read from a platform feed",
	}, []string{"platform", "channel"})

	MessagesPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatsift_messages_published_total",
		Help: "The total number of canonical messages published to the bus",
	}, []string{"platform", "channel"})

	Reconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatsift_reconnects_total",
		Help: "The total number of reconnect attempts per platform",
	}, []string{"platform"})

	PipelineProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatsift_pipeline_processed_total",
		Help: "The total number of bus deliveries handled by the pipeline, by outcome",
	}, []string{"status"})

	RecordsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatsift_records_emitted_total",
		Help: "The total number of cleaned records accepted by a sink",
	}, []string{"sink"})
)
