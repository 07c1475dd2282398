// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors.
type Metrics struct {
	PagesCrawled     *prometheus.CounterVec
	ChunksStored     prometheus.Counter
	CodeExamples     prometheus.Counter
	EntitiesStored   prometheus.Counter
	QueriesTotal     *prometheus.CounterVec
	QueryDuration    *prometheus.HistogramVec
	EmbeddingBatches prometheus.Counter
	ZeroVectors      prometheus.Counter
}

// NewMetrics registers the collectors on a fresh registry and returns both.
func NewMetrics() (*Metrics, *prometheus.Registry) {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	m := &Metrics{
		PagesCrawled: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lodestone_pages_crawled_total",
			Help: "Pages crawled, by strategy.",
		}, []string{"strategy"}),
		ChunksStored: factory.NewCounter(prometheus.CounterOpts{
			Name: "lodestone_chunks_stored_total",
			Help: "Document chunks written to the vector store.",
		}),
		CodeExamples: factory.NewCounter(prometheus.CounterOpts{
			Name: "lodestone_code_examples_stored_total",
			Help: "Code examples written to the vector store.",
		}),
		EntitiesStored: factory.NewCounter(prometheus.CounterOpts{
			Name: "lodestone_graph_entities_stored_total",
			Help: "Entities written to the knowledge graph.",
		}),
		QueriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lodestone_queries_total",
			Help: "Retrieval queries, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		QueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lodestone_query_duration_seconds",
			Help:    "Retrieval query latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		EmbeddingBatches: factory.NewCounter(prometheus.CounterOpts{
			Name: "lodestone_embedding_batches_total",
			Help: "Embedding batches sent to the provider.",
		}),
		ZeroVectors: factory.NewCounter(prometheus.CounterOpts{
			Name: "lodestone_zero_vectors_total",
			Help: "Embeddings that fell back to the zero vector.",
		}),
	}
	return m, registry
}

// Handler serves the registry in Prometheus exposition format.
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
