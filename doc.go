// Package lodestone turns websites into a queryable knowledge base.
//
// Lodestone crawls web content, chunks and embeds it into a Postgres
// pgvector store, optionally extracts entities and relationships into a
// Neo4j knowledge graph, and serves retrieval tools over the Model
// Context Protocol.
//
// # Quick Start
//
// Install Lodestone:
//
//	go install github.com/kadirpekel/lodestone/cmd/lodestone@latest
//
// Set the required environment:
//
//	export OPENAI_API_KEY=sk-...
//	export DATABASE_URL=postgres://localhost:5432/lodestone
//
// Start the server:
//
//	lodestone serve
//
// Optional retrieval paths are toggled with feature flags:
//
//	USE_CONTEXTUAL_EMBEDDINGS  situate each chunk in its document before embedding
//	USE_HYBRID_SEARCH          merge keyword matches into vector results
//	USE_AGENTIC_RAG            extract and search standalone code examples
//	USE_RERANKING              rescore results with a cross-encoder
//	USE_GRAPHRAG               dual-write a knowledge graph and enrich answers with it
//
// # Using as Go Library
//
// Import the packages directly:
//
//	import (
//		"github.com/kadirpekel/lodestone/crawl"
//		"github.com/kadirpekel/lodestone/ingest"
//		"github.com/kadirpekel/lodestone/retrieve"
//	)
package lodestone
