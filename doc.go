// Package hibobextractor extracts HR data from the HiBob API into CSV tables.
//
// The extractor lists every employee (active and inactive), flattens each
// nested record into a single-level row and, for each configured history
// resource, fetches the per-employee detail endpoint and writes one more
// table. Column lists are remembered between runs so that a table header
// only ever grows.
//
// # Architecture
//
// The run is a single synchronous pipeline:
//
//	config ─▶ hibob.Client ─▶ flatten.Flattener ─▶ schema.State ─▶ csv.ElasticWriter
//	             │
//	             └─ clients.HTTPClient (rate limiter, retrying transport, metrics, tracing)
//
// Packages:
//   - cmd/hibob-extractor: cobra CLI (run, test-connection, version)
//   - internal/extractor: run orchestration and phase tracking
//   - pkg/hibob: HiBob API calls and credentials
//   - pkg/clients: HTTP client, sliding window rate limiter, retry policy
//   - pkg/flatten: nested record to flat row conversion
//   - pkg/schema: per-table column state and its file store
//   - pkg/connector/destinations/csv: elastic CSV table writer and manifests
//   - pkg/compression: optional output compression
//   - pkg/config, pkg/logger, pkg/errors, pkg/metrics, pkg/observability: ambient stack
//
// # Data Folder
//
// The extractor follows the Keboola data folder layout:
//
//	<data-dir>/config.json        configuration
//	<data-dir>/in/state.json      column state from the previous run
//	<data-dir>/out/state.json     column state written after a successful run
//	<data-dir>/out/tables/*.csv   one table per resource, each with a .manifest
//
// # Quick Start
//
//	hibob-extractor run --data-dir ./data
//	hibob-extractor test-connection --data-dir ./data
//
// Credentials may come from the environment through HIBOB_SERVICE_USER_ID
// and HIBOB_SERVICE_USER_TOKEN, and the data folder from KBC_DATADIR.
package hibobextractor
