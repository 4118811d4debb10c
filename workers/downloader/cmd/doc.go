/*
Command reportfetcher works through the research report catalogue in stages.

Each report moves through a small state machine kept in the database:

	pending ──resolve──▶ ready ──download──▶ downloaded
	   │                   │
	   └──────▶ failed ◀───┘          no_download_url

The stages are separate subcommands so a long crawl can be stopped and
resumed at any point:

	reportfetcher resolve   --limit 50
	reportfetcher download  --category 7 --workers 4
	reportfetcher retry
	reportfetcher extract   --category 包装
	reportfetcher stats
	reportfetcher proxies   --region HK

# Architecture

	├── cmd/                     # cobra commands and dependency wiring
	├── internal/
	│   ├── application/
	│   │   ├── handler/         # stage middleware (logging, metrics, recovery, timeout)
	│   │   └── ports/           # session, proxy pool and archive interfaces
	│   ├── domain/
	│   │   ├── model/           # outcomes, pages, proxy nodes
	│   │   └── service/         # archive extraction, file naming, storage paths
	│   ├── infrastructure/
	│   │   └── adapters/
	│   │       ├── http/        # cookie-keeping session client
	│   │       ├── proxy/       # node list, latency probe and rotation
	│   │       └── resolver/    # download page link extraction
	│   └── usecase/             # orchestrator, batch downloader, resolve and stats
	└── mocks/

# Downloads

Every archive is fetched in two requests on the same session: the report's
download page first, then the archive itself with the page as referer.
Failures escalate. A 403 or a run of consecutive failures rotates to another
proxy node and clears cookies before the next attempt. When no healthy node
remains the session continues on a direct connection.

An archive already on disk is adopted instead of fetched again unless
--force is given. Extraction renames the payload after the report title and
removes the archive only when every entry was written.

# Configuration

Settings come from the environment, with .env and .env.<ENV> files loaded
first when present. The most used variables:

	DOWNLOAD_DIR             archive root, one folder per category
	DOWNLOAD_MAX_ATTEMPTS    attempts per report
	DOWNLOAD_WORKERS         sessions used by --concurrent
	PROXY_ENABLED            route through the local proxy agent
	PROXY_CLASH_CONFIG       node list to probe
	ADAPTER_DATABASE         sqlite or postgres
	ADAPTER_STORAGE          fs or s3 mirror for extracted files
	ADAPTER_QUEUE            sqs or rabbitmq for stage events
	METRICS_ADDR             serve Prometheus metrics on this address
*/
package main
