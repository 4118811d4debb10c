package ports

import (
	shared "reportfetcher/shared/application/ports"
)

type (
	Queue          = shared.Queue
	QueueMessage   = shared.QueueMessage
	Storage        = shared.Storage
	ObjectMetadata = shared.ObjectMetadata
	ObjectInfo     = shared.ObjectInfo
	Repositories   = shared.Repositories
	Logger         = shared.Logger
	Metrics        = shared.Metrics
	Observability  = shared.Observability
)
