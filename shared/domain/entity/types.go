package entity

import (
	"reportfetcher/shared/domain/entity/category"
	"reportfetcher/shared/domain/entity/download"
	"reportfetcher/shared/domain/entity/extraction"
	"reportfetcher/shared/domain/entity/report"
)

type (
	Category   = category.Category
	Report     = report.Report
	Download   = download.Download
	Extraction = extraction.Extraction
)
