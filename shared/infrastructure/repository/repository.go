package repository

import (
	"fmt"

	"reportfetcher/shared/application/ports"
	"reportfetcher/shared/domain/entity"
)

type Repositories struct {
	category   ports.CategoryRepository
	report     ports.ReportRepository
	download   ports.DownloadRepository
	extraction ports.ExtractionRepository
}

// NewRepositories creates all repository instances
func NewRepositories(db ports.Database, obs ports.Observability) (*Repositories, error) {
	logger, metrics, err := obs.ComponentsScoped("repository")
	if err != nil {
		return nil, fmt.Errorf("failed to get observability: %w", err)
	}

	return &Repositories{
		category:   &categoryRepository{newBaseRepository[entity.Category](db, logger, metrics, "categories")},
		report:     &reportRepository{newBaseRepository[entity.Report](db, logger, metrics, "reports")},
		download:   &downloadRepository{newBaseRepository[entity.Download](db, logger, metrics, "downloads")},
		extraction: &extractionRepository{newBaseRepository[entity.Extraction](db, logger, metrics, "extractions")},
	}, nil
}

func (r *Repositories) Category() ports.CategoryRepository {
	return r.category
}

func (r *Repositories) Report() ports.ReportRepository {
	return r.report
}

func (r *Repositories) Download() ports.DownloadRepository {
	return r.download
}

func (r *Repositories) Extraction() ports.ExtractionRepository {
	return r.extraction
}
