package main

import (
	"airflow-service/app/src/domain"
	"airflow-service/app/src/infra"
)

// ingestPipeline connects one reading source to its own worker pool.
type ingestPipeline struct {
	Name   string
	Source domain.ReadingSource
	Pool   domain.IngestPool
}

type pipelines []ingestPipeline

type application struct {
	Config    infra.Config
	Logger    *infra.Logger
	Service   domain.AirflowService
	History   domain.EstimateReader
	Reporter  domain.Reporter
	Pipelines pipelines
}

func newApplication(cfg infra.Config, logger *infra.Logger, service domain.AirflowService, history domain.EstimateReader, reporter domain.Reporter, ingest pipelines) *application {
	return &application{
		Config:    cfg,
		Logger:    logger,
		Service:   service,
		History:   history,
		Reporter:  reporter,
		Pipelines: ingest,
	}
}
