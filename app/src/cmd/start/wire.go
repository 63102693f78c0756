//go:build wireinject

package main

import (
	"context"
	"io"

	"github.com/google/wire"
)

var engineSet = wire.NewSet(
	provideRooms,
	provideRegistry,
	provideAirflowService,
)

var historySet = wire.NewSet(
	provideEstimateStore,
	provideEstimateReader,
	provideEstimateWriter,
)

func initApplication(ctx context.Context, out io.Writer) (*application, func(), error) {
	wire.Build(
		provideConfig,
		provideServiceName,
		provideLogger,
		engineSet,
		historySet,
		provideReporter,
		providePipelines,
		newApplication,
	)
	return nil, nil, nil
}
