package autoload

import (
	"context"
	"os"
	"strings"

	"airflow-service/app/src/infra"
	"airflow-service/app/src/infra/utils/dotenv"
)

var logger = infra.NewLogger(os.Stdout, "autoload")

func init() {
	var paths []string
	if file := strings.TrimSpace(os.Getenv("ENV_FILE")); file != "" {
		paths = append(paths, file)
	}
	if err := dotenv.Load(paths...); err != nil {
		logger.Errorf(context.Background(), "dotenv autoload: %v", err)
	}
}
