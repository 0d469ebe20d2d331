package main

import (
	_ "embed"
	"os"

	"github.com/tigerroll/surfin-dualdb/pkg/batch/support/util/logger"
)

// embeddedConfig holds the application's YAML configuration.
//
//go:embed resources/application.yaml
var embeddedConfig []byte

func main() {
	envFilePath := os.Getenv("ENV_FILE_PATH")
	if envFilePath == "" {
		envFilePath = ".env"
	}

	if err := NewRootCommand(envFilePath, embeddedConfig, os.Stdout).Execute(); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
}
