package logging

import (
	"go.uber.org/zap"
)

// Setup installs the process-wide logger so packages can use zap.L().
// Returns a flush func for main to defer.
func Setup(env string) (func(), error) {
	var logger *zap.Logger
	var err error
	if env == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return func() { _ = logger.Sync() }, nil
}
