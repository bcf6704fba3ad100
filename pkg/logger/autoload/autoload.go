// Package autoload initializes the global logger from LOGGER_* environment
// variables on import. Blank-import it from main.
package autoload

import (
	configx "github.com/napatw/salesintel/pkg/config"
	logx "github.com/napatw/salesintel/pkg/logger"
)

func init() {
	cfg := configx.MustNew[logx.Config]("LOGGER")
	logx.Init(*cfg)
}
