package commands

import (
	"github.com/sharedcode/anydb"
	"github.com/sharedcode/anydb/internal/config"
)

func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}

func openDatabase() (*anydb.Database, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	var opts []anydb.Option
	if cfg.MetricsEnabled {
		opts = append(opts, anydb.WithMetrics())
	}
	db, err := anydb.Open(cfg.Dir, opts...)
	if err != nil {
		return nil, nil, err
	}
	return db, cfg, nil
}
