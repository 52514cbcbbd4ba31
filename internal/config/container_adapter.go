package config

import (
	"github.com/garyjia/office-requisition/internal/container"
)

// ToContainerConfig converts the file-based Config into the container's configuration.
func (c *Config) ToContainerConfig() *container.Config {
	receivers := make(map[string]string, len(c.Lark.OfficeReceivers))
	for office, id := range c.Lark.OfficeReceivers {
		receivers[office] = id
	}

	return &container.Config{
		Database: container.DatabaseConfig{
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
			MigrationsDir:   c.Database.MigrationsDir,
		},
		Lark: container.LarkConfig{
			Enabled:         c.Lark.Enabled,
			AppID:           c.Lark.AppID,
			AppSecret:       c.Lark.AppSecret,
			ReceiveIDType:   c.Lark.ReceiveIDType,
			BaseURL:         c.Lark.BaseURL,
			OfficeReceivers: receivers,
		},
		Server: container.ServerConfig{
			Host:            c.Server.Host,
			Port:            c.Server.Port,
			ReadTimeout:     c.Server.ReadTimeout,
			WriteTimeout:    c.Server.WriteTimeout,
			ShutdownTimeout: c.Server.ShutdownTimeout,
		},
		Worker: container.WorkerConfig{
			RelayInterval: c.Worker.RelayInterval,
			RelayBatch:    c.Worker.RelayBatch,
		},
	}
}
