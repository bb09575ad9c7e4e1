package server

import "github.com/spf13/viper"

func GetServerDefault() BaseServerConfig {
	return BaseServerConfig{
		ShutdownTimeout: "10s",

		Log: LogServerConfig{
			Level:      "INFO",
			TimeFormat: "2006-01-02 15:04:05",
			File:       "",
			NoColor:    false,
			JSON:       false,
			NoTerminal: false,
			Rotation: LogServerRotationConfig{
				MaxSize:    128,
				MaxBackups: 5,
				MaxAge:     16,
				Compress:   false,
			},
		},

		Metadata: MetadataServerConfig{
			Type: "sqlite",
			SQLite: MetadataSQLiteConfig{
				Path:     "./data/comics.db",
				LogLevel: "silent",
			},
		},

		Library: LibraryServerConfig{
			SettingsFile: "./data/settings.json",
			CoversDir:    "./web/covers",
			SettleDelay:  "1s",
			Workers:      2,
			InitialScan:  true,
			Watch:        true,
		},

		HTTP: HTTPServerConfig{
			Enabled:   true,
			Address:   "127.0.0.1:5000",
			StaticDir: "./web",
		},
	}
}

func setDefaults() {
	defaults := GetServerDefault()

	viper.SetDefault("shutdown_timeout", defaults.ShutdownTimeout)

	viper.SetDefault("log.level", defaults.Log.Level)
	viper.SetDefault("log.time_format", defaults.Log.TimeFormat)
	viper.SetDefault("log.file", defaults.Log.File)
	viper.SetDefault("log.no_color", defaults.Log.NoColor)
	viper.SetDefault("log.json", defaults.Log.JSON)
	viper.SetDefault("log.no_terminal", defaults.Log.NoTerminal)
	viper.SetDefault("log.rotation.max_size", defaults.Log.Rotation.MaxSize)
	viper.SetDefault("log.rotation.max_backups", defaults.Log.Rotation.MaxBackups)
	viper.SetDefault("log.rotation.max_age", defaults.Log.Rotation.MaxAge)
	viper.SetDefault("log.rotation.compress", defaults.Log.Rotation.Compress)

	viper.SetDefault("metadata.type", defaults.Metadata.Type)
	viper.SetDefault("metadata.sqlite.path", defaults.Metadata.SQLite.Path)
	viper.SetDefault("metadata.sqlite.log_level", defaults.Metadata.SQLite.LogLevel)

	viper.SetDefault("library.settings_file", defaults.Library.SettingsFile)
	viper.SetDefault("library.covers_dir", defaults.Library.CoversDir)
	viper.SetDefault("library.settle_delay", defaults.Library.SettleDelay)
	viper.SetDefault("library.workers", defaults.Library.Workers)
	viper.SetDefault("library.initial_scan", defaults.Library.InitialScan)
	viper.SetDefault("library.watch", defaults.Library.Watch)

	viper.SetDefault("http.enabled", defaults.HTTP.Enabled)
	viper.SetDefault("http.address", defaults.HTTP.Address)
	viper.SetDefault("http.static_dir", defaults.HTTP.StaticDir)
}
