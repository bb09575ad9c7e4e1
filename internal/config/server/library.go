package server

// LibraryServerConfig controls scanning, cover generation and live watching.
type LibraryServerConfig struct {
	SettingsFile string `mapstructure:"settings_file" yaml:"settings_file"`
	CoversDir    string `mapstructure:"covers_dir"    yaml:"covers_dir"`
	SettleDelay  string `mapstructure:"settle_delay"  yaml:"settle_delay"`
	Workers      int    `mapstructure:"workers"       yaml:"workers"`
	InitialScan  bool   `mapstructure:"initial_scan"  yaml:"initial_scan"`
	Watch        bool   `mapstructure:"watch"         yaml:"watch"`
}

type HTTPServerConfig struct {
	Enabled   bool   `mapstructure:"enabled"    yaml:"enabled"`
	Address   string `mapstructure:"address"    yaml:"address"`
	StaticDir string `mapstructure:"static_dir" yaml:"static_dir"`
}
