package config

// Config is the top-level tracker configuration, corresponding to
// .doctrace.yml.
type Config struct {
	Port                 int    `yaml:"port" koanf:"port"`
	DataDir              string `yaml:"data_dir" koanf:"data_dir"`
	SessionWindowMinutes int    `yaml:"session_window_minutes" koanf:"session_window_minutes"`
	BeaconSecret         string `yaml:"beacon_secret" koanf:"beacon_secret"`
	LogLevel             string `yaml:"log_level" koanf:"log_level"`
	AllowAllOrigins      bool   `yaml:"allow_all_origins" koanf:"allow_all_origins"`

	GeoIP GeoIPConfig `yaml:"geoip" koanf:"geoip"`
}

// GeoIPConfig points at local MaxMind database files. Any path may be
// empty; missing databases degrade the corresponding fingerprint
// fields to unknown.
type GeoIPConfig struct {
	CityDB string `yaml:"city_db" koanf:"city_db"`
	ASNDB  string `yaml:"asn_db" koanf:"asn_db"`
	AnonDB string `yaml:"anon_db" koanf:"anon_db"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Port:                 8080,
		DataDir:              "data",
		SessionWindowMinutes: 30,
		LogLevel:             "info",
	}
}
