package config

import "time"

// Default returns a Config with the defaults named in spec §6:
// http_listen 127.0.0.1:3000, worker_count around 60.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address: "127.0.0.1:3000",
		},
		Pool: PoolConfig{
			Socket:         "/tmp/dispatchd.sock",
			Interpreter:    "php",
			Script:         "worker.php",
			Size:           60,
			RequestTimeout: Duration(30 * time.Second),
		},
		Logging: LogConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Admin: AdminConfig{
			Enabled:      false,
			Path:         "/admin/stats",
			PushInterval: Duration(2 * time.Second),
		},
	}
}
