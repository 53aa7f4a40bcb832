// Package config loads the queue analytics configuration.
//
// Values are resolved in three layers: built-in defaults, an optional YAML
// file named by QA_CONFIG_FILE, then QA_* environment variables. The result
// is validated before it is returned.
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//	loc, _ := cfg.Analytics.Location()
//
// Common variables:
//
//	QA_POSTGRES_URL          operational database holding queues and services
//	QA_CACHE_BACKEND         memory (default) or redis
//	QA_CACHE_KEY_STRATEGY    per_shop (default) or per_range
//	QA_CACHE_TTL             cache entry lifetime, default 1h
//	QA_TIMEZONE              IANA zone for hour buckets and calendar windows
//	QA_SNAPSHOT_SCHEDULE     cron spec of the daily snapshot job
package config
