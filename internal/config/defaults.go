package config

import "time"

const (
	DefaultListen            = ":8000"
	DefaultTarget            = "http://127.0.0.1:8080"
	DefaultBodyCap           = 1000
	DefaultStoreTimeout      = 2 * time.Second
	DefaultRetention         = 24 * time.Hour
	DefaultRateLimitMax      = 100
	DefaultRateLimitWindow   = time.Minute
	DefaultClassifierWorkers = 4
)
