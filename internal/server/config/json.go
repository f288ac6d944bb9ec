package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/listkeeper/internal/flagx"
	"github.com/dmitrijs2005/listkeeper/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON
// unmarshalling. It uses timex.Duration for interval fields, which allows
// parsing both string values such as "2s" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON
// configuration files. After unmarshalling, its fields are copied into the
// runtime Config struct which uses time.Duration.
type JsonConfig struct {
	DatabaseDSN     string                   `json:"database_dsn"`
	AMQPURL         string                   `json:"amqp_url"`
	RedisAddr       string                   `json:"redis_addr"`
	RedisPassword   string                   `json:"redis_password"`
	RedisDB         int                      `json:"redis_db"`
	MasterSecret    string                   `json:"master_secret"`
	WorkerCount     int                      `json:"worker_count"`
	MaxSyncAttempts int                      `json:"max_sync_attempts"`
	RetryBaseDelay  timex.Duration           `json:"retry_base_delay"`
	S3RootUser      string                   `json:"s3_root_user"`
	S3RootPassword  string                   `json:"s3_root_password"`
	S3Bucket        string                   `json:"s3_bucket"`
	S3Region        string                   `json:"s3_region"`
	S3BaseEndpoint  string                   `json:"s3_base_endpoint"`
	OAuth           map[string]OAuthEndpoint `json:"oauth"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The lookup order for the JSON file path is:
//
//	The -c or -config command-line flags.
//	If it is not set, no JSON file is loaded.
//
// If the file cannot be read or contains invalid JSON, the function panics.
// The caller is expected to merge these values with defaults, environment
// variables and command-line flags as part of the full configuration
// process.
func parseJson(config *Config) {

	// try flags
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	config.DatabaseDSN = c.DatabaseDSN
	config.AMQPURL = c.AMQPURL
	config.RedisAddr = c.RedisAddr
	config.RedisPassword = c.RedisPassword
	config.RedisDB = c.RedisDB
	config.MasterSecret = c.MasterSecret
	config.WorkerCount = c.WorkerCount
	config.MaxSyncAttempts = c.MaxSyncAttempts
	config.RetryBaseDelay = time.Duration(c.RetryBaseDelay.Duration)
	config.S3RootUser = c.S3RootUser
	config.S3RootPassword = c.S3RootPassword
	config.S3Bucket = c.S3Bucket
	config.S3Region = c.S3Region
	config.S3BaseEndpoint = c.S3BaseEndpoint
	if c.OAuth != nil {
		config.OAuth = c.OAuth
	}
}
