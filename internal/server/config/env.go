package config

import "os"

// parseEnv overlays secrets and connection strings from environment
// variables. Only values actually set in the environment are applied, so
// defaults and JSON values survive an empty environment. Pair with
// godotenv.Load in main for .env development setups.
func parseEnv(config *Config) {
	setIfPresent := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}

	setIfPresent("DATABASE_DSN", &config.DatabaseDSN)
	setIfPresent("AMQP_URL", &config.AMQPURL)
	setIfPresent("REDIS_ADDR", &config.RedisAddr)
	setIfPresent("REDIS_PASSWORD", &config.RedisPassword)
	setIfPresent("MASTER_SECRET", &config.MasterSecret)
	setIfPresent("S3_ROOT_USER", &config.S3RootUser)
	setIfPresent("S3_ROOT_PASSWORD", &config.S3RootPassword)
	setIfPresent("S3_BUCKET", &config.S3Bucket)
	setIfPresent("S3_REGION", &config.S3Region)
	setIfPresent("S3_BASE_ENDPOINT", &config.S3BaseEndpoint)

	for provider, envPrefix := range map[string]string{
		"mailchimp":  "MAILCHIMP",
		"convertkit": "CONVERTKIT",
		"mailerlite": "MAILERLITE",
	} {
		ep := config.OAuth[provider]
		changed := false
		if v, ok := os.LookupEnv(envPrefix + "_CLIENT_ID"); ok {
			ep.ClientID = v
			changed = true
		}
		if v, ok := os.LookupEnv(envPrefix + "_CLIENT_SECRET"); ok {
			ep.ClientSecret = v
			changed = true
		}
		if v, ok := os.LookupEnv(envPrefix + "_TOKEN_URL"); ok {
			ep.TokenURL = v
			changed = true
		}
		if changed {
			if config.OAuth == nil {
				config.OAuth = map[string]OAuthEndpoint{}
			}
			config.OAuth[provider] = ep
		}
	}
}
