package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/listkeeper/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-d string   PostgreSQL DSN
//	-q string   RabbitMQ URL
//	-r string   redis address (e.g., "localhost:6379")
//	-m string   vault master secret
//	-w int      sync worker count
//	-n int      max sync attempts per trigger
//	-t int      retry base delay, seconds
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//
// Notes:
//   - The function first filters os.Args to only the flags it recognizes using
//     flagx.FilterArgs, avoiding collisions with other components.
//   - The delay flag is accepted as an integer in seconds and then converted
//     to a time.Duration value.
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-d", "-q", "-r", "-m", "-w", "-n", "-t", "-u", "-p", "-b", "-g", "-e"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.AMQPURL, "q", config.AMQPURL, "AMQP URL")
	fs.StringVar(&config.RedisAddr, "r", config.RedisAddr, "redis address")
	fs.StringVar(&config.MasterSecret, "m", config.MasterSecret, "vault master secret")

	fs.IntVar(&config.WorkerCount, "w", config.WorkerCount, "sync worker count")
	fs.IntVar(&config.MaxSyncAttempts, "n", config.MaxSyncAttempts, "max sync attempts")

	retryBaseDelay := fs.Int("t", int(config.RetryBaseDelay.Seconds()), "retry base delay (in seconds)")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 root bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 root region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.RetryBaseDelay = time.Duration(*retryBaseDelay) * time.Second
}
