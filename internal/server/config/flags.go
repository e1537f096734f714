package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/passvault/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
//	-a string   HTTP bind address (e.g. ":8080")
//	-d string   PostgreSQL DSN
//	-k string   vault secret used to seal stored passwords
//	-i string   internal API bearer token
//	-o string   browser client origin
//	-m string   session backend: postgres | memory
//	-t int      session idle timeout, minutes
//	-T int      session absolute timeout, minutes
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint
//
// Timeout flags only replace the configured value when given explicitly.
// Google OAuth credentials are read from the environment or the JSON file.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{
		"-a", "-d", "-k", "-i", "-o", "-m", "-t", "-T", "-u", "-p", "-b", "-g", "-e",
	})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.VaultSecret, "k", config.VaultSecret, "vault secret")
	fs.StringVar(&config.InternalAPIToken, "i", config.InternalAPIToken, "internal API token")
	fs.StringVar(&config.ClientAddress, "o", config.ClientAddress, "client address")
	fs.StringVar(&config.SessionBackend, "m", config.SessionBackend, "session backend (postgres|memory)")

	idle := fs.Int("t", int(config.SessionIdleTimeout.Minutes()), "session idle timeout (in minutes)")
	absolute := fs.Int("T", int(config.SessionAbsoluteTimeout.Minutes()), "session absolute timeout (in minutes)")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "t":
			config.SessionIdleTimeout = time.Duration(*idle) * time.Minute
		case "T":
			config.SessionAbsoluteTimeout = time.Duration(*absolute) * time.Minute
		}
	})
}
