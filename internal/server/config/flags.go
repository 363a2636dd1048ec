package config

import (
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dmitrijs2005/vaultsync/internal/flagx"
)

// newFlagSet binds the server flags to c. Durations other than -t take Go
// duration syntax ("90s", "12h").
//
//	-a   HTTP bind address          -ga  gRPC health bind address
//	-d   PostgreSQL DSN             -s   token signing secret
//	-t   session validity, minutes  -l   log level
//	-u   S3 root user               -p   S3 root password
//	-b   S3 bucket                  -g   S3 region
//	-e   S3 base endpoint           -gci chunk GC interval
//	-gcg chunk GC grace             -ssi session sweep interval
//	-r   registration open          -hci health check interval
func newFlagSet(c *Config, sessionMinutes *int) *flag.FlagSet {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&c.EndpointAddrHTTP, "a", c.EndpointAddrHTTP, "HTTP API bind address")
	fs.StringVar(&c.EndpointAddrGRPC, "ga", c.EndpointAddrGRPC, "gRPC health bind address")
	fs.StringVar(&c.DatabaseDSN, "d", c.DatabaseDSN, "PostgreSQL DSN")
	fs.StringVar(&c.SecretKey, "s", c.SecretKey, "token signing secret")
	fs.IntVar(sessionMinutes, "t", *sessionMinutes, "session validity in minutes")
	fs.StringVar(&c.S3RootUser, "u", c.S3RootUser, "S3 root user")
	fs.StringVar(&c.S3RootPassword, "p", c.S3RootPassword, "S3 root password")
	fs.StringVar(&c.S3Bucket, "b", c.S3Bucket, "S3 bucket")
	fs.StringVar(&c.S3Region, "g", c.S3Region, "S3 region")
	fs.StringVar(&c.S3BaseEndpoint, "e", c.S3BaseEndpoint, "S3 base endpoint")
	fs.DurationVar(&c.ChunkGCInterval, "gci", c.ChunkGCInterval, "chunk GC interval")
	fs.DurationVar(&c.ChunkGCGrace, "gcg", c.ChunkGCGrace, "chunk GC grace period")
	fs.DurationVar(&c.SessionSweepInterval, "ssi", c.SessionSweepInterval, "expired session sweep interval")
	fs.BoolVar(&c.RegistrationEnabled, "r", c.RegistrationEnabled, "allow registration until an admin saves settings")
	fs.DurationVar(&c.HealthCheckInterval, "hci", c.HealthCheckInterval, "database and bucket health check interval")
	fs.StringVar(&c.LogLevel, "l", c.LogLevel, "log level")
	return fs
}

// parseFlags overlays the recognised flags in args onto c. Flags it does not
// know, such as -c or -env-file, are left to their own loaders.
func parseFlags(c *Config, args []string) error {
	minutes := int(c.SessionValidityDuration / time.Minute)
	fs := newFlagSet(c, &minutes)

	var known []string
	fs.VisitAll(func(f *flag.Flag) {
		known = append(known, "-"+f.Name, "--"+f.Name)
	})

	if err := fs.Parse(flagx.FilterArgs(args, known)); err != nil {
		return fmt.Errorf("flags: %s", strings.TrimSpace(err.Error()))
	}
	c.SessionValidityDuration = time.Duration(minutes) * time.Minute
	return nil
}
