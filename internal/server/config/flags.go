package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/filegate/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":5000")
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret key
//	-t int      access token validity, minutes
//	-o int      OTP validity, minutes
//	-m string   OTP channel: sms or email
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-r string   Redis address for the OTP resend limiter
//	-test-mode  return OTPs in responses instead of dispatching them
//
// Duration flags are integers in minutes.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-s", "-t", "-o", "-m", "-u", "-p", "-b", "-g", "-e", "-r", "-test-mode"}, "-test-mode")

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddr, "a", config.EndpointAddr, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	accessTokenValidityDuration := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access_token_validity_duration (in minutes)")
	otpValidityDuration := fs.Int("o", int(config.OTPValidityDuration.Minutes()), "otp_validity_duration (in minutes)")

	fs.StringVar(&config.OTPChannel, "m", config.OTPChannel, "OTP channel (sms|email)")
	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.RedisAddr, "r", config.RedisAddr, "Redis address")
	fs.BoolVar(&config.TestMode, "test-mode", config.TestMode, "return OTP codes in responses (development only)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	// only flags given on the command line override env and JSON durations
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "t":
			config.AccessTokenValidityDuration = time.Duration(*accessTokenValidityDuration) * time.Minute
		case "o":
			config.OTPValidityDuration = time.Duration(*otpValidityDuration) * time.Minute
		}
	})
}
