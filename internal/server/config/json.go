package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/filegate/internal/flagx"
	"github.com/dmitrijs2005/filegate/internal/timex"
)

// JsonConfig is the on-disk shape of the configuration file. Durations use
// timex.Duration so both "10m" and integer nanoseconds are accepted.
type JsonConfig struct {
	EndpointAddr                string         `json:"endpoint_addr"`
	DatabaseDSN                 string         `json:"database_dsn"`
	SecretKey                   string         `json:"secret_key"`
	AccessTokenValidityDuration timex.Duration `json:"access_token_validity_duration"`

	OTPValidityDuration   timex.Duration `json:"otp_validity_duration"`
	OTPLength             int            `json:"otp_length"`
	OTPChannel            string         `json:"otp_channel"`
	OTPResendLimitPerHour int            `json:"otp_resend_limit_per_hour"`
	DispatchTimeout       timex.Duration `json:"dispatch_timeout"`
	TestMode              bool           `json:"test_mode"`

	PresignedURLExpiry timex.Duration `json:"presigned_url_expiry"`
	S3RootUser         string         `json:"s3_root_user"`
	S3RootPassword     string         `json:"s3_root_password"`
	S3Bucket           string         `json:"s3_bucket"`
	S3Region           string         `json:"s3_region"`
	S3BaseEndpoint     string         `json:"s3_base_endpoint"`

	SNSRegion string `json:"sns_region"`

	SMTPHost       string `json:"smtp_host"`
	SMTPPort       int    `json:"smtp_port"`
	SMTPUser       string `json:"smtp_user"`
	SMTPPassword   string `json:"smtp_password"`
	SMTPFrom       string `json:"smtp_from"`
	SMTPEncryption string `json:"smtp_encryption"`

	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"redis_password"`
	RedisDB       int    `json:"redis_db"`

	RateLimitPerMinute int    `json:"rate_limit_per_minute"`
	LogBackend         string `json:"log_backend"`
}

// parseJson overlays values from the file named by -c/-config onto config.
// Keys missing from the file keep their current value. An unreadable file or
// invalid JSON panics.
func parseJson(config *Config) {

	jsonConfigFile := flagx.ConfigPath()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := toJson(config)
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	fromJson(c, config)
}

func toJson(c *Config) *JsonConfig {
	return &JsonConfig{
		EndpointAddr:                c.EndpointAddr,
		DatabaseDSN:                 c.DatabaseDSN,
		SecretKey:                   c.SecretKey,
		AccessTokenValidityDuration: timex.Duration{Duration: c.AccessTokenValidityDuration},
		OTPValidityDuration:         timex.Duration{Duration: c.OTPValidityDuration},
		OTPLength:                   c.OTPLength,
		OTPChannel:                  c.OTPChannel,
		OTPResendLimitPerHour:       c.OTPResendLimitPerHour,
		DispatchTimeout:             timex.Duration{Duration: c.DispatchTimeout},
		TestMode:                    c.TestMode,
		PresignedURLExpiry:          timex.Duration{Duration: c.PresignedURLExpiry},
		S3RootUser:                  c.S3RootUser,
		S3RootPassword:              c.S3RootPassword,
		S3Bucket:                    c.S3Bucket,
		S3Region:                    c.S3Region,
		S3BaseEndpoint:              c.S3BaseEndpoint,
		SNSRegion:                   c.SNSRegion,
		SMTPHost:                    c.SMTPHost,
		SMTPPort:                    c.SMTPPort,
		SMTPUser:                    c.SMTPUser,
		SMTPPassword:                c.SMTPPassword,
		SMTPFrom:                    c.SMTPFrom,
		SMTPEncryption:              c.SMTPEncryption,
		RedisAddr:                   c.RedisAddr,
		RedisPassword:               c.RedisPassword,
		RedisDB:                     c.RedisDB,
		RateLimitPerMinute:          c.RateLimitPerMinute,
		LogBackend:                  c.LogBackend,
	}
}

func fromJson(j *JsonConfig, c *Config) {
	c.EndpointAddr = j.EndpointAddr
	c.DatabaseDSN = j.DatabaseDSN
	c.SecretKey = j.SecretKey
	c.AccessTokenValidityDuration = j.AccessTokenValidityDuration.Duration
	c.OTPValidityDuration = j.OTPValidityDuration.Duration
	c.OTPLength = j.OTPLength
	c.OTPChannel = j.OTPChannel
	c.OTPResendLimitPerHour = j.OTPResendLimitPerHour
	c.DispatchTimeout = j.DispatchTimeout.Duration
	c.TestMode = j.TestMode
	c.PresignedURLExpiry = j.PresignedURLExpiry.Duration
	c.S3RootUser = j.S3RootUser
	c.S3RootPassword = j.S3RootPassword
	c.S3Bucket = j.S3Bucket
	c.S3Region = j.S3Region
	c.S3BaseEndpoint = j.S3BaseEndpoint
	c.SNSRegion = j.SNSRegion
	c.SMTPHost = j.SMTPHost
	c.SMTPPort = j.SMTPPort
	c.SMTPUser = j.SMTPUser
	c.SMTPPassword = j.SMTPPassword
	c.SMTPFrom = j.SMTPFrom
	c.SMTPEncryption = j.SMTPEncryption
	c.RedisAddr = j.RedisAddr
	c.RedisPassword = j.RedisPassword
	c.RedisDB = j.RedisDB
	c.RateLimitPerMinute = j.RateLimitPerMinute
	c.LogBackend = j.LogBackend
}
