// Package s3 reads documents from Amazon S3 and S3-compatible services such
// as MinIO.
package s3

import (
	"fmt"
)

// Config contains configuration for the S3 source.
type Config struct {
	// Endpoint overrides the AWS endpoint, e.g. a MinIO URL. Path-style
	// addressing is used when set.
	Endpoint string `hcl:"endpoint,optional"`

	// Region is the AWS region (e.g. "us-west-2").
	Region string `hcl:"region,optional"`

	// AccessKey and SecretKey are static credentials. When empty the
	// default AWS credential chain is used.
	AccessKey string `hcl:"access_key,optional"`
	SecretKey string `hcl:"secret_key,optional"`

	// RetryMaxAttempts is the SDK's per-request attempt limit (default: 3).
	RetryMaxAttempts int `hcl:"retry_max_attempts,optional"`

	// RequestTimeoutSeconds bounds each HTTP request (default: 60).
	RequestTimeoutSeconds int `hcl:"request_timeout_seconds,optional"`

	// InsecureSkipVerify skips TLS verification. For testing only.
	InsecureSkipVerify bool `hcl:"insecure_skip_verify,optional"`
}

// Validate validates the S3 configuration.
func (c *Config) Validate() error {
	if c.Region == "" {
		return fmt.Errorf("region is required")
	}
	if (c.AccessKey == "") != (c.SecretKey == "") {
		return fmt.Errorf("access_key and secret_key must be set together")
	}
	if c.RetryMaxAttempts < 0 {
		return fmt.Errorf("retry_max_attempts must not be negative")
	}
	if c.RequestTimeoutSeconds < 0 {
		return fmt.Errorf("request_timeout_seconds must not be negative")
	}
	return nil
}

// SetDefaults sets default values for optional configuration fields.
func (c *Config) SetDefaults() {
	if c.RetryMaxAttempts == 0 {
		c.RetryMaxAttempts = 3
	}
	if c.RequestTimeoutSeconds == 0 {
		c.RequestTimeoutSeconds = 60
	}
}
