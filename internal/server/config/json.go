package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/passvault/internal/flagx"
	"github.com/dmitrijs2005/passvault/internal/timex"
)

// JsonConfig is the on-disk shape of the JSON config file. Durations accept
// "10m" style strings or integer nanoseconds.
type JsonConfig struct {
	EndpointAddrHTTP       string         `json:"endpoint_addr_http"`
	DatabaseDSN            string         `json:"database_dsn"`
	ClientAddress          string         `json:"client_address"`
	InternalAPIToken       string         `json:"internal_api_token"`
	VaultSecret            string         `json:"vault_secret"`
	SessionBackend         string         `json:"session_backend"`
	SessionCookieName      string         `json:"session_cookie_name"`
	SessionCookieSecure    *bool          `json:"session_cookie_secure"`
	SessionIdleTimeout     timex.Duration `json:"session_idle_timeout"`
	SessionAbsoluteTimeout timex.Duration `json:"session_absolute_timeout"`
	OAuthNonceTTL          timex.Duration `json:"oauth_nonce_ttl"`
	GoogleClientID         string         `json:"google_client_id"`
	GoogleClientSecret     string         `json:"google_client_secret"`
	GoogleRedirectURL      string         `json:"google_redirect_url"`
	S3RootUser             string         `json:"s3_root_user"`
	S3RootPassword         string         `json:"s3_root_password"`
	S3Bucket               string         `json:"s3_bucket"`
	S3Region               string         `json:"s3_region"`
	S3BaseEndpoint         string         `json:"s3_base_endpoint"`
	ExportLinkTTL          timex.Duration `json:"export_link_ttl"`
}

// parseJson overlays the JSON file named by -c/-config onto config. Keys that
// are absent from the file keep their current value. An unreadable file or
// invalid JSON panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.ClientAddress, c.ClientAddress)
	setString(&config.InternalAPIToken, c.InternalAPIToken)
	setString(&config.VaultSecret, c.VaultSecret)
	setString(&config.SessionBackend, c.SessionBackend)
	setString(&config.SessionCookieName, c.SessionCookieName)
	if c.SessionCookieSecure != nil {
		config.SessionCookieSecure = *c.SessionCookieSecure
	}
	setDuration(&config.SessionIdleTimeout, c.SessionIdleTimeout)
	setDuration(&config.SessionAbsoluteTimeout, c.SessionAbsoluteTimeout)
	setDuration(&config.OAuthNonceTTL, c.OAuthNonceTTL)
	setString(&config.GoogleClientID, c.GoogleClientID)
	setString(&config.GoogleClientSecret, c.GoogleClientSecret)
	setString(&config.GoogleRedirectURL, c.GoogleRedirectURL)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setDuration(&config.ExportLinkTTL, c.ExportLinkTTL)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}
