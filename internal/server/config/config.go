// Package config handles configuration for the server, including
// defaults, JSON overlay, and command-line flags.
package config

// Config holds runtime settings for the storefront server.
//
// Fields:
//   - EndpointAddr: bind address for the HTTP endpoint.
//   - IdentityField: user property used as the login name.
//   - SecretKey: HMAC secret for password digests and session tokens.
//     Do not use the test default in prod.
//   - SeedFile / ProtectedSeedFile: JSON seed data for the public and
//     protected stores.
//   - RulesFile: YAML access-rule definitions.
//   - JSONStoreDir: directory of *.json files backing the jsonstore
//     service.
type Config struct {
	EndpointAddr      string
	IdentityField     string
	SecretKey         string
	SeedFile          string
	ProtectedSeedFile string
	RulesFile         string
	JSONStoreDir      string
}

// LoadDefaults populates Config with development defaults matching the
// seeded demo accounts. NOTE: the secret is insecure by definition and
// should be overridden outside local use.
func (c *Config) LoadDefaults() {
	c.EndpointAddr = ":3030"
	c.IdentityField = "email"
	c.SecretKey = "This is not a production server"
	c.SeedFile = ""
	c.ProtectedSeedFile = ""
	c.RulesFile = ""
	c.JSONStoreDir = ""
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file and finally from command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
