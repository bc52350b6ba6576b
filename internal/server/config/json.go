package config

import (
	"encoding/json"
	"os"

	"pantry/internal/flagx"
)

// JsonConfig is the JSON-file shape of Config. It exists only as an
// unmarshalling DTO; values are copied into the runtime Config.
type JsonConfig struct {
	EndpointAddr      string `json:"endpoint_addr"`
	IdentityField     string `json:"identity_field"`
	SecretKey         string `json:"secret_key"`
	SeedFile          string `json:"seed_file"`
	ProtectedSeedFile string `json:"protected_seed_file"`
	RulesFile         string `json:"rules_file"`
	JSONStoreDir      string `json:"jsonstore_dir"`
}

// parseJson loads configuration values from the JSON file named by the
// -c or -config command-line flags. Without the flag nothing is loaded;
// an unreadable or invalid file panics, as startup cannot proceed with
// half-applied configuration.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	config.EndpointAddr = c.EndpointAddr
	config.IdentityField = c.IdentityField
	config.SecretKey = c.SecretKey
	config.SeedFile = c.SeedFile
	config.ProtectedSeedFile = c.ProtectedSeedFile
	config.RulesFile = c.RulesFile
	config.JSONStoreDir = c.JSONStoreDir
}
