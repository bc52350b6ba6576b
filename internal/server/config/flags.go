package config

import (
	"flag"
	"os"

	"pantry/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":3030")
//	-i string   identity property name (e.g., "email")
//	-s string   HMAC secret key
//	-d string   public seed file (JSON)
//	-p string   protected seed file (JSON)
//	-r string   access-rules file (YAML)
//	-j string   jsonstore seed directory
//
// The function first filters os.Args to only the flags it recognizes
// using flagx.FilterArgs, avoiding collisions with other components.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-i", "-s", "-d", "-p", "-r", "-j"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddr, "a", config.EndpointAddr, "address and port to run server")
	fs.StringVar(&config.IdentityField, "i", config.IdentityField, "identity property name")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.StringVar(&config.SeedFile, "d", config.SeedFile, "public seed file")
	fs.StringVar(&config.ProtectedSeedFile, "p", config.ProtectedSeedFile, "protected seed file")
	fs.StringVar(&config.RulesFile, "r", config.RulesFile, "access rules file")
	fs.StringVar(&config.JSONStoreDir, "j", config.JSONStoreDir, "jsonstore seed directory")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
