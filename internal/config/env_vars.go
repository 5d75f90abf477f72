package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	portEnvVar        = "PORT"
	appNameVar        = "APP_NAME"
	issuerEnvVar      = "OIDC_ISSUER"
	clientsFileEnvVar = "CLIENTS_FILE"
	keysFileEnvVar    = "KEYS_FILE"
	logLevelEnvVar    = "LOG_LEVEL"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetPort() string {
	port := GetEnv(portEnvVar, "3000")
	if !strings.HasPrefix(port, ":") {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "Onche Connect")
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

// GetIssuer returns the public issuer URL of the provider (e.g., "https://connect.example.com").
// Every endpoint advertised in the discovery document is built from it.
func (e EnvVars) GetIssuer() string {
	return strings.TrimSuffix(GetEnv(issuerEnvVar, "http://localhost"+e.GetPort()), "/")
}

func (EnvVars) GetClientsFile() string {
	return GetEnv(clientsFileEnvVar, "./clients.json")
}

func (EnvVars) GetKeysFile() string {
	return GetEnv(keysFileEnvVar, "./jwks.json")
}

func (EnvVars) GetLogLevel() string {
	return GetEnv(logLevelEnvVar, "info")
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetEnvInt reads an integer variable, falling back to defaultValue when unset or malformed
func GetEnvInt(envVar string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(envVar))
	if err != nil {
		return defaultValue
	}
	return value
}

// GetEnvDuration reads a Go duration string (e.g. "10s"), falling back to defaultValue
func GetEnvDuration(envVar string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(os.Getenv(envVar))
	if err != nil {
		return defaultValue
	}
	return value
}
