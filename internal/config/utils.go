package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// lookupEnv treats blank values as unset, so an empty line in .env such as
// `REMOTE_API_KEY=` falls back to the default instead of overriding it.
func lookupEnv(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

// parseEnv returns defaultVal when key is unset or fails to parse.
func parseEnv[T any](key string, defaultVal T, parse func(string) (T, error)) T {
	value, ok := lookupEnv(key)
	if !ok {
		return defaultVal
	}
	v, err := parse(value)
	if err != nil {
		return defaultVal
	}
	return v
}

func getEnv(key, defaultVal string) string {
	if value, ok := lookupEnv(key); ok {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	return parseEnv(key, defaultVal, strconv.Atoi)
}

func getEnvAsBool(key string, defaultVal bool) bool {
	return parseEnv(key, defaultVal, strconv.ParseBool)
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	return parseEnv(key, defaultVal, time.ParseDuration)
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	return parseEnv(key, defaultVal, func(v string) (float64, error) { return strconv.ParseFloat(v, 64) })
}

// getEnvAsStringSlice splits a comma separated list such as KAFKA_BROKERS.
func getEnvAsStringSlice(key string, defaults []string) []string {
	value, ok := lookupEnv(key)
	if !ok {
		return defaults
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaults
	}
	return out
}
