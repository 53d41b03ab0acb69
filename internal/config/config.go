package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Addr        string
	DBPath      string
	TokenSecret string
	TokenTTL    time.Duration
	// ChallengeTTL is the freshness window for challenge solutions. The
	// server keeps no per-challenge state, so this window is the only
	// replay defense: shorter means less replay exposure, longer tolerates
	// more client clock skew.
	ChallengeTTL time.Duration
	// PrivateKey is the server's serialized key (ssasy key URI). Empty
	// means generate one and persist it next to the database.
	PrivateKey string
	RateLimits RateLimits
}

type RateLimits struct {
	ChallengePerMinute int
	ThoughtPerMinute   int
}

func Load() Config {
	addr := envString("SSASY_DEMO_ADDR", "")
	if addr == "" {
		if port := os.Getenv("PORT"); port != "" {
			addr = ":" + port
		} else {
			addr = ":3000"
		}
	}
	return Config{
		Addr:         addr,
		DBPath:       envString("SSASY_DEMO_DB", "ssasy-demo.db"),
		TokenSecret:  envString("SSASY_DEMO_TOKEN_SECRET", "dev-token-secret"),
		TokenTTL:     envDuration("SSASY_DEMO_TOKEN_TTL", time.Hour),
		ChallengeTTL: envDuration("SSASY_DEMO_CHALLENGE_TTL", 5*time.Minute),
		PrivateKey:   envString("SSASY_DEMO_PRIVATE_KEY", ""),
		RateLimits: RateLimits{
			ChallengePerMinute: envInt("SSASY_DEMO_RL_CHALLENGE_PER_MIN", 30),
			ThoughtPerMinute:   envInt("SSASY_DEMO_RL_THOUGHT_PER_MIN", 30),
		},
	}
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
