package config

import "time"

// UpstreamConfig describes the bot account and the community site it logs into
type UpstreamConfig interface {
	GetUpstreamBaseURL() string
	GetUpstreamUsername() string
	GetUpstreamPassword() string
	GetUpstreamLayout() string
	GetUpstreamRequestTimeout() time.Duration
	GetUpstreamMaxAttempts() int
	GetUpstreamCandidatePages() int
}

type Upstream struct{}

var _ UpstreamConfig = Upstream{}

func (Upstream) GetUpstreamBaseURL() string {
	return GetEnv("ONCHE_BASE_URL", "https://onche.org")
}

func (Upstream) GetUpstreamUsername() string {
	return GetEnv("ONCHE_USERNAME", "")
}

func (Upstream) GetUpstreamPassword() string {
	return GetEnv("ONCHE_PASSWORD", "")
}

func (Upstream) GetUpstreamLayout() string {
	return GetEnv("ONCHE_LAYOUT", "cover-v2")
}

func (Upstream) GetUpstreamRequestTimeout() time.Duration {
	return GetEnvDuration("ONCHE_TIMEOUT", 10*time.Second)
}

func (Upstream) GetUpstreamMaxAttempts() int {
	return GetEnvInt("ONCHE_MAX_ATTEMPTS", 3)
}

func (Upstream) GetUpstreamCandidatePages() int {
	return GetEnvInt("ONCHE_CANDIDATE_PAGES", 3)
}
