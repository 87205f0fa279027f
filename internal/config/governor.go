package config

// GovernorConfig configures the runtime AI-agent governance gateway: policy
// evaluation, verification, fee-gating, escalation, and the event bus. Kept
// distinct from GovernanceConfig, which configures the unrelated committee
// voting subsystem.
type GovernorConfig struct {
	PolicyCacheTTLSec int `yaml:"policy_cache_ttl_sec"`
	RegexCacheSize    int `yaml:"regex_cache_size"`

	FeeGatingEnabled bool `yaml:"fee_gating_enabled"`

	Store GovernorStoreConfig `yaml:"store"`

	Escalation GovernorEscalationConfig `yaml:"escalation"`

	EventBus GovernorEventBusConfig `yaml:"event_bus"`
}

// GovernorStoreConfig selects and configures the persistence backend for
// governance state (policies, sessions, wallets, receipts, spans).
type GovernorStoreConfig struct {
	Backend     string `yaml:"backend"` // "memory" or "supabase"
	SupabaseURL string `yaml:"supabase_url"`
	SupabaseKey string `yaml:"supabase_key"`
}

// GovernorEscalationConfig holds the global defaults applied when no
// agent-scoped escalation override exists.
type GovernorEscalationConfig struct {
	AutoKSEnabled        bool `yaml:"auto_ks_enabled"`
	AutoKSBlockThreshold int  `yaml:"auto_ks_block_threshold"`
	AutoKSRiskThreshold  int  `yaml:"auto_ks_risk_threshold"`
	AutoKSWindowSize     int  `yaml:"auto_ks_window_size"`
	ReviewRiskThreshold  int  `yaml:"review_risk_threshold"`
	DispatcherWorkers    int  `yaml:"dispatcher_workers"`
}

// GovernorEventBusConfig tunes the in-process CloudEvents bus.
type GovernorEventBusConfig struct {
	SubscriberBufferSize int `yaml:"subscriber_buffer_size"`
	HeartbeatIntervalSec int `yaml:"heartbeat_interval_sec"`
}

func (c *Config) applyGovernorEnvOverrides() {
	c.Governor.Store.Backend = getEnv("GOVERNOR_STORE_BACKEND", c.Governor.Store.Backend)
	c.Governor.Store.SupabaseURL = getEnv("GOVERNOR_SUPABASE_URL", c.Governor.Store.SupabaseURL)
	c.Governor.Store.SupabaseKey = getEnv("GOVERNOR_SUPABASE_KEY", c.Governor.Store.SupabaseKey)

	c.Governor.FeeGatingEnabled = getEnvBool("GOVERNOR_FEE_GATING_ENABLED", c.Governor.FeeGatingEnabled)
	if v := getEnvInt("GOVERNOR_POLICY_CACHE_TTL_SEC", 0); v > 0 {
		c.Governor.PolicyCacheTTLSec = v
	}
	if v := getEnvInt("GOVERNOR_REGEX_CACHE_SIZE", 0); v > 0 {
		c.Governor.RegexCacheSize = v
	}

	c.Governor.Escalation.AutoKSEnabled = getEnvBool("GOVERNOR_AUTO_KS_ENABLED", c.Governor.Escalation.AutoKSEnabled)
	if v := getEnvInt("GOVERNOR_AUTO_KS_BLOCK_THRESHOLD", 0); v > 0 {
		c.Governor.Escalation.AutoKSBlockThreshold = v
	}
	if v := getEnvInt("GOVERNOR_AUTO_KS_RISK_THRESHOLD", 0); v > 0 {
		c.Governor.Escalation.AutoKSRiskThreshold = v
	}
	if v := getEnvInt("GOVERNOR_AUTO_KS_WINDOW_SIZE", 0); v > 0 {
		c.Governor.Escalation.AutoKSWindowSize = v
	}
	if v := getEnvInt("GOVERNOR_REVIEW_RISK_THRESHOLD", 0); v > 0 {
		c.Governor.Escalation.ReviewRiskThreshold = v
	}
	if v := getEnvInt("GOVERNOR_DISPATCHER_WORKERS", 0); v > 0 {
		c.Governor.Escalation.DispatcherWorkers = v
	}

	if v := getEnvInt("GOVERNOR_EVENT_BUS_BUFFER_SIZE", 0); v > 0 {
		c.Governor.EventBus.SubscriberBufferSize = v
	}
	if v := getEnvInt("GOVERNOR_EVENT_BUS_HEARTBEAT_SEC", 0); v > 0 {
		c.Governor.EventBus.HeartbeatIntervalSec = v
	}
}

func (c *Config) applyGovernorDefaults() {
	if c.Governor.Store.Backend == "" {
		c.Governor.Store.Backend = "memory"
	}
	if c.Governor.PolicyCacheTTLSec == 0 {
		c.Governor.PolicyCacheTTLSec = 60
	}
	if c.Governor.RegexCacheSize == 0 {
		c.Governor.RegexCacheSize = 256
	}
	if c.Governor.Escalation.AutoKSBlockThreshold == 0 {
		c.Governor.Escalation.AutoKSBlockThreshold = 3
	}
	if c.Governor.Escalation.AutoKSRiskThreshold == 0 {
		c.Governor.Escalation.AutoKSRiskThreshold = 82
	}
	if c.Governor.Escalation.AutoKSWindowSize == 0 {
		c.Governor.Escalation.AutoKSWindowSize = 10
	}
	if c.Governor.Escalation.ReviewRiskThreshold == 0 {
		c.Governor.Escalation.ReviewRiskThreshold = 70
	}
	if c.Governor.Escalation.DispatcherWorkers == 0 {
		c.Governor.Escalation.DispatcherWorkers = 4
	}
	if c.Governor.EventBus.SubscriberBufferSize == 0 {
		c.Governor.EventBus.SubscriberBufferSize = 256
	}
	if c.Governor.EventBus.HeartbeatIntervalSec == 0 {
		c.Governor.EventBus.HeartbeatIntervalSec = 15
	}
}
