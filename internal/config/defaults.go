package config

const (
	defaultConfigPath         = "~/.config/wikiseed/config.toml"
	defaultDataDir            = "~/.local/share/wikiseed"
	defaultLogDir             = "~/.local/share/wikiseed/logs"
	defaultStorageDir         = "~/.local/share/wikiseed/storage"
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultLogRetentionDays   = 30
	defaultPollInterval       = 30
	defaultPollJitter         = 0.2
	defaultErrorRetryInterval = 10
	defaultStaleMultiplier    = 6
	defaultBatchSize          = 1
	defaultExpectedRuntime    = 900
	defaultMaxRetries         = 5
	defaultCleanupTrigger     = 85.0
	defaultPauseTrigger       = 90.0
	defaultSafetyMarginGiB    = 10.0
	defaultAdmissionCheck     = 30
	defaultCleanupMaxDeletes  = 500
	defaultNotifyTimeout      = 10
)

// Job kind names understood by the engine.
const (
	KindDiscover   = "discover"
	KindFetch      = "fetch"
	KindArchive    = "archive"
	KindBundle     = "bundle"
	KindDistribute = "distribute"
	KindCleanup    = "cleanup"
)

// KnownKinds lists every job kind in pipeline order.
var KnownKinds = []string{KindDiscover, KindFetch, KindArchive, KindBundle, KindDistribute, KindCleanup}

// defaultBackoff mirrors the downloader schedule: 5m, 15m, 1h, 4h.
var defaultBackoff = []int{300, 900, 3600, 14400}

var defaultFatalExitCodes = []int{65, 66}

var defaultWikis = []string{
	"enwiki", "dewiki", "frwiki", "eswiki", "itwiki", "jawiki", "ruwiki", "ptwiki", "zhwiki", "plwiki",
}

func defaultKinds() map[string]KindPolicy {
	return map[string]KindPolicy{
		KindDiscover:   {ExpectedRuntime: 600, MaxRetries: 3, ExclusiveTarget: true},
		KindFetch:      {ExpectedRuntime: 3600, MaxRetries: 5, ExclusiveTarget: true},
		KindArchive:    {ExpectedRuntime: 7200, MaxRetries: 5, ExclusiveTarget: true},
		KindBundle:     {ExpectedRuntime: 1800, MaxRetries: 3, ExclusiveTarget: true},
		KindDistribute: {ExpectedRuntime: 1800, MaxRetries: 5, ExclusiveTarget: true},
		KindCleanup:    {ExpectedRuntime: 600, MaxRetries: 3, ExclusiveTarget: true, PollInterval: 60},
	}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	cfg := Config{
		Paths: Paths{
			DataDir:    defaultDataDir,
			LogDir:     defaultLogDir,
			StorageDir: defaultStorageDir,
		},
		Workers: Workers{
			PollInterval:       defaultPollInterval,
			PollJitter:         defaultPollJitter,
			ErrorRetryInterval: defaultErrorRetryInterval,
			StaleMultiplier:    defaultStaleMultiplier,
			Kinds:              defaultKinds(),
		},
		Admission: Admission{
			Enabled:               true,
			CleanupTriggerPercent: defaultCleanupTrigger,
			PauseTriggerPercent:   defaultPauseTrigger,
			SafetyMarginGiB:       defaultSafetyMarginGiB,
			CheckInterval:         defaultAdmissionCheck,
			GatedKinds:            []string{KindFetch},
		},
		Cleanup: Cleanup{
			MaxDeletions: defaultCleanupMaxDeletes,
		},
		Discovery: Discovery{
			CycleDays: []int{1, 20},
			Wikis:     append([]string(nil), defaultWikis...),
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Quarantine:     true,
			Admission:      true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
	for name, policy := range cfg.Workers.Kinds {
		cfg.Workers.Kinds[name] = cfg.fillKind(policy)
	}
	return cfg
}
