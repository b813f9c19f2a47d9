package config

const (
	defaultGraphDir             = "~/graph"
	defaultDataDir              = "~/.local/share/reckon"
	defaultLogDir               = "~/.local/share/reckon/logs"
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultFuzzyThreshold       = 0.85
	defaultAutoMerge            = 0.95
	defaultAutoUpdate           = 0.90
	defaultAutoCreate           = 0.50
	defaultOracleBaseURL        = "https://openrouter.ai/api/v1/chat/completions"
	defaultOracleModel          = "google/gemini-3-flash-preview"
	defaultOracleReferer        = "https://github.com/reckon-kb/reckon"
	defaultOracleTitle          = "Reckon Decision Oracle"
	defaultOracleTimeoutSeconds = 60
	defaultTier                 = "standard"
	defaultLowConfidenceTier    = "prospects"
)

func defaultStrategies() []string {
	return []string{"alias", "fuzzy_name", "email_domain"}
}

func defaultGenericDomains() []string {
	return []string{
		"gmail.com",
		"yahoo.com",
		"hotmail.com",
		"outlook.com",
		"aol.com",
		"icloud.com",
	}
}

func defaultEntityTypes() []string {
	return []string{"customers", "suppliers", "partners", "people", "projects"}
}

func defaultTiers() []string {
	return []string{"strategic", "standard", "prospects"}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			GraphDir: defaultGraphDir,
			DataDir:  defaultDataDir,
			LogDir:   defaultLogDir,
		},
		Graph: Graph{
			EntityTypes:       defaultEntityTypes(),
			Tiers:             defaultTiers(),
			DefaultTier:       defaultTier,
			LowConfidenceTier: defaultLowConfidenceTier,
		},
		Matching: Matching{
			Strategies:     defaultStrategies(),
			FuzzyThreshold: defaultFuzzyThreshold,
			GenericDomains: defaultGenericDomains(),
		},
		Confidence: Confidence{
			AutoMerge:  defaultAutoMerge,
			AutoUpdate: defaultAutoUpdate,
			AutoCreate: defaultAutoCreate,
			OracleMin:  defaultAutoCreate,
			OracleMax:  defaultAutoMerge,
		},
		Oracle: Oracle{
			Enabled:        true,
			BaseURL:        defaultOracleBaseURL,
			Model:          defaultOracleModel,
			Referer:        defaultOracleReferer,
			Title:          defaultOracleTitle,
			TimeoutSeconds: defaultOracleTimeoutSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
