// Package config loads the daemon's configuration: defaults, then an
// optional YAML file, then environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds every option the core consumes (§6.3).
type Config struct {
	LibraryPaths      []string `yaml:"library_paths" env:"LIBRARY_PATHS"`
	WatchFolder       string   `yaml:"watch_folder" env:"WATCH_FOLDER"`
	WatchOutputFolder string   `yaml:"watch_output_folder" env:"WATCH_OUTPUT_FOLDER"`

	ScanIntervalHours    float64 `yaml:"scan_interval_hours" env:"SCAN_INTERVAL_HOURS"`
	WatchIntervalSeconds int     `yaml:"watch_interval_seconds" env:"WATCH_INTERVAL_SECONDS"`
	BatchSize            int     `yaml:"batch_size" env:"BATCH_SIZE"`
	MaxRequestsPerHour   int     `yaml:"max_requests_per_hour" env:"MAX_REQUESTS_PER_HOUR"`

	AutoFix               bool `yaml:"auto_fix" env:"AUTO_FIX"`
	ProtectAuthorChanges  bool `yaml:"protect_author_changes" env:"PROTECT_AUTHOR_CHANGES"`
	SeriesGrouping        bool `yaml:"series_grouping" env:"SERIES_GROUPING"`
	EbookManagement       bool `yaml:"ebook_management" env:"EBOOK_MANAGEMENT"`
	EbookLibraryMode      string `yaml:"ebook_library_mode" env:"EBOOK_LIBRARY_MODE"` // merge|separate
	EnableISBNLookup      bool `yaml:"enable_isbn_lookup" env:"ENABLE_ISBN_LOOKUP"`

	NamingFormat               string `yaml:"naming_format" env:"NAMING_FORMAT"` // author/title|author - title|author_lf/title|custom
	CustomNamingTemplate       string `yaml:"custom_naming_template" env:"CUSTOM_NAMING_TEMPLATE"`
	StandardizeAuthorInitials  bool   `yaml:"standardize_author_initials" env:"STANDARDIZE_AUTHOR_INITIALS"`
	PreferredLanguage          string `yaml:"preferred_language" env:"PREFERRED_LANGUAGE"`
	PreserveOriginalTitles     bool   `yaml:"preserve_original_titles" env:"PRESERVE_ORIGINAL_TITLES"`
	StrictLanguageMatching     bool   `yaml:"strict_language_matching" env:"STRICT_LANGUAGE_MATCHING"`
	MultilangNamingMode        string `yaml:"multilang_naming_mode" env:"MULTILANG_NAMING_MODE"` // native|preferred|tagged
	LanguageTagEnabled         bool   `yaml:"language_tag_enabled" env:"LANGUAGE_TAG_ENABLED"`
	LanguageTagFormat          string `yaml:"language_tag_format" env:"LANGUAGE_TAG_FORMAT"`     // code|full|bracket_code|bracket_full
	LanguageTagPosition        string `yaml:"language_tag_position" env:"LANGUAGE_TAG_POSITION"` // before_title|after_title|subfolder
	StripUnabridged            bool   `yaml:"strip_unabridged" env:"STRIP_UNABRIDGED"`

	TrustTheProcess        bool `yaml:"trust_the_process" env:"TRUST_THE_PROCESS"`
	EnableAPILookups       bool `yaml:"enable_api_lookups" env:"ENABLE_API_LOOKUPS"`
	EnableAIVerification   bool `yaml:"enable_ai_verification" env:"ENABLE_AI_VERIFICATION"`
	EnableAudioAnalysis    bool `yaml:"enable_audio_analysis" env:"ENABLE_AUDIO_ANALYSIS"`
	EnableContentAnalysis  bool `yaml:"enable_content_analysis" env:"ENABLE_CONTENT_ANALYSIS"`
	DeepScanMode           bool `yaml:"deep_scan_mode" env:"DEEP_SCAN_MODE"`
	MultibookAIFallback    bool `yaml:"multibook_ai_fallback" env:"MULTIBOOK_AI_FALLBACK"`

	SLTrustMode           string `yaml:"sl_trust_mode" env:"SL_TRUST_MODE"` // full|boost|legacy
	SLConfidenceThreshold int    `yaml:"sl_confidence_threshold" env:"SL_CONFIDENCE_THRESHOLD"`

	AudioProviderChain []string `yaml:"audio_provider_chain" env:"AUDIO_PROVIDER_CHAIN"`
	TextProviderChain  []string `yaml:"text_provider_chain" env:"TEXT_PROVIDER_CHAIN"`

	ProfileConfidenceThreshold int `yaml:"profile_confidence_threshold" env:"PROFILE_CONFIDENCE_THRESHOLD"`

	// use_skaldleita_for_audio is the current name of the audio-ID backend
	// toggle and use_bookdb_for_audio the older one; both keys are read. Load
	// folds them into UseBookdbForAudio, which ends up true when either key
	// is true: a false under the new name does not override a true under the
	// old name or the default.
	UseBookdbForAudio      bool `yaml:"use_bookdb_for_audio" env:"USE_BOOKDB_FOR_AUDIO"`
	UseSkaldleitaForAudio  bool `yaml:"use_skaldleita_for_audio" env:"USE_SKALDLEITA_FOR_AUDIO"`

	Logging struct {
		Level  string `yaml:"level" env:"LOG_LEVEL"`
		Format string `yaml:"format" env:"LOG_FORMAT"`
	} `yaml:"logging"`

	Database struct {
		Type string `yaml:"type" env:"DB_TYPE"`
		Path string `yaml:"path" env:"DB_PATH"`
		Host string `yaml:"host" env:"DB_HOST"`
		Port int    `yaml:"port" env:"DB_PORT"`
		User string `yaml:"user" env:"DB_USER"`
		Pass string `yaml:"password" env:"DB_PASSWORD"`
		Name string `yaml:"name" env:"DB_NAME"`
	} `yaml:"database"`

	Providers struct {
		PrimaryBaseURL  string `yaml:"primary_base_url" env:"PRIMARY_BASE_URL"`
		PrimaryHMACSalt string `yaml:"primary_hmac_salt" env:"PRIMARY_HMAC_SALT"`
		HardcoverToken  string `yaml:"hardcover_token" env:"HARDCOVER_TOKEN"`
		GoogleBooksKey  string `yaml:"googlebooks_api_key" env:"GOOGLEBOOKS_API_KEY"`
		OpenRouterKey   string `yaml:"openrouter_api_key" env:"OPENROUTER_API_KEY"`
		GeminiKey       string `yaml:"gemini_api_key" env:"GEMINI_API_KEY"`
	} `yaml:"providers"`
}

// DefaultConfig returns the built-in defaults before any file/env overrides.
func DefaultConfig() *Config {
	cfg := &Config{
		ScanIntervalHours:          6,
		WatchIntervalSeconds:       300,
		BatchSize:                  20,
		MaxRequestsPerHour:         60,
		AutoFix:                    false,
		ProtectAuthorChanges:       true,
		SeriesGrouping:             true,
		EbookManagement:           true,
		EbookLibraryMode:          "merge",
		EnableISBNLookup:          true,
		NamingFormat:              "author/title",
		PreferredLanguage:         "en",
		MultilangNamingMode:       "preferred",
		LanguageTagFormat:         "bracket_code",
		LanguageTagPosition:       "after_title",
		EnableAPILookups:          true,
		EnableAIVerification:      true,
		EnableAudioAnalysis:       false,
		EnableContentAnalysis:     false,
		SLTrustMode:               "legacy",
		SLConfidenceThreshold:     80,
		ProfileConfidenceThreshold: 85,
		AudioProviderChain:        []string{"primary_audio", "gemini"},
		TextProviderChain:         []string{"gemini", "openrouter"},
		UseBookdbForAudio:         true,
	}
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"
	cfg.Database.Type = "sqlite"
	cfg.Database.Path = "./data/library.db"
	return cfg
}

// Load loads configuration: defaults, then an optional YAML file (only
// non-zero fields override), then environment variables (highest
// priority).
func Load(configFile string) (*Config, error) {
	cfg := DefaultConfig()

	if configFile != "" {
		abs, err := filepath.Abs(configFile)
		if err == nil {
			configFile = abs
		}
		if _, err := os.Stat(configFile); err == nil {
			data, err := os.ReadFile(configFile)
			if err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			var fileCfg Config
			if err := yaml.Unmarshal(data, &fileCfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
			mergeConfig(cfg, &fileCfg)
		}
	}

	loadFromEnv(cfg)

	// Fold the new option name into the field the rest of the code reads.
	if cfg.UseSkaldleitaForAudio && !cfg.UseBookdbForAudio {
		cfg.UseBookdbForAudio = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required configuration is present and options take a
// recognized value.
func (c *Config) Validate() error {
	if len(c.LibraryPaths) == 0 {
		return &ValidationError{Field: "library_paths", Msg: "at least one library path is required"}
	}
	switch c.EbookLibraryMode {
	case "merge", "separate":
	default:
		return &ValidationError{Field: "ebook_library_mode", Msg: "must be merge or separate"}
	}
	switch c.MultilangNamingMode {
	case "native", "preferred", "tagged":
	default:
		return &ValidationError{Field: "multilang_naming_mode", Msg: "must be native, preferred, or tagged"}
	}
	switch c.SLTrustMode {
	case "full", "boost", "legacy":
	default:
		return &ValidationError{Field: "sl_trust_mode", Msg: "must be full, boost, or legacy"}
	}
	if c.MaxRequestsPerHour < 10 || c.MaxRequestsPerHour > 500 {
		c.MaxRequestsPerHour = clamp(c.MaxRequestsPerHour, 10, 500)
	}
	return nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ValidationError is a configuration validation failure.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config error: %s: %s", e.Field, e.Msg)
}

func mergeConfig(dst, src *Config) {
	if len(src.LibraryPaths) > 0 {
		dst.LibraryPaths = src.LibraryPaths
	}
	if src.WatchFolder != "" {
		dst.WatchFolder = src.WatchFolder
	}
	if src.WatchOutputFolder != "" {
		dst.WatchOutputFolder = src.WatchOutputFolder
	}
	if src.ScanIntervalHours != 0 {
		dst.ScanIntervalHours = src.ScanIntervalHours
	}
	if src.WatchIntervalSeconds != 0 {
		dst.WatchIntervalSeconds = src.WatchIntervalSeconds
	}
	if src.BatchSize != 0 {
		dst.BatchSize = src.BatchSize
	}
	if src.MaxRequestsPerHour != 0 {
		dst.MaxRequestsPerHour = src.MaxRequestsPerHour
	}
	dst.AutoFix = src.AutoFix || dst.AutoFix
	dst.ProtectAuthorChanges = src.ProtectAuthorChanges || dst.ProtectAuthorChanges
	dst.SeriesGrouping = src.SeriesGrouping || dst.SeriesGrouping
	dst.EbookManagement = src.EbookManagement || dst.EbookManagement
	if src.EbookLibraryMode != "" {
		dst.EbookLibraryMode = src.EbookLibraryMode
	}
	dst.EnableISBNLookup = src.EnableISBNLookup || dst.EnableISBNLookup
	if src.NamingFormat != "" {
		dst.NamingFormat = src.NamingFormat
	}
	if src.CustomNamingTemplate != "" {
		dst.CustomNamingTemplate = src.CustomNamingTemplate
	}
	dst.StandardizeAuthorInitials = src.StandardizeAuthorInitials || dst.StandardizeAuthorInitials
	if src.PreferredLanguage != "" {
		dst.PreferredLanguage = src.PreferredLanguage
	}
	dst.PreserveOriginalTitles = src.PreserveOriginalTitles || dst.PreserveOriginalTitles
	dst.StrictLanguageMatching = src.StrictLanguageMatching || dst.StrictLanguageMatching
	if src.MultilangNamingMode != "" {
		dst.MultilangNamingMode = src.MultilangNamingMode
	}
	dst.LanguageTagEnabled = src.LanguageTagEnabled || dst.LanguageTagEnabled
	if src.LanguageTagFormat != "" {
		dst.LanguageTagFormat = src.LanguageTagFormat
	}
	if src.LanguageTagPosition != "" {
		dst.LanguageTagPosition = src.LanguageTagPosition
	}
	dst.StripUnabridged = src.StripUnabridged || dst.StripUnabridged
	dst.TrustTheProcess = src.TrustTheProcess || dst.TrustTheProcess
	dst.EnableAPILookups = src.EnableAPILookups || dst.EnableAPILookups
	dst.EnableAIVerification = src.EnableAIVerification || dst.EnableAIVerification
	dst.EnableAudioAnalysis = src.EnableAudioAnalysis || dst.EnableAudioAnalysis
	dst.EnableContentAnalysis = src.EnableContentAnalysis || dst.EnableContentAnalysis
	dst.DeepScanMode = src.DeepScanMode || dst.DeepScanMode
	dst.MultibookAIFallback = src.MultibookAIFallback || dst.MultibookAIFallback
	if src.SLTrustMode != "" {
		dst.SLTrustMode = src.SLTrustMode
	}
	if src.SLConfidenceThreshold != 0 {
		dst.SLConfidenceThreshold = src.SLConfidenceThreshold
	}
	if len(src.AudioProviderChain) > 0 {
		dst.AudioProviderChain = src.AudioProviderChain
	}
	if len(src.TextProviderChain) > 0 {
		dst.TextProviderChain = src.TextProviderChain
	}
	if src.ProfileConfidenceThreshold != 0 {
		dst.ProfileConfidenceThreshold = src.ProfileConfidenceThreshold
	}
	dst.UseBookdbForAudio = src.UseBookdbForAudio || dst.UseBookdbForAudio
	dst.UseSkaldleitaForAudio = src.UseSkaldleitaForAudio || dst.UseSkaldleitaForAudio
	if src.Logging.Level != "" {
		dst.Logging.Level = src.Logging.Level
	}
	if src.Logging.Format != "" {
		dst.Logging.Format = src.Logging.Format
	}
	if src.Database.Type != "" {
		dst.Database.Type = src.Database.Type
	}
	if src.Database.Path != "" {
		dst.Database.Path = src.Database.Path
	}
	if src.Database.Host != "" {
		dst.Database.Host = src.Database.Host
	}
	if src.Database.Port != 0 {
		dst.Database.Port = src.Database.Port
	}
	if src.Database.User != "" {
		dst.Database.User = src.Database.User
	}
	if src.Database.Pass != "" {
		dst.Database.Pass = src.Database.Pass
	}
	if src.Database.Name != "" {
		dst.Database.Name = src.Database.Name
	}
	if src.Providers.PrimaryBaseURL != "" {
		dst.Providers.PrimaryBaseURL = src.Providers.PrimaryBaseURL
	}
	if src.Providers.PrimaryHMACSalt != "" {
		dst.Providers.PrimaryHMACSalt = src.Providers.PrimaryHMACSalt
	}
	if src.Providers.HardcoverToken != "" {
		dst.Providers.HardcoverToken = src.Providers.HardcoverToken
	}
	if src.Providers.GoogleBooksKey != "" {
		dst.Providers.GoogleBooksKey = src.Providers.GoogleBooksKey
	}
	if src.Providers.OpenRouterKey != "" {
		dst.Providers.OpenRouterKey = src.Providers.OpenRouterKey
	}
	if src.Providers.GeminiKey != "" {
		dst.Providers.GeminiKey = src.Providers.GeminiKey
	}
}

func loadFromEnv(cfg *Config) {
	if v := os.Getenv("LIBRARY_PATHS"); v != "" {
		cfg.LibraryPaths = strings.Split(v, ",")
	}
	if v := os.Getenv("WATCH_FOLDER"); v != "" {
		cfg.WatchFolder = v
	}
	if v := os.Getenv("WATCH_OUTPUT_FOLDER"); v != "" {
		cfg.WatchOutputFolder = v
	}
	if v := getFloatEnv("SCAN_INTERVAL_HOURS"); v != 0 {
		cfg.ScanIntervalHours = v
	}
	if v := getIntEnv("WATCH_INTERVAL_SECONDS"); v != 0 {
		cfg.WatchIntervalSeconds = v
	}
	if v := getIntEnv("BATCH_SIZE"); v != 0 {
		cfg.BatchSize = v
	}
	if v := getIntEnv("MAX_REQUESTS_PER_HOUR"); v != 0 {
		cfg.MaxRequestsPerHour = v
	}
	if v, set := getBoolEnv("AUTO_FIX"); set {
		cfg.AutoFix = v
	}
	if v, set := getBoolEnv("PROTECT_AUTHOR_CHANGES"); set {
		cfg.ProtectAuthorChanges = v
	}
	if v, set := getBoolEnv("SERIES_GROUPING"); set {
		cfg.SeriesGrouping = v
	}
	if v, set := getBoolEnv("EBOOK_MANAGEMENT"); set {
		cfg.EbookManagement = v
	}
	if v := os.Getenv("EBOOK_LIBRARY_MODE"); v != "" {
		cfg.EbookLibraryMode = v
	}
	if v, set := getBoolEnv("ENABLE_ISBN_LOOKUP"); set {
		cfg.EnableISBNLookup = v
	}
	if v := os.Getenv("NAMING_FORMAT"); v != "" {
		cfg.NamingFormat = v
	}
	if v := os.Getenv("CUSTOM_NAMING_TEMPLATE"); v != "" {
		cfg.CustomNamingTemplate = v
	}
	if v, set := getBoolEnv("STANDARDIZE_AUTHOR_INITIALS"); set {
		cfg.StandardizeAuthorInitials = v
	}
	if v := os.Getenv("PREFERRED_LANGUAGE"); v != "" {
		cfg.PreferredLanguage = v
	}
	if v, set := getBoolEnv("PRESERVE_ORIGINAL_TITLES"); set {
		cfg.PreserveOriginalTitles = v
	}
	if v, set := getBoolEnv("STRICT_LANGUAGE_MATCHING"); set {
		cfg.StrictLanguageMatching = v
	}
	if v := os.Getenv("MULTILANG_NAMING_MODE"); v != "" {
		cfg.MultilangNamingMode = v
	}
	if v, set := getBoolEnv("LANGUAGE_TAG_ENABLED"); set {
		cfg.LanguageTagEnabled = v
	}
	if v := os.Getenv("LANGUAGE_TAG_FORMAT"); v != "" {
		cfg.LanguageTagFormat = v
	}
	if v := os.Getenv("LANGUAGE_TAG_POSITION"); v != "" {
		cfg.LanguageTagPosition = v
	}
	if v, set := getBoolEnv("STRIP_UNABRIDGED"); set {
		cfg.StripUnabridged = v
	}
	if v, set := getBoolEnv("TRUST_THE_PROCESS"); set {
		cfg.TrustTheProcess = v
	}
	if v, set := getBoolEnv("ENABLE_API_LOOKUPS"); set {
		cfg.EnableAPILookups = v
	}
	if v, set := getBoolEnv("ENABLE_AI_VERIFICATION"); set {
		cfg.EnableAIVerification = v
	}
	if v, set := getBoolEnv("ENABLE_AUDIO_ANALYSIS"); set {
		cfg.EnableAudioAnalysis = v
	}
	if v, set := getBoolEnv("ENABLE_CONTENT_ANALYSIS"); set {
		cfg.EnableContentAnalysis = v
	}
	if v, set := getBoolEnv("DEEP_SCAN_MODE"); set {
		cfg.DeepScanMode = v
	}
	if v, set := getBoolEnv("MULTIBOOK_AI_FALLBACK"); set {
		cfg.MultibookAIFallback = v
	}
	if v := os.Getenv("SL_TRUST_MODE"); v != "" {
		cfg.SLTrustMode = v
	}
	if v := getIntEnv("SL_CONFIDENCE_THRESHOLD"); v != 0 {
		cfg.SLConfidenceThreshold = v
	}
	if v := os.Getenv("AUDIO_PROVIDER_CHAIN"); v != "" {
		cfg.AudioProviderChain = strings.Split(v, ",")
	}
	if v := os.Getenv("TEXT_PROVIDER_CHAIN"); v != "" {
		cfg.TextProviderChain = strings.Split(v, ",")
	}
	if v := getIntEnv("PROFILE_CONFIDENCE_THRESHOLD"); v != 0 {
		cfg.ProfileConfidenceThreshold = v
	}
	if v, set := getBoolEnv("USE_BOOKDB_FOR_AUDIO"); set {
		cfg.UseBookdbForAudio = v
	}
	if v, set := getBoolEnv("USE_SKALDLEITA_FOR_AUDIO"); set {
		cfg.UseSkaldleitaForAudio = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("DB_TYPE"); v != "" {
		cfg.Database.Type = v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := getIntEnv("DB_PORT"); v != 0 {
		cfg.Database.Port = v
	}
	if v := os.Getenv("DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		cfg.Database.Pass = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("PRIMARY_BASE_URL"); v != "" {
		cfg.Providers.PrimaryBaseURL = v
	}
	if v := os.Getenv("PRIMARY_HMAC_SALT"); v != "" {
		cfg.Providers.PrimaryHMACSalt = v
	}
	if v := os.Getenv("HARDCOVER_TOKEN"); v != "" {
		cfg.Providers.HardcoverToken = v
	}
	if v := os.Getenv("GOOGLEBOOKS_API_KEY"); v != "" {
		cfg.Providers.GoogleBooksKey = v
	}
	if v := os.Getenv("OPENROUTER_API_KEY"); v != "" {
		cfg.Providers.OpenRouterKey = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.Providers.GeminiKey = v
	}
}

func getIntEnv(key string) int {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return 0
}

func getFloatEnv(key string) float64 {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return 0
}

func getBoolEnv(key string) (bool, bool) {
	if v, ok := os.LookupEnv(key); ok {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b, true
		}
	}
	return false, false
}
