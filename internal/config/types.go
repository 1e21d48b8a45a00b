package config

// Repository configuration keys. All of them live in the dzonegit section
// of the git configuration and are optional.
const (
	KeyIgnoreWhitespaceErrors = "dzonegit.ignorewhitespaceerrors"
	KeyNoSerialUpdate         = "dzonegit.noserialupdate"
	KeyNoMissingDotCheck      = "dzonegit.nomissingdotcheck"
	KeyAllowFancyNames        = "dzonegit.allowfancynames"
	KeyBranch                 = "dzonegit.branch"
	KeyCompiler               = "dzonegit.compiler"

	KeyCheckoutPath     = "dzonegit.checkoutpath"
	KeyConfFilePath     = "dzonegit.conffilepath"
	KeyConfFileTemplate = "dzonegit.conffiletemplate"
	KeyZoneBlacklist    = "dzonegit.zoneblacklist"
	KeyZoneWhitelist    = "dzonegit.zonewhitelist"
	KeyReconfigCmd      = "dzonegit.reconfigcmd"
	KeyZoneReloadCmd    = "dzonegit.zonereloadcmd"
	KeyJournal          = "dzonegit.journal"

	KeyLogLevel  = "dzonegit.loglevel"
	KeyLogFormat = "dzonegit.logformat"
	KeyLogFile   = "dzonegit.logfile"
)

// MaxIndex is the highest numeric suffix read for indexed keys such as
// dzonegit.reconfigcmd1 .. dzonegit.reconfigcmd9.
const MaxIndex = 9

// DefaultBranch is the only ref the server-side hooks accept by default.
const DefaultBranch = "refs/heads/master"

// ValidationConfig controls the commit and push checks.
type ValidationConfig struct {
	IgnoreWhitespaceErrors bool `json:"ignore_whitespace_errors"`
	NoSerialUpdate         bool `json:"no_serial_update"`
	NoMissingDotCheck      bool `json:"no_missing_dot_check"`
	AllowFancyNames        bool `json:"allow_fancy_names"`
	// Branch is the full ref name accepted by update and pre-receive.
	Branch string `json:"branch"`
	// Compiler is the named-compilezone path, or "builtin".
	Compiler string `json:"compiler"`
}

// TemplateConfig pairs a template definition with the file it renders to.
type TemplateConfig struct {
	Template string `json:"template"`
	Output   string `json:"output"`
}

// DeployConfig controls what post-receive does with an accepted push.
type DeployConfig struct {
	CheckoutPath       string           `json:"checkout_path"`
	Templates          []TemplateConfig `json:"templates,omitempty"`
	ZoneBlacklist      string           `json:"zone_blacklist"`
	ZoneWhitelist      string           `json:"zone_whitelist"`
	ReconfigCommands   []string         `json:"reconfig_commands,omitempty"`
	ZoneReloadCommands []string         `json:"zone_reload_commands,omitempty"`
	// Journal is the path of the deployment journal database; empty
	// disables it.
	Journal string `json:"journal"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level            string            `json:"level"`
	Structured       bool              `json:"structured"`
	StructuredFormat string            `json:"structured_format"`
	IncludePID       bool              `json:"include_pid"`
	ExtraFields      map[string]string `json:"extra_fields,omitempty"`
	// File additionally writes logs to a rotated file.
	File string `json:"file"`
}

// Config is the root configuration structure.
type Config struct {
	Validation ValidationConfig `json:"validation"`
	Deploy     DeployConfig     `json:"deploy"`
	Logging    LoggingConfig    `json:"logging"`
}
