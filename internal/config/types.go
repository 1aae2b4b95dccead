// Package config loads and serves the daemon's configuration snapshot:
// an immutable, versioned bundle of recognized options the engine
// queries through typed accessors, never by re-parsing strings itself.
// Loading follows marmos91-dittofs's pkg/config pattern (viper +
// mapstructure decode hooks + go-playground/validator + yaml), adapted
// from DittoFS's struct-per-concern layout to the flat, keyword-driven
// option set original_source/src/cfg/config.cpp recognizes.
package config

import (
	"duskftpd/internal/acl"
)

// Snapshot is the full parsed configuration, immutable once built.
// Version increments on every successful reload; in-flight sessions
// keep the *Snapshot pointer they started with until their next
// command boundary.
type Snapshot struct {
	Version int

	// Required settings; Load fails if any are zero-valued.
	SitePath string `mapstructure:"sitepath" validate:"required"`
	DataPath string `mapstructure:"datapath" validate:"required"`
	Port     int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	ValidIP  string `mapstructure:"valid_ip" validate:"required"`

	// Scalars
	Timezone       string `mapstructure:"timezone"`
	FreeSpace      int64  `mapstructure:"free_space"`
	TotalUsers     int    `mapstructure:"total_users"`
	EmptyNuke      int64  `mapstructure:"empty_nuke"`
	MultiplierMax  int    `mapstructure:"multiplier_max"`
	MaxSiteCmdLines int   `mapstructure:"max_sitecmd_lines"`
	MaximumRatio   int    `mapstructure:"maximum_ratio"`
	DirSizeDepth   int    `mapstructure:"dir_size_depth"`
	DLIncomplete   bool   `mapstructure:"dl_incomplete"`
	BouncerOnly    bool   `mapstructure:"bouncer_only"`
	EPSVFxp        EPSVFxpMode `mapstructure:"epsv_fxp"`
	WeekStart      WeekStartDay `mapstructure:"week_start"`

	// Paths
	Banner         string `mapstructure:"banner"`
	PIDFile        string `mapstructure:"pidfile"`
	TLSCertificate string `mapstructure:"tls_certificate"`

	// ACL-valued settings
	HideUser   acl.Expr `mapstructure:"hideuser"`
	TLSControl acl.Expr `mapstructure:"tls_control"`
	TLSListing acl.Expr `mapstructure:"tls_listing"`
	TLSData    acl.Expr `mapstructure:"tls_data"`
	TLSFxp     acl.Expr `mapstructure:"tls_fxp"`

	// Per-command and per-site-command ACL overrides: "-<cmd>" is keyed
	// by the bare command name and "custom-<cmd>" by "site-<cmd>"
	// (see decodeCommandACL in load.go).
	CommandACL     map[string]acl.Expr `mapstructure:"-"`
	SiteCommandACL map[string]acl.Expr `mapstructure:"-"`

	// Path+ACL lists: keyword -> ordered list of (glob, acl.Expr) rules,
	// evaluated first-match-wins by FirstMatching.
	PathRules map[string][]PathRule `mapstructure:"-"`

	// Structured records
	SecureIP     []SecureIP     `mapstructure:"-"`
	AllowFXP     []AllowFXP     `mapstructure:"-"`
	SpeedLimit   []SpeedLimit   `mapstructure:"-"`
	CreditCheck  []CreditCheck  `mapstructure:"-"`
	CreditLoss   []CreditLoss   `mapstructure:"-"`
	PathFilter   []PathFilter   `mapstructure:"-"`
	StatSection  []string       `mapstructure:"stat_section"`
	SiteCmd      []SiteCmdSpec  `mapstructure:"-"`
	CScript      []CScriptHook  `mapstructure:"-"`
	Requests     string         `mapstructure:"requests"`
	IdleTimeout  IdleTimeout    `mapstructure:"-"`
	NukedirStyle string         `mapstructure:"nukedir_style"`
	MsgPath      string         `mapstructure:"msg_path"`
	PasvAddr     []PasvAddr     `mapstructure:"-"`
	PasvPorts    []PortRange    `mapstructure:"-"`
	ActivePorts  []PortRange    `mapstructure:"-"`
	SimXfers     SimXfers       `mapstructure:"-"`

	Sections []Section `mapstructure:"-"`

	// Alias is the canonical spelling for the alais/alias option pair;
	// resolveAlias in load.go fills it from "alais" when "alias" is unset.
	Alias string `mapstructure:"alias"`
}

// PathRule is one entry of a path+ACL list keyword: a glob matched
// against the virtual path, paired with the ACL expression that gates
// it when the glob matches.
type PathRule struct {
	Glob string
	ACL  acl.Expr
}

// EPSVFxpMode is the epsv_fxp tri-state.
type EPSVFxpMode int

const (
	EPSVFxpAllow EPSVFxpMode = iota
	EPSVFxpDeny
	EPSVFxpForce
)

// WeekStartDay is the week_start enum.
type WeekStartDay int

const (
	WeekStartSunday WeekStartDay = iota
	WeekStartMonday
)
