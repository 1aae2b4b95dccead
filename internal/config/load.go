package config

import (
	"context"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"duskftpd/internal/acl"
	"duskftpd/internal/logging"
)

var validate = validator.New()

// Load reads configPath (YAML) through viper, decodes the static fields
// via mapstructure with an ACL-expression decode hook, then walks the
// remaining recognized keyword families by hand — the option set here
// is a flat keyword grammar (original_source/src/cfg/config.cpp), not a
// struct-shaped document, so the dynamic families (per-command ACL
// overrides, path+ACL lists, structured records, section blocks) are
// extracted from viper's raw settings map rather than decoded directly.
func Load(configPath string) (*Snapshot, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("DUSKFTPD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	applyDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, newConfigError("read config file %s: %v", configPath, err)
	}

	var snap Snapshot
	hook := mapstructure.ComposeDecodeHookFunc(aclDecodeHook(), enumDecodeHook())
	if err := v.Unmarshal(&snap, viper.DecodeHook(hook)); err != nil {
		return nil, newConfigError("decode config: %v", err)
	}

	raw := v.AllSettings()
	resolveAlias(&snap, raw)
	if err := decodeCommandACL(&snap, raw); err != nil {
		return nil, err
	}
	if err := decodePathRules(&snap, raw); err != nil {
		return nil, err
	}
	if err := decodeRecords(&snap, raw); err != nil {
		return nil, err
	}
	if err := decodeSections(&snap, raw); err != nil {
		return nil, err
	}

	if err := validate.Struct(&snap); err != nil {
		return nil, newConfigError("validation failed: %v", err)
	}
	snap.Version = 1
	return &snap, nil
}

// Reload re-reads configPath and returns a new Snapshot with Version
// incremented from prev. prev is left untouched — any session still
// holding it keeps running against the old values until its next
// command boundary picks up the new pointer.
func Reload(configPath string, prev *Snapshot) (*Snapshot, error) {
	next, err := Load(configPath)
	if err != nil {
		return nil, err
	}
	if prev != nil {
		next.Version = prev.Version + 1
	}
	return next, nil
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("timezone", "UTC")
	v.SetDefault("max_sitecmd_lines", 200)
	v.SetDefault("maximum_ratio", 0)
	v.SetDefault("dir_size_depth", 1)
	v.SetDefault("epsv_fxp", "allow")
	v.SetDefault("week_start", "sun")
	v.SetDefault("nukedir_style", "[NUKED]-%s")
}

func newConfigError(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}

// aclDecodeHook converts a string ACL expression into a compiled acl.Expr
// wherever the destination field type is acl.Expr.
func aclDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(acl.Expr{}) {
			return data, nil
		}
		s, ok := data.(string)
		if !ok {
			return data, nil
		}
		return acl.Compile(s), nil
	}
}

// enumDecodeHook converts the epsv_fxp and week_start string values into
// their typed enum forms.
func enumDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		s, ok := data.(string)
		if !ok {
			return data, nil
		}
		switch to {
		case reflect.TypeOf(EPSVFxpMode(0)):
			switch strings.ToLower(s) {
			case "deny":
				return EPSVFxpDeny, nil
			case "force":
				return EPSVFxpForce, nil
			default:
				return EPSVFxpAllow, nil
			}
		case reflect.TypeOf(WeekStartDay(0)):
			if strings.ToLower(s) == "mon" {
				return WeekStartMonday, nil
			}
			return WeekStartSunday, nil
		default:
			return data, nil
		}
	}
}

// resolveAlias implements the alais/alias dual spelling: both decode to
// Snapshot.Alias; if only the misspelled "alais" key is present, it is
// honored but logged as deprecated.
func resolveAlias(snap *Snapshot, raw map[string]interface{}) {
	if snap.Alias != "" {
		return
	}
	if v, ok := raw["alais"]; ok {
		if s, ok := v.(string); ok {
			snap.Alias = s
			logging.Warn(context.Background(), "config key 'alais' is a deprecated spelling of 'alias'")
		}
	}
}

func decodeCommandACL(snap *Snapshot, raw map[string]interface{}) error {
	snap.CommandACL = map[string]acl.Expr{}
	snap.SiteCommandACL = map[string]acl.Expr{}
	for key, v := range raw {
		s, ok := v.(string)
		if !ok {
			continue
		}
		switch {
		case strings.HasPrefix(key, "custom-"):
			snap.SiteCommandACL["site-"+strings.TrimPrefix(key, "custom-")] = acl.Compile(s)
		case strings.HasPrefix(key, "-"):
			snap.CommandACL[strings.TrimPrefix(key, "-")] = acl.Compile(s)
		}
	}
	return nil
}

var pathACLKeywords = []string{
	"delete", "deleteown", "overwrite", "resume", "rename", "renameown",
	"filemove", "makedir", "upload", "download", "nuke", "hideinwho",
	"freefile", "nostats", "hideowner", "show_diz", "pre_check",
	"pre_dir_check", "post_check", "privpath", "indexed",
}

func decodePathRules(snap *Snapshot, raw map[string]interface{}) error {
	snap.PathRules = map[string][]PathRule{}
	for _, keyword := range pathACLKeywords {
		v, ok := raw[keyword]
		if !ok {
			continue
		}
		list, ok := v.([]interface{})
		if !ok {
			continue
		}
		var rules []PathRule
		for _, item := range list {
			m, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			rules = append(rules, PathRule{
				Glob: stringField(m, "path"),
				ACL:  acl.Compile(stringField(m, "acl")),
			})
		}
		snap.PathRules[keyword] = rules
	}
	return nil
}

func stringField(m map[string]interface{}, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func boolField(m map[string]interface{}, key string) bool {
	if v, ok := m[key]; ok {
		switch t := v.(type) {
		case bool:
			return t
		case string:
			b, _ := strconv.ParseBool(t)
			return b
		}
	}
	return false
}

func intField(m map[string]interface{}, key string) int {
	if v, ok := m[key]; ok {
		switch t := v.(type) {
		case int:
			return t
		case int64:
			return int(t)
		case float64:
			return int(t)
		case string:
			n, _ := strconv.Atoi(t)
			return n
		}
	}
	return 0
}

func float64Field(m map[string]interface{}, key string) float64 {
	if v, ok := m[key]; ok {
		switch t := v.(type) {
		case float64:
			return t
		case int:
			return float64(t)
		case string:
			f, _ := strconv.ParseFloat(t, 64)
			return f
		}
	}
	return 0
}

func stringSliceField(m map[string]interface{}, key string) []string {
	v, ok := m[key]
	if !ok {
		return nil
	}
	list, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func mapSliceField(raw map[string]interface{}, key string) []map[string]interface{} {
	v, ok := raw[key]
	if !ok {
		return nil
	}
	list, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]map[string]interface{}, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]interface{}); ok {
			out = append(out, m)
		}
	}
	return out
}
