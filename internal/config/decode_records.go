package config

import "duskftpd/internal/acl"

// decodeRecords populates the structured record families (secure_ip,
// allow_fxp, speed_limit/maximum_speed/minimum_speed, creditcheck,
// creditloss, path-filter, site_cmd, cscript, pasv_addr, pasv_ports,
// active_ports, sim_xfers, idle_timeout) from viper's raw settings map.
func decodeRecords(snap *Snapshot, raw map[string]interface{}) error {
	for _, m := range mapSliceField(raw, "secure_ip") {
		snap.SecureIP = append(snap.SecureIP, SecureIP{
			Fields:         stringSliceField(m, "fields"),
			AllowHostnames: boolField(m, "allow_hostnames"),
			NeedIdent:      boolField(m, "need_ident"),
			ACL:            acl.Compile(stringField(m, "acl")),
		})
	}

	for _, m := range mapSliceField(raw, "allow_fxp") {
		snap.AllowFXP = append(snap.AllowFXP, AllowFXP{
			Down: boolField(m, "down"),
			Up:   boolField(m, "up"),
			Log:  boolField(m, "log"),
			ACL:  acl.Compile(stringField(m, "acl")),
		})
	}

	// speed_limit, maximum_speed, and minimum_speed share a record shape
	// and are merged in that order (all speed_limit records, then
	// maximum_speed, then minimum_speed); SpeedCaps returns the first
	// record whose path and ACL match.
	for _, key := range []string{"speed_limit", "maximum_speed", "minimum_speed"} {
		for _, m := range mapSliceField(raw, key) {
			snap.SpeedLimit = append(snap.SpeedLimit, SpeedLimit{
				Path:    stringField(m, "path"),
				UpBps:   int64(intField(m, "up")),
				DownBps: int64(intField(m, "down")),
				ACL:     acl.Compile(stringField(m, "acl")),
			})
		}
	}

	for _, m := range mapSliceField(raw, "creditcheck") {
		snap.CreditCheck = append(snap.CreditCheck, CreditCheck{
			Path:  stringField(m, "path"),
			Ratio: intField(m, "ratio"),
			ACL:   acl.Compile(stringField(m, "acl")),
		})
	}

	for _, m := range mapSliceField(raw, "creditloss") {
		snap.CreditLoss = append(snap.CreditLoss, CreditLoss{
			Multiplier: float64Field(m, "multiplier"),
			Leechers:   boolField(m, "leechers"),
			Path:       stringField(m, "path"),
			ACL:        acl.Compile(stringField(m, "acl")),
		})
	}

	for _, m := range mapSliceField(raw, "path-filter") {
		snap.PathFilter = append(snap.PathFilter, PathFilter{
			Group:       stringField(m, "group"),
			MessageFile: stringField(m, "message_file"),
			Patterns:    stringSliceField(m, "patterns"),
		})
	}

	for _, m := range mapSliceField(raw, "site_cmd") {
		snap.SiteCmd = append(snap.SiteCmd, SiteCmdSpec{
			Command: stringField(m, "command"),
			Method:  siteCmdMethodFromString(stringField(m, "method")),
			Path:    stringField(m, "path"),
			Args:    stringSliceField(m, "args"),
		})
	}

	for _, m := range mapSliceField(raw, "cscript") {
		snap.CScript = append(snap.CScript, CScriptHook{
			Trigger: stringField(m, "trigger"),
			Path:    stringField(m, "path"),
		})
	}

	for _, m := range mapSliceField(raw, "pasv_addr") {
		snap.PasvAddr = append(snap.PasvAddr, PasvAddr{
			Address: stringField(m, "address"),
			Primary: boolField(m, "primary"),
		})
	}

	snap.PasvPorts = decodePortRanges(raw, "pasv_ports")
	snap.ActivePorts = decodePortRanges(raw, "active_ports")

	if m, ok := raw["sim_xfers"].(map[string]interface{}); ok {
		snap.SimXfers = SimXfers{Up: intField(m, "up"), Down: intField(m, "down")}
	}

	if m, ok := raw["idle_timeout"].(map[string]interface{}); ok {
		snap.IdleTimeout = IdleTimeout{
			Min:     intField(m, "min"),
			Max:     intField(m, "max"),
			Default: intField(m, "default"),
		}
	}

	return nil
}

func siteCmdMethodFromString(s string) SiteCmdMethod {
	switch s {
	case "TEXT", "text":
		return SiteCmdText
	case "IS", "is":
		return SiteCmdIs
	default:
		return SiteCmdExec
	}
}

func decodePortRanges(raw map[string]interface{}, key string) []PortRange {
	list := stringSliceField(raw, key)
	out := make([]PortRange, 0, len(list))
	for _, s := range list {
		var lo, hi int
		n, err := parsePortRange(s, &lo, &hi)
		if err != nil || n != 2 {
			continue
		}
		out = append(out, PortRange{Low: lo, High: hi})
	}
	return out
}

func decodeSections(snap *Snapshot, raw map[string]interface{}) error {
	for _, m := range mapSliceField(raw, "section") {
		snap.Sections = append(snap.Sections, Section{
			Name:            stringField(m, "name"),
			Paths:           stringSliceField(m, "paths"),
			Ratio:           intField(m, "ratio"),
			SeparateCredits: boolField(m, "separate_credits"),
		})
	}
	return nil
}
