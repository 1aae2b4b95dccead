package config

import "duskftpd/internal/acl"

// SecureIP is one secure_ip record: restricts logins to clients matching
// a set of address fields, optionally requiring ident and/or hostname
// resolution, gated by an ACL of which principals it applies to.
type SecureIP struct {
	Fields          []string
	AllowHostnames  bool
	NeedIdent       bool
	ACL             acl.Expr
}

// AllowFXP is one allow_fxp record: whether FXP (server-to-server)
// transfers are permitted for uploads/downloads, and whether to log them.
type AllowFXP struct {
	Down bool
	Up   bool
	Log  bool
	ACL  acl.Expr
}

// SpeedLimit is one speed_limit/maximum_speed/minimum_speed record: caps
// applied to transfers under Path, gated by ACL.
type SpeedLimit struct {
	Path     string
	UpBps    int64
	DownBps  int64
	ACL      acl.Expr
}

// CreditCheck is one creditcheck record: the ratio applied to uploads
// under Path for principals matching ACL.
type CreditCheck struct {
	Path  string
	Ratio int
	ACL   acl.Expr
}

// CreditLoss is one creditloss record: a multiplier applied to nuked or
// deleted files' credit reversal, optionally restricted to leechers.
type CreditLoss struct {
	Multiplier float64
	Leechers   bool
	Path       string
	ACL        acl.Expr
}

// PathFilter is one path-filter record: upload filename patterns a
// group is restricted to, with a message file shown on rejection.
type PathFilter struct {
	Group       string
	MessageFile string
	Patterns    []string
}

// SiteCmdMethod is the method a site_cmd record dispatches through.
type SiteCmdMethod int

const (
	SiteCmdExec SiteCmdMethod = iota
	SiteCmdText
	SiteCmdIs
)

// SiteCmdSpec is one site_cmd record: a custom SITE subcommand backed
// by an external script, a static text file, or an internal handler.
type SiteCmdSpec struct {
	Command string
	Method  SiteCmdMethod
	Path    string
	Args    []string
}

// CScriptHook is one cscript record: an external script invoked on a
// named lifecycle event (e.g. "POST_STOR", "PRE_DELE").
type CScriptHook struct {
	Trigger string
	Path    string
}

// IdleTimeout bounds the control-connection idle timer negotiable via SITE IDLE.
type IdleTimeout struct {
	Min     int
	Max     int
	Default int
}

// PasvAddr is one pasv_addr record: the address advertised in PASV/EPSV
// replies, optionally marked as the primary choice for a network class.
type PasvAddr struct {
	Address string
	Primary bool
}

// PortRange is an inclusive [Low, High] port range, used for
// pasv_ports and active_ports.
type PortRange struct {
	Low  int
	High int
}

// Contains reports whether port falls within the range.
func (r PortRange) Contains(port int) bool {
	return port >= r.Low && port <= r.High
}

// SimXfers caps simultaneous transfers per user, split by direction.
type SimXfers struct {
	Up   int
	Down int
}

// Section is a named virtual-path grouping with an optional ratio
// override and separate-credit flag. A path belongs to at most one
// section; unmatched paths fall into the implicit "default" section.
type Section struct {
	Name            string
	Paths           []string
	Ratio           int
	SeparateCredits bool
}
