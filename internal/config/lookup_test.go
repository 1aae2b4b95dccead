package config

import (
	"testing"

	"duskftpd/internal/acl"
)

func TestSectionForFirstMatchWins(t *testing.T) {
	snap := &Snapshot{
		Sections: []Section{
			{Name: "games", Paths: []string{"/games/*"}, Ratio: 2},
			{Name: "apps", Paths: []string{"/apps/*"}, Ratio: 3},
		},
	}
	if got := snap.SectionFor("/games/foo.zip"); got != "games" {
		t.Fatalf("got %q", got)
	}
	if got := snap.SectionFor("/unmatched/file"); got != "default" {
		t.Fatalf("got %q", got)
	}
}

func TestFirstMatchingEvaluatesInOrder(t *testing.T) {
	rules := []PathRule{
		{Glob: "/private/*", ACL: acl.Compile("!*")},
		{Glob: "/", ACL: acl.Compile("*")},
	}
	if FirstMatching(rules, "/private/secret.txt", acl.Principal{Username: "bob"}) {
		t.Fatalf("expected private glob to deny")
	}
	if !FirstMatching(rules, "/public/readme.txt", acl.Principal{Username: "bob"}) {
		t.Fatalf("expected fallback glob to allow")
	}
}

func TestAllowedFallsBackToPermitWhenUnconfigured(t *testing.T) {
	snap := &Snapshot{CommandACL: map[string]acl.Expr{}, SiteCommandACL: map[string]acl.Expr{}}
	if !snap.Allowed("NOOP", acl.Principal{Username: "anyone"}) {
		t.Fatalf("expected unconfigured command to default to allowed")
	}
}

func TestAllowedHonorsConfiguredACL(t *testing.T) {
	snap := &Snapshot{
		CommandACL:     map[string]acl.Expr{"DELE": acl.Compile("=siteops")},
		SiteCommandACL: map[string]acl.Expr{},
	}
	admin := acl.Principal{Username: "root", SecondaryGroups: []string{"siteops"}}
	user := acl.Principal{Username: "leech"}
	if !snap.Allowed("DELE", admin) {
		t.Fatalf("expected siteops member to be allowed DELE")
	}
	if snap.Allowed("DELE", user) {
		t.Fatalf("expected non-member to be denied DELE")
	}
}

func TestCreditCheckOverridePrecedence(t *testing.T) {
	snap := &Snapshot{
		Sections: []Section{{Name: "games", Ratio: 2}},
		CreditCheck: []CreditCheck{
			{Path: "/games/bonus/*", Ratio: 0, ACL: acl.Compile("*")},
		},
	}
	p := acl.Principal{Username: "alice"}
	if got := snap.CreditCheckOverride("/games/bonus/x.zip", p); got != 0 {
		t.Fatalf("expected creditcheck override to win, got %d", got)
	}
	if got := snap.CreditCheckOverride("/games/other.zip", p); got != -1 {
		t.Fatalf("expected no match to report inherit, got %d", got)
	}
	if got, ok := snap.SectionRatio("games"); !ok || got != 2 {
		t.Fatalf("expected section ratio 2, got %d ok=%v", got, ok)
	}
}

func TestGlobMatchTreatsNonGlobAsDirectoryPrefix(t *testing.T) {
	if !globMatch("/incoming", "/incoming/sub/file.bin") {
		t.Fatalf("expected directory-prefix match")
	}
	if globMatch("/incoming", "/incomingx/file.bin") {
		t.Fatalf("expected no match across path component boundary")
	}
}
