package acl

import "testing"

func TestCheckFirstMatchWins(t *testing.T) {
	expr := Compile("!alice !=leechers *")
	alice := Principal{Username: "alice", SecondaryGroups: []string{"leechers"}}
	if Check(expr, alice) {
		t.Fatalf("expected alice to be denied by the first term")
	}

	bob := Principal{Username: "bob", SecondaryGroups: []string{"leechers"}}
	if Check(expr, bob) {
		t.Fatalf("expected bob to be denied by the =leechers term")
	}

	carol := Principal{Username: "carol"}
	if !Check(expr, carol) {
		t.Fatalf("expected carol to be allowed by the wildcard term")
	}
}

func TestCheckFlagMatcher(t *testing.T) {
	expr := Compile("-1")
	siteop := Principal{Username: "admin", Flags: "1M"}
	if !Check(expr, siteop) {
		t.Fatalf("expected flag 1 holder to be allowed")
	}

	user := Principal{Username: "user", Flags: ""}
	if Check(expr, user) {
		t.Fatalf("expected non-flag-holder to be denied")
	}
}

func TestCheckDefaultDeny(t *testing.T) {
	expr := Compile("specific-user")
	p := Principal{Username: "someone-else"}
	if Check(expr, p) {
		t.Fatalf("expected no-match to default to deny")
	}
}

func TestCheckIsPureAndIdempotent(t *testing.T) {
	expr := Compile("=ftp-admins -1 !*")
	p := Principal{Username: "dana", SecondaryGroups: []string{"ftp-admins"}}

	first := Check(expr, p)
	for i := 0; i < 10; i++ {
		if Check(expr, p) != first {
			t.Fatalf("Check is not idempotent across repeated calls")
		}
	}
}

func TestCompileStringRoundTrip(t *testing.T) {
	expr := Compile("alice =staff -1 !*")
	if got := expr.String(); got != "alice =staff -1 !*" {
		t.Fatalf("String() round trip mismatch: got %q", got)
	}
}

func TestEmptyExpressionDeniesEverything(t *testing.T) {
	expr := Compile("")
	if !expr.Empty() {
		t.Fatalf("expected empty expression")
	}
	if Check(expr, Principal{Username: "anyone"}) {
		t.Fatalf("empty expression must deny")
	}
}
