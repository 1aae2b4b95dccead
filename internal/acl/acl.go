// Package acl implements the permission-expression engine: compiled,
// ordered matcher lists evaluated against a principal tuple with
// first-match-wins semantics, following the matcher grammar and the
// ACL-as-stateless-pure-function design drftpd/glftpd's original C++
// engine (original_source) uses.
package acl

import "strings"

// Principal is the (user, primary group, secondary groups, flags) tuple
// every ACL check is evaluated against.
type Principal struct {
	Username      string
	PrimaryGroup  string
	SecondaryGroups []string
	Flags         string // single-character capability letters, e.g. "1MG"
}

// HasGroup reports whether name is the principal's primary or any
// secondary group.
func (p Principal) HasGroup(name string) bool {
	if p.PrimaryGroup == name {
		return true
	}
	for _, g := range p.SecondaryGroups {
		if g == name {
			return true
		}
	}
	return false
}

// HasFlag reports whether flag character c is present in the principal's
// flag string.
func (p Principal) HasFlag(c byte) bool {
	return strings.IndexByte(p.Flags, c) >= 0
}

// matcherKind identifies which of the four matcher kinds (user, group,
// flag, wildcard) a term uses; negation is recorded separately on Term.
type matcherKind int

const (
	matchUser matcherKind = iota
	matchGroup
	matchFlag
	matchWildcard
)

// Term is one compiled entry of an ACL expression: a sign (allow/deny),
// a matcher kind plus its operand, and whether the term is negated
// (which inverts the sign, not the match test).
type Term struct {
	kind    matcherKind
	operand string // username, group name, or flag character as a string
	allow   bool
	negated bool
}

// Expr is a compiled, ordered ACL expression ready for repeated
// evaluation. Expr values are immutable after Compile and safe for
// concurrent use by many sessions.
type Expr struct {
	terms []Term
}

// matches reports whether term's matcher fires for p, independent of sign/negation.
func (t Term) matches(p Principal) bool {
	switch t.kind {
	case matchWildcard:
		return true
	case matchUser:
		return p.Username == t.operand
	case matchGroup:
		return p.HasGroup(t.operand)
	case matchFlag:
		return len(t.operand) == 1 && p.HasFlag(t.operand[0])
	default:
		return false
	}
}

// Check evaluates expr against principal p. First matching term's sign
// (inverted if the term was negated) wins; no match is deny. Check is a
// pure function of its inputs and is idempotent across repeated calls.
func Check(expr Expr, p Principal) bool {
	for _, t := range expr.terms {
		if t.matches(p) {
			if t.negated {
				return !t.allow
			}
			return t.allow
		}
	}
	return false
}

// Allow is Check(e, p) in method form.
func (e Expr) Allow(p Principal) bool { return Check(e, p) }

// Compile parses a space-separated ACL expression into an ordered term
// list. Matcher forms:
//
//	name      allow if principal's username equals name
//	=name     allow if principal belongs to group name
//	-X        allow if flag character X is present
//	*         allow unconditionally
//	!<form>   any of the above, with the resulting sign inverted
//
// Only a token of exactly two characters starting with "-" is a flag
// matcher; any other token that is not "*" or "=name" (including a longer
// "-name") is a username matcher. Every term allows unless it is prefixed
// with "!"; there is no separate deny token.
func Compile(expression string) Expr {
	fields := strings.Fields(expression)
	terms := make([]Term, 0, len(fields))
	for _, f := range fields {
		terms = append(terms, compileTerm(f))
	}
	return Expr{terms: terms}
}

func compileTerm(tok string) Term {
	negated := false
	if strings.HasPrefix(tok, "!") {
		negated = true
		tok = tok[1:]
	}

	switch {
	case tok == "*":
		return Term{kind: matchWildcard, allow: true, negated: negated}
	case strings.HasPrefix(tok, "="):
		return Term{kind: matchGroup, operand: tok[1:], allow: true, negated: negated}
	case strings.HasPrefix(tok, "-") && len(tok) == 2:
		return Term{kind: matchFlag, operand: tok[1:], allow: true, negated: negated}
	default:
		return Term{kind: matchUser, operand: tok, allow: true, negated: negated}
	}
}

// String reconstructs a readable form of the expression, for SITE
// command output and config diagnostics.
func (e Expr) String() string {
	parts := make([]string, 0, len(e.terms))
	for _, t := range e.terms {
		var s string
		switch t.kind {
		case matchWildcard:
			s = "*"
		case matchGroup:
			s = "=" + t.operand
		case matchFlag:
			s = "-" + t.operand
		default:
			s = t.operand
		}
		if t.negated {
			s = "!" + s
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, " ")
}

// Empty reports whether the expression has no terms (always denies).
func (e Expr) Empty() bool { return len(e.terms) == 0 }
