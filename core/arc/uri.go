// Package arc resolves URI-addressed database files ("arcs"): parsing the
// arc://<authority>/<path>[#<table>[/<rowid>]] grammar, dispatching to a
// locator per authority (local filesystem, HTTPS download), and gating every
// open behind file-format validation, a size cap, ledger integrity, and the
// trust-anchor policy. Locators never panic or return Go errors for arc
// failures — every outcome is an OpenResult.
package arc

import (
	"strconv"
	"strings"
)

// Scheme is the arc URI scheme prefix.
const Scheme = "arc://"

// URI is a parsed arc address. Authority is lowercased; Path preserves case.
// Rowid is -1 when the fragment names only a table, or no fragment exists.
type URI struct {
	Authority string
	Path      string
	Table     string
	Rowid     int64
	Raw       string
}

// ParseURI parses raw against the arc grammar. Malformed URIs (missing
// scheme, empty authority, empty path) report ok=false; resolvers convert
// that into an Unreachable result.
func ParseURI(raw string) (URI, bool) {
	u := URI{Rowid: -1, Raw: raw}
	if !strings.HasPrefix(raw, Scheme) {
		return u, false
	}
	rest := raw[len(Scheme):]

	slash := strings.IndexByte(rest, '/')
	if slash <= 0 {
		return u, false
	}
	u.Authority = strings.ToLower(rest[:slash])
	rest = rest[slash+1:]

	if hash := strings.IndexByte(rest, '#'); hash >= 0 {
		fragment := rest[hash+1:]
		rest = rest[:hash]
		if idx := strings.IndexByte(fragment, '/'); idx >= 0 {
			u.Table = fragment[:idx]
			rowid, err := strconv.ParseInt(fragment[idx+1:], 10, 64)
			if err != nil {
				return u, false
			}
			u.Rowid = rowid
		} else {
			u.Table = fragment
		}
	}

	if rest == "" {
		return u, false
	}
	u.Path = rest
	return u, true
}

// String reassembles the URI from its parsed parts.
func (u URI) String() string {
	var sb strings.Builder
	sb.WriteString(Scheme)
	sb.WriteString(u.Authority)
	sb.WriteByte('/')
	sb.WriteString(u.Path)
	if u.Table != "" {
		sb.WriteByte('#')
		sb.WriteString(u.Table)
		if u.Rowid >= 0 {
			sb.WriteByte('/')
			sb.WriteString(strconv.FormatInt(u.Rowid, 10))
		}
	}
	return sb.String()
}
