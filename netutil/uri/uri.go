// Package uri implements RFC 3986 URI parsing and resolution, grounded
// on original_source/src/pw_uri.h's uri_type (scheme/userinfo/host/port/
// path/query/fragment, addBase/removeBase resolution, getQuery), built on
// Go's standard net/url instead of the original's uriparser binding.
package uri

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// URI wraps url.URL with the query/path accessors uri_type exposes.
type URI struct {
	u *url.URL
}

// Parse mirrors uri_type::parse.
func Parse(s string) (*URI, error) {
	u, err := url.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("uri: %w", err)
	}
	return &URI{u: u}, nil
}

func (u *URI) String() string { return u.u.String() }

func (u *URI) Scheme() string   { return u.u.Scheme }
func (u *URI) SetScheme(s string) { u.u.Scheme = s }

func (u *URI) UserInfo() string {
	if u.u.User == nil {
		return ""
	}
	return u.u.User.String()
}

func (u *URI) Host() string {
	h, _, err := net.SplitHostPort(u.u.Host)
	if err != nil {
		return u.u.Host
	}
	return h
}

func (u *URI) Port() string {
	_, p, err := net.SplitHostPort(u.u.Host)
	if err != nil {
		return ""
	}
	return p
}

// NumericPort mirrors getNumericPort, returning 0 if the port is absent
// or non-numeric.
func (u *URI) NumericPort() int {
	p := u.Port()
	if p == "" {
		return 0
	}
	n, err := strconv.Atoi(p)
	if err != nil {
		return 0
	}
	return n
}

// SetPortByScheme fills in the well-known port for the URI's scheme if no
// port is currently set, mirroring setPortByScheme.
func (u *URI) SetPortByScheme() bool {
	if u.Port() != "" {
		return true
	}
	port, ok := defaultPorts[strings.ToLower(u.u.Scheme)]
	if !ok {
		return false
	}
	u.u.Host = net.JoinHostPort(u.Host(), port)
	return true
}

var defaultPorts = map[string]string{
	"http":   "80",
	"https":  "443",
	"ftp":    "21",
	"ws":     "80",
	"wss":    "443",
	"redis":  "6379",
	"mysql":  "3306",
}

// Path mirrors getPathString: the path with leading slash stripped and
// segments joined with '/'.
func (u *URI) Path() string {
	return strings.TrimPrefix(u.u.Path, "/")
}

func (u *URI) SetPath(p string) {
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	u.u.Path = p
}

// Query mirrors getQuery, returning the decoded key/value pairs; repeated
// keys keep only their first value, since uri_type's keyvalue_cont is a
// simple association list built by appending one decoded pair at a time.
func (u *URI) Query() map[string]string {
	out := make(map[string]string)
	for k, v := range u.u.Query() {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

func (u *URI) Fragment() string { return u.u.Fragment }

func (u *URI) IsAbsolute() bool { return u.u.IsAbs() }

// AddBase resolves u as a reference against base, mirroring
// uri_type::addBase.
func (u *URI) AddBase(base *URI) *URI {
	return &URI{u: base.u.ResolveReference(u.u)}
}

// RemoveBase expresses u relative to base when base is a prefix of u,
// mirroring uri_type::removeBase; useDomainRoot keeps a leading slash
// instead of producing a same-directory-relative path.
func (u *URI) RemoveBase(base *URI, useDomainRoot bool) (*URI, bool) {
	if u.u.Scheme != base.u.Scheme || u.u.Host != base.u.Host {
		return nil, false
	}
	rel := strings.TrimPrefix(u.u.Path, base.u.Path)
	if rel == u.u.Path {
		return nil, false
	}
	out := *u.u
	if useDomainRoot {
		out.Path = "/" + strings.TrimPrefix(rel, "/")
	} else {
		out.Path = strings.TrimPrefix(rel, "/")
	}
	out.Scheme = ""
	out.Host = ""
	return &URI{u: &out}, true
}

// Normalize mirrors uri_type::normalize: it lowercases scheme/host per
// RFC 3986 §6.2.2 and removes dot segments from an absolute path through
// url.URL's reference resolution.
func (u *URI) Normalize() {
	u.u.Scheme = strings.ToLower(u.u.Scheme)
	u.u.Host = strings.ToLower(u.u.Host)
	if strings.HasPrefix(u.u.Path, "/") {
		u.u.Path = u.u.ResolveReference(&url.URL{}).Path
	}
}
