// Package strfilter implements a blocklist string filter with five match
// kinds, grounded on original_source/src/libsrc/pw_strfltr.h's
// StringFilter/Pattern: case-sensitive/insensitive substring,
// case-sensitive/insensitive regex, and SHA-256 hash membership.
package strfilter

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

// Pattern mirrors pw::strfltr::Pattern.
type Pattern int

const (
	None Pattern = iota
	Substring
	SubstringInsensitive
	Regex
	RegexInsensitive
	Hash
)

func (p Pattern) String() string {
	switch p {
	case Substring:
		return "substring"
	case SubstringInsensitive:
		return "substring_i"
	case Regex:
		return "regex"
	case RegexInsensitive:
		return "regex_i"
	case Hash:
		return "hash"
	default:
		return "none"
	}
}

// ToPattern parses the names StringFilter's config file format uses.
func ToPattern(s string) Pattern {
	switch strings.ToLower(s) {
	case "substring":
		return Substring
	case "substring_i":
		return SubstringInsensitive
	case "regex":
		return Regex
	case "regex_i":
		return RegexInsensitive
	case "hash":
		return Hash
	default:
		return None
	}
}

type rule struct {
	pattern Pattern
	needle  string // original, uncompiled text, for writeToStream round-tripping
	re      *regexp.Regexp
}

// Filter holds a list of substring/regex rules, checked in the order they
// were added, plus a set of SHA-256 hashes.
type Filter struct {
	rules  []rule
	hashes map[string]struct{}
}

func New() *Filter {
	return &Filter{hashes: make(map[string]struct{})}
}

func (f *Filter) Empty() bool {
	return len(f.rules) == 0 && len(f.hashes) == 0
}

func (f *Filter) Size() int {
	return len(f.rules) + len(f.hashes)
}

// Add compiles and appends one rule. For Hash, needle is the lowercase
// hex-encoded SHA-256 digest to block.
func (f *Filter) Add(pattern Pattern, needle string) error {
	switch pattern {
	case Substring, SubstringInsensitive:
		f.rules = append(f.rules, rule{pattern: pattern, needle: needle})
		return nil
	case Regex, RegexInsensitive:
		expr := needle
		if pattern == RegexInsensitive {
			expr = "(?i)" + expr
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return fmt.Errorf("strfilter: compiling regex %q: %w", needle, err)
		}
		f.rules = append(f.rules, rule{pattern: pattern, needle: needle, re: re})
		return nil
	case Hash:
		f.hashes[strings.ToLower(needle)] = struct{}{}
		return nil
	default:
		return fmt.Errorf("strfilter: invalid pattern")
	}
}

// Check returns the first rule str matches, or None if it passes every
// filter (mirrors StringFilter::check's "NONE means clean" contract).
func (f *Filter) Check(str string) Pattern {
	p, _ := f.Check2(str)
	return p
}

// Check2 is Check plus the matched needle, mirroring check_res_type.
func (f *Filter) Check2(str string) (Pattern, string) {
	for _, r := range f.rules {
		switch r.pattern {
		case Substring:
			if strings.Contains(str, r.needle) {
				return r.pattern, r.needle
			}
		case SubstringInsensitive:
			if strings.Contains(strings.ToLower(str), strings.ToLower(r.needle)) {
				return r.pattern, r.needle
			}
		case Regex, RegexInsensitive:
			if r.re.MatchString(str) {
				return r.pattern, r.needle
			}
		}
	}
	if len(f.hashes) > 0 {
		sum := sha256.Sum256([]byte(str))
		hexSum := hex.EncodeToString(sum[:])
		if _, blocked := f.hashes[hexSum]; blocked {
			return Hash, hexSum
		}
	}
	return None, ""
}

// ReadFromFile loads rules from a "pattern needle" per-line file.
func ReadFromFile(path string) (*Filter, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadFromStream(f)
}

// ReadFromStream parses "<pattern> <needle>" lines, skipping blanks and
// lines starting with '#'.
func ReadFromStream(r io.Reader) (*Filter, error) {
	out := New()
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, " ", 2)
		if len(parts) != 2 {
			continue
		}
		p := ToPattern(parts[0])
		if p == None {
			continue
		}
		if err := out.Add(p, parts[1]); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// WriteToStream serializes the filter back to the "pattern needle" format.
func (f *Filter) WriteToStream(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, r := range f.rules {
		if _, err := fmt.Fprintf(bw, "%s %s\n", r.pattern, r.needle); err != nil {
			return err
		}
	}
	for h := range f.hashes {
		if _, err := fmt.Fprintf(bw, "%s %s\n", Hash, h); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteToFile is the file-backed counterpart of WriteToStream.
func (f *Filter) WriteToFile(path string) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()
	return f.WriteToStream(out)
}
