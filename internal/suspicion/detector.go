// Package suspicion implements the static heuristic check used to override
// whitelist trust: a trusted domain does not make a structurally dangerous
// URL safe.
package suspicion

import (
	"encoding/base64"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

// keywords are tokens associated with phishing, forced redirects and malware
// delivery, matched case-insensitively against decoded URL components.
var keywords = []string{
	"redirect",
	"redir",
	"login",
	"signin",
	"verify",
	"account",
	"update",
	"secure",
	"banking",
	"confirm",
	"password",
	"credential",
	"webscr",
	"dest",
	"goto",
	".exe",
	".scr",
	".bat",
	".apk",
	".zip",
	"javascript:",
	"<script",
	"onerror=",
	"eval(",
}

// base64Pattern matches values that are syntactically plausible base64. Short
// values are excluded to avoid decoding ordinary words.
var base64Pattern = regexp.MustCompile(`^[A-Za-z0-9+/]{8,}={0,2}$`)

// Detector scans URL components for attack-like structure.
type Detector struct {
	keywords []string
}

// NewDetector creates a detector with the built-in keyword set.
func NewDetector() *Detector {
	return &Detector{keywords: keywords}
}

// IsSuspicious reports whether any percent-decoded query value or path
// segment of the URL contains a suspicious keyword, either directly or after
// base64 decoding. Malformed input is never an error, only a non-match.
func (d *Detector) IsSuspicious(raw string) bool {
	for _, part := range decompose(raw) {
		if d.containsKeyword(part) {
			return true
		}
		if decoded, ok := tryBase64(part); ok && d.containsKeyword(decoded) {
			return true
		}
	}
	return false
}

func (d *Detector) containsKeyword(value string) bool {
	lowered := strings.ToLower(value)
	for _, kw := range d.keywords {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	return false
}

// decompose splits a URL into percent-decoded query parameter names, values
// and path segments.
func decompose(raw string) []string {
	u, err := url.Parse(raw)
	if err != nil {
		return []string{raw}
	}

	var parts []string
	for _, seg := range strings.Split(u.EscapedPath(), "/") {
		if seg == "" {
			continue
		}
		if decoded, err := url.PathUnescape(seg); err == nil {
			parts = append(parts, decoded)
		} else {
			parts = append(parts, seg)
		}
	}
	for name, values := range u.Query() {
		parts = append(parts, name)
		parts = append(parts, values...)
	}
	if u.Fragment != "" {
		parts = append(parts, u.Fragment)
	}
	return parts
}

// tryBase64 decodes a plausible base64 value, rejecting binary payloads.
// Failures are swallowed: the caller only cares about decodable text.
func tryBase64(value string) (string, bool) {
	if len(value)%4 != 0 || !base64Pattern.MatchString(value) {
		return "", false
	}
	decoded, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return "", false
	}
	if !utf8.Valid(decoded) {
		return "", false
	}
	return string(decoded), true
}
