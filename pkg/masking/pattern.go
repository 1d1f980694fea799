// Package masking redacts credential-shaped substrings from external
// tool-call results before they are persisted to episodic memory or
// logged, using a fixed built-in regex pattern set applied
// unconditionally to every result.
package masking

import (
	"log/slog"
	"regexp"
)

// compiledPattern pairs a regex with its replacement text.
type compiledPattern struct {
	name        string
	regex       *regexp.Regexp
	replacement string
}

// builtinPatterns is the fixed credential-shape catalogue applied to every
// discovery tool result, unconditionally (no per-server opt-in — the
// teacher's registry-driven toggle has no equivalent config surface here
// and leaking a credential is worse than over-masking).
var builtinPatterns = []struct {
	name        string
	pattern     string
	replacement string
}{
	{"api_key", `(?i)(?:api[_-]?key|apikey)["']?\s*[:=]\s*["']?([A-Za-z0-9_\-]{20,})["']?`, `"api_key": "[MASKED_API_KEY]"`},
	{"password", `(?i)(?:password|pwd|pass)["']?\s*[:=]\s*["']?([^"'\s\n]{6,})["']?`, `"password": "[MASKED_PASSWORD]"`},
	{"token", `(?i)(?:token|bearer|jwt)["']?\s*[:=]\s*["']?([A-Za-z0-9_\-.]{20,})["']?`, `"token": "[MASKED_TOKEN]"`},
	{"private_key", `(?i)(?:private[_-]?key)["']?\s*[:=]\s*["']?([A-Za-z0-9_\-.]{20,})["']?`, `"private_key": "[MASKED_PRIVATE_KEY]"`},
	{"secret_key", `(?i)(?:secret[_-]?key)["']?\s*[:=]\s*["']?([A-Za-z0-9_\-.]{20,})["']?`, `"secret_key": "[MASKED_SECRET_KEY]"`},
	{"certificate", `(?s)-----BEGIN [A-Z ]+-----.*?-----END [A-Z ]+-----`, `[MASKED_CERTIFICATE]`},
	{"ssh_key", `ssh-(?:rsa|dss|ed25519|ecdsa)\s+[A-Za-z0-9+/=]+`, `[MASKED_SSH_KEY]`},
	{"aws_access_key", `(?i)(?:aws[_-]?access[_-]?key[_-]?id)["']?\s*[:=]\s*["']?(AKIA[A-Z0-9]{16})["']?`, `"aws_access_key_id": "[MASKED_AWS_KEY]"`},
	{"github_token", `(?i)gh[ps]_[A-Za-z0-9_]{36,255}`, `[MASKED_GITHUB_TOKEN]`},
}

var compiled = compileBuiltinPatterns()

func compileBuiltinPatterns() []*compiledPattern {
	out := make([]*compiledPattern, 0, len(builtinPatterns))
	for _, p := range builtinPatterns {
		re, err := regexp.Compile(p.pattern)
		if err != nil {
			slog.Error("failed to compile masking pattern, skipping", "pattern", p.name, "error", err)
			continue
		}
		out = append(out, &compiledPattern{name: p.name, regex: re, replacement: p.replacement})
	}
	return out
}

// Mask replaces every credential-shaped substring of content with its
// redaction placeholder. Safe to call on empty or already-masked input.
func Mask(content string) string {
	if content == "" {
		return content
	}
	masked := content
	for _, p := range compiled {
		masked = p.regex.ReplaceAllString(masked, p.replacement)
	}
	return masked
}
