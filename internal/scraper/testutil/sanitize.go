package testutil

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

const redacted = "[REDACTED]"

// SensitivePatterns match keys (query, form, JSON, header names) whose
// values must never be committed.
var SensitivePatterns = []string{
	// Password fields
	`(?i)password`,
	`(?i)passwd`,
	`(?i)matkhau`,
	`(?i)securitycode`,
	`(?i)secret`,

	// Tokens and sessions
	`(?i)token`,
	`(?i)session`,
	`(?i)sess_`,
	`(?i)auth`,
	`(?i)jwt`,
	`(?i)bearer`,
	`(?i)csrf`,
	`(?i)device-?id`,

	// API keys
	`(?i)api_?key`,

	// Credentials
	`(?i)credential`,
	`(?i)username`,
	`(?i)access_key`,
	`(?i)private_key`,
}

// SensitiveHeaders are headers that should be redacted.
var SensitiveHeaders = map[string]bool{
	"authorization":       true,
	"cookie":              true,
	"set-cookie":          true,
	"tokenkey":            true,
	"x-csrf-token":        true,
	"device-id":           true,
	"x-api-key":           true,
	"x-access-token":      true,
	"x-session-id":        true,
	"proxy-authorization": true,
}

var sensitiveKeys = compileAll(SensitivePatterns)

func compileAll(patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

// ContentRule rewrites personal data found in page text and bodies.
type ContentRule struct {
	Pattern     *regexp.Regexp
	Replacement string
	Description string
}

// ContentRules cover what the portals print: account numbers, card
// numbers, customer names and tokens embedded in scripts.
var ContentRules = []ContentRule{
	{
		regexp.MustCompile(`\b\d{4}XX\d{4}\b`),
		"0000XX0000",
		"Masked card number",
	},
	{
		regexp.MustCompile(`(AccountNbr=)\d+`),
		"${1}00000000",
		"Account number in link",
	},
	{
		regexp.MustCompile(`\b\d{4} \d{4}(?: \d{1,4})?\b`),
		"0000 0000",
		"Account number (spaced)",
	},
	{
		regexp.MustCompile(`(Xin chào|Khách hàng:?)[ \t]+\p{Lu}\p{L}*(?:[ \t]+\p{Lu}\p{L}*)+`),
		"$1 NGUYEN VAN A",
		"Customer name",
	},
	{
		regexp.MustCompile(`(?i)(token|csrf|session)["\s:=]+["']?[a-zA-Z0-9_-]{20,}["']?`),
		`$1="REDACTED"`,
		"Token",
	},
	{
		regexp.MustCompile(`(?i)document\.cookie\s*=\s*["'][^"']+["']`),
		`document.cookie="REDACTED"`,
		"Cookie",
	},
}

// SanitizeContent applies ContentRules to s and describes every rule
// that matched.
func SanitizeContent(s string) (string, []string) {
	var changes []string
	for _, rule := range ContentRules {
		n := len(rule.Pattern.FindAllStringIndex(s, -1))
		if n == 0 {
			continue
		}
		s = rule.Pattern.ReplaceAllString(s, rule.Replacement)
		changes = append(changes, rule.Description+": "+strconv.Itoa(n)+" matched")
	}
	return s, changes
}

// SanitizeHAR redacts sensitive data from a HAR log.
// Returns a new HARLog with sensitive data replaced by [REDACTED].
func SanitizeHAR(har *HARLog) *HARLog {
	sanitized := &HARLog{
		Entries: make([]HAREntry, len(har.Entries)),
	}

	for i, entry := range har.Entries {
		sanitized.Entries[i] = HAREntry{
			Request:  sanitizeRequest(entry.Request),
			Response: sanitizeResponse(entry.Response),
		}
	}

	return sanitized
}

func sanitizeRequest(req HARRequest) HARRequest {
	return HARRequest{
		Method:  req.Method,
		URL:     sanitizeURL(req.URL),
		Headers: sanitizeHeaders(req.Headers),
		Body:    sanitizeBody(req.Body),
	}
}

func sanitizeResponse(resp HARResponse) HARResponse {
	text := resp.Content.Text
	if resp.Content.Encoding != "base64" {
		text = sanitizeBody(text)
	}
	return HARResponse{
		Status:  resp.Status,
		Headers: sanitizeHeaders(resp.Headers),
		Content: HARContent{
			MimeType: resp.Content.MimeType,
			Text:     text,
			Encoding: resp.Content.Encoding,
			Size:     resp.Content.Size,
		},
	}
}

func sanitizeURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.RawQuery == "" {
		return rawURL
	}

	query := parsed.Query()
	changed := false
	for key := range query {
		if isSensitiveKey(key) {
			query.Set(key, redacted)
			changed = true
		}
	}
	// OData queries are sent byte for byte; re-encoding would break replay
	// matching.
	if !changed {
		return rawURL
	}
	parsed.RawQuery = query.Encode()

	return parsed.String()
}

func sanitizeHeaders(headers []HARHeader) []HARHeader {
	sanitized := make([]HARHeader, len(headers))

	for i, h := range headers {
		if SensitiveHeaders[strings.ToLower(h.Name)] || isSensitiveKey(h.Name) {
			sanitized[i] = HARHeader{Name: h.Name, Value: redacted}
		} else {
			sanitized[i] = h
		}
	}

	return sanitized
}

func sanitizeBody(body string) string {
	if body == "" {
		return body
	}

	result := body
	trimmed := strings.TrimSpace(body)

	switch {
	case strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "["):
		result = sanitizeJSONBody(result)
	case strings.HasPrefix(trimmed, "--"):
		// multipart $batch bodies carry JSON inside
		result = sanitizeJSONBody(result)
	case strings.Contains(body, "=") && !strings.Contains(body, "<"):
		result = sanitizeFormBody(result)
	}

	result, _ = SanitizeContent(result)
	return result
}

func sanitizeFormBody(body string) string {
	values, err := url.ParseQuery(body)
	if err != nil {
		return body
	}

	for key := range values {
		if isSensitiveKey(key) {
			values.Set(key, redacted)
		}
	}

	return values.Encode()
}

var (
	jsonStringField = compileFields(`("(?:%s)")\s*:\s*"[^"]*"`)
	jsonOtherField  = compileFields(`("(?:%s)")\s*:\s*([^",}\]\s]+)`)
)

func compileFields(format string) *regexp.Regexp {
	alts := make([]string, len(SensitivePatterns))
	for i, p := range SensitivePatterns {
		alts[i] = `[^"]*` + strings.TrimPrefix(p, "(?i)") + `[^"]*`
	}
	return regexp.MustCompile("(?i)" + strings.Replace(format, "%s", strings.Join(alts, "|"), 1))
}

func sanitizeJSONBody(body string) string {
	result := jsonStringField.ReplaceAllString(body, `$1: "`+redacted+`"`)
	return jsonOtherField.ReplaceAllString(result, `$1: "`+redacted+`"`)
}

func isSensitiveKey(key string) bool {
	for _, re := range sensitiveKeys {
		if re.MatchString(key) {
			return true
		}
	}
	return false
}
