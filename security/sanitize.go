package security

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// FieldKind selects the sanitization rule for a semantic field type.
// Using a closed enum instead of string keys means a misspelled field
// type is a compile error, not a silently wrong rule.
type FieldKind int

const (
	FieldName FieldKind = iota
	FieldEmail
	FieldPhone
	FieldAddress
	FieldDescription
	FieldNotes
	FieldPassword
	FieldURL
	FieldCode
	FieldTitle
)

// Rule configures how a single value is sanitized.
type Rule struct {
	MaxLength         int
	AllowHTML         bool
	AllowSpecialChars bool
	StrictMode        bool
}

var ruleTable = map[FieldKind]Rule{
	FieldName:        {MaxLength: 100, StrictMode: true},
	FieldEmail:       {MaxLength: 254},
	FieldPhone:       {MaxLength: 20},
	FieldAddress:     {MaxLength: 200, AllowSpecialChars: true},
	FieldDescription: {MaxLength: 2000, AllowSpecialChars: true},
	FieldNotes:       {MaxLength: 1000, AllowSpecialChars: true},
	FieldPassword:    {MaxLength: 128, AllowSpecialChars: true},
	FieldURL:         {MaxLength: 500, AllowSpecialChars: true},
	FieldCode:        {MaxLength: 20, StrictMode: true},
	FieldTitle:       {MaxLength: 150},
}

// RuleFor returns the default rule for a field kind.
func RuleFor(kind FieldKind) Rule {
	if r, ok := ruleTable[kind]; ok {
		return r
	}
	return Rule{MaxLength: 255}
}

func (r Rule) normalized() Rule {
	if r.MaxLength <= 0 {
		r.MaxLength = 1000
	}
	return r
}

// Result is the outcome of sanitizing one value. Value is always safe
// to store or display, even when Valid is false.
type Result struct {
	Valid    bool     `json:"is_valid"`
	Value    string   `json:"sanitized_value"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// NumberResult is the outcome of sanitizing a numeric value.
type NumberResult struct {
	Valid  bool     `json:"is_valid"`
	Value  float64  `json:"sanitized_value"`
	Errors []string `json:"errors,omitempty"`
}

// MapResult aggregates per-field sanitization of a whole record.
type MapResult struct {
	Valid     bool                `json:"is_valid"`
	Sanitized map[string]any      `json:"sanitized_data"`
	Errors    map[string][]string `json:"errors,omitempty"`
	Warnings  map[string][]string `json:"warnings,omitempty"`
}

// Markup and script patterns stripped from every value. Derived from the
// attack corpus used by gateway injection filters; kept to the XSS family
// since values land in HTML contexts.
var dangerousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<script[^>]*>.*?</script[^>]*>`),
	regexp.MustCompile(`(?is)<script[^>]*>`),
	regexp.MustCompile(`(?is)<iframe[^>]*>.*?</iframe[^>]*>`),
	regexp.MustCompile(`(?is)<iframe[^>]*>`),
	regexp.MustCompile(`(?i)javascript\s*:`),
	regexp.MustCompile(`(?i)\bon\w+\s*=`),
}

// Any remaining tag is dangerous unless the rule allows HTML.
var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

// SQL keyword clusters and boolean tautologies. A match is both an error
// and stripped from the value.
var sqlPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:SELECT|INSERT|UPDATE|DELETE|DROP|CREATE|ALTER|TRUNCATE|UNION|EXEC)\b[\s\S]*?\b(?:FROM|INTO|TABLE|DATABASE|SCHEMA|WHERE|SELECT|VALUES|SET)\b`),
	regexp.MustCompile(`(?i)['"]?\s*\b(?:OR|AND)\b\s+['"]?\d+['"]?\s*=\s*['"]?\d+['"]?`),
	regexp.MustCompile(`(?i)\b(?:OR|AND)\b\s+['"][^'"]*['"]\s*=\s*['"][^'"]*['"]`),
	regexp.MustCompile(`(?i);\s*(?:DROP|DELETE|TRUNCATE|ALTER|INSERT|UPDATE)\b`),
	regexp.MustCompile(`(?i)\b(?:SLEEP|BENCHMARK)\s*\(\s*\d+`),
}

var (
	controlChars   = regexp.MustCompile("[\x00-\x1f\x7f]")
	invisibleChars = regexp.MustCompile("[\\x{200B}\\x{200C}\\x{200D}\\x{2060}\\x{FEFF}\\x{00AD}]")
	specialChars   = regexp.MustCompile(`[<>'"&]`)
	emailPattern   = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
)

// ContainsSQLInjection reports whether s matches any SQL-injection
// pattern. Used to classify findings for the audit trail; stripping is
// SanitizeString's job.
func ContainsSQLInjection(s string) bool {
	for _, re := range sqlPatterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// ContainsXSS reports whether s matches any markup or script pattern.
func ContainsXSS(s string) bool {
	for _, re := range dangerousPatterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// stripAll removes every occurrence of re from s, re-scanning until the
// removal itself cannot re-expose a match.
func stripAll(re *regexp.Regexp, s string) (string, bool) {
	matched := false
	for i := 0; i < 10; i++ {
		out := re.ReplaceAllString(s, "")
		if out == s {
			break
		}
		matched = true
		s = out
	}
	return s, matched
}

// SanitizeString validates and cleans a single string value. It is a
// pure function: malformed input is reported in Errors, never panicked
// on, and the returned Value has every dangerous match removed.
func SanitizeString(input any, rule Rule) Result {
	rule = rule.normalized()

	s, ok := input.(string)
	if !ok {
		return Result{Valid: false, Value: "", Errors: []string{"input must be a string"}}
	}

	res := Result{}
	s = strings.TrimSpace(s)

	if len(s) > rule.MaxLength {
		cut := rule.MaxLength
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut]
		res.Warnings = append(res.Warnings, fmt.Sprintf("value truncated to %d characters", rule.MaxLength))
	}

	// Removing one match can splice the remainder into another match
	// ("<scr<script>ipt>" after the inner strip, "jav&ascript:" after
	// the special-char strip), so every removal phase repeats together
	// until the value is stable.
	markupHit, sqlHit := false, false
	controlHit, invisibleHit := false, false
	for i := 0; i < 10; i++ {
		before := s
		for _, re := range dangerousPatterns {
			var hit bool
			s, hit = stripAll(re, s)
			markupHit = markupHit || hit
		}
		if !rule.AllowHTML {
			var hit bool
			s, hit = stripAll(htmlTagPattern, s)
			markupHit = markupHit || hit
		}
		for _, re := range sqlPatterns {
			var hit bool
			s, hit = stripAll(re, s)
			sqlHit = sqlHit || hit
		}
		if !rule.AllowSpecialChars {
			s = specialChars.ReplaceAllString(s, "")
		}
		if rule.StrictMode {
			if out := controlChars.ReplaceAllString(s, ""); out != s {
				s = out
				controlHit = true
			}
			if out := invisibleChars.ReplaceAllString(s, ""); out != s {
				s = out
				invisibleHit = true
			}
		}
		if s == before {
			break
		}
	}
	if markupHit {
		res.Errors = append(res.Errors, "potentially dangerous content detected")
	}
	if sqlHit {
		res.Errors = append(res.Errors, "potentially dangerous content detected")
	}
	if controlHit {
		res.Warnings = append(res.Warnings, "control characters removed")
	}
	if invisibleHit {
		res.Warnings = append(res.Warnings, "invisible characters removed")
	}

	// Stripping can leave dangling whitespace at the edges; trim again so
	// sanitizing an already-sanitized value is a no-op.
	res.Value = strings.TrimSpace(s)
	res.Valid = len(res.Errors) == 0
	return res
}

// SanitizeEmail normalizes and validates an email address. Format and
// length violations are errors, not warnings.
func SanitizeEmail(input any) Result {
	s, ok := input.(string)
	if !ok {
		return Result{Valid: false, Value: "", Errors: []string{"input must be a string"}}
	}

	res := Result{}
	s = strings.ToLower(strings.TrimSpace(s))
	s = specialChars.ReplaceAllString(s, "")

	if len(s) > 254 {
		s = s[:254]
		res.Errors = append(res.Errors, "email exceeds maximum length")
	}
	if !emailPattern.MatchString(s) {
		res.Errors = append(res.Errors, "invalid email format")
	}

	res.Value = s
	res.Valid = len(res.Errors) == 0
	return res
}

// SanitizeNumber accepts a string or numeric input and enforces optional
// inclusive bounds. A non-numeric string yields an error and value 0;
// out-of-bounds values keep the parsed value so callers can report it.
func SanitizeNumber(input any, min, max *float64) NumberResult {
	res := NumberResult{}

	var n float64
	switch v := input.(type) {
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return NumberResult{Valid: false, Value: 0, Errors: []string{"value is not a number"}}
		}
		n = parsed
	case float64:
		n = v
	case float32:
		n = float64(v)
	case int:
		n = float64(v)
	case int32:
		n = float64(v)
	case int64:
		n = float64(v)
	default:
		return NumberResult{Valid: false, Value: 0, Errors: []string{"value is not a number"}}
	}

	if min != nil && n < *min {
		res.Errors = append(res.Errors, fmt.Sprintf("value must be at least %g", *min))
	}
	if max != nil && n > *max {
		res.Errors = append(res.Errors, fmt.Sprintf("value must be at most %g", *max))
	}

	res.Value = n
	res.Valid = len(res.Errors) == 0
	return res
}

// SanitizeMap applies SanitizeString to every string field of a record.
// Fields without an entry in rules use the generic default rule;
// non-string fields pass through unchanged. The input record is never
// mutated.
func SanitizeMap(record map[string]any, rules map[string]Rule) MapResult {
	res := MapResult{
		Valid:     true,
		Sanitized: make(map[string]any, len(record)),
		Errors:    make(map[string][]string),
		Warnings:  make(map[string][]string),
	}

	for field, value := range record {
		s, ok := value.(string)
		if !ok {
			res.Sanitized[field] = value
			continue
		}

		rule, ok := rules[field]
		if !ok {
			rule = Rule{MaxLength: 255}
		}

		r := SanitizeString(s, rule)
		res.Sanitized[field] = r.Value
		if len(r.Errors) > 0 {
			res.Errors[field] = r.Errors
			res.Valid = false
		}
		if len(r.Warnings) > 0 {
			res.Warnings[field] = r.Warnings
		}
	}

	return res
}
