package security

import (
	"fmt"
	"sort"
	"time"
)

// FormResult is the unified outcome of processing one submission.
// Errors and Warnings are keyed by field; the reserved keys "_rateLimit"
// and "_system" carry abuse-control and internal failures.
type FormResult struct {
	Valid     bool                `json:"is_valid"`
	Sanitized map[string]any      `json:"sanitized_data"`
	Errors    map[string][]string `json:"errors,omitempty"`
	Warnings  map[string][]string `json:"warnings,omitempty"`
	RateLimit *Verdict            `json:"rate_limit_info,omitempty"`
}

// FormProcessor runs every form submission through the full guard
// pipeline: rate-limit gate, per-field sanitization, endpoint-class
// validation, audit logging, and attempt recording. Dependencies are
// injected so tests can use isolated instances.
type FormProcessor struct {
	limiter  Limiter
	logger   EventLogger
	policies map[EndpointClass]Policy
}

// NewFormProcessor wires a processor. policies may be nil to use the
// defaults.
func NewFormProcessor(limiter Limiter, logger EventLogger, policies map[EndpointClass]Policy) *FormProcessor {
	if policies == nil {
		policies = DefaultPolicies()
	}
	return &FormProcessor{limiter: limiter, logger: logger, policies: policies}
}

// Policy returns the policy for an endpoint class, falling back to the
// generic form policy.
func (p *FormProcessor) Policy(class EndpointClass) Policy {
	if pol, ok := p.policies[class]; ok {
		return pol
	}
	return DefaultPolicies()[ClassForm]
}

// Process validates one submission. The caller-supplied record is never
// mutated; sanitized output is a fresh map. Process never panics:
// unexpected failures surface as the "_system" error key.
func (p *FormProcessor) Process(class EndpointClass, record map[string]any, fields map[string]FieldKind, caller Identity) (result FormResult) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.LogSystemError(caller, string(class), fmt.Errorf("form processing panic: %v", r))
			result = FormResult{
				Valid:  false,
				Errors: map[string][]string{"_system": {"internal error, please try again"}},
			}
		}
	}()

	identifier := caller.Key()
	policy := p.Policy(class)

	// Abuse gate first: sanitization is not wasted on traffic that will
	// be rejected anyway.
	verdict := p.limiter.Info(identifier, policy)
	if !verdict.Allowed {
		if verdict.Reason == "temporarily blocked" {
			p.logger.LogRateLimit(EventRateLimitBlocked, caller, string(class), verdict)
		} else {
			// The over-limit attempt still counts, escalating to a
			// temporary block when the policy defines one.
			verdict = p.limiter.RecordFailure(identifier, policy)
			p.logger.LogRateLimit(EventRateLimitExceeded, caller, string(class), verdict)
		}
		retry := int(verdict.RetryAfter.Seconds())
		if retry <= 0 {
			retry = int(time.Until(verdict.ResetAt).Seconds())
		}
		return FormResult{
			Valid: false,
			Errors: map[string][]string{
				"_rateLimit": {fmt.Sprintf("Too many attempts, retry in %ds", retry)},
			},
			RateLimit: &verdict,
		}
	}

	result = FormResult{
		Valid:     true,
		Sanitized: make(map[string]any, len(record)),
		Errors:    make(map[string][]string),
		Warnings:  make(map[string][]string),
		RateLimit: &verdict,
	}

	p.sanitizeFields(&result, record, fields, caller)
	p.validateClass(&result, class)
	result.Valid = len(result.Errors) == 0

	p.logger.LogAccess(result.Valid, caller, string(class), "FORM", map[string]any{
		"fields":      fieldNames(record),
		"error_count": len(result.Errors),
	})

	if result.Valid {
		p.limiter.RecordSuccess(identifier, policy)
	} else {
		p.limiter.RecordFailure(identifier, policy)
	}

	return result
}

func (p *FormProcessor) sanitizeFields(result *FormResult, record map[string]any, fields map[string]FieldKind, caller Identity) {
	for name, value := range record {
		kind, declared := fields[name]

		s, isString := value.(string)
		if !isString {
			result.Sanitized[name] = value
			continue
		}

		var r Result
		if declared && kind == FieldEmail {
			r = SanitizeEmail(s)
		} else {
			rule := Rule{MaxLength: 255}
			if declared {
				rule = RuleFor(kind)
			}
			r = SanitizeString(s, rule)
		}

		result.Sanitized[name] = r.Value
		if len(r.Errors) > 0 {
			result.Errors[name] = r.Errors
			switch {
			case ContainsSQLInjection(s):
				p.logger.LogInjectionAttempt(EventSQLInjectionAttempt, caller, name, r.Value)
			case ContainsXSS(s):
				p.logger.LogInjectionAttempt(EventXSSAttempt, caller, name, r.Value)
			default:
				p.logger.LogSanitization(LevelMedium, caller, name, r.Errors)
			}
		}
		if len(r.Warnings) > 0 {
			result.Warnings[name] = r.Warnings
			p.logger.LogSanitization(LevelLow, caller, name, r.Warnings)
		}
	}
}

// validateClass layers endpoint-class checks on top of generic
// sanitization, so new classes can add rules without touching shared
// ones.
func (p *FormProcessor) validateClass(result *FormResult, class EndpointClass) {
	str := func(field string) (string, bool) {
		v, ok := result.Sanitized[field].(string)
		return v, ok
	}

	switch class {
	case ClassLogin:
		if pw, ok := str("password"); ok && len(pw) < 6 {
			result.Errors["password"] = append(result.Errors["password"], "password must be at least 6 characters")
		}
		if email, ok := str("email"); ok && !emailPattern.MatchString(email) {
			result.Errors["email"] = append(result.Errors["email"], "invalid email format")
		}

	case ClassRegister:
		pw, hasPw := str("password")
		if hasPw && len(pw) < 8 {
			result.Errors["password"] = append(result.Errors["password"], "password must be at least 8 characters")
		}
		if confirm, ok := str("confirmPassword"); ok && hasPw && confirm != pw {
			result.Errors["confirmPassword"] = append(result.Errors["confirmPassword"], "passwords do not match")
		}

	case ClassPasswordReset:
		if email, ok := str("email"); ok && !emailPattern.MatchString(email) {
			result.Errors["email"] = append(result.Errors["email"], "invalid email format")
		}

	case ClassForm:
		for field, value := range result.Sanitized {
			if s, ok := value.(string); ok && len(s) > 1000 {
				result.Errors[field] = append(result.Errors[field], "field exceeds maximum length of 1000 characters")
			}
		}
	}
}

func fieldNames(record map[string]any) []string {
	names := make([]string, 0, len(record))
	for name := range record {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
