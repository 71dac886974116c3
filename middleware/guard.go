package middleware

import (
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/pepocero/gestioneducativa-sub000/security"
)

// Guard wraps handlers with the full request guard: method allow-list,
// per-endpoint-class rate limiting, query sanitization, optional
// identity requirement, and system-error containment. Every decision is
// recorded in the security event log.
type Guard struct {
	limiter  security.Limiter
	logger   security.EventLogger
	policies map[security.EndpointClass]security.Policy
}

// GuardOptions adjusts Protect for one route.
type GuardOptions struct {
	Methods         []string
	RequireIdentity bool

	// SanitizeBody passes a JSON object body through SanitizeBodyMap
	// before the handler runs. Meant for routes whose handlers do not
	// run their fields through a form processor themselves.
	SanitizeBody bool
}

func NewGuard(limiter security.Limiter, logger security.EventLogger, policies map[security.EndpointClass]security.Policy) *Guard {
	if policies == nil {
		policies = security.DefaultPolicies()
	}
	return &Guard{limiter: limiter, logger: logger, policies: policies}
}

func (g *Guard) policy(class security.EndpointClass) security.Policy {
	if p, ok := g.policies[class]; ok {
		return p
	}
	return security.DefaultPolicies()[security.ClassAPI]
}

// Protect returns the guard middleware for one endpoint class.
func (g *Guard) Protect(class security.EndpointClass, opts GuardOptions) fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		identity := CallerIdentity(c)
		endpoint := c.Path()

		defer func() {
			if r := recover(); r != nil {
				g.logger.LogSystemError(identity, endpoint, fmt.Errorf("handler panic: %v", r))
				err = c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
					"error": "Internal server error",
				})
			}
		}()

		if len(opts.Methods) > 0 && !methodAllowed(c.Method(), opts.Methods) {
			g.logger.LogAccess(false, identity, endpoint, c.Method(), map[string]any{
				"reason": "method not allowed",
			})
			return c.Status(fiber.StatusMethodNotAllowed).JSON(fiber.Map{
				"error": "Method not allowed",
			})
		}

		// The limiter key is scoped by endpoint class so transport-level
		// counting never consumes the form submission budget tracked
		// under the caller's bare identifier.
		policy := g.policy(class)
		verdict := g.limiter.Check(string(class)+":"+identity.Key(), policy, false)

		c.Set("X-RateLimit-Limit", strconv.Itoa(policy.MaxAttempts))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(verdict.Remaining))
		c.Set("X-RateLimit-Reset", strconv.FormatInt(verdict.ResetAt.Unix(), 10))

		if !verdict.Allowed {
			eventType := security.EventRateLimitExceeded
			if verdict.Reason == "temporarily blocked" {
				eventType = security.EventRateLimitBlocked
			}
			g.logger.LogRateLimit(eventType, identity, endpoint, verdict)

			retryAfter := int(verdict.RetryAfter.Seconds())
			if retryAfter <= 0 {
				retryAfter = int(time.Until(verdict.ResetAt).Seconds())
			}
			if retryAfter > 0 {
				c.Set("Retry-After", strconv.Itoa(retryAfter))
			}
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":      "Too many requests",
				"retryAfter": retryAfter,
				"resetTime":  verdict.ResetAt,
			})
		}

		g.logger.LogAccess(true, identity, endpoint, c.Method(), nil)

		if field, problems, ok := g.sanitizeQuery(c); !ok {
			g.logger.Log(security.EventMaliciousInput, security.LevelHigh,
				"unsafe query parameter "+field, map[string]any{
					"parameter": field,
					"problems":  problems,
				}, metaFor(identity, endpoint, c.Method()))
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":     "Invalid request parameters",
				"parameter": field,
			})
		}

		if opts.SanitizeBody {
			if field, problems, ok := g.sanitizeBody(c); !ok {
				g.logger.Log(security.EventMaliciousInput, security.LevelHigh,
					"unsafe body field "+field, map[string]any{
						"field":    field,
						"problems": problems,
					}, metaFor(identity, endpoint, c.Method()))
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid request body",
					"field": field,
				})
			}
		}

		if opts.RequireIdentity && identity.UserID == uuid.Nil {
			g.logger.LogAccess(false, identity, endpoint, c.Method(), map[string]any{
				"reason": "missing identity",
			})
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authentication required",
			})
		}

		if err := c.Next(); err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				return fe
			}
			g.logger.LogSystemError(identity, endpoint, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Internal server error",
			})
		}
		return nil
	}
}

// sanitizeQuery rewrites every query parameter through the sanitizer.
// The first parameter that produces an error rejects the request.
func (g *Guard) sanitizeQuery(c *fiber.Ctx) (string, []string, bool) {
	var badField string
	var problems []string
	c.Context().QueryArgs().VisitAll(func(key, value []byte) {
		if badField != "" {
			return
		}
		r := security.SanitizeString(string(value), security.Rule{MaxLength: 500})
		if !r.Valid {
			badField = string(key)
			problems = r.Errors
			return
		}
		c.Context().QueryArgs().Set(string(key), r.Value)
	})
	return badField, problems, badField == ""
}

// sanitizeBody rewrites a JSON object body through SanitizeBodyMap. A
// body that is empty or not a JSON object is left for the handler's own
// parser to reject.
func (g *Guard) sanitizeBody(c *fiber.Ctx) (string, []string, bool) {
	raw := c.Body()
	if len(raw) == 0 {
		return "", nil, true
	}
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return "", nil, true
	}
	res := SanitizeBodyMap(body)
	if !res.Valid {
		for field, problems := range res.Errors {
			return field, problems, false
		}
	}
	if rewritten, err := json.Marshal(res.Sanitized); err == nil {
		c.Request().SetBody(rewritten)
	}
	return "", nil, true
}

// SanitizeBodyMap cleans every string field of a parsed request body.
// The key name is a lightweight type hint: keys containing "email" get
// email rules, everything else string rules.
func SanitizeBodyMap(body map[string]any) security.MapResult {
	res := security.MapResult{
		Valid:     true,
		Sanitized: make(map[string]any, len(body)),
		Errors:    make(map[string][]string),
		Warnings:  make(map[string][]string),
	}
	for key, value := range body {
		s, ok := value.(string)
		if !ok {
			res.Sanitized[key] = value
			continue
		}
		var r security.Result
		if strings.Contains(strings.ToLower(key), "email") {
			r = security.SanitizeEmail(s)
		} else {
			r = security.SanitizeString(s, security.Rule{MaxLength: 1000})
		}
		res.Sanitized[key] = r.Value
		if len(r.Errors) > 0 {
			res.Errors[key] = r.Errors
			res.Valid = false
		}
		if len(r.Warnings) > 0 {
			res.Warnings[key] = r.Warnings
		}
	}
	return res
}

func methodAllowed(method string, allowed []string) bool {
	for _, m := range allowed {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}

func metaFor(identity security.Identity, endpoint, method string) security.Metadata {
	m := identity.Metadata()
	m.Endpoint = endpoint
	m.Method = method
	return m
}

// ClientIP extracts the real client address, preferring forwarding
// headers set by the reverse proxy over the socket address.
func ClientIP(c *fiber.Ctx) string {
	if forwarded := c.Get("X-Forwarded-For"); forwarded != "" {
		ips := strings.Split(forwarded, ",")
		if len(ips) > 0 {
			clientIP := strings.TrimSpace(ips[0])
			if parsed := net.ParseIP(clientIP); parsed != nil {
				return parsed.String()
			}
		}
	}

	if realIP := c.Get("X-Real-IP"); realIP != "" {
		if parsed := net.ParseIP(realIP); parsed != nil {
			return parsed.String()
		}
	}

	remoteAddr := c.IP()
	if parsed := net.ParseIP(remoteAddr); parsed != nil {
		return parsed.String()
	}
	return remoteAddr
}
