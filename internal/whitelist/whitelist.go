package whitelist

import (
	"strings"

	"github.com/mcnijman/go-emailaddress"
	"go.uber.org/zap"
)

// Checker matches sender addresses against a list of entries.
// An entry containing "@" matches that exact address; any other entry
// matches its domain and all of its subdomains.
type Checker struct {
	addresses map[string]struct{}
	domains   []string
	logger    *zap.Logger
}

// NewChecker creates a new checker for the given entries
func NewChecker(entries []string, logger *zap.Logger) *Checker {
	c := &Checker{
		addresses: make(map[string]struct{}),
		logger:    logger,
	}
	for _, entry := range entries {
		entry = strings.ToLower(strings.TrimSpace(entry))
		switch {
		case entry == "":
		case strings.Contains(entry, "@"):
			c.addresses[entry] = struct{}{}
		default:
			c.domains = append(c.domains, strings.TrimPrefix(entry, "."))
		}
	}

	if logger != nil && (len(c.domains) > 0 || len(c.addresses) > 0) {
		logger.Debug("Initialized sender list",
			zap.Strings("domains", c.domains),
			zap.Int("addresses", len(c.addresses)))
	}
	return c
}

// Empty reports whether the checker has no entries
func (c *Checker) Empty() bool {
	return len(c.domains) == 0 && len(c.addresses) == 0
}

// Matches reports whether from (a bare address or a "Name <addr>" header) is listed
func (c *Checker) Matches(from string) bool {
	if c.Empty() {
		return false
	}

	addr := ExtractAddress(from)
	if addr == nil {
		return false
	}
	full := strings.ToLower(addr.String())
	if _, ok := c.addresses[full]; ok {
		return true
	}

	domain := strings.ToLower(addr.Domain)
	for _, d := range c.domains {
		if domain == d || strings.HasSuffix(domain, "."+d) {
			if c.logger != nil {
				c.logger.Debug("Sender domain listed",
					zap.String("domain", domain),
					zap.String("email", full))
			}
			return true
		}
	}
	return false
}

// ExtractAddress pulls the first e-mail address out of a From-style header
func ExtractAddress(from string) *emailaddress.EmailAddress {
	from = strings.TrimSpace(from)
	if start, end := strings.LastIndex(from, "<"), strings.LastIndex(from, ">"); start >= 0 && end > start {
		from = from[start+1 : end]
	}
	if addr, err := emailaddress.Parse(from); err == nil {
		return addr
	}
	found := emailaddress.Find([]byte(from), false)
	if len(found) == 0 {
		return nil
	}
	return found[0]
}
