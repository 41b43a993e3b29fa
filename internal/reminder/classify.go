package reminder

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Outcome is the result of one delivery attempt.
type Outcome int

const (
	Delivered Outcome = iota
	Transient
	Permanent
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case Transient:
		return "transient"
	case Permanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// DeliveryError is a failure reported by the chat platform.
type DeliveryError struct {
	Code        int
	Description string
	Err         error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery error %d: %s", e.Code, e.Description)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// FailureRule marks a DeliveryError as permanent when Code matches and the
// description contains Contains (case-insensitive). An empty Contains matches
// any description with that code.
type FailureRule struct {
	Code     int
	Contains string
}

// FailureRules is the table of platform errors that mean the recipient is gone.
type FailureRules []FailureRule

// DefaultFailureRules lists the Telegram Bot API errors after which a chat
// can never receive messages again.
var DefaultFailureRules = FailureRules{
	{Code: 403, Contains: "bot was blocked by the user"},
	{Code: 403, Contains: "user is deactivated"},
	{Code: 403, Contains: "bot can't initiate conversation"},
	{Code: 400, Contains: "chat not found"},
}

// Classify maps a Deliver result to an Outcome. Anything not matched by the
// table, including rate limiting and network errors, is Transient.
func (rules FailureRules) Classify(err error) Outcome {
	if err == nil {
		return Delivered
	}
	var de *DeliveryError
	if !errors.As(err, &de) {
		return Transient
	}
	desc := strings.ToLower(de.Description)
	for _, r := range rules {
		if r.Code == de.Code && strings.Contains(desc, strings.ToLower(r.Contains)) {
			return Permanent
		}
	}
	return Transient
}

// ParseFailureRules reads "code:substring;code:substring". An empty string
// yields DefaultFailureRules.
func ParseFailureRules(s string) (FailureRules, error) {
	if strings.TrimSpace(s) == "" {
		return DefaultFailureRules, nil
	}
	var rules FailureRules
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		codeStr, contains, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("failure rule %q: missing ':'", part)
		}
		code, err := strconv.Atoi(strings.TrimSpace(codeStr))
		if err != nil || code <= 0 {
			return nil, fmt.Errorf("failure rule %q: invalid code", part)
		}
		rules = append(rules, FailureRule{Code: code, Contains: strings.TrimSpace(contains)})
	}
	if len(rules) == 0 {
		return nil, errors.New("failure rules: no rules")
	}
	return rules, nil
}
