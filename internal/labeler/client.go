// Package labeler fills in the present-continuous activity labels shown
// while a task is in progress ("Fix login bug" -> "Fixing login bug").
// Label generation runs in a background goroutine so task creation never
// waits on it.
package labeler

import (
	"context"
	"strings"
	"unicode"

	"github.com/levelcode/teamfabric/internal/errors"
	"github.com/levelcode/teamfabric/internal/util"
)

// defaultMaxLabelLength caps generated labels. Status views render the
// label in a fixed-width column, so long ones get truncated anyway.
const defaultMaxLabelLength = 60

// Client turns a task subject into a short active-form label. RuleClient
// is the stock implementation; anything that satisfies the interface can
// be plugged in instead.
type Client interface {
	Label(ctx context.Context, subject string) (string, error)
}

// RuleClient inflects the subject's leading verb into its -ing form. It
// is deterministic and needs no network.
type RuleClient struct {
	maxLen int
}

// ClientOption configures a RuleClient.
type ClientOption func(*RuleClient)

// WithMaxLabelLength caps generated labels at maxLen runes.
func WithMaxLabelLength(maxLen int) ClientOption {
	return func(c *RuleClient) {
		c.maxLen = maxLen
	}
}

// NewRuleClient creates the default rule-based label client.
func NewRuleClient(opts ...ClientOption) *RuleClient {
	c := &RuleClient{maxLen: defaultMaxLabelLength}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// irregular lists verbs whose -ing form is not mechanical: final
// consonants that double, mostly. Task subjects lean on a small verb
// vocabulary, so a lookup table beats guessing at syllable stress.
var irregular = map[string]string{
	"run":    "running",
	"set":    "setting",
	"get":    "getting",
	"put":    "putting",
	"cut":    "cutting",
	"dig":    "digging",
	"log":    "logging",
	"tag":    "tagging",
	"pin":    "pinning",
	"map":    "mapping",
	"wrap":   "wrapping",
	"swap":   "swapping",
	"stop":   "stopping",
	"drop":   "dropping",
	"ship":   "shipping",
	"plan":   "planning",
	"stub":   "stubbing",
	"trim":   "trimming",
	"spin":   "spinning",
	"scrub":  "scrubbing",
	"split":  "splitting",
	"debug":  "debugging",
	"begin":  "beginning",
	"commit": "committing",
	"submit": "submitting",
	"format": "formatting",
}

// Label derives the active form of subject. Only the first line is used,
// and the result is capped at the configured length.
func (c *RuleClient) Label(_ context.Context, subject string) (string, error) {
	subject = strings.TrimSpace(util.FirstLine(subject))
	if subject == "" {
		return "", errors.NewValidationError("Task subject is required.")
	}

	verb, rest, _ := strings.Cut(subject, " ")
	label := inflect(strings.ToLower(verb))
	if rest = strings.TrimSpace(rest); rest != "" {
		label += " " + rest
	}
	return util.TruncateString(upperFirst(label), c.maxLen), nil
}

// inflect turns a lowercase leading verb into its -ing form.
func inflect(verb string) string {
	if ing, ok := irregular[verb]; ok {
		return ing
	}
	switch {
	case strings.HasSuffix(verb, "ing") && len(verb) >= 5:
		// Already in active form ("fixing", "testing").
		return verb
	case strings.HasSuffix(verb, "ie"):
		return verb[:len(verb)-2] + "ying"
	case strings.HasSuffix(verb, "ee"), strings.HasSuffix(verb, "oe"), strings.HasSuffix(verb, "ye"):
		return verb + "ing"
	case strings.HasSuffix(verb, "e") && verb != "be":
		return verb[:len(verb)-1] + "ing"
	default:
		return verb + "ing"
	}
}

func upperFirst(s string) string {
	r := []rune(s)
	if len(r) == 0 {
		return s
	}
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
