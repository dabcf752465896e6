package slug

import (
	"regexp"
	"strings"
)

type Rule struct {
	Regex   *regexp.Regexp
	Replace string
}

// Rules run in order over the lower-cased name.
var Rules = []Rule{
	// "GoCoax GCD Rate (Node 2)" -> "gocoax_gcd_rate_node_2_"
	{regexp.MustCompile(`[^a-z0-9]+`), "_"},
	{regexp.MustCompile(`^_+|_+$`), ""},
}

// Make turns a display name into an entity id object part.
func Make(name string) string {
	s := strings.ToLower(name)
	for _, rule := range Rules {
		s = rule.Regex.ReplaceAllString(s, rule.Replace)
	}
	if s == "" {
		return "unknown"
	}
	return s
}
