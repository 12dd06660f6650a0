package encoder

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseArgs converts argv-style tokens into named parameters.
//
//	-preset 6        -> Number{"-", " ", 6}
//	--tune=ssim      -> String{"--", "=", "ssim"}
//	-fast-decode     -> Bool{"-", true} when no value follows
//
// A token that does not start with a dash and does not follow an option is
// an error.
func ParseArgs(tokens []string) (map[string]Parameter, error) {
	params := make(map[string]Parameter)
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		prefix, body := splitPrefix(tok)
		if prefix == "" || body == "" {
			return nil, fmt.Errorf("unexpected argument %q", tok)
		}

		if name, value, ok := strings.Cut(body, "="); ok {
			params[name] = typed(prefix, "=", value)
			continue
		}
		if i+1 < len(tokens) && !isOption(tokens[i+1]) {
			params[body] = typed(prefix, " ", tokens[i+1])
			i++
			continue
		}
		params[body] = Bool(prefix, true)
	}
	return params, nil
}

// ParseArgString splits s on whitespace and calls [ParseArgs].
func ParseArgString(s string) (map[string]Parameter, error) {
	return ParseArgs(strings.Fields(s))
}

func typed(prefix, delimiter, value string) Parameter {
	if n, err := strconv.ParseFloat(value, 64); err == nil {
		return Number(prefix, delimiter, n)
	}
	return String(prefix, delimiter, value)
}

func splitPrefix(tok string) (string, string) {
	body := strings.TrimLeft(tok, "-")
	return tok[:len(tok)-len(body)], body
}

// isOption reports whether tok starts a new option. Negative numbers are
// values, not options.
func isOption(tok string) bool {
	if !strings.HasPrefix(tok, "-") {
		return false
	}
	_, err := strconv.ParseFloat(tok, 64)
	return err != nil
}
