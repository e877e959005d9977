package dialog

import (
	"regexp"
	"strconv"
	"strings"
)

// TextValidator accepts any non-empty answer of at most maxWords words.
// maxWords of zero disables the word limit.
func TextValidator(maxWords int) Validator {
	return func(in Input) (any, bool) {
		s := strings.TrimSpace(in.Text)
		if s == "" {
			return nil, false
		}
		if maxWords > 0 && len(strings.Fields(s)) > maxWords {
			return nil, false
		}
		return s, true
	}
}

// NumberValidator accepts a number, optionally bounded by min and max.
func NumberValidator(lo, hi *float64) Validator {
	return func(in Input) (any, bool) {
		n, err := strconv.ParseFloat(strings.TrimSpace(in.Text), 64)
		if err != nil {
			return nil, false
		}
		if lo != nil && n < *lo {
			return nil, false
		}
		if hi != nil && n > *hi {
			return nil, false
		}
		return n, true
	}
}

// ChoiceValidator accepts one of choices, case-insensitively, or its 1-based index.
func ChoiceValidator(choices ...string) Validator {
	return func(in Input) (any, bool) {
		s := strings.TrimSpace(in.Text)
		for _, c := range choices {
			if strings.EqualFold(s, c) {
				return c, true
			}
		}
		if i, err := strconv.Atoi(s); err == nil && i >= 1 && i <= len(choices) {
			return choices[i-1], true
		}
		return nil, false
	}
}

var (
	confirmYes = []string{"yes", "y", "yep", "yeah", "sure", "ok", "okay", "true"}
	confirmNo  = []string{"no", "n", "nope", "nah", "false"}
)

// ConfirmValidator accepts yes/no answers and returns a bool.
func ConfirmValidator() Validator {
	return func(in Input) (any, bool) {
		s := strings.ToLower(strings.Trim(strings.TrimSpace(in.Text), ".!"))
		for _, y := range confirmYes {
			if s == y {
				return true, true
			}
		}
		for _, n := range confirmNo {
			if s == n {
				return false, true
			}
		}
		return nil, false
	}
}

// RegexValidator accepts input matching re. The first capture group is
// returned when present, otherwise the whole match.
func RegexValidator(re *regexp.Regexp) Validator {
	return func(in Input) (any, bool) {
		m := re.FindStringSubmatch(strings.TrimSpace(in.Text))
		if m == nil {
			return nil, false
		}
		if len(m) > 1 {
			return m[1], true
		}
		return m[0], true
	}
}
