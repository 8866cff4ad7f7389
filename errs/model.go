package errs

import "strings"

// modelError is a validation error whose text is safe to show to users
// once the "models: " prefix is removed.
type modelError string

func (e modelError) Error() string {
	return string(e)
}

// Public returns the error text without its prefix and with a capital first letter.
func (e modelError) Public() string {
	s := strings.Replace(string(e), "models: ", "", 1)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:] + "."
}
