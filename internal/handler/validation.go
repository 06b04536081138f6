package handler

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode"
)

const (
	maxURLLength       = 2048
	maxShortCodeLength = 64
)

// validateURL checks that rawURL is an absolute http(s) URL that does not
// point back at one of our own short links.
func validateURL(rawURL, baseURL string) error {
	if rawURL == "" {
		return errors.New("url is required")
	}
	if len(rawURL) > maxURLLength {
		return fmt.Errorf("url exceeds maximum length of %d characters", maxURLLength)
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return errors.New("URL scheme must be http or https")
	}
	if parsed.Host == "" {
		return errors.New("URL must have a host")
	}

	if base, err := url.Parse(baseURL); err == nil && base.Host != "" &&
		strings.EqualFold(parsed.Host, base.Host) &&
		strings.HasPrefix(parsed.Path, strings.TrimRight(base.Path, "/")+"/s/") {
		return errors.New("URL must not point to a short link")
	}
	return nil
}

func validateShortCode(code string) error {
	if code == "" {
		return errors.New("short code is required")
	}
	if len(code) > maxShortCodeLength {
		return fmt.Errorf("short code exceeds maximum length of %d characters", maxShortCodeLength)
	}
	for _, r := range code {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return errors.New("short code contains invalid characters")
		}
	}
	return nil
}
