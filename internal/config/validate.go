package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ValidateNonEmpty checks that s is not empty after trimming whitespace.
func ValidateNonEmpty(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("value is required")
	}
	return nil
}

// ValidateDistURI checks an artifact base URI: http, https or
// s3://bucket[/prefix].
func ValidateDistURI(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("URI is required")
	}
	u, err := url.Parse(s)
	if err != nil {
		return fmt.Errorf("invalid URI: %w", err)
	}
	switch u.Scheme {
	case "http", "https":
		if u.Host == "" {
			return fmt.Errorf("URI has no host")
		}
	case "s3":
		if u.Host == "" {
			return fmt.Errorf("s3 URI has no bucket (expected s3://bucket/prefix)")
		}
	default:
		return fmt.Errorf("unsupported scheme %q (expected http, https or s3)", u.Scheme)
	}
	return nil
}

// ValidateOptionalURL checks an http(s) URL only if non-empty.
func ValidateOptionalURL(s string) error {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL must be http or https")
	}
	return nil
}

// ValidateEndpoint checks an object store endpoint: a host, optionally with a
// port.
func ValidateEndpoint(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("endpoint is required")
	}
	if strings.Contains(s, "://") {
		return fmt.Errorf("endpoint must not include a scheme")
	}
	if !strings.Contains(s, ":") {
		return nil
	}
	host, port, err := net.SplitHostPort(s)
	if err != nil {
		return fmt.Errorf("invalid endpoint (expected host or host:port): %w", err)
	}
	if host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	if port == "" {
		return fmt.Errorf("port cannot be empty")
	}
	return nil
}
