package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ValidationError represents a validation error with context
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	if ve.Field == "" {
		return ve.Message
	}
	return fmt.Sprintf("field '%s': %s", ve.Field, ve.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for multiple validation errors
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}

	var messages []string
	for _, err := range ve {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// HasErrors returns true if there are any validation errors
func (ve ValidationErrors) HasErrors() bool {
	return len(ve) > 0
}

// Add adds a new validation error
func (ve *ValidationErrors) Add(field, message string, value ...interface{}) {
	var val interface{}
	if len(value) > 0 {
		val = value[0]
	}
	*ve = append(*ve, ValidationError{
		Field:   field,
		Value:   val,
		Message: message,
	})
}

// ValidateOneOf checks if a value is in a list of allowed values
func ValidateOneOf(field, value string, allowed []string) error {
	for _, allowedValue := range allowed {
		if value == allowedValue {
			return nil
		}
	}
	return ValidationError{
		Field:   field,
		Value:   value,
		Message: fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")),
	}
}

// ValidateServerURL checks that raw is an absolute http(s) URL.
func ValidateServerURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return ValidationError{Field: field, Value: raw, Message: fmt.Sprintf("is not a valid URL: %v", err)}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ValidationError{Field: field, Value: raw, Message: "must use http or https"}
	}
	if u.Host == "" {
		return ValidationError{Field: field, Value: raw, Message: "must include a host"}
	}
	return nil
}

func validatePositive(errs *ValidationErrors, field string, d time.Duration) {
	if d <= 0 {
		errs.Add(field, "must be a positive duration", d)
	}
}

// Validate checks the configuration. An empty server URL is allowed here;
// commands that talk to the portal require it separately.
func (c Config) Validate() error {
	var errs ValidationErrors

	if c.Server.URL != "" {
		if err := ValidateServerURL("server.url", c.Server.URL); err != nil {
			errs = append(errs, err.(ValidationError))
		}
	}

	validatePositive(&errs, "server.timeout", c.Server.Timeout)
	validatePositive(&errs, "session.renewalTimeout", c.Session.RenewalTimeout)
	validatePositive(&errs, "session.proactiveInterval", c.Session.ProactiveInterval)
	validatePositive(&errs, "session.proactiveMargin", c.Session.ProactiveMargin)
	validatePositive(&errs, "session.requestMargin", c.Session.RequestMargin)
	validatePositive(&errs, "session.watchDebounce", c.Session.WatchDebounce)
	validatePositive(&errs, "session.watchPollInterval", c.Session.WatchPollInterval)
	validatePositive(&errs, "heartbeat.interval", c.Heartbeat.Interval)

	if c.Session.RequestMargin > c.Session.ProactiveMargin {
		errs.Add("session.requestMargin", "must not exceed session.proactiveMargin", c.Session.RequestMargin)
	}

	if err := ValidateOneOf("logging.level", strings.ToLower(c.Logging.Level), []string{"debug", "info", "warn", "error"}); err != nil {
		errs = append(errs, err.(ValidationError))
	}
	if err := ValidateOneOf("logging.format", strings.ToLower(c.Logging.Format), []string{"text", "json"}); err != nil {
		errs = append(errs, err.(ValidationError))
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}
