package store

import (
	"strings"
)

var consistencyLevels = map[string]bool{
	"Strong":           true,
	"BoundedStaleness": true,
	"Session":          true,
	"Eventual":         true,
	"ConsistentPrefix": true,
}

// ValidateRequestOptions rejects option values that could never be sent.
// A nil options value is valid.
func ValidateRequestOptions(opts *RequestOptions) error {
	if opts == nil {
		return nil
	}
	for _, f := range []struct{ name, value string }{
		{"IfMatch", opts.IfMatch},
		{"IfNoneMatch", opts.IfNoneMatch},
		{"PartitionKey", opts.PartitionKey},
		{"SessionToken", opts.SessionToken},
	} {
		if err := validateHeaderValue(f.name, f.value); err != nil {
			return err
		}
	}
	if opts.IfMatch != "" && opts.IfNoneMatch != "" {
		return &ValidationError{Field: "IfNoneMatch", Reason: "cannot be combined with IfMatch"}
	}
	if opts.ConsistencyLevel != "" && !consistencyLevels[opts.ConsistencyLevel] {
		return &ValidationError{Field: "ConsistencyLevel", Reason: "unknown level " + opts.ConsistencyLevel}
	}
	for _, t := range append(append([]string{}, opts.PreTriggers...), opts.PostTriggers...) {
		if strings.TrimSpace(t) == "" {
			return &ValidationError{Field: "Triggers", Reason: "empty trigger name"}
		}
	}
	return nil
}

// ValidateFeedOptions rejects option values that could never be sent.
// A nil options value is valid.
func ValidateFeedOptions(opts *FeedOptions) error {
	if opts == nil {
		return nil
	}
	if opts.MaxItemCount < 0 {
		return &ValidationError{Field: "MaxItemCount", Reason: "must not be negative"}
	}
	for _, f := range []struct{ name, value string }{
		{"Continuation", opts.Continuation},
		{"PartitionKey", opts.PartitionKey},
		{"SessionToken", opts.SessionToken},
	} {
		if err := validateHeaderValue(f.name, f.value); err != nil {
			return err
		}
	}
	return nil
}

// validateHeaderValue rejects values that are set but blank, or that
// contain line breaks.
func validateHeaderValue(name, value string) error {
	if value == "" {
		return nil
	}
	if strings.TrimSpace(value) == "" {
		return &ValidationError{Field: name, Reason: "blank value"}
	}
	if strings.ContainsAny(value, "\r\n") {
		return &ValidationError{Field: name, Reason: "contains a line break"}
	}
	return nil
}
