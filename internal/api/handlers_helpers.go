// Vigil - Patrol Tracking and Emergency Coordination
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/tomtom215/vigil/internal/validation"
)

// Query parameter bounds.
const (
	DefaultLocationLimit = 100
	MaxLocationLimit     = 1000
	DefaultNearbyK       = 3
	MaxNearbyK           = 20
)

// sanitizeLogValue escapes control characters so user input cannot forge
// log lines.
func sanitizeLogValue(s string) string {
	var result strings.Builder
	result.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7F {
			result.WriteString(fmt.Sprintf("\\x%02x", r))
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// getIntParam parses an integer query parameter. A missing parameter yields
// defaultValue; a malformed one is an error.
func getIntParam(r *http.Request, key string, defaultValue int) (int, error) {
	value := strings.TrimSpace(r.URL.Query().Get(key))
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	return n, nil
}

// parseCommaSeparated parses a comma-separated string into a slice
func parseCommaSeparated(value string) []string {
	if value == "" {
		return nil
	}

	var result []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// validateQuery validates q and writes a 400 when it fails.
func validateQuery(rw *ResponseWriter, q interface{}) bool {
	if verr := validation.ValidateStruct(q); verr != nil {
		rw.ValidationError(verr.Error(), verr.Details())
		return false
	}
	return true
}

// validPathID checks a patrol or alert id taken from the URL.
func validPathID(rw *ResponseWriter, id string) bool {
	if err := validation.ValidateVar(id, "required,patrolid"); err != nil {
		rw.BadRequest("invalid id")
		return false
	}
	return true
}
