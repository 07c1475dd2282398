// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tools

import "fmt"

// ValidationError reports malformed tool input. Never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewValidationError creates a ValidationError.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// ConfigurationError reports a tool invoked while its feature is disabled
// or a required backend is missing. Never retried.
type ConfigurationError struct {
	Feature string
	Hint    string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s is not available: %s", e.Feature, e.Hint)
}

// NewConfigurationError creates a ConfigurationError.
func NewConfigurationError(feature, hint string) *ConfigurationError {
	return &ConfigurationError{Feature: feature, Hint: hint}
}

// Envelope wraps a tool result in the success/error JSON shape.
func Envelope(result map[string]any) map[string]any {
	if result == nil {
		result = map[string]any{}
	}
	if _, ok := result["success"]; !ok {
		result["success"] = true
	}
	return result
}

// ErrorEnvelope wraps a tool failure.
func ErrorEnvelope(err error) map[string]any {
	return map[string]any{"success": false, "error": err.Error()}
}
