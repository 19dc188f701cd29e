// Copyright (C) 2025 Vibes Labs (oss@vibeslabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package validation provides input validation for user-provided values
// that end up in database identifiers or queries.
//
// Experiment names become table names in the catalog, so validating them
// here prevents SQL identifier injection at the outermost boundary.
package validation

import (
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
)

// experimentNamePattern matches valid experiment (and therefore table)
// names: a letter or underscore, then letters, digits, underscores, or
// hyphens, at most 64 characters total.
var experimentNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]{0,63}$`)

// validate is the shared validator instance. validator.Validate caches
// struct metadata internally and is safe for concurrent use.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Register the experiment_name rule used by request structs.
	_ = v.RegisterValidation("experiment_name", func(fl validator.FieldLevel) bool {
		return experimentNamePattern.MatchString(fl.Field().String())
	})
	return v
}

// Struct validates any struct carrying validate tags, including the
// custom experiment_name rule.
//
// Example:
//
//	type CreateRequest struct {
//	    Name string `validate:"required,experiment_name"`
//	}
//	if err := validation.Struct(req); err != nil { ... }
func Struct(s any) error {
	return validate.Struct(s)
}

// ValidateExperimentName validates a single experiment name.
func ValidateExperimentName(name string) error {
	if name == "" {
		return fmt.Errorf("experiment name cannot be empty")
	}
	if !experimentNamePattern.MatchString(name) {
		return fmt.Errorf("invalid experiment name %q: must start with a letter or underscore "+
			"and contain only letters, digits, underscores, or hyphens (max 64 chars)", name)
	}
	return nil
}
