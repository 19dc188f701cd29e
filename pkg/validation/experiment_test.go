// Copyright (C) 2025 Vibes Labs (oss@vibeslabs.dev)
// Tests for experiment name validation

package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateExperimentName_Valid(t *testing.T) {
	for _, name := range []string{
		"exp1",
		"_private",
		"ab-test-2025",
		"A",
		strings.Repeat("x", 64),
	} {
		assert.NoError(t, ValidateExperimentName(name), name)
	}
}

func TestValidateExperimentName_Invalid(t *testing.T) {
	for _, name := range []string{
		"",
		"1-leading-digit",
		"-leading-hyphen",
		"has space",
		"semi;colon",
		`quote"name`,
		"drop table; --",
		strings.Repeat("x", 65),
	} {
		assert.Error(t, ValidateExperimentName(name), name)
	}
}

func TestStruct_ExperimentNameRule(t *testing.T) {
	type request struct {
		Name string `validate:"required,experiment_name"`
	}

	assert.NoError(t, Struct(request{Name: "exp1"}))
	assert.Error(t, Struct(request{Name: "not valid!"}))
	assert.Error(t, Struct(request{}))
}
