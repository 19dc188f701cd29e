// Copyright (C) 2025 Vibes Labs (oss@vibeslabs.dev)
// Tests for the fault taxonomy

package faults

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{ErrAlreadyExists, http.StatusConflict},
		{ErrNotFound, http.StatusNotFound},
		{ErrArtifactMissing, http.StatusInternalServerError},
		{ErrInvalidData, http.StatusBadRequest},
		{ErrTimeout, http.StatusGatewayTimeout},
		{ErrCatalogUnavailable, http.StatusServiceUnavailable},
		{ErrArtifactStoreUnavailable, http.StatusServiceUnavailable},
		{ErrCacheCorrupted, http.StatusInternalServerError},
		{ErrBuildFailed, http.StatusInternalServerError},
		{fmt.Errorf("anything else"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, HTTPStatus(tc.err), tc.err.Error())
	}
}

func TestHTTPStatus_Wrapped(t *testing.T) {
	err := fmt.Errorf("create experiment exp1: %w", ErrAlreadyExists)
	assert.Equal(t, http.StatusConflict, HTTPStatus(err))
}

func TestFromContext(t *testing.T) {
	assert.NoError(t, FromContext(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), -time.Second)
	defer cancel()
	assert.ErrorIs(t, FromContext(ctx), ErrTimeout)

	canceled, cancelNow := context.WithCancel(context.Background())
	cancelNow()
	assert.ErrorIs(t, FromContext(canceled), context.Canceled)
}
