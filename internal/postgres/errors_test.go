package postgres_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"pgshortener/internal/postgres"

	"github.com/stretchr/testify/assert"
)

func TestError_KindHierarchy(t *testing.T) {
	testCases := []struct {
		kind      error
		matches   []error
		unmatched []error
	}{
		{
			kind:      postgres.ErrExecute,
			matches:   []error{postgres.ErrExecute, postgres.ErrStore},
			unmatched: []error{postgres.ErrPool, postgres.ErrConfig},
		},
		{
			kind:      postgres.ErrConnect,
			matches:   []error{postgres.ErrConnect, postgres.ErrPool, postgres.ErrStore},
			unmatched: []error{postgres.ErrReset, postgres.ErrExecute},
		},
		{
			kind:      postgres.ErrReset,
			matches:   []error{postgres.ErrReset, postgres.ErrPool, postgres.ErrStore},
			unmatched: []error{postgres.ErrConnect},
		},
		{
			kind:      postgres.ErrAcquireTimeout,
			matches:   []error{postgres.ErrAcquireTimeout, postgres.ErrPool, postgres.ErrStore},
			unmatched: []error{postgres.ErrPoolClosed},
		},
		{
			kind:      postgres.ErrNotImplemented,
			matches:   []error{postgres.ErrNotImplemented, postgres.ErrStore},
			unmatched: []error{postgres.ErrPool},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.kind.Error(), func(t *testing.T) {
			err := &postgres.Error{Kind: tc.kind, Op: "test"}
			for _, target := range tc.matches {
				assert.ErrorIs(t, err, target)
			}
			for _, target := range tc.unmatched {
				assert.NotErrorIs(t, err, target)
			}
		})
	}
}

func TestError_SurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("finding record: %w", &postgres.Error{Kind: postgres.ErrAcquireTimeout, Op: "acquire"})
	assert.ErrorIs(t, err, postgres.ErrPool)
}

func TestError_UnwrapsCause(t *testing.T) {
	err := &postgres.Error{Kind: postgres.ErrPool, Op: "acquire", Err: context.Canceled}
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, errors.Is(err, postgres.ErrPool))
}

func TestError_Message(t *testing.T) {
	err := &postgres.Error{Kind: postgres.ErrExecute, Op: "execute", Msg: "ERROR: syntax error at or near \"SELEC\"\n"}
	assert.Equal(t, `postgres: execute: execute failed: ERROR: syntax error at or near "SELEC"`, err.Error())

	cfgErr := &postgres.Error{Kind: postgres.ErrConfig, Op: "config", Field: "host", Msg: "field host cannot be empty"}
	assert.Equal(t, "postgres: config: invalid connection config (field host): field host cannot be empty", cfgErr.Error())
}
