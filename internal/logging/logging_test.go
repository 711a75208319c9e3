package logging

import (
	"context"
	"testing"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	log, err := New("dev", "debug")
	require.NoError(t, err)
	assert.True(t, log.V(1).Enabled())

	log, err = New("production", "")
	require.NoError(t, err)
	assert.False(t, log.V(1).Enabled())

	_, err = New("dev", "loud")
	require.Error(t, err)
}

func TestContextRoundTrip(t *testing.T) {
	want := testr.New(t).WithName("req")
	ctx := IntoContext(context.Background(), want)
	assert.Equal(t, want, FromContext(ctx, logr.Discard()))

	fallback := logr.Discard()
	assert.Equal(t, fallback, FromContext(context.Background(), fallback))
}
