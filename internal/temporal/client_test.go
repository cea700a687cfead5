package temporal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/api/serviceerror"
)

func TestJobError(t *testing.T) {
	t.Run("message names op, job and cause", func(t *testing.T) {
		err := &JobError{
			Op:    "Submit",
			Kind:  ErrWorkflowAlreadyStarted,
			JobID: "reconcile-author-7-abc",
			Err:   errors.New("rpc error"),
		}
		assert.Equal(t, "temporal Submit reconcile-author-7-abc: workflow already started: rpc error", err.Error())
	})

	t.Run("message without job", func(t *testing.T) {
		err := &JobError{Op: "Health", Kind: ErrConnectionFailed}
		assert.Equal(t, "temporal Health: job runner unavailable", err.Error())
	})

	t.Run("matches kind and unwraps cause", func(t *testing.T) {
		cause := errors.New("boom")
		var err error = &JobError{Op: "Status", Kind: ErrWorkflowNotFound, Err: cause}

		assert.True(t, errors.Is(err, ErrWorkflowNotFound))
		assert.True(t, errors.Is(err, cause))
		assert.False(t, errors.Is(err, ErrConnectionFailed))
	})

	t.Run("kind survives further wrapping", func(t *testing.T) {
		err := fmt.Errorf("submit author 7: %w", &JobError{Op: "Submit", Kind: ErrClientClosed})
		assert.True(t, errors.Is(err, ErrClientClosed))
	})
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"not found", serviceerror.NewNotFound("missing"), ErrWorkflowNotFound},
		{"already started", serviceerror.NewWorkflowExecutionAlreadyStarted("running", "req", "run"), ErrWorkflowAlreadyStarted},
		{"namespace missing", serviceerror.NewNamespaceNotFound("pubtrack"), ErrRequestRejected},
		{"permission denied", serviceerror.NewPermissionDenied("no", ""), ErrRequestRejected},
		{"invalid argument", serviceerror.NewInvalidArgument("bad"), ErrRequestRejected},
		{"unavailable", serviceerror.NewUnavailable("down"), ErrConnectionFailed},
		{"deadline", context.DeadlineExceeded, ErrConnectionFailed},
		{"canceled", context.Canceled, ErrClientClosed},
		{"transport", errors.New("connection refused"), ErrConnectionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.err))
		})
	}
}

func TestJobErrorHelper(t *testing.T) {
	assert.NoError(t, jobError("Submit", "job-1", nil))

	err := jobError("Status", "job-1", serviceerror.NewNotFound("gone"))
	var je *JobError
	require.True(t, errors.As(err, &je))
	assert.Equal(t, "Status", je.Op)
	assert.Equal(t, "job-1", je.JobID)
	assert.True(t, IsWorkflowNotFound(err))
	assert.False(t, IsWorkflowAlreadyStarted(err))
	assert.False(t, IsConnectionFailed(err))
}

func TestClientConfig_TLS(t *testing.T) {
	t.Run("disabled without files", func(t *testing.T) {
		assert.False(t, ClientConfig{ServerName: "temporal.internal"}.tlsEnabled())
	})

	t.Run("certificate requires key", func(t *testing.T) {
		cfg := ClientConfig{CertFile: "client.pem"}
		require.True(t, cfg.tlsEnabled())
		_, err := cfg.tlsConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "key file is required")
	})

	t.Run("missing key pair", func(t *testing.T) {
		dir := t.TempDir()
		_, err := ClientConfig{
			CertFile: filepath.Join(dir, "client.pem"),
			KeyFile:  filepath.Join(dir, "client.key"),
		}.tlsConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "load key pair")
	})

	t.Run("missing CA bundle", func(t *testing.T) {
		_, err := ClientConfig{CAFile: filepath.Join(t.TempDir(), "ca.pem")}.tlsConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "read CA bundle")
	})

	t.Run("CA bundle without certificates", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "ca.pem")
		require.NoError(t, os.WriteFile(path, []byte("not a certificate"), 0o600))

		_, err := ClientConfig{CAFile: path}.tlsConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no certificates")
	})
}

func TestNewClient_RejectsBadTLS(t *testing.T) {
	_, err := NewClient(ClientConfig{
		HostPort: "localhost:7233",
		CAFile:   filepath.Join(t.TempDir(), "missing.pem"),
	}, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "temporal TLS")
}
