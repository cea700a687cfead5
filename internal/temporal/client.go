package temporal

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"

	"github.com/yohaboy/research-tracker/internal/observability"
)

// Workflow type names. Workflows are started by name so that the scheduler
// does not depend on the workflows package.
const (
	WorkflowReconcileAuthor = "ReconcileAuthorWorkflow"
	WorkflowReconcileAll    = "ReconcileAllWorkflow"
)

const (
	// DefaultAuthorJobTimeout bounds one author workflow when the config leaves it unset.
	DefaultAuthorJobTimeout = 30 * time.Minute

	// DefaultFanOutTimeout bounds a reconcile-all workflow. The fan-out only
	// submits child jobs, so it finishes long before its children do.
	DefaultFanOutTimeout = 30 * time.Minute

	// DefaultHealthCheckTimeout bounds a Temporal health check.
	DefaultHealthCheckTimeout = 5 * time.Second
)

// Failure kinds of scheduler operations. Match them with errors.Is.
var (
	// ErrWorkflowNotFound means the job ID names no workflow execution.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrWorkflowAlreadyStarted means a workflow with the same ID is running.
	ErrWorkflowAlreadyStarted = errors.New("workflow already started")

	// ErrConnectionFailed means the Temporal frontend could not serve the call.
	ErrConnectionFailed = errors.New("job runner unavailable")

	// ErrClientClosed means the scheduler was closed or the caller gave up.
	ErrClientClosed = errors.New("client closed")

	// ErrRequestRejected means Temporal refused the call: bad namespace,
	// missing permission or a malformed request.
	ErrRequestRejected = errors.New("request rejected")
)

// JobError describes a failed scheduler operation on one job.
type JobError struct {
	Op    string // Submit, SubmitAll, Status or Health
	Kind  error  // one of the Err* failure kinds
	JobID string // empty for Health
	Err   error  // SDK error, if any
}

func (e *JobError) Error() string {
	msg := "temporal " + e.Op
	if e.JobID != "" {
		msg += " " + e.JobID
	}
	msg += ": " + e.Kind.Error()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *JobError) Unwrap() error { return e.Err }

// Is matches the failure kind, so errors.Is(err, ErrWorkflowNotFound) works
// without exposing SDK error types to callers.
func (e *JobError) Is(target error) bool { return e.Kind == target }

// classify maps a Temporal SDK error onto a failure kind.
func classify(err error) error {
	var (
		notFound       *serviceerror.NotFound
		alreadyStarted *serviceerror.WorkflowExecutionAlreadyStarted
		nsNotFound     *serviceerror.NamespaceNotFound
		denied         *serviceerror.PermissionDenied
		invalid        *serviceerror.InvalidArgument
	)
	switch {
	case errors.As(err, &alreadyStarted):
		return ErrWorkflowAlreadyStarted
	case errors.As(err, &notFound):
		return ErrWorkflowNotFound
	case errors.As(err, &nsNotFound), errors.As(err, &denied), errors.As(err, &invalid):
		return ErrRequestRejected
	case errors.Is(err, context.Canceled):
		return ErrClientClosed
	default:
		// Unavailable, ResourceExhausted, deadlines and transport errors.
		return ErrConnectionFailed
	}
}

// jobError wraps an SDK error for op on jobID. A nil err stays nil.
func jobError(op, jobID string, err error) error {
	if err == nil {
		return nil
	}
	return &JobError{Op: op, Kind: classify(err), JobID: jobID, Err: err}
}

// IsWorkflowNotFound reports whether err means the job is unknown to Temporal.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsWorkflowAlreadyStarted reports whether err means the job is already running.
func IsWorkflowAlreadyStarted(err error) bool {
	return errors.Is(err, ErrWorkflowAlreadyStarted)
}

// IsConnectionFailed reports whether err means Temporal could not be reached.
func IsConnectionFailed(err error) bool {
	return errors.Is(err, ErrConnectionFailed)
}

// ClientConfig configures the Temporal client and the scheduler built on it.
type ClientConfig struct {
	HostPort  string
	Namespace string

	// TaskQueue is where reconciliation workflows are started.
	TaskQueue string

	// AuthorJobTimeout bounds one author workflow. Zero uses DefaultAuthorJobTimeout.
	AuthorJobTimeout time.Duration

	// HealthCheckTimeout bounds Health. Zero uses DefaultHealthCheckTimeout.
	HealthCheckTimeout time.Duration

	// mTLS towards Temporal Cloud or a secured frontend. TLS is off unless
	// CertFile or CAFile is set.
	CertFile   string
	KeyFile    string
	CAFile     string
	ServerName string
}

func (c ClientConfig) tlsEnabled() bool {
	return c.CertFile != "" || c.CAFile != ""
}

// tlsConfig loads the client certificate pair and CA bundle named by the config.
func (c ClientConfig) tlsConfig() (*tls.Config, error) {
	conf := &tls.Config{
		ServerName: c.ServerName,
		MinVersion: tls.VersionTLS12,
	}

	if c.CertFile != "" {
		if c.KeyFile == "" {
			return nil, errors.New("temporal TLS: key file is required with a certificate")
		}
		pair, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("temporal TLS: load key pair: %w", err)
		}
		conf.Certificates = []tls.Certificate{pair}
	}

	if c.CAFile != "" {
		pem, err := os.ReadFile(c.CAFile)
		if err != nil {
			return nil, fmt.Errorf("temporal TLS: read CA bundle: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("temporal TLS: no certificates in %s", c.CAFile)
		}
		conf.RootCAs = pool
	}

	return conf, nil
}

// NewClient dials Temporal. SDK log output goes through logger.
func NewClient(cfg ClientConfig, logger zerolog.Logger) (client.Client, error) {
	options := client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
		Logger:    observability.NewTemporalLogger(logger),
	}

	if cfg.tlsEnabled() {
		conf, err := cfg.tlsConfig()
		if err != nil {
			return nil, err
		}
		options.ConnectionOptions.TLS = conf
	}

	c, err := client.Dial(options)
	if err != nil {
		return nil, fmt.Errorf("dial temporal at %s: %w", cfg.HostPort, err)
	}
	return c, nil
}
