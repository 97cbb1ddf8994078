package runtime

import (
	"context"
	"net/http"
)

// Handler implements the behaviour bound to a node type.
type Handler interface {
	Execute(nc *NodeContext) (any, error)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(nc *NodeContext) (any, error)

func (f HandlerFunc) Execute(nc *NodeContext) (any, error) {
	return f(nc)
}

// Approver answers manual approval requests. Implementations may block until
// a human decides or ctx is done.
type Approver interface {
	Confirm(ctx context.Context, title, message string) (bool, error)
}

// ApproverFunc adapts a plain function to Approver.
type ApproverFunc func(ctx context.Context, title, message string) (bool, error)

func (f ApproverFunc) Confirm(ctx context.Context, title, message string) (bool, error) {
	return f(ctx, title, message)
}

// Initializer interface allows plugins to perform startup initialization.
// Plugins implementing this interface will have Initialize called by
// Registry.Initialize before any flow runs.
type Initializer interface {
	Initialize(ctx context.Context) error
}

// Shutdowner interface allows plugins to perform graceful shutdown.
// Shutdown is called in reverse registration order.
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}

// API is the side-effect surface handed to handlers. Any member may be nil
// when the host does not provide it.
type API struct {
	HTTP     HTTPClient
	Shell    ShellRunner
	Notifier Notifier
}

type HTTPClient interface {
	Get(ctx context.Context, url string, headers map[string]string) (*HTTPResponse, error)
	Post(ctx context.Context, url string, headers map[string]string, body any) (*HTTPResponse, error)
	Do(ctx context.Context, method, url string, headers map[string]string, body any) (*HTTPResponse, error)
}

type HTTPResponse struct {
	StatusCode int         `json:"statusCode"`
	Status     string      `json:"status"`
	Headers    http.Header `json:"headers"`
	Body       string      `json:"body"`
	// JSON holds the decoded body when it parsed as JSON.
	JSON any `json:"json,omitempty"`
}

// Value is what a handler returns for a response: the decoded JSON when
// present, the raw body otherwise.
func (r *HTTPResponse) Value() any {
	if r.JSON != nil {
		return r.JSON
	}
	return r.Body
}

type ShellRunner interface {
	Run(ctx context.Context, command string, args []string, workDir string) (*CommandResult, error)
}

type CommandResult struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exitCode"`
}

type Notifier interface {
	Notify(ctx context.Context, title, message string) error
}
