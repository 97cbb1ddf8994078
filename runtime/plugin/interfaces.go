package plugin

import (
	"github.com/BDNK1/nodeflow/runtime"
)

// Initializer is a type alias to runtime.Initializer.
// Plugins implementing this interface will have Initialize called before any
// flow runs.
//
// # When to Implement
//
// Implement Initializer when your plugin needs to:
//   - Initialize HTTP clients with connection pools
//   - Validate external service availability
//   - Setup internal caches or state
//
// # Error Handling
//
// If Initialize returns an error, the host fails to start.
type Initializer = runtime.Initializer

// Shutdowner is a type alias to runtime.Shutdowner.
// Plugins implementing this interface will have Shutdown called during
// graceful shutdown, in reverse order of registration.
type Shutdowner = runtime.Shutdowner

// Approver answers manual approval requests.
type Approver = runtime.Approver
