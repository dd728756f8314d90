package warehouse

import "fmt"

// ConfigurationError reports a connection profile that is missing or
// cannot be turned into a driver handle.
type ConfigurationError struct {
	Name string
	Err  error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("connection %q: %v", e.Name, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// QueryExecutionError wraps a failure reported by the data source while
// running a query: network, auth, or SQL errors alike.
type QueryExecutionError struct {
	Query string
	Err   error
}

func (e *QueryExecutionError) Error() string {
	return fmt.Sprintf("query %q: %v", e.Query, e.Err)
}

func (e *QueryExecutionError) Unwrap() error { return e.Err }
