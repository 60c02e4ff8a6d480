package entities

import "fmt"

// ConfigurationError reports a provider choice that cannot be constructed:
// a missing credential or an unsupported provider/model combination. It is
// raised at factory time, before any network call is attempted.
type ConfigurationError struct {
	Provider string
	Reason   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error for %s: %s", e.Provider, e.Reason)
}

// ProvisioningError reports a failure to acquire a transport endpoint from
// the upstream provider. The whole trigger is safe to retry: no session is
// committed until provisioning succeeds.
type ProvisioningError struct {
	Provider string
	Err      error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("provisioning failed (%s): %v", e.Provider, e.Err)
}

func (e *ProvisioningError) Unwrap() error { return e.Err }

// InvalidTransitionError reports an illegal session state transition. This
// is always a programming defect (typically a double-finalization bug) and
// must never be silently ignored.
type InvalidTransitionError struct {
	SessionID string
	From      SessionState
	To        SessionState
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid session transition %s -> %s for session %s", e.From, e.To, e.SessionID)
}

// PersistenceError reports a durable-store failure during finalization. The
// session state machine stays terminal; retrying is the store owner's
// concern, not this core's.
type PersistenceError struct {
	Op  string
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s failed for %q: %v", e.Op, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
