// ABOUTME: ConnectivityDetector is the external collaborator the engine
// ABOUTME: observes for offline/online transitions (spec section 6).
package syncx

// ConnectivityDetector yields true when both link-level connectivity
// exists and an unmetered reachability probe succeeds (spec section 6). It
// is an external collaborator; internal/connprobe provides a reference
// implementation. Implementations must coalesce duplicate states.
type ConnectivityDetector interface {
	IsOnline() bool
	Changes() <-chan bool
	Close() error
}
