// Package store provides durable key-value persistence for session state
// such as tokens and cached resources.
package store

// KeyValueStore defines the persistence operations the SDK relies on. Writes
// are durable before the call returns so a process restart can resume a
// session.
type KeyValueStore interface {
	Set(key string, value []byte) error
	Get(key string) ([]byte, error)
	Delete(key string) error
	Close() error
}
