package redis

// Redis key naming conventions for docket data.
// All keys are prefixed to avoid collisions; the prefix is configurable
// with WithKeyPrefix.

const defaultKeyPrefix = "docket:"

// queueKey returns the key holding one queue document: docket:queue:{name}
func (s *Store) queueKey(name string) string { return s.prefix + "queue:" + name }
