package domain

import "time"

// Normative gateway limits. These are compiled defaults that can be
// overridden via configuration.
const (
	// Event limits
	MaxEventPayloadChars = 2000 // Max characters in a single event payload
	MaxFrameSize         = 16 * 1024

	// Rate limiting (fixed window, per user or per source address)
	EventRateLimit        = 100              // Max events per window per key
	EventRateWindow       = 60 * time.Second // Fixed window length
	SustainedAbuseCeiling = 20               // Consecutive violations before disconnect

	// Connection ceilings
	MaxConnections      = 10000 // Global concurrent connection ceiling
	MaxConnectionsPerIP = 20    // Max concurrent connections from a single address

	// Batching pipeline
	BatchFlushInterval = 50 * time.Millisecond // Max time an event waits in a queue
	BatchMaxSize       = 100                   // Queue length that triggers an early flush
	BatchQueueCeiling  = 1000                  // Hard per-queue ceiling; oldest dropped beyond this

	// Presence
	PresenceGracePeriod = 5 * time.Second // Delay before a user is declared offline

	// Buffer limits (per-connection backpressure)
	OutboundBufferSize = 256 // Frames buffered per connection before disconnect

	// Heartbeat configuration
	HeartbeatInterval = 30 * time.Second // Server sends ping every 30s
	HeartbeatTimeout  = 60 * time.Second // Silence window before force-close
	HandshakeTimeout  = 10 * time.Second // Client must present a credential within this

	// Identity cache
	CredentialCacheTTL = 5 * time.Minute  // Decoded credential cache lifetime
	UserRecordCacheTTL = 15 * time.Minute // Resolved user record cache lifetime

	// Reconnection tokens
	ReconnectTokenLifetime = 1 * time.Hour

	// Supervisor cadence
	MetricsInterval = 1 * time.Second
	CleanupInterval = 5 * time.Minute

	// Worker pool for fire-and-forget persistence
	WorkerPoolSize   = 4
	WorkerQueueDepth = 256

	// Timeout contracts
	RedisTimeout    = 2 * time.Second // Max time for Redis operations
	DynamoDBTimeout = 5 * time.Second // Max time for DynamoDB operations

	// Graceful shutdown
	GracefulShutdownTimeout = 30 * time.Second
	ShutdownDrainDelay      = 2 * time.Second // Let load balancers propagate endpoint removal
	ShutdownHTTPTimeout     = 10 * time.Second
	ShutdownOTELTimeout     = 5 * time.Second
)

// Role identifies what a user is to a wedding. Roles are carried in the
// bearer credential and attached to outbound events.
type Role string

const (
	RoleCouple Role = "couple"
	RoleVendor Role = "vendor"
	RoleGuest  Role = "guest"
	RoleStaff  Role = "staff"
)

// IsValidRole checks if a role is one of the known wedding roles.
func IsValidRole(r Role) bool {
	switch r {
	case RoleCouple, RoleVendor, RoleGuest, RoleStaff:
		return true
	}
	return false
}
