package constants

// Default sync and probing configuration values
const (
	DefaultProbeIntervalSec = 15
	DefaultProbeTimeoutSec  = 5
	DefaultRetryBackoffMs   = 1000
	DefaultMaxBackoffMs     = 60000
	DefaultMaxAttempts      = 5
	DefaultServerPort       = 8084
)

// Default timeout values
const (
	DefaultHTTPTimeoutSec        = 30
	DefaultStoreRetryAttempts    = 3
	DefaultGracefulShutdownSec   = 30
	DefaultBackoffInitialMs      = 500
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 15
	DefaultServerIdleTimeoutSec  = 60
)

// Encryption settings
const (
	NonceSize        = 12
	KeySize          = 32
	PBKDF2Iterations = 100000
	MinSecretLength  = 32
)

// ServerErrorChannelSize is the buffer size for the server error channel
const ServerErrorChannelSize = 1
