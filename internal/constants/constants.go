package constants

import "time"

// File and directory permissions.
const (
	// ConfigDirPerm is the permission for configuration directories.
	ConfigDirPerm = 0750

	// ConfigFilePerm is the permission for configuration files.
	ConfigFilePerm = 0600
)

// HTTP and network timeouts.
const (
	// DefaultRequestTimeout bounds a single GraphQL round trip when the caller gives none.
	DefaultRequestTimeout = 60 * time.Second

	// DefaultAuthTimeout bounds a single authentication round trip.
	DefaultAuthTimeout = 30 * time.Second

	// ShortHTTPTimeout is used for quick operations.
	ShortHTTPTimeout = 10 * time.Second
)

// Retry limits. GraphQL requests are never retried by the transport.
const (
	// DefaultAuthRetryMax is the number of transport retries for authentication requests.
	DefaultAuthRetryMax = 3

	// DefaultRetryWaitMin is the minimum wait between transport retries.
	DefaultRetryWaitMin = 1 * time.Second

	// DefaultRetryWaitMax is the maximum wait between transport retries.
	DefaultRetryWaitMax = 10 * time.Second
)

// Task monitoring.
const (
	// DefaultPollInterval is the first wait between status polls.
	DefaultPollInterval = 2 * time.Second

	// DefaultMaxPollInterval caps the exponential poll backoff.
	DefaultMaxPollInterval = 30 * time.Second

	// DefaultMonitorTimeout is the overall deadline of a monitoring session.
	DefaultMonitorTimeout = 10 * time.Minute

	// DefaultMaxConcurrentPollers bounds the number of concurrent status pollers.
	DefaultMaxConcurrentPollers = 8

	// QuickPollInterval is used by tests.
	QuickPollInterval = 10 * time.Millisecond
)

// Token handling.
const (
	// TokenExpirationBuffer is the buffer time before token expiration.
	TokenExpirationBuffer = 30 * time.Second

	// DefaultTokenLifetime is assumed when a token carries no exp claim.
	DefaultTokenLifetime = 1 * time.Hour

	// Base64PaddingLength is used for base64 padding calculations.
	Base64PaddingLength = 4

	// TokenPartsCount is the expected number of parts in a JWT token.
	TokenPartsCount = 3
)

// Endpoints relative to the API base URL.
const (
	// GraphQLPath is the GraphQL endpoint.
	GraphQLPath = "/graphql"

	// SessionPath is the username/password login endpoint.
	SessionPath = "/session"

	// ClientTokenPath is the service account token endpoint.
	ClientTokenPath = "/client_token"

	// DefaultRootDomain is appended to a bare account domain.
	DefaultRootDomain = "my.rubrik.com"
)

// Operation templates.
const (
	// OperationPlaceholder is the operation name literal rewritten at load time.
	OperationPlaceholder = "RubrikPolarisSDKRequest"

	// DefaultOperationPrefix prefixes generated operation names.
	DefaultOperationPrefix = "SdkGo"

	// TemplateExtension is the file extension of operation templates.
	TemplateExtension = ".graphql"

	// TaskStatusOperation polls the state of a task chain.
	TaskStatusOperation = "core_taskchain_status"

	// AfterVariable carries the pagination cursor.
	AfterVariable = "after"
)

// Token store backends.
const (
	// StoreTypeMemory keeps tokens in process memory.
	StoreTypeMemory = "memory"

	// StoreTypeNATS keeps tokens in a NATS JetStream key-value bucket.
	StoreTypeNATS = "nats"

	// StoreTypeKeyring keeps tokens in the OS keychain.
	StoreTypeKeyring = "keyring"

	// StoreTypeNone disables token persistence.
	StoreTypeNone = "none"

	// DefaultNATSBucket is the key-value bucket name for tokens.
	DefaultNATSBucket = "polaris_tokens"

	// DefaultKeyringService is the keychain service name.
	DefaultKeyringService = "polaris-client"
)

// UI and display constants.
const (
	// NotAvailable is used when information is not available.
	NotAvailable = "N/A"

	// MaskedSecret is used to hide sensitive information.
	MaskedSecret = "***"

	// JSONIndentSize is the number of spaces for JSON indentation.
	JSONIndentSize = 2

	// StringTruncationLength is the default length for truncating strings.
	StringTruncationLength = 80
)

// CLI argument counts.
const (
	// KeyValueArgumentCount is the argument count of "config set KEY VALUE".
	KeyValueArgumentCount = 2

	// DefaultHistoryLimit is the default number of ledger rows listed.
	DefaultHistoryLimit = 20
)

// Format constants.
const (
	// FormatJSON for JSON output format.
	FormatJSON = "json"

	// FormatYAML for YAML output format.
	FormatYAML = "yaml"

	// FormatTable for table output format.
	FormatTable = "table"
)

// Environment lookup for SDK configuration.
const (
	// EnvPrefix is the prefix of configuration environment variables.
	EnvPrefix = "rubrik_"

	// EnvPrefixDeprecated is still read when EnvPrefix yields nothing.
	EnvPrefixDeprecated = "rubrik_polaris_"
)
