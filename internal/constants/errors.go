package constants

import "errors"

// Configuration errors.
var (
	ErrNoBaseURL           = errors.New("no API base URL or domain configured")
	ErrNoCredentials       = errors.New("no credentials configured")
	ErrConflictingFlows    = errors.New("more than one authentication flow configured")
	ErrInvalidKeyfile      = errors.New("invalid service account keyfile")
	ErrInvalidProxyURL     = errors.New("invalid proxy URL")
	ErrProxyRefused        = errors.New("proxy refused CONNECT")
	ErrUnknownStoreType    = errors.New("unknown token store type")
	ErrNATSURLRequired     = errors.New("NATS URL is required for the nats token store")
	ErrNotLoggedIn         = errors.New("not logged in, use 'polaris login' first")
	ErrInvalidVariableFlag = errors.New("invalid --var value, expected key=value")
	ErrUnknownConfigKey    = errors.New("unknown configuration key")
	ErrInvalidConfigValue  = errors.New("invalid configuration value")
	ErrNoUsername          = errors.New("username is required")
	ErrTasksNotSucceeded   = errors.New("not every task chain succeeded")
)

// Token errors.
var (
	ErrInvalidJWTFormat     = errors.New("invalid JWT format")
	ErrNoExpirationClaim    = errors.New("no expiration claim found")
	ErrTokenNotFound        = errors.New("token not found")
	ErrCredentialsDiscarded = errors.New("credentials were discarded after the first login")
	ErrStaticToken          = errors.New("static access token cannot be renewed")
)

// Template errors.
var (
	ErrNoOperation         = errors.New("template contains no operation")
	ErrMultipleOperations  = errors.New("template contains more than one operation")
	ErrNoSelectionField    = errors.New("template selects no field")
	ErrDuplicateOperation  = errors.New("duplicate operation name")
	ErrUnknownOperation    = errors.New("unknown operation")
	ErrMissingVariable     = errors.New("required variable not provided")
	ErrListVariable        = errors.New("list variable requires a list value")
	ErrInvalidTimeout      = errors.New("timeout must be greater than zero")
	ErrMissingCursor       = errors.New("hasNextPage is true but endCursor is empty")
	ErrNoTaskHandle        = errors.New("no task handle found in response")
	ErrUnexpectedTaskState = errors.New("task status response carries no state")
)
