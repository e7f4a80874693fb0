package domain

// Category groups error codes for callers that render or route failures.
type Category string

const (
	CategoryInput       Category = "input"
	CategoryPermission  Category = "permission"
	CategoryTarget      Category = "target"
	CategoryBrowser     Category = "browser"
	CategoryNetwork     Category = "network"
	CategoryTimeout     Category = "timeout"
	CategoryRateLimited Category = "rate_limited"
	CategoryUnknown     Category = "unknown"
)

// Classification is the classifier's verdict for a single error code.
type Classification struct {
	Category           Category
	Retryable          bool
	RequiresUserAction bool
	Hint               RecoveryHint
}
