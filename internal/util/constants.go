package util

const (
	DateFormat = "2006-01-02"
	TimeFormat = "2006-01-02 15:04:05"
)

// gin 上下文键
const (
	ContextUserKey      = "user"
	ContextRequestIDKey = "requestId"
	HeaderRequestID     = "X-Request-ID"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	DefaultTopLimit = 10
)
