package log

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldRequestID   = "request_id"
	FieldClientIP    = "client_ip"
	FieldMethod      = "method"
	FieldPath        = "path"
	FieldStatusCode  = "status_code"
	FieldDuration    = "duration_ms"
	FieldUserAgent   = "user_agent"
	FieldError       = "error"
	FieldOperation   = "operation"
	FieldCacheKey    = "cache_key"
	FieldCacheSize   = "cache_size"
	FieldWindow      = "window"
	FieldGranularity = "granularity"
	FieldRecords     = "records"
	FieldSkipped     = "skipped"
	FieldBuckets     = "buckets"
	FieldBaseColor   = "base_color"
	FieldBackend     = "backend"
)

// Components
const (
	ComponentApp     = "app"
	ComponentHTTP    = "http"
	ComponentCache   = "cache"
	ComponentFetch   = "fetch"
	ComponentSeries  = "series"
	ComponentSource  = "source"
	ComponentStorage = "storage"
	ComponentSheets  = "sheets"
	ComponentAMQP    = "amqp"
	ComponentWorker  = "worker"
	ComponentSeed    = "seed"
)

// Operations
const (
	OpFetch      = "fetch"
	OpAggregate  = "aggregate"
	OpDerive     = "derive_colors"
	OpInvalidate = "invalidate"
	OpSweep      = "sweep"
	OpImport     = "import"
	OpStartup    = "startup"
	OpShutdown   = "shutdown"
)
