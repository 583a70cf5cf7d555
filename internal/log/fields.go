package log

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldUserID      = "user_id"
	FieldSessionID   = "session_id"
	FieldGroup       = "group"
	FieldEvent       = "event"
	FieldRecordID    = "record_id"
	FieldKind        = "kind"
	FieldAmountCents = "amount_cents"
	FieldMonthKey    = "month_key"
	FieldYear        = "year"
	FieldMonth       = "month"
	FieldError       = "error"
	FieldQueue       = "queue"
	FieldExchange    = "exchange"
	FieldRemoteAddr  = "remote_addr"
	FieldReason      = "reason"
)

// Components defines standard component names
const (
	ComponentApp      = "app"
	ComponentHTTP     = "http"
	ComponentRealtime = "realtime"
	ComponentAlerts   = "alerts"
	ComponentStorage  = "storage"
	ComponentAMQP     = "amqp"
	ComponentMail     = "mail"
	ComponentWorker   = "worker"
)
