package log

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldMessageID   = "message_id"
	FieldUserID      = "user_id"
	FieldExpenseID   = "expense_id"
	FieldCategory    = "category"
	FieldPeriod      = "period"
	FieldAmountCents = "amount_cents"
	FieldDuration    = "duration_ms"
	FieldSuccess     = "success"
	FieldError       = "error"
	FieldErrorType   = "error_type"
	FieldOperation   = "operation"
	FieldSheetsRef   = "sheets_ref"
)

// Components defines standard component names
const (
	ComponentApp     = "app"
	ComponentCLI     = "cli"
	ComponentAMQP    = "amqp"
	ComponentWorker  = "worker"
	ComponentAI      = "ai"
	ComponentAdvisor = "advisor"
)

// Operations defines standard operation names
const (
	OpRecord   = "record"
	OpIngest   = "ingest"
	OpUpsert   = "upsert"
	OpAppend   = "append"
	OpAnalyze  = "analyze"
	OpAsk      = "ask"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
)

// ErrorTypes defines standard error type categories
const (
	ErrorTypeValidation    = "validation_error"
	ErrorTypeConfiguration = "configuration_error"
	ErrorTypeDatabase      = "database_error"
	ErrorTypeNetwork       = "network_error"
	ErrorTypeTimeout       = "timeout_error"
	ErrorTypeNotFound      = "not_found_error"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithComponent adds component field
func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithError adds error and error type fields
func (f LogFields) WithError(err error, errType string) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
		f[FieldErrorType] = errType
	}
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithMessage adds the AMQP message id
func (f LogFields) WithMessage(id string) LogFields {
	f[FieldMessageID] = id
	return f
}

// WithExpense adds expense-related fields
func (f LogFields) WithExpense(id, userID int64, category string, amountCents int64) LogFields {
	f[FieldExpenseID] = id
	f[FieldUserID] = userID
	f[FieldCategory] = category
	f[FieldAmountCents] = amountCents
	return f
}

// WithDuration adds duration and success fields
func (f LogFields) WithDuration(ms int64, success bool) LogFields {
	f[FieldDuration] = ms
	f[FieldSuccess] = success
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
