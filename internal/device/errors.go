package device

// Wire error codes returned in RESPONSE payloads.
const (
	CodeDeviceBusy         = "DEVICE_BUSY"
	CodeNoActiveCook       = "NO_ACTIVE_COOK"
	CodeInvalidTemperature = "INVALID_TEMPERATURE"
	CodeInvalidTimer       = "INVALID_TIMER"
	CodeInvalidCommand     = "INVALID_COMMAND"
	CodeInvalidPayload     = "INVALID_PAYLOAD"
)

// CommandError is a domain validation failure. The protocol layer maps it
// to a structured error response; it never closes the connection.
type CommandError struct {
	Code    string
	Message string
}

func (e *CommandError) Error() string {
	return e.Code + ": " + e.Message
}
