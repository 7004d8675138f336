package tcp

// IdentifyToken is sent to every terminal immediately after accept. The
// terminal must answer with an identification payload before anything else.
const IdentifyToken = "IDENTIFY"

// Commands accepted from an identified terminal.
const (
	CommandLogin = "login"
	CommandStop  = "stop_session"
)

// Response statuses on the wire.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Identification is the terminal's answer to the identify token.
type Identification struct {
	ClientIP string `json:"client_ip"`
	Hostname string `json:"hostname"`
}

// Request is one newline-framed command from a terminal.
type Request struct {
	Command          string  `json:"command"`
	Username         string  `json:"username,omitempty"`
	Password         string  `json:"password,omitempty"`
	PCType           string  `json:"pc_type,omitempty"`
	RemainingSeconds float64 `json:"remaining_seconds,omitempty"`
}

// Response is the server's answer to a request. Balance is only present on
// a successful login and carries fractional hours.
type Response struct {
	Status  string   `json:"status"`
	Balance *float64 `json:"balance,omitempty"`
	Message string   `json:"message,omitempty"`
}

func successResponse() Response {
	return Response{Status: StatusSuccess}
}

func balanceResponse(hours float64) Response {
	return Response{Status: StatusSuccess, Balance: &hours}
}

func errorResponse(message string) Response {
	return Response{Status: StatusError, Message: message}
}
