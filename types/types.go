package types

// ListeningState reports whether the capture device and the outbound path are active.
type ListeningState int

const (
	Idle ListeningState = iota
	Listening
)

func (s ListeningState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Listening:
		return "listening"
	default:
		return "unknown"
	}
}

// ConnectionState is derived from the remote session lifecycle callbacks.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
	Errored
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Errored:
		return "errored"
	default:
		return "unknown"
	}
}

// Status is the single user-visible lifecycle line.
type Status int

const (
	StatusIdle Status = iota
	StatusConnecting
	StatusConnected
	StatusError
	StatusDisconnected
	StatusConnectFailed
	StatusDeviceFailed
)

// Kind folds the status into the five values the UI renders.
func (s Status) Kind() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusDisconnected:
		return "disconnected"
	default:
		return "error"
	}
}

// Message returns the human-readable status text.
func (s Status) Message() string {
	switch s {
	case StatusIdle:
		return `Click "Start" to begin`
	case StatusConnecting:
		return "Connecting to AI..."
	case StatusConnected:
		return "Connected. Start speaking."
	case StatusError:
		return "Error. Try again."
	case StatusDisconnected:
		return "Connection closed."
	case StatusConnectFailed:
		return "Failed to connect. Check API key."
	case StatusDeviceFailed:
		return "Microphone access failed. Make sure permission is granted."
	default:
		return ""
	}
}

func (s Status) String() string {
	switch s {
	case StatusConnectFailed:
		return "connect_failed"
	case StatusDeviceFailed:
		return "device_failed"
	default:
		return s.Kind()
	}
}
