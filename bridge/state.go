package bridge

// Termination is what a device expects after the body of an AT command.
type Termination int

const (
	// Unconnected means there is no open device channel.
	Unconnected Termination = iota
	// Required means the device only answers once "\r\n" follows the command.
	Required
	// NotRequired means the device answers the bare command.
	NotRequired
	// Unknown means neither probe got "OK". Commands are still relayed
	// without a terminator, but the device may not answer them.
	Unknown
)

func (t Termination) String() string {
	switch t {
	case Unconnected:
		return "unconnected"
	case Required:
		return "required"
	case NotRequired:
		return "not-required"
	case Unknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// ConnectionState describes the device channel. Termination is Unconnected
// whenever Active is false.
type ConnectionState struct {
	Active      bool
	Baud        int
	Termination Termination
}

// supportedBauds maps the accepted "open" arguments to their rates. The
// argument must match one of the keys exactly.
var supportedBauds = map[string]int{
	"1200":   1200,
	"2400":   2400,
	"4800":   4800,
	"9600":   9600,
	"19200":  19200,
	"38400":  38400,
	"57600":  57600,
	"115200": 115200,
}

// ParseBaud returns the rate named by s, or false if s is not one of the
// supported rates.
func ParseBaud(s string) (int, bool) {
	baud, ok := supportedBauds[s]
	return baud, ok
}
