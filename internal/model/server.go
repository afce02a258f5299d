package model

// ServerStatus is a node's coarse availability.
type ServerStatus int

const (
	StatusOnline ServerStatus = iota
	StatusOffline
	StatusBooting
)

func (s ServerStatus) String() string {
	switch s {
	case StatusOnline:
		return "online"
	case StatusBooting:
		return "booting"
	default:
		return "offline"
	}
}

// StatusReason explains a non-Ok status.
type StatusReason int

const (
	ReasonOk StatusReason = iota
	ReasonPoweredOff
	ReasonCrashed
	ReasonBooting
	ReasonScenario
)

func (r StatusReason) String() string {
	switch r {
	case ReasonOk:
		return "ok"
	case ReasonPoweredOff:
		return "poweredOff"
	case ReasonCrashed:
		return "crashed"
	case ReasonBooting:
		return "booting"
	case ReasonScenario:
		return "scenario"
	default:
		return "unknown"
	}
}

// ServerRole distinguishes the special "player workstation" node from any
// other server.
type ServerRole int

const (
	RoleServer ServerRole = iota
	RoleWorkstation
)

// PortType names the service a port exposes.
type PortType int

const (
	PortTypeSSH PortType = iota
	PortTypeFTP
	PortTypeOther
)

func (t PortType) String() string {
	switch t {
	case PortTypeSSH:
		return "ssh"
	case PortTypeFTP:
		return "ftp"
	default:
		return "other"
	}
}

// Exposure governs whether a port is reachable from outside its local
// subnet.
type Exposure int

const (
	ExposurePrivate Exposure = iota
	ExposurePublic
)

func (e Exposure) String() string {
	if e == ExposurePublic {
		return "public"
	}
	return "private"
}

// Port is a single listening service on a server.
type Port struct {
	Num      int
	Type     PortType
	ServiceID string
	Exposure Exposure
}

// Interface is a single network attachment point on a server.
type Interface struct {
	NetID string
	IP    string
}

// InternetNetID is the well-known net id that marks a public-facing
// interface.
const InternetNetID = "internet"

// Session is an authenticated endpoint opened by connect().
type Session struct {
	SessionID string
	UserKey   string
	RemoteIP  string
	Cwd       string
}

// LogEntry is a single line in a server's ring-buffer log.
type LogEntry struct {
	Seq     int64
	TimeMs  int64
	Text    string
	Dirty   bool
	Original string // captured on first edit
}

// ConnFrame is a single pushed connection on a terminal's stack.
type ConnFrame struct {
	PrevNodeID     string
	PrevUserKey    string
	PrevCwd        string
	PrevPromptUser string
	PrevPromptHost string
	SessionNodeID  string
	SessionID      string
}
