// Package blueprint holds the plain data-transfer objects the YAML
// blueprint parser produces and the world applier consumes: pure structs
// with yaml tags and no behavior beyond validation helpers.
package blueprint

// PortSpec describes one listening port on a server.
type PortSpec struct {
	Num       int    `yaml:"num"`
	Type      string `yaml:"type"`   // "ssh" | "ftp" | "other"
	ServiceID string `yaml:"serviceId"`
	Exposure  string `yaml:"exposure"` // "private" | "public"
}

// InterfaceSpec describes one network interface.
type InterfaceSpec struct {
	NetID      string `yaml:"netId"`
	HostSuffix string `yaml:"hostSuffix,omitempty"` // explicit last-octet/suffix; empty = derive deterministically
	// InitiallyExposed marks the interface reachable from its subnet at
	// world start; an unexposed interface refuses connections until
	// gameplay flips it.
	InitiallyExposed bool `yaml:"initiallyExposed,omitempty"`
}

// UserSpec describes one account on a server.
type UserSpec struct {
	UserKey   string            `yaml:"userKey"`
	UserID    string            `yaml:"userId"`
	Passwd    string            `yaml:"passwd"`
	AuthMode  string            `yaml:"authMode"` // "none" | "static" | "otp" | "other"
	Privilege PrivilegeSpec     `yaml:"privilege"`
}

// PrivilegeSpec is the yaml-facing r/w/x triple.
type PrivilegeSpec struct {
	R bool `yaml:"r"`
	W bool `yaml:"w"`
	X bool `yaml:"x"`
}

// OverlayEntrySpec seeds a server's overlay with an initial file or
// directory.
type OverlayEntrySpec struct {
	Path    string `yaml:"path"`
	Kind    string `yaml:"kind"` // "file" | "dir"
	Content string `yaml:"content,omitempty"`
	// FileKind classifies file entries: "text" | "binary" | "image" |
	// "executableScript" | "executableHardcode".
	FileKind string `yaml:"fileKind,omitempty"`
	// ExecID is used when FileKind == "executableHardcode"; the stored
	// payload becomes the token "exec:<execId>".
	ExecID string `yaml:"execId,omitempty"`
}

// DaemonSpec describes a server daemon entry.
type DaemonSpec struct {
	Type string            `yaml:"type"`
	Args map[string]string `yaml:"args,omitempty"`
}

// ServerSpec is a reusable server template.
type ServerSpec struct {
	SpecID     string             `yaml:"specId"`
	Role       string             `yaml:"role"` // "server" | "workstation"
	Users      []UserSpec         `yaml:"users"`
	Ports      []PortSpec         `yaml:"ports"`
	Interfaces []InterfaceSpec    `yaml:"interfaces"`
	Overlay    []OverlayEntrySpec `yaml:"overlay,omitempty"`
	Daemons    []DaemonSpec       `yaml:"daemons,omitempty"`
	// LogCapacity bounds the server's log ring buffer; 0 means the
	// default capacity.
	LogCapacity int `yaml:"logCapacity,omitempty"`
}

// ServerSpawn instantiates a ServerSpec with per-node overrides.
type ServerSpawn struct {
	NodeID         string             `yaml:"nodeId"`
	SpecRef        string             `yaml:"specRef"`
	Hostname       string             `yaml:"hostname"`
	InitialStatus  string             `yaml:"initialStatus,omitempty"` // "online" | "offline" | "booting"
	InitialReason  string             `yaml:"initialReason,omitempty"`
	OverlayAdds    []OverlayEntrySpec `yaml:"overlayAdds,omitempty"`
	OverlayRemoves []string           `yaml:"overlayRemoves,omitempty"`
	PortAdds       []PortSpec         `yaml:"portAdds,omitempty"`
	PortRemoves    []int              `yaml:"portRemoves,omitempty"`
	DaemonAdds     []DaemonSpec       `yaml:"daemonAdds,omitempty"`
	Interfaces     []InterfaceSpec    `yaml:"interfaces,omitempty"`
}

// SubnetSpec describes an addressing plan for a netId.
type SubnetSpec struct {
	NetID string `yaml:"netId"`
	CIDR  string `yaml:"cidr"`
}

// LinkSpec declares an explicit LAN adjacency between two nodes beyond
// shared-subnet inference.
type LinkSpec struct {
	A string `yaml:"a"`
	B string `yaml:"b"`
}

// ActionSpec is the yaml-facing form of model.Action.
type ActionSpec struct {
	Type      string      `yaml:"type"` // "print" | "setFlag"
	Text      string      `yaml:"text,omitempty"`
	FlagKey   string      `yaml:"flagKey,omitempty"`
	FlagValue interface{} `yaml:"flagValue,omitempty"`
}

// EventHandlerSpec is the yaml-facing form of model.HandlerDescriptor.
type EventHandlerSpec struct {
	EventID       string       `yaml:"eventId"`
	ConditionType string       `yaml:"conditionType"` // "privilegeAcquired" | "fileAcquired"
	NodeIDKey     string       `yaml:"nodeIdKey,omitempty"`
	UserKey       string       `yaml:"userKey,omitempty"`
	PrivilegeKey  string       `yaml:"privilegeKey,omitempty"`
	FileNameKey   string       `yaml:"fileNameKey,omitempty"`
	Guard         string       `yaml:"guard,omitempty"`
	Actions       []ActionSpec `yaml:"actions"`
}

// Scenario groups a set of event handlers under one scenario id.
type Scenario struct {
	ScenarioID string             `yaml:"scenarioId"`
	Handlers   []EventHandlerSpec `yaml:"handlers"`
}

// Campaign is the top-level authored unit: the servers to spawn, the
// scenarios active for it, and addressing/topology inputs.
type Campaign struct {
	WorldSeed string        `yaml:"worldSeed"`
	Subnets   []SubnetSpec  `yaml:"subnets"`
	Links     []LinkSpec    `yaml:"links,omitempty"`
	Spawns    []ServerSpawn `yaml:"spawns"`
	Scenarios []string      `yaml:"scenarios"` // scenarioIds to activate
}

// Catalog is the full parsed input to the blueprint applier.
type Catalog struct {
	ServerSpecs []ServerSpec `yaml:"serverSpecs"`
	Scenarios   []Scenario   `yaml:"scenarios"`
	Campaigns   []Campaign   `yaml:"campaigns"`
}
