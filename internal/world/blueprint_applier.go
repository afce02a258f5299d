package world

import (
	"fmt"
	"strconv"

	"github.com/mailtwo/nexus-link-sub005/internal/blueprint"
	"github.com/mailtwo/nexus-link-sub005/internal/eventbus"
	"github.com/mailtwo/nexus-link-sub005/internal/mlog"
	"github.com/mailtwo/nexus-link-sub005/internal/model"
	"github.com/mailtwo/nexus-link-sub005/internal/vfs"
)

// applyCatalog builds a world from a parsed catalog. Validation runs
// first and is all-or-nothing; once validation passes, build errors are
// still possible (e.g. an address-plan failure) and are returned at once.
// Whatever was built before such an error (spawned servers, assigned
// addresses) stays in the world; it is not rolled back.
func (w *World) applyCatalog(cat blueprint.Catalog) error {
	if errs := blueprint.Validate(cat); len(errs) > 0 {
		return errs
	}

	specsByID := make(map[string]blueprint.ServerSpec, len(cat.ServerSpecs))
	for _, spec := range cat.ServerSpecs {
		specsByID[spec.SpecID] = spec
	}

	scenariosByID := make(map[string]blueprint.Scenario, len(cat.Scenarios))
	for _, scn := range cat.Scenarios {
		scenariosByID[scn.ScenarioID] = scn
	}

	for _, camp := range cat.Campaigns {
		plans := make(map[string]subnetPlan, len(camp.Subnets))
		for _, sn := range camp.Subnets {
			plan, err := newSubnetPlan(sn.CIDR)
			if err != nil {
				return fmt.Errorf("campaign %s: subnet %s: %w", camp.WorldSeed, sn.NetID, err)
			}
			plans[sn.NetID] = plan
		}

		// Step 1: instantiate servers from specs with overrides.
		for _, spawn := range camp.Spawns {
			if err := w.spawnServer(spawn, specsByID[spawn.SpecRef]); err != nil {
				return err
			}
		}

		// Step 2/3: assign IPs, build ipIndex, lanNeighbors, exposedByNet.
		if err := w.assignAddresses(camp, plans); err != nil {
			return err
		}
		w.buildLanNeighbors(camp)

		// Step 4: compile scenario handlers into the event bus.
		for _, scnID := range camp.Scenarios {
			if err := w.installScenario(scenariosByID[scnID]); err != nil {
				return err
			}
		}
	}

	return nil
}

func (w *World) spawnServer(spawn blueprint.ServerSpawn, spec blueprint.ServerSpec) error {
	role := model.RoleServer
	if spec.Role == "workstation" {
		role = model.RoleWorkstation
	}

	overlay := vfs.NewOverlay(w.Base, w.Store)
	logCap := spec.LogCapacity
	if logCap <= 0 {
		logCap = defaultLogCapacity
	}
	server := NewServer(spawn.NodeID, spawn.Hostname, role, overlay, logCap)

	if spawn.InitialStatus != "" {
		server.SetStatus(parseStatus(spawn.InitialStatus), parseReason(spawn.InitialReason))
	}

	for _, u := range spec.Users {
		server.Users[u.UserKey] = model.User{
			UserID:   u.UserID,
			Passwd:   u.Passwd,
			AuthMode: parseAuthMode(u.AuthMode),
			Privilege: model.Privilege{R: u.Privilege.R, W: u.Privilege.W, X: u.Privilege.X},
		}
	}

	for _, p := range spec.Ports {
		server.Ports[p.Num] = model.Port{
			Num: p.Num, Type: parsePortType(p.Type), ServiceID: p.ServiceID, Exposure: parseExposure(p.Exposure),
		}
	}
	for _, p := range spawn.PortAdds {
		server.Ports[p.Num] = model.Port{
			Num: p.Num, Type: parsePortType(p.Type), ServiceID: p.ServiceID, Exposure: parseExposure(p.Exposure),
		}
	}
	for _, num := range spawn.PortRemoves {
		delete(server.Ports, num)
	}

	for _, d := range spec.Daemons {
		server.Daemons[d.Type] = d.Args
	}
	for _, d := range spawn.DaemonAdds {
		server.Daemons[d.Type] = d.Args
	}

	for _, entry := range spec.Overlay {
		if err := applyOverlayEntry(overlay, entry); err != nil {
			return fmt.Errorf("server %s: spec overlay %s: %w", spawn.NodeID, entry.Path, err)
		}
	}
	for _, entry := range spawn.OverlayAdds {
		if err := applyOverlayEntry(overlay, entry); err != nil {
			return fmt.Errorf("server %s: overlay add %s: %w", spawn.NodeID, entry.Path, err)
		}
	}
	for _, path := range spawn.OverlayRemoves {
		_ = overlay.DeleteSubtree(path)
	}

	w.Servers[spawn.NodeID] = server
	return nil
}

func applyOverlayEntry(overlay *vfs.Overlay, entry blueprint.OverlayEntrySpec) error {
	if entry.Kind == "dir" {
		return overlay.AddDir(entry.Path)
	}

	fk := parseFileKind(entry.FileKind)
	content := entry.Content
	if fk == model.FileKindExecutableHardcode {
		content = "exec:" + entry.ExecID
	}
	return overlay.WriteFile(entry.Path, []byte(content), fk)
}

func (w *World) assignAddresses(camp blueprint.Campaign, plans map[string]subnetPlan) error {
	spawnsByID := make(map[string]blueprint.ServerSpawn, len(camp.Spawns))
	for _, s := range camp.Spawns {
		spawnsByID[s.NodeID] = s
	}

	for nodeID, server := range w.Servers {
		spawn, ok := spawnsByID[nodeID]
		if !ok {
			continue // server from a different campaign
		}

		ifaces := make([]model.Interface, 0, len(spawn.Interfaces))
		for _, ifaceSpec := range spawn.Interfaces {
			plan, ok := plans[ifaceSpec.NetID]
			if !ok {
				return fmt.Errorf("node %s: unknown netId %q", nodeID, ifaceSpec.NetID)
			}

			var addr, err2 = plan.deterministicIP(camp.WorldSeed, nodeID, ifaceSpec.NetID)
			if ifaceSpec.HostSuffix != "" {
				suffix, err := strconv.ParseUint(ifaceSpec.HostSuffix, 10, 32)
				if err != nil {
					return fmt.Errorf("node %s: bad hostSuffix %q: %w", nodeID, ifaceSpec.HostSuffix, err)
				}
				addr, err2 = plan.hostSuffixIP(uint32(suffix))
			}
			if err2 != nil {
				return fmt.Errorf("node %s: %w", nodeID, err2)
			}

			ip := addr.String()
			if existing, dup := w.IPIndex[ip]; dup && existing != nodeID {
				return fmt.Errorf("duplicate IP %s assigned to both %s and %s", ip, existing, nodeID)
			}
			w.IPIndex[ip] = nodeID
			ifaces = append(ifaces, model.Interface{NetID: ifaceSpec.NetID, IP: ip})
		}

		server.ResetInterfaces(ifaces)
		for _, ifaceSpec := range spawn.Interfaces {
			if ifaceSpec.InitiallyExposed {
				server.ExposedByNet[ifaceSpec.NetID] = true
			}
		}
		// a public port only exposes the node if it actually fronts the
		// internet
		for _, p := range server.Ports {
			if p.Exposure == model.ExposurePublic && server.SubnetMembership[model.InternetNetID] {
				server.ExposedByNet[model.InternetNetID] = true
			}
		}
	}

	return nil
}

// buildLanNeighbors populates each server's LanNeighbors from shared
// subnet membership plus explicit campaign links.
func (w *World) buildLanNeighbors(camp blueprint.Campaign) {
	spawnNodes := make(map[string]bool, len(camp.Spawns))
	for _, s := range camp.Spawns {
		spawnNodes[s.NodeID] = true
	}

	byNet := make(map[string][]string)
	for nodeID := range spawnNodes {
		server := w.Servers[nodeID]
		for _, iface := range server.Interfaces {
			if iface.NetID == model.InternetNetID {
				continue
			}
			byNet[iface.NetID] = append(byNet[iface.NetID], nodeID)
		}
	}

	for netID, members := range byNet {
		for _, a := range members {
			for _, b := range members {
				if a == b {
					continue
				}
				w.Servers[a].LanNeighbors[netID] = appendUnique(w.Servers[a].LanNeighbors[netID], b)
			}
		}
	}

	for _, link := range camp.Links {
		a, aok := w.Servers[link.A]
		b, bok := w.Servers[link.B]
		if !aok || !bok {
			continue
		}
		a.LanNeighbors["link"] = appendUnique(a.LanNeighbors["link"], link.B)
		b.LanNeighbors["link"] = appendUnique(b.LanNeighbors["link"], link.A)
	}
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

// installScenario compiles a scenario's event handlers into the world's
// event bus.
func (w *World) installScenario(scn blueprint.Scenario) error {
	w.ActiveScenarioID = scn.ScenarioID
	for _, h := range scn.Handlers {
		desc := model.HandlerDescriptor{
			ScenarioID:    scn.ScenarioID,
			EventID:       h.EventID,
			ConditionType: parseConditionType(h.ConditionType),
			NodeIDKey:     orAny(h.NodeIDKey),
			UserKey:       orAny(h.UserKey),
			PrivilegeKey:  orAny(h.PrivilegeKey),
			FileNameKey:   orAny(h.FileNameKey),
		}

		if h.Guard != "" {
			g, err := eventbus.NewScriptGuard(h.Guard)
			if err != nil {
				mlog.Warn("scenario %s handler %s: guard compile error: %v", scn.ScenarioID, h.EventID, err)
				if fallback, ferr := eventbus.NewScriptGuard("false"); ferr == nil {
					desc.Guard = fallback
				}
			} else {
				desc.Guard = g
			}
		}

		for _, a := range h.Actions {
			action := model.Action{FlagKey: a.FlagKey, FlagValue: a.FlagValue, Text: a.Text}
			if a.Type == "setFlag" {
				action.Type = model.ActionSetFlag
			} else {
				action.Type = model.ActionPrint
			}
			desc.Actions = append(desc.Actions, action)
		}

		w.Events.RegisterHandler(desc)
	}
	return nil
}

func orAny(s string) string {
	if s == "" {
		return model.AnyKey
	}
	return s
}

func parseStatus(s string) model.ServerStatus {
	switch s {
	case "offline":
		return model.StatusOffline
	case "booting":
		return model.StatusBooting
	default:
		return model.StatusOnline
	}
}

func parseReason(s string) model.StatusReason {
	switch s {
	case "poweredOff":
		return model.ReasonPoweredOff
	case "crashed":
		return model.ReasonCrashed
	case "booting":
		return model.ReasonBooting
	case "scenario":
		return model.ReasonScenario
	default:
		return model.ReasonOk
	}
}

func parseAuthMode(s string) model.AuthMode {
	switch s {
	case "static":
		return model.AuthStatic
	case "otp":
		return model.AuthOtp
	case "other":
		return model.AuthOther
	default:
		return model.AuthNone
	}
}

func parsePortType(s string) model.PortType {
	switch s {
	case "ftp":
		return model.PortTypeFTP
	case "ssh":
		return model.PortTypeSSH
	default:
		return model.PortTypeOther
	}
}

func parseExposure(s string) model.Exposure {
	if s == "public" {
		return model.ExposurePublic
	}
	return model.ExposurePrivate
}

func parseFileKind(s string) model.FileKind {
	switch s {
	case "binary":
		return model.FileKindBinary
	case "image":
		return model.FileKindImage
	case "executableScript":
		return model.FileKindExecutableScript
	case "executableHardcode":
		return model.FileKindExecutableHardcode
	default:
		return model.FileKindText
	}
}

func parseConditionType(s string) model.ConditionType {
	if s == "fileAcquired" {
		return model.ConditionFileAcquired
	}
	return model.ConditionPrivilegeAcquired
}
