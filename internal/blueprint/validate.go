package blueprint

import "fmt"

// ValidationError is one aggregated build-time problem.
type ValidationError struct {
	Path    string // dotted location, e.g. "campaigns[0].spawns[2]"
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationErrors aggregates every problem found across a catalog; the
// build is all-or-nothing.
type ValidationErrors []ValidationError

func (es ValidationErrors) Error() string {
	if len(es) == 0 {
		return "no validation errors"
	}
	s := fmt.Sprintf("%d blueprint validation error(s):", len(es))
	for _, e := range es {
		s += "\n  " + e.Error()
	}
	return s
}

var validRoles = map[string]bool{"server": true, "workstation": true}
var validAuthModes = map[string]bool{"none": true, "static": true, "otp": true, "other": true}
var validPortTypes = map[string]bool{"ssh": true, "ftp": true, "other": true}
var validExposures = map[string]bool{"private": true, "public": true}
var validStatuses = map[string]bool{"online": true, "offline": true, "booting": true}
var validConditionTypes = map[string]bool{"privilegeAcquired": true, "fileAcquired": true}
var validActionTypes = map[string]bool{"print": true, "setFlag": true}

// Validate checks a Catalog for missing spec references, duplicate ids,
// malformed handler conditions, and unknown enum values, returning every
// violation found rather than stopping at the first. Duplicate IPs are
// caught by the applier, which has visibility into assigned addresses.
func Validate(cat Catalog) ValidationErrors {
	var errs ValidationErrors

	specIDs := make(map[string]bool)
	for i, spec := range cat.ServerSpecs {
		path := fmt.Sprintf("serverSpecs[%d]", i)
		if spec.SpecID == "" {
			errs = append(errs, ValidationError{path, "missing specId"})
		} else if specIDs[spec.SpecID] {
			errs = append(errs, ValidationError{path, fmt.Sprintf("duplicate specId %q", spec.SpecID)})
		} else {
			specIDs[spec.SpecID] = true
		}
		if !validRoles[spec.Role] {
			errs = append(errs, ValidationError{path, fmt.Sprintf("unknown role %q", spec.Role)})
		}
		for j, u := range spec.Users {
			if !validAuthModes[u.AuthMode] {
				errs = append(errs, ValidationError{fmt.Sprintf("%s.users[%d]", path, j), fmt.Sprintf("unknown authMode %q", u.AuthMode)})
			}
		}
		for j, p := range spec.Ports {
			if !validPortTypes[p.Type] {
				errs = append(errs, ValidationError{fmt.Sprintf("%s.ports[%d]", path, j), fmt.Sprintf("unknown port type %q", p.Type)})
			}
			if !validExposures[p.Exposure] {
				errs = append(errs, ValidationError{fmt.Sprintf("%s.ports[%d]", path, j), fmt.Sprintf("unknown exposure %q", p.Exposure)})
			}
		}
	}

	scenarioIDs := make(map[string]bool)
	for i, scn := range cat.Scenarios {
		path := fmt.Sprintf("scenarios[%d]", i)
		if scn.ScenarioID == "" {
			errs = append(errs, ValidationError{path, "missing scenarioId"})
		} else if scenarioIDs[scn.ScenarioID] {
			errs = append(errs, ValidationError{path, fmt.Sprintf("duplicate scenarioId %q", scn.ScenarioID)})
		} else {
			scenarioIDs[scn.ScenarioID] = true
		}
		for j, h := range scn.Handlers {
			hpath := fmt.Sprintf("%s.handlers[%d]", path, j)
			if !validConditionTypes[h.ConditionType] {
				errs = append(errs, ValidationError{hpath, fmt.Sprintf("unknown conditionType %q", h.ConditionType)})
			}
			if h.ConditionType == "fileAcquired" && h.FileNameKey == "" {
				errs = append(errs, ValidationError{hpath, "malformed conditionArgs: fileAcquired handler missing fileNameKey"})
			}
			if h.ConditionType == "privilegeAcquired" && h.PrivilegeKey == "" {
				errs = append(errs, ValidationError{hpath, "malformed conditionArgs: privilegeAcquired handler missing privilegeKey"})
			}
			for k, a := range h.Actions {
				apath := fmt.Sprintf("%s.actions[%d]", hpath, k)
				if !validActionTypes[a.Type] {
					errs = append(errs, ValidationError{apath, fmt.Sprintf("unknown action type %q", a.Type)})
				}
				if a.Type == "setFlag" && a.FlagKey == "" {
					errs = append(errs, ValidationError{apath, "malformed conditionArgs: setFlag action missing flagKey"})
				}
			}
		}
	}

	for ci, camp := range cat.Campaigns {
		cpath := fmt.Sprintf("campaigns[%d]", ci)
		nodeIDs := make(map[string]bool)
		for si, spawn := range camp.Spawns {
			spath := fmt.Sprintf("%s.spawns[%d]", cpath, si)
			if spawn.NodeID == "" {
				errs = append(errs, ValidationError{spath, "missing nodeId"})
			} else if nodeIDs[spawn.NodeID] {
				errs = append(errs, ValidationError{spath, fmt.Sprintf("duplicate nodeId %q", spawn.NodeID)})
			} else {
				nodeIDs[spawn.NodeID] = true
			}
			if spawn.SpecRef == "" {
				errs = append(errs, ValidationError{spath, "missing specRef"})
			} else if !specIDs[spawn.SpecRef] {
				errs = append(errs, ValidationError{spath, fmt.Sprintf("missing spec reference %q", spawn.SpecRef)})
			}
			if spawn.InitialStatus != "" && !validStatuses[spawn.InitialStatus] {
				errs = append(errs, ValidationError{spath, fmt.Sprintf("unknown initialStatus %q", spawn.InitialStatus)})
			}
		}
		for _, scnID := range camp.Scenarios {
			if !scenarioIDs[scnID] {
				errs = append(errs, ValidationError{cpath, fmt.Sprintf("missing scenario reference %q", scnID)})
			}
		}
	}

	return errs
}
