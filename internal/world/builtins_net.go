package world

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/mailtwo/nexus-link-sub005/internal/model"
	"github.com/mailtwo/nexus-link-sub005/internal/termcli"
)

// registerNetBuiltins installs the network/session-facing syscall
// handlers into reg.
func registerNetBuiltins(reg *termcli.Registry) {
	reg.Register(&termcli.Handler{Verb: "known", HelpShort: "list known public hosts", Call: cmdKnown})
	reg.Register(&termcli.Handler{Verb: "scan", HelpShort: "list LAN neighbors", Call: cmdScan})
	reg.Register(&termcli.Handler{Verb: "connect", HelpShort: "open an SSH session to a host", Call: cmdConnect})
	reg.Register(&termcli.Handler{Verb: "disconnect", HelpShort: "close the current SSH session", Call: cmdDisconnect})
	reg.Register(&termcli.Handler{Verb: "ftp", HelpShort: "transfer a file over the current session", Call: cmdFtp})
}

func cmdKnown(ctx interface{}, cmd *termcli.Command) termcli.Result {
	tc, err := asTermCtx(ctx)
	if err != nil {
		return termcli.Err(termcli.CodeInvalidArgs, err.Error())
	}

	type row struct{ hostname, ip string }
	var rows []row
	for nodeID := range tc.World.KnownNodesByNet[model.InternetNetID] {
		srv, ok := tc.World.Servers[nodeID]
		if !ok {
			continue
		}
		rows = append(rows, row{srv.Name, srv.PrimaryIP()})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ip < rows[j].ip })

	lines := make([]string, 0, len(rows))
	for _, r := range rows {
		lines = append(lines, fmt.Sprintf("%s\t%s", r.hostname, r.ip))
	}
	return termcli.Ok(lines...)
}

func cmdScan(ctx interface{}, cmd *termcli.Command) termcli.Result {
	tc, err := asTermCtx(ctx)
	if err != nil {
		return termcli.Err(termcli.CodeInvalidArgs, err.Error())
	}
	if err := tc.requirePrivilege(model.Privilege{X: true}); err != nil {
		return termcli.Err(termcli.CodePermissionDenied, err.Error())
	}

	srv, ok := tc.Server()
	if !ok {
		return termcli.Err(termcli.CodeNotFound, "no such server")
	}
	if srv.Role == model.RoleWorkstation {
		return termcli.Ok("no neighbors")
	}

	netIDs := make([]string, 0, len(srv.SubnetMembership))
	for netID := range srv.SubnetMembership {
		if netID == model.InternetNetID {
			continue
		}
		netIDs = append(netIDs, netID)
	}
	sort.Strings(netIDs)

	if len(cmd.Args) > 0 {
		requested := cmd.Args[0]
		found := false
		for _, id := range netIDs {
			if id == requested {
				found = true
				break
			}
		}
		if !found {
			return termcli.Err(termcli.CodeNotFound, "no such net")
		}
		netIDs = []string{requested}
	}

	var lines []string
	for _, netID := range netIDs {
		neighbors, code := tc.World.NetScan(tc.scriptCtx(), netID)
		if code != model.CodeOK {
			continue
		}
		ips := make([]string, 0, len(neighbors))
		for _, nodeID := range neighbors {
			if n, ok := tc.World.Servers[nodeID]; ok {
				ips = append(ips, n.PrimaryIP())
			}
		}
		sort.Strings(ips)
		lines = append(lines, fmt.Sprintf("%s:", netID))
		for _, ip := range ips {
			lines = append(lines, "  "+ip)
		}
	}
	if len(lines) == 0 {
		return termcli.Ok("no neighbors")
	}
	return termcli.Ok(lines...)
}

// parsePortFlag extracts an optional "-p <port>" pair, returning the
// remaining positional args.
func parsePortFlag(args []string, defaultPort int) (int, []string) {
	port := defaultPort
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		if args[i] == "-p" && i+1 < len(args) {
			if n, err := strconv.Atoi(args[i+1]); err == nil {
				port = n
			}
			i++
			continue
		}
		out = append(out, args[i])
	}
	return port, out
}

func cmdConnect(ctx interface{}, cmd *termcli.Command) termcli.Result {
	tc, err := asTermCtx(ctx)
	if err != nil {
		return termcli.Err(termcli.CodeInvalidArgs, err.Error())
	}

	port, rest := parsePortFlag(cmd.Args, 22)
	if len(rest) < 3 {
		return termcli.Err(termcli.CodeInvalidArgs, "usage: connect [-p port] <host|ip> <user> <passwd>")
	}

	outcome, code := tc.World.SSHConnect(tc.scriptCtx(), rest[0], port, rest[1], rest[2])
	if code != model.CodeOK {
		return termcli.Err(termcli.Code(code), "connect failed: "+string(code))
	}

	return termcli.OkData(map[string]interface{}{
		"nextNodeId":  outcome.NodeID,
		"nextUserKey": outcome.UserKey,
		"nextCwd":     outcome.Cwd,
		"promptUser":  outcome.PromptUser,
		"promptHost":  outcome.PromptHost,
	}, outcome.MotdLines...)
}

func cmdDisconnect(ctx interface{}, cmd *termcli.Command) termcli.Result {
	tc, err := asTermCtx(ctx)
	if err != nil {
		return termcli.Err(termcli.CodeInvalidArgs, err.Error())
	}

	stack := tc.World.TerminalStacks[tc.TerminalSessionID]
	if len(stack) == 0 {
		return termcli.Err(termcli.CodeInvalidArgs, "not connected")
	}
	top := stack[len(stack)-1]

	if code := tc.World.SSHDisconnect(tc.scriptCtx()); code != model.CodeOK {
		return termcli.Err(termcli.Code(code), "disconnect failed")
	}

	return termcli.OkData(map[string]interface{}{
		"nextNodeId":  top.PrevNodeID,
		"nextUserKey": top.PrevUserKey,
		"nextCwd":     top.PrevCwd,
		"promptUser":  top.PrevPromptUser,
		"promptHost":  top.PrevPromptHost,
	})
}

func cmdFtp(ctx interface{}, cmd *termcli.Command) termcli.Result {
	tc, err := asTermCtx(ctx)
	if err != nil {
		return termcli.Err(termcli.CodeInvalidArgs, err.Error())
	}

	port, rest := parsePortFlag(cmd.Args, 21)
	if len(rest) < 2 {
		return termcli.Err(termcli.CodeInvalidArgs, "usage: ftp <get|put> [-p port] <pathA> [pathB]")
	}

	direction, pathA := rest[0], rest[1]
	pathB := pathA
	if len(rest) > 2 {
		pathB = rest[2]
	}

	var code model.IntrinsicCode
	switch direction {
	case "get":
		code = tc.World.FTPGet(tc.scriptCtx(), port, pathA, pathB)
	case "put":
		code = tc.World.FTPPut(tc.scriptCtx(), port, pathA, pathB)
	default:
		return termcli.Err(termcli.CodeInvalidArgs, "ftp direction must be get or put")
	}

	if code != model.CodeOK {
		return termcli.Err(termcli.Code(code), "ftp failed: "+string(code))
	}
	return termcli.Ok()
}
