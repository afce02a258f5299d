// nexus-demo is a minimal interactive harness around the world runtime:
// it builds a two-node campaign, opens a terminal on the workstation, and
// feeds stdin lines through the syscall dispatcher while ticking the
// world. It exists for smoke-testing the embedded core from a shell; the
// real product drives the same API from its UI process.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mailtwo/nexus-link-sub005/internal/blueprint"
	"github.com/mailtwo/nexus-link-sub005/internal/mlog"
	"github.com/mailtwo/nexus-link-sub005/internal/model"
	"github.com/mailtwo/nexus-link-sub005/internal/world"
)

var (
	f_loglevel = flag.String("level", "warn", "log level: debug, info, warn, error, fatal")
	f_catalog  = flag.String("catalog", "", "path to a YAML catalog; empty uses the built-in demo campaign")
	f_user     = flag.String("user", "player", "workstation user key to open the terminal as")
)

func main() {
	flag.Parse()

	level, err := mlog.ParseLevel(*f_loglevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	mlog.DelLogger("stderr")
	mlog.AddLogger("stderr", os.Stderr, level)

	cat := demoCatalog()
	if *f_catalog != "" {
		data, err := os.ReadFile(*f_catalog)
		if err != nil {
			mlog.Fatal("reading catalog: %v", err)
			os.Exit(1)
		}
		if err := yaml.Unmarshal(data, &cat); err != nil {
			mlog.Fatal("parsing catalog: %v", err)
			os.Exit(1)
		}
	}

	w := world.New("nexus-demo")
	seedBaseImage(w)
	if err := w.Apply(cat); err != nil {
		mlog.Fatal("building world: %v", err)
		os.Exit(1)
	}

	tc, ok := w.GetDefaultTerminalContext(*f_user)
	if !ok {
		mlog.Fatal("no workstation user %q", *f_user)
		os.Exit(1)
	}
	for _, line := range tc.MotdLines {
		fmt.Println(line)
	}

	cwd := tc.Cwd
	nodeID := tc.NodeID
	userKey := tc.UserKey
	promptUser, promptHost := tc.PromptUser, tc.PromptHost

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Printf("%s@%s:%s$ ", promptUser, promptHost, cwd)
		if !scanner.Scan() {
			break
		}

		resp := w.ExecuteTerminalCommand(world.TerminalRequest{
			NodeID:            nodeID,
			UserID:            userKey,
			Cwd:               cwd,
			CommandLine:       scanner.Text(),
			TerminalSessionID: tc.TerminalSessionID,
		})
		for _, line := range resp.Lines {
			fmt.Println(line)
		}

		if resp.NextCwd != "" {
			cwd = resp.NextCwd
		}
		if resp.NextNodeID != "" {
			nodeID = resp.NextNodeID
			userKey = resp.NextUserID
			promptUser, promptHost = resp.NextPromptUser, resp.NextPromptHost
		}

		// one simulated tick per command keeps scheduled processes moving
		w.Tick(16, mlog.Error)
		for _, line := range w.DrainTerminalEventLines(nodeID, userKey) {
			fmt.Println(line)
		}
	}
}

func seedBaseImage(w *world.World) {
	w.Base.AddDir("/home")
	w.Base.AddDir("/opt/bin")
	w.Base.AddFile("/etc/motd", []byte("nexus-link demo world"), model.FileKindText, true)
}

func demoCatalog() blueprint.Catalog {
	return blueprint.Catalog{
		ServerSpecs: []blueprint.ServerSpec{
			{
				SpecID: "ws",
				Role:   "workstation",
				Users: []blueprint.UserSpec{{
					UserKey: "player", UserID: "player", AuthMode: "none",
					Privilege: blueprint.PrivilegeSpec{R: true, W: true, X: true},
				}},
				Ports: []blueprint.PortSpec{{Num: 22, Type: "ssh", Exposure: "private"}},
			},
			{
				SpecID: "srv",
				Role:   "server",
				Users: []blueprint.UserSpec{{
					UserKey: "ops", UserID: "ops", Passwd: "pw2", AuthMode: "static",
					Privilege: blueprint.PrivilegeSpec{R: true, W: false, X: true},
				}},
				Ports: []blueprint.PortSpec{
					{Num: 22, Type: "ssh", Exposure: "public"},
					{Num: 21, Type: "ftp", Exposure: "public"},
				},
				Overlay: []blueprint.OverlayEntrySpec{
					{Path: "/etc/banner.txt", Kind: "file", FileKind: "text", Content: "restricted system"},
				},
			},
		},
		Campaigns: []blueprint.Campaign{{
			WorldSeed: "demo",
			Subnets:   []blueprint.SubnetSpec{{NetID: "internet", CIDR: "10.0.20.0/24"}},
			Spawns: []blueprint.ServerSpawn{
				{NodeID: "workstation", SpecRef: "ws", Hostname: "home",
					Interfaces: []blueprint.InterfaceSpec{{NetID: "internet"}}},
				{NodeID: "srv", SpecRef: "srv", Hostname: "srv",
					Interfaces: []blueprint.InterfaceSpec{{NetID: "internet", HostSuffix: "9"}}},
			},
		}},
	}
}
