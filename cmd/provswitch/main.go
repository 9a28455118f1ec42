package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/allaspectsdev/provswitch/internal/version"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	args := os.Args[2:]
	switch os.Args[1] {
	case "serve", "start":
		cmdServe(args)
	case "stop":
		cmdStop()
	case "status":
		cmdStatus()
	case "providers":
		cmdProviders(args)
	case "templates":
		cmdTemplates(args)
	case "speedtest":
		cmdSpeedTest(args)
	case "endpoints":
		cmdEndpoints(args)
	case "switch":
		cmdSwitch(args)
	case "keys":
		cmdKeys(args)
	case "init-config":
		cmdInitConfig()
	case "config-export":
		cmdConfigExport(args)
	case "install-service":
		cmdInstallService()
	case "uninstall-service":
		cmdUninstallService()
	case "version":
		fmt.Println(version.String())
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Usage: provswitch <command> [options]

Commands:
  serve              Run the local API service (alias: start)
  stop               Stop the running service
  status             Show service status and counters
  providers          Manage providers (list|add|show|rename|delete)
  templates          List catalog templates [--app <app>]
  speedtest <ref>    Probe every endpoint candidate of a provider
  endpoints <ref>    Manage custom endpoints (list|add|remove <url>)
  switch <ref>       Write a provider's config to the live CLI files
  keys               Manage API keys in the OS keychain (set|delete|ref <name>)
  init-config        Generate default config file
  config-export      Export current config to a TOML file
  install-service    Install as a per-user service (launchd or systemd)
  uninstall-service  Remove the per-user service
  version            Print version information
  help               Show this help message

Options:
  --config <file>    Use an explicit config file
  --foreground       Log to the console as well (with 'serve')
  --apply            Commit the auto-selected endpoint (with 'speedtest')

A <ref> is a provider ID or name.`)
}

// cliArgs holds positional arguments and --name value / --flag options.
type cliArgs struct {
	pos   []string
	flags map[string]string
}

// boolFlags never consume a value.
var boolFlags = map[string]bool{"foreground": true, "f": true, "apply": true, "json": true}

func parseArgs(args []string) cliArgs {
	out := cliArgs{flags: make(map[string]string)}
	for i := 0; i < len(args); i++ {
		a := args[i]
		if !strings.HasPrefix(a, "-") || a == "-" {
			out.pos = append(out.pos, a)
			continue
		}
		name := strings.TrimLeft(a, "-")
		if k, v, ok := strings.Cut(name, "="); ok {
			out.flags[k] = v
			continue
		}
		if boolFlags[name] || i+1 >= len(args) {
			out.flags[name] = "true"
			continue
		}
		out.flags[name] = args[i+1]
		i++
	}
	return out
}

func (c cliArgs) has(name string) bool {
	_, ok := c.flags[name]
	return ok
}

func (c cliArgs) get(name string) string {
	return c.flags[name]
}

func (c cliArgs) arg(i int) string {
	if i < len(c.pos) {
		return c.pos[i]
	}
	return ""
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
