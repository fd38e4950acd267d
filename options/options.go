//go:build linux

package options

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/goombaio/namegenerator"
	"github.com/urfave/cli/v3"

	"github.com/judgebox/judgebox/logger"
	"github.com/judgebox/judgebox/sandbox"
	"github.com/judgebox/judgebox/version"
)

// Result bundles the Config the engine consumes with the ambient settings
// (logging) that belong to the CLI layer, not to a single run.
type Result struct {
	Config    *sandbox.Config
	LogLevel  slog.Level
	LogFormat logger.LogFormat
}

/**
 * Builds a Config from CLI context.
 * @param c the CLI context
 * @return the built Result and error if any
 */
func buildOptionsFromCLI(c *cli.Command) (*Result, error) {
	argv := c.Args().Slice()
	if len(argv) == 0 {
		return nil, fmt.Errorf("missing command; usage: judgebox [options] command [args...]")
	}

	cfg := &sandbox.Config{
		Command:        argv[0],
		Args:           argv[1:],
		NewRoot:        c.String("new-root"),
		RedirectStdin:  c.String("redirect-stdin"),
		RedirectStdout: c.String("redirect-stdout"),
		RedirectStderr: c.String("redirect-stderr"),
		InstanceName:   c.String("instance-name"),
		Hostname:       c.String("hostname"),
		Nameservers:    c.StringSlice("dns"),
		AllowSyscalls:  c.StringSlice("allow-syscall"),
		DenySyscalls:   c.StringSlice("deny-syscall"),
	}

	shareNet, err := parseShareNet(c.String("share-net"))
	if err != nil {
		return nil, err
	}
	cfg.ShareNet = shareNet

	netMode, err := parseNetMode(c.String("net"))
	if err != nil {
		return nil, err
	}
	cfg.Network = netMode

	if c.Bool("swap-redirects") {
		cfg.SwapRedirects = sandbox.DoSwapRedirects
	}
	if c.Bool("clear-usage") {
		cfg.ClearUsage = sandbox.DoClearUsage
	}
	if c.Bool("interactive") {
		cfg.Interactive = sandbox.InteractiveMode
	}

	wallTime, err := parseDuration("wall-time", c.String("wall-time"))
	if err != nil {
		return nil, err
	}
	userTime, err := parseDuration("user-time", c.String("user-time"))
	if err != nil {
		return nil, err
	}
	memory, err := parseSize("memory", c.String("memory"))
	if err != nil {
		return nil, err
	}
	stack, err := parseSize("stack", c.String("stack"))
	if err != nil {
		return nil, err
	}
	cfg.Limits = sandbox.Limits{
		WallTime: wallTime,
		UserTime: userTime,
		Memory:   memory,
		Stack:    stack,
		Pids:     parsePids(c.Int("pids")),
	}

	cfg.ControllerPath = parseControllerPath(
		c.String("cgroup-cpuacct"),
		c.String("cgroup-memory"),
		c.String("cgroup-pids"),
	)

	for _, m := range c.StringSlice("mount") {
		parsed, err := parseMount(m)
		if err != nil {
			return nil, err
		}
		cfg.Mounts = append(cfg.Mounts, parsed)
	}

	var userEnv []sandbox.EnvVar
	for _, e := range c.StringSlice("env") {
		ev, err := ParseEnv(e)
		if err != nil {
			return nil, err
		}
		userEnv = append(userEnv, ev)
	}
	if c.Bool("forward-env") {
		cfg.Environment = sandbox.ForwardEnvironment()
	} else {
		cfg.Environment = sandbox.EnvList(MergeEnv(defaultEnvironment, userEnv))
	}

	addIDs, err := sandbox.FromCapabilities(c.StringSlice("cap-add"))
	if err != nil {
		return nil, fmt.Errorf("bad --cap-add: %w", err)
	}
	dropIDs, err := sandbox.FromCapabilities(c.StringSlice("cap-drop"))
	if err != nil {
		return nil, fmt.Errorf("bad --cap-drop: %w", err)
	}
	cfg.Capabilities = sandbox.CapabilityOpts{
		Add:  sandbox.NewCapSet(addIDs...),
		Drop: sandbox.NewCapSet(dropIDs...),
	}

	logLevel, err := parseLogLevel(c.String("log-level"))
	if err != nil {
		return nil, err
	}
	logFormat, err := parseLogFormat(c.String("log-format"))
	if err != nil {
		return nil, err
	}

	return &Result{Config: cfg, LogLevel: logLevel, LogFormat: logFormat}, nil
}

/**
 * Parses CLI flags into a Result.
 * @param ctx the invocation context
 * @param args the raw argument vector, including argv[0]
 * @return the parsed Result and error if any
 */
func ParseCli(ctx context.Context, args []string) (*Result, error) {
	var result *Result
	generator := namegenerator.NewNameGenerator(time.Now().UTC().UnixNano())

	cmd := &cli.Command{
		Name:      "judgebox",
		Usage:     "Runs an untrusted program under namespace and cgroup isolation.",
		Version:   version.Version(),
		ArgsUsage: "command [args...]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "new-root", Usage: "Directory to pivot into as the jail root"},
			&cli.StringFlag{Name: "share-net", Value: "unshare", Usage: "Network namespace mode (share|unshare)"},
			&cli.StringFlag{Name: "net", Value: "none", Usage: "Optional bridged network mode (none|host|bridge); only bridge sets up networking, and only with --share-net=unshare"},

			&cli.StringFlag{Name: "redirect-stdin", Usage: "Path to redirect stdin from"},
			&cli.StringFlag{Name: "redirect-stdout", Usage: "Path to redirect stdout to"},
			&cli.StringFlag{Name: "redirect-stderr", Usage: "Path to redirect stderr to"},
			&cli.BoolFlag{Name: "swap-redirects", Usage: "Resolve redirection paths inside the jail, after pivot"},

			&cli.StringFlag{Name: "wall-time", Usage: "Wall-clock time limit (e.g. 5s, 500ms)"},
			&cli.StringFlag{Name: "user-time", Usage: "CPU user-time limit (e.g. 2s)"},
			&cli.StringFlag{Name: "memory", Usage: "Memory limit (e.g. 256MB)"},
			&cli.StringFlag{Name: "stack", Usage: "Per-thread stack limit (e.g. 8MB)"},
			&cli.IntFlag{Name: "pids", Usage: "Maximum concurrent tasks in the cgroup"},

			&cli.StringFlag{Name: "instance-name", Usage: "Cgroup instance name; a UUID is generated if unset"},
			&cli.StringFlag{Name: "cgroup-cpuacct", Usage: "cpuacct controller root directory"},
			&cli.StringFlag{Name: "cgroup-memory", Usage: "memory controller root directory"},
			&cli.StringFlag{Name: "cgroup-pids", Usage: "pids controller root directory"},
			&cli.BoolFlag{Name: "clear-usage", Usage: "Zero cgroup usage counters before attaching the child"},

			&cli.StringSliceFlag{Name: "mount", Usage: "A bind mount `HOST:DEST[:ro|rw,dev,exec]`"},
			&cli.StringSliceFlag{Name: "dns", Usage: "A DNS nameserver for the jail's resolv.conf"},
			&cli.StringFlag{Name: "hostname", Value: generator.Generate(), Usage: "Hostname set inside the jail"},

			&cli.StringSliceFlag{Name: "env", Usage: "Sets an environment variable as `KEY=VALUE` in the sandbox"},
			&cli.BoolFlag{Name: "forward-env", Usage: "Forward the supervisor's own environment verbatim instead of building one"},

			&cli.StringSliceFlag{Name: "allow-syscall", Usage: "A `syscall` to remove from the default seccomp deny-list"},
			&cli.StringSliceFlag{Name: "deny-syscall", Usage: "A `syscall` to add to the default seccomp deny-list"},
			&cli.StringSliceFlag{Name: "cap-add", Usage: "Add a capability to the sandbox (e.g., CAP_NET_ADMIN)"},
			&cli.StringSliceFlag{Name: "cap-drop", Usage: "Drop a capability from the sandbox (e.g., CAP_CHOWN)"},

			&cli.BoolFlag{Name: "interactive", Usage: "Leave the controlling terminal attached to the child"},

			&cli.StringFlag{Name: "log-level", Value: "error", Usage: "Log verbosity (debug|info|warn|error)"},
			&cli.StringFlag{Name: "log-format", Value: "text", Usage: "Log format (text|json)"},
		},

		Action: func(ctx context.Context, c *cli.Command) error {
			r, err := buildOptionsFromCLI(c)
			if err != nil {
				return err
			}
			result = r
			return nil
		},
	}

	if err := cmd.Run(ctx, args); err != nil {
		_ = cli.ShowAppHelp(cmd)
		return nil, err
	}

	return result, nil
}
