package server

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/yesquel/gaiakv/pkg/log"
)

// Console is the admin REPL (spec §6.6): help, debug n, save [file],
// load [file], save_individual, load_individual, print, printdetail,
// splitter, quit. Each line is tokenized and dispatched through a
// urfave/cli App rather than a hand-rolled switch, matching the rest of
// the domain stack's preference for the pack's CLI library over ad hoc
// argument parsing.
type Console struct {
	srv    *Server
	logger *log.Logger
	debug  int
	app    *cli.App
}

// NewConsole returns a Console wired to srv.
func NewConsole(srv *Server, logger *log.Logger) *Console {
	if logger == nil {
		logger = log.Default()
	}
	c := &Console{srv: srv, logger: logger.With("component", "console")}
	c.app = c.buildApp()
	return c
}

func (c *Console) buildApp() *cli.App {
	return &cli.App{
		Name:                   "gaiakv-console",
		Usage:                  "storage node admin console",
		UsageText:              "<command> [args]",
		HideHelpCommand:        true,
		HideVersion:            true,
		ExitErrHandler:         func(*cli.Context, error) {},
		CommandNotFound:        func(ctx *cli.Context, cmd string) { fmt.Fprintf(ctx.App.Writer, "unknown command %q; try help\n", cmd) },
		Commands: []*cli.Command{
			{Name: "help", Usage: "list commands", Action: c.cmdHelp},
			{Name: "debug", Usage: "debug n: set debug verbosity", Action: c.cmdDebug},
			{Name: "save", Usage: "save [file]: flush every object to file", Action: c.cmdSave},
			{Name: "load", Usage: "load [file]: load every object from file", Action: c.cmdLoad},
			{Name: "save_individual", Usage: "write an obj-<cid>-<oid>.gaia file per tracked object; each file holds every object", Action: c.cmdSaveIndividual},
			{Name: "load_individual", Usage: "loads nothing; prints a notice to use load <file>", Action: c.cmdLoadIndividual},
			{Name: "print", Usage: "print a one-line summary per tracked coid", Action: c.cmdPrint},
			{Name: "printdetail", Usage: "print full log-entry detail per tracked coid", Action: c.cmdPrintDetail},
			{Name: "splitter", Usage: "print splitter load stats", Action: c.cmdSplitter},
			{Name: "quit", Usage: "shut down the node", Action: c.cmdQuit},
		},
	}
}

// Run reads commands from r, one per line, writing responses to w, until r
// is exhausted or a quit command runs. It returns the process exit code
// (spec §6.6: "0 on clean shutdown").
func (c *Console) Run(r io.Reader, w io.Writer) int {
	c.app.Writer = w
	c.app.ErrWriter = w
	scanner := bufio.NewScanner(r)
	for {
		fmt.Fprint(w, "gaiakv> ")
		if !scanner.Scan() {
			return 0
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		args := append([]string{"gaiakv-console"}, strings.Fields(line)...)
		if err := c.app.Run(args); err != nil {
			fmt.Fprintln(w, "error:", err)
		}
		if args[1] == "quit" {
			return 0
		}
	}
}

func (c *Console) cmdHelp(ctx *cli.Context) error {
	for _, cmd := range ctx.App.Commands {
		fmt.Fprintf(ctx.App.Writer, "  %-16s %s\n", cmd.Name, cmd.Usage)
	}
	return nil
}

func (c *Console) cmdDebug(ctx *cli.Context) error {
	if ctx.NArg() < 1 {
		fmt.Fprintln(ctx.App.Writer, "usage: debug n")
		return nil
	}
	n, err := strconv.Atoi(ctx.Args().Get(0))
	if err != nil {
		return fmt.Errorf("debug: %w", err)
	}
	c.debug = n
	fmt.Fprintf(ctx.App.Writer, "debug level set to %d\n", n)
	return nil
}

func (c *Console) cmdSave(ctx *cli.Context) error {
	path := defaultArg(ctx, "checkpoint.gaia")
	if err := c.srv.FlushToFile(path); err != nil {
		return err
	}
	fmt.Fprintf(ctx.App.Writer, "saved to %s\n", path)
	return nil
}

func (c *Console) cmdLoad(ctx *cli.Context) error {
	path := defaultArg(ctx, "checkpoint.gaia")
	if err := c.srv.LoadFromFile(path); err != nil {
		return err
	}
	fmt.Fprintf(ctx.App.Writer, "loaded from %s\n", path)
	return nil
}

func (c *Console) cmdSaveIndividual(ctx *cli.Context) error {
	for coid := range c.srv.Looim.All() {
		path := fmt.Sprintf("obj-%d-%d.gaia", coid.Cid, coid.Oid)
		if err := c.srv.FlushToFile(path); err != nil {
			return err
		}
	}
	fmt.Fprintln(ctx.App.Writer, "saved every object to one file per tracked object")
	return nil
}

func (c *Console) cmdLoadIndividual(ctx *cli.Context) error {
	fmt.Fprintln(ctx.App.Writer, "load_individual: per-object manifest not tracked; use load <file> with a combined checkpoint")
	return nil
}

func (c *Console) cmdPrint(ctx *cli.Context) error {
	for coid, o := range c.srv.Looim.All() {
		fmt.Fprintf(ctx.App.Writer, "%s: %d log entries, %d pending\n", coid, len(o.LogEntries), len(o.PendingEntries))
	}
	return nil
}

func (c *Console) cmdPrintDetail(ctx *cli.Context) error {
	for coid, o := range c.srv.Looim.All() {
		fmt.Fprintf(ctx.App.Writer, "%s:\n", coid)
		for _, e := range o.LogEntries {
			fmt.Fprintf(ctx.App.Writer, "  log ts=%s write=%v\n", e.Ts, e.Tucoid.IsWrite())
		}
		for _, p := range o.PendingEntries {
			fmt.Fprintf(ctx.App.Writer, "  pending ts=%s waiters=%d\n", p.Ts, len(p.Waiters))
		}
	}
	return nil
}

func (c *Console) cmdSplitter(ctx *cli.Context) error {
	if c.srv.Splitter == nil {
		fmt.Fprintln(ctx.App.Writer, "splitter not started")
		return nil
	}
	for coid, hits := range c.srv.Splitter.Stats().Snapshot() {
		fmt.Fprintf(ctx.App.Writer, "%s: %d hits this period\n", coid, hits)
	}
	return nil
}

func (c *Console) cmdQuit(ctx *cli.Context) error {
	fmt.Fprintln(ctx.App.Writer, "shutting down")
	return nil
}

func defaultArg(ctx *cli.Context, def string) string {
	if ctx.NArg() >= 1 {
		return ctx.Args().Get(0)
	}
	return def
}
