// memscan inspects, scans and patches the memory of a running process.
package main

import (
	"fmt"
	"os"
	"strconv"

	"memprobe/config"
	"memprobe/process"
	"memprobe/session"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
	"github.com/urfave/cli"
)

const usage = `memscan reads, scans and patches the memory of a live process`

var log = logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "memscan"))

func main() {
	app := cli.NewApp()
	app.Name = "memscan"
	app.Usage = usage
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "config, c", Usage: "YAML config file", Value: "memscan.yaml"},
		cli.IntFlag{Name: "pid, p", Usage: "target process id"},
		cli.StringFlag{Name: "name, n", Usage: "target process name (lowest pid wins)"},
		cli.BoolFlag{Name: "no-color", Usage: "disable ANSI colour"},
	}
	app.Commands = []cli.Command{
		regionsCommand,
		readCommand,
		writeCommand,
		scanCommand,
		searchCommand,
		shellCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "memscan:", err)
		os.Exit(1)
	}
}

// openSession resolves the target from the global flags and opens it with access.
func openSession(c *cli.Context, access process.Access) (*session.Session, error) {
	cfg, err := config.LoadOrDefault(c.GlobalString("config"))
	if err != nil {
		return nil, err
	}

	pid, err := targetPID(c)
	if err != nil {
		return nil, err
	}

	priv, err := checkPrivileges()
	if err != nil {
		log.Warn("running without elevated privileges: ", err)
	}
	return session.Open(openProcess, pid, access, priv, cfg)
}

func targetPID(c *cli.Context) (process.ProcessID, error) {
	if pid := c.GlobalInt("pid"); pid > 0 {
		return process.ProcessID(pid), nil
	}
	if name := c.GlobalString("name"); name != "" {
		info, err := findByName(name)
		if err != nil {
			return 0, err
		}
		log.Infoln("resolved", name, "to pid", info.PID)
		return info.PID, nil
	}
	return 0, fmt.Errorf("one of --pid or --name is required")
}

func parseAddress(s string) (process.ProcessMemoryAddress, error) {
	if s == "" {
		return 0, fmt.Errorf("%w: missing address", process.ErrInvalidAddress)
	}
	return process.ParseAddress(s)
}

// parseOffsets reads "0x10,0x18,-8" style offset lists.
func parseOffsets(args []string) ([]int64, error) {
	out := make([]int64, 0, len(args))
	for _, a := range args {
		v, err := strconv.ParseInt(a, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("offset %q: %w", a, err)
		}
		out = append(out, v)
	}
	return out, nil
}
