package status

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	units "github.com/docker/go-units"
	"github.com/moby/term"

	"github.com/cocoonstack/localnet/types"
	"github.com/cocoonstack/localnet/utils"
)

const (
	colorReset   = "\x1b[0m"
	colorDefault = "\x1b[39m"
	colorGreen   = "\x1b[32m"
	colorRed     = "\x1b[31m"
	colorGray    = "\x1b[90m"
)

// WriteJSON writes rep as indented JSON.
func WriteJSON(w io.Writer, rep *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

// WriteTable renders rep for humans. Statuses are coloured only when w is
// a terminal.
func WriteTable(w io.Writer, rep *Report, details bool) error {
	return writeTable(w, rep, details, isTerminal(w))
}

func writeTable(w io.Writer, rep *Report, details, color bool) error {
	if len(rep.Nodes) == 0 {
		_, err := fmt.Fprintln(w, "No local network is currently running.")
		return err
	}

	if rep.NetworkID != "" {
		_, _ = fmt.Fprintf(w, "Network %s: %d/%d running\n\n", rep.NetworkID, rep.Running, rep.Total)
	}
	statuses := make([]string, len(rep.Nodes))
	width := len("STATUS")
	for i, n := range rep.Nodes {
		statuses[i] = statusText(n)
		width = max(width, len(statuses[i]))
	}
	header := "STATUS"
	if color {
		header = paint(colorDefault, header, width)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if details {
		_, _ = fmt.Fprintf(tw, "NAME\tROLE\t%s\tPID\tPEERS\tUPTIME\tVERSION\tPEER ID\tRPC\tDATA\tSIZE\tLOGS\n", header)
	} else {
		_, _ = fmt.Fprintf(tw, "NAME\tROLE\t%s\tPID\tPEERS\tUPTIME\n", header)
	}
	for i, n := range rep.Nodes {
		status := statuses[i]
		if color {
			status = paint(statusColor(n.Status), status, width)
		}
		pid := "-"
		if n.PID > 0 {
			pid = strconv.Itoa(n.PID)
		}
		uptime := "-"
		if n.Status == types.NodeStatusRunning && n.StartedAt != nil {
			uptime = units.HumanDuration(rep.GeneratedAt.Sub(*n.StartedAt))
		}
		if !details {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
				n.ServiceName, n.Role, status, pid, n.ConnectedPeers, uptime)
			continue
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			n.ServiceName, n.Role, status, pid, n.ConnectedPeers, uptime,
			dash(n.BinVersion), dash(n.PeerID), dash(n.RPCAddr()),
			n.DataDir, utils.HumanSize(utils.DirSize(n.DataDir)), n.LogDir)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if details {
		for _, n := range rep.Nodes {
			if n.LastError != "" {
				_, _ = fmt.Fprintf(w, "%s: %s\n", n.ServiceName, n.LastError)
			}
		}
	}
	return nil
}

func statusText(n NodeReport) string {
	s := string(n.Status)
	if n.Corrected {
		s += " (was " + string(n.Previous) + ")"
	}
	return s
}

func statusColor(st types.NodeStatus) string {
	switch st { //nolint:exhaustive
	case types.NodeStatusRunning:
		return colorGreen
	case types.NodeStatusFailed:
		return colorRed
	default:
		return colorGray
	}
}

// paint pads s to width before wrapping it in an SGR sequence. Every
// colour code has the same byte length, so tabwriter sees one width for
// the whole column.
func paint(color, s string, width int) string {
	return color + s + strings.Repeat(" ", width-len(s)) + colorReset
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	return ok && term.IsTerminal(f.Fd())
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
