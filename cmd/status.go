package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/urfave/cli/v3"
	"github.com/viperadnan-git/tubestash/internal/client/api"
)

var (
	statusTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	statusMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	statusErrorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	statusOKStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	statusPanelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

func statusCmd() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show connection, queue and library status from a running client",
		Flags: []cli.Flag{apiFlag},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			base, err := apiBaseURL(cmd)
			if err != nil {
				return err
			}
			var st api.StatusDTO
			if err := callAPI(ctx, http.MethodGet, base+"/api/status", nil, &st); err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, renderStatus(st))
			return nil
		},
	}
}

func renderStatus(st api.StatusDTO) string {
	conn := statusErrorStyle.Render("disconnected")
	if st.Connection.Connected {
		conn = statusOKStyle.Render(fmt.Sprintf("connected (pid %d)", st.Connection.PID))
	}
	lines := []string{
		fmt.Sprintf("worker   %s %s", st.Connection.WorkerURL, conn),
	}
	if st.Connection.LastError != "" {
		lines = append(lines, statusMutedStyle.Render("         "+st.Connection.LastError))
	}

	lines = append(lines,
		fmt.Sprintf("queue    %d/%d active, %d waiting", len(st.Queue.Active), st.Queue.Ceiling, len(st.Queue.Backlog)),
	)
	for _, id := range st.Queue.Active {
		p, ok := st.Progress[id]
		if !ok {
			lines = append(lines, statusMutedStyle.Render("         "+id+" starting"))
			continue
		}
		line := fmt.Sprintf("         %s %5.1f%%", id, p.Percent)
		if p.Speed != "" {
			line += " " + p.Speed
		}
		if p.ETA != "" {
			line += " eta " + p.ETA
		}
		lines = append(lines, line)
	}

	c := st.Counts
	lines = append(lines, fmt.Sprintf("library  %d done (%d unwatched), %d failed, %d cancelled, %d total",
		c.Done, c.Unwatched, c.Failed, c.Cancelled, c.Total))

	switch lp := st.LastPoll; {
	case lp == nil:
		lines = append(lines, statusMutedStyle.Render("sync     never"))
	case lp.Error != "":
		lines = append(lines, "sync     "+statusErrorStyle.Render(lp.Error)+" "+statusMutedStyle.Render(lp.At.Local().Format(time.DateTime)))
	default:
		lines = append(lines, fmt.Sprintf("sync     %d found %s", lp.Found, statusMutedStyle.Render(lp.At.Local().Format(time.DateTime))))
	}

	header := statusTitleStyle.Render("tubestash")
	return lipgloss.JoinVertical(lipgloss.Left, header, statusPanelStyle.Render(strings.Join(lines, "\n")))
}
