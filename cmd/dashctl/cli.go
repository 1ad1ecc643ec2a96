package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// TODO: Inject version at build time.
const version = "0.1.0"

type config struct {
	serverURL string
	authToken string
}

type cli struct {
	cfg  *config
	http *http.Client
}

func newCLI() *cli {
	return &cli{
		cfg:  &config{},
		http: &http.Client{},
	}
}

// apiResponse is the server's JSON envelope for request/response endpoints.
type apiResponse struct {
	Success bool   `json:"success"`
	JobID   string `json:"job_id"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

type jobView struct {
	Running     bool       `json:"running"`
	JobID       string     `json:"job_id"`
	Output      string     `json:"output"`
	Incremental bool       `json:"incremental"`
	ReturnCode  *int       `json:"return_code"`
	CompletedAt *time.Time `json:"completed_at"`
}

type automationUpdate struct {
	Automation string  `json:"automation"`
	State      jobView `json:"state"`
}

func (c *cli) rootCmd() *cobra.Command {
	command := &cobra.Command{
		Use:          "dashctl",
		Short:        "CLI for interacting with the dashd automation server",
		Version:      version,
		SilenceUsage: true,
	}

	command.AddCommand(
		c.listCmd(),
		c.runCmd(),
		c.cancelCmd(),
		c.statusCmd(),
		c.watchCmd(),
	)

	command.CompletionOptions.HiddenDefaultCmd = true

	command.PersistentFlags().StringVar(
		&c.cfg.serverURL,
		"server-url",
		"http://localhost:8080",
		"Base URL of the dashd server",
	)

	command.PersistentFlags().StringVar(
		&c.cfg.authToken,
		"auth-token",
		"",
		"Bearer token for start/cancel endpoints",
	)

	return command
}

func (c *cli) listCmd() *cobra.Command {
	command := &cobra.Command{
		Use:     "list",
		Short:   "List configured automations",
		Example: "  dashctl list",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Automations []struct {
					Name        string `json:"name"`
					DisplayName string `json:"display_name"`
					Command     string `json:"command"`
					AcceptsArgs bool   `json:"accepts_args"`
				} `json:"automations"`
			}

			if err := c.get(cmd.Context(), "/api/automations", &resp); err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)

			fmt.Fprintf(w, "NAME\tDISPLAY NAME\tCOMMAND\tACCEPTS ARGS\t\n")

			for _, a := range resp.Automations {
				fmt.Fprintf(
					w,
					"%s\t%s\t%s\t%t\t\n",
					a.Name,
					a.DisplayName,
					a.Command,
					a.AcceptsArgs,
				)
			}

			return w.Flush()
		},
	}

	return command
}

func (c *cli) runCmd() *cobra.Command {
	command := &cobra.Command{
		Use:     "run [flags] AUTOMATION [ARGS]",
		Short:   "Start an automation",
		Example: "  dashctl run sync_music --dry-run",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]string{
				"args": strings.Join(args[1:], " "),
			}

			var resp apiResponse
			if err := c.post(
				cmd.Context(),
				"/api/automation/"+args[0],
				body,
				&resp,
			); err != nil {
				return err
			}

			cmd.OutOrStdout().Write([]byte(resp.JobID + "\n"))

			return nil
		},
	}

	// Stop parsing args after the first position so that flags meant for
	// the automation script are passed through as-is, e.g. `--dry-run` is
	// an argument to `sync_music` _not_ to `dashctl run`.
	command.Flags().SetInterspersed(false)

	return command
}

func (c *cli) cancelCmd() *cobra.Command {
	command := &cobra.Command{
		Use:     "cancel [flags] AUTOMATION",
		Short:   "Cancel a running automation",
		Example: "  dashctl cancel sync_music",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp apiResponse

			return c.post(
				cmd.Context(),
				"/api/automation/"+args[0]+"/cancel",
				nil,
				&resp,
			)
		},
	}

	return command
}

func (c *cli) statusCmd() *cobra.Command {
	command := &cobra.Command{
		Use:     "status [flags] [AUTOMATION]",
		Short:   "Show automation status",
		Example: "  dashctl status sync_music",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			views := make(map[string]jobView)

			if len(args) == 1 {
				var resp struct {
					Automation string  `json:"automation"`
					State      jobView `json:"state"`
				}

				if err := c.get(
					cmd.Context(),
					"/api/automation/"+args[0]+"/status",
					&resp,
				); err != nil {
					return err
				}

				views[resp.Automation] = resp.State
			} else {
				var resp struct {
					Automations map[string]jobView `json:"automations"`
				}

				if err := c.get(
					cmd.Context(),
					"/api/automations/status",
					&resp,
				); err != nil {
					return err
				}

				views = resp.Automations
			}

			names := make([]string, 0, len(views))
			for name := range views {
				names = append(names, name)
			}
			sort.Strings(names)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)

			fmt.Fprintf(w, "AUTOMATION\tRUNNING\tJOB ID\tRETURN CODE\tCOMPLETED AT\t\n")

			for _, name := range names {
				view := views[name]

				returnCode := "-"
				if view.ReturnCode != nil {
					returnCode = fmt.Sprintf("%d", *view.ReturnCode)
				}

				completedAt := "-"
				if view.CompletedAt != nil {
					completedAt = view.CompletedAt.Format(time.RFC3339)
				}

				jobID := view.JobID
				if jobID == "" {
					jobID = "-"
				}

				fmt.Fprintf(
					w,
					"%s\t%t\t%s\t%s\t%s\t\n",
					name,
					view.Running,
					jobID,
					returnCode,
					completedAt,
				)
			}

			return w.Flush()
		},
	}

	return command
}

func (c *cli) watchCmd() *cobra.Command {
	command := &cobra.Command{
		Use:     "watch [flags]",
		Short:   "Stream automation updates",
		Example: "  dashctl watch",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := http.NewRequestWithContext(
				cmd.Context(),
				http.MethodGet,
				c.cfg.serverURL+"/api/events",
				nil,
			)
			if err != nil {
				return err
			}

			resp, err := c.http.Do(req)
			if err != nil {
				if errors.Is(cmd.Context().Err(), context.Canceled) {
					return nil
				}

				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("server returned %s", resp.Status)
			}

			out := cmd.OutOrStdout()

			scanner := bufio.NewScanner(resp.Body)

			// Full snapshots of chatty automations can be large.
			scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

			for scanner.Scan() {
				data, ok := strings.CutPrefix(scanner.Text(), "data: ")
				if !ok {
					continue
				}

				var u automationUpdate
				if err := json.Unmarshal([]byte(data), &u); err != nil {
					continue
				}

				printUpdate(out, u)
			}

			if err := scanner.Err(); err != nil &&
				!errors.Is(cmd.Context().Err(), context.Canceled) {
				return err
			}

			return nil
		},
	}

	return command
}

func printUpdate(out io.Writer, u automationUpdate) {
	switch {
	case u.State.Incremental:
		fmt.Fprintf(out, "[%s] %s", u.Automation, u.State.Output)

	case u.State.Running:
		fmt.Fprintf(out, "[%s] running (job %s)\n", u.Automation, u.State.JobID)

	case u.State.ReturnCode != nil:
		fmt.Fprintf(
			out,
			"[%s] finished with return code %d\n",
			u.Automation,
			*u.State.ReturnCode,
		)
	}
}

func (c *cli) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *cli) post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

// do issues a request and decodes the JSON response. A non-2xx response
// with a populated error field is surfaced as that error.
func (c *cli) do(
	ctx context.Context,
	method string,
	path string,
	body any,
	out any,
) error {
	var reqBody bytes.Buffer

	if body != nil {
		if err := json.NewEncoder(&reqBody).Encode(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(
		ctx,
		method,
		c.cfg.serverURL+path,
		&reqBody,
	)
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")

	if c.cfg.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.authToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	// Every endpoint shares the envelope fields, so decode those first to
	// surface server-reported errors, then the caller's typed response.
	envelope := apiResponse{Success: true}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &envelope); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	if resp.StatusCode >= 300 || (!envelope.Success && envelope.Error != "") {
		if envelope.Error != "" {
			return errors.New(envelope.Error)
		}

		return fmt.Errorf("server returned %s", resp.Status)
	}

	if out != nil {
		return json.Unmarshal(data, out)
	}

	return nil
}
