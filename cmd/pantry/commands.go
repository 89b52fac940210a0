package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/randalmurphal/pantrykit/api"
	"github.com/randalmurphal/pantrykit/client"
	"github.com/randalmurphal/pantrykit/stream"
	"github.com/randalmurphal/pantrykit/transport"
)

// permissionFlags maps --perm names to permission setters.
var permissionFlags = map[string]func(*api.UserPermissions){
	"superuser":        func(p *api.UserPermissions) { p.Superuser = true },
	"load_llm":         func(p *api.UserPermissions) { p.LoadLLM = true },
	"unload_llm":       func(p *api.UserPermissions) { p.UnloadLLM = true },
	"download_llm":     func(p *api.UserPermissions) { p.DownloadLLM = true },
	"session":          func(p *api.UserPermissions) { p.Session = true },
	"request_download": func(p *api.UserPermissions) { p.RequestDownload = true },
	"request_load":     func(p *api.UserPermissions) { p.RequestLoad = true },
	"request_unload":   func(p *api.UserPermissions) { p.RequestUnload = true },
	"view_llms":        func(p *api.UserPermissions) { p.ViewLLMs = true },
	"bare_model":       func(p *api.UserPermissions) { p.BareModel = true },
}

func permissionNames() []string {
	names := make([]string, 0, len(permissionFlags))
	for name := range permissionFlags {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func parsePermissions(names []string) (api.UserPermissions, error) {
	var perms api.UserPermissions
	for _, name := range names {
		set, ok := permissionFlags[strings.TrimPrefix(name, "perm_")]
		if !ok {
			return perms, fmt.Errorf("unknown permission %q (known: %s)", name, strings.Join(permissionNames(), ", "))
		}
		set(&perms)
	}
	return perms, nil
}

// parseParams turns k=v pairs into parameters. Values that parse as JSON keep
// their type; anything else is a string.
func parseParams(pairs []string) (api.Parameters, error) {
	params := api.Parameters{}
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("parameter %q: want key=value", pair)
		}
		var val api.Value
		if err := json.Unmarshal([]byte(v), &val); err != nil {
			val = api.String(v)
		}
		params[k] = val
	}
	return params, nil
}

func (a *app) registerCmd() *cobra.Command {
	var perms []string
	var wait bool

	cmd := &cobra.Command{
		Use:   "register NAME",
		Short: "Register a user and request permissions",
		Long: `Register a new pantry user, request the given permissions and store the
credentials. The request has to be accepted in the pantry UI; --wait blocks
until it is.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parsePermissions(perms)
			if err != nil {
				return err
			}

			c, status, err := client.Register(cmd.Context(), args[0], p, a.clientOptions()...)
			if c != nil {
				defer c.Close()
				creds := c.Credentials(args[0])
				if werr := client.WriteCredentials(a.credPath, &creds); werr != nil {
					return werr
				}
			}
			if err != nil {
				return err
			}

			if wait {
				if status, err = c.AwaitRequest(cmd.Context(), status.ID, 0); err != nil {
					return err
				}
			}
			return printJSON(cmd.OutOrStdout(), status)
		},
	}
	cmd.Flags().StringSliceVar(&perms, "perm", []string{"session", "view_llms", "request_load"},
		"permissions to request: "+strings.Join(permissionNames(), ", "))
	cmd.Flags().BoolVar(&wait, "wait", false, "wait for the request to be accepted")
	return cmd
}

func (a *app) llmsCmd() *cobra.Command {
	var running, asJSON bool

	cmd := &cobra.Command{
		Use:   "llms",
		Short: "List downloaded LLMs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.login()
			if err != nil {
				return err
			}
			defer c.Close()

			var llms []api.LLMStatus
			if running {
				llms, err = c.GetRunningLLMs(cmd.Context())
			} else {
				llms, err = c.GetAvailableLLMs(cmd.Context())
			}
			if err != nil {
				return err
			}

			if asJSON {
				return printJSON(cmd.OutOrStdout(), llms)
			}
			return writeLLMTable(cmd.OutOrStdout(), llms)
		},
	}
	cmd.Flags().BoolVar(&running, "running", false, "only running LLMs")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func writeLLMTable(w io.Writer, llms []api.LLMStatus) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "UUID\tID\tFAMILY\tCONNECTOR\tRUNNING")
	for _, l := range llms {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\n", l.UUID, l.ID, l.FamilyID, l.ConnectorType, l.Running)
	}
	return tw.Flush()
}

func (a *app) llmStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "llm-status ID",
		Short: "Show one LLM by UUID or registry id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.login()
			if err != nil {
				return err
			}
			defer c.Close()

			status, err := c.GetLLMStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), status)
		},
	}
}

func (a *app) requestStatusCmd() *cobra.Command {
	var wait bool
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "request-status ID",
		Short: "Show a user request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("request id: %w", err)
			}

			c, err := a.login()
			if err != nil {
				return err
			}
			defer c.Close()

			var status *api.UserRequestStatus
			if wait {
				status, err = c.AwaitRequest(cmd.Context(), id, interval)
			} else {
				status, err = c.GetRequestStatus(cmd.Context(), id)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), status)
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "poll until the request is complete")
	cmd.Flags().DurationVar(&interval, "interval", client.DefaultPollInterval, "poll interval for --wait")
	return cmd
}

// selection holds the flags shared by commands that let the server pick an
// LLM.
type selection struct {
	family string
	id     string
	local  bool
	prefer string
}

func (s *selection) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&s.family, "family", "", "require this family id")
	cmd.Flags().StringVar(&s.id, "id", "", "require this registry id")
	cmd.Flags().BoolVar(&s.local, "local", false, "require a local LLM")
	cmd.Flags().StringVar(&s.prefer, "prefer", "", "prefer a capability: general, assistant, writing or coding")
}

func (s *selection) build(cmd *cobra.Command) (*api.LLMFilter, *api.LLMPreference) {
	var filter *api.LLMFilter
	if s.family != "" || s.id != "" || cmd.Flags().Changed("local") {
		filter = &api.LLMFilter{}
		if s.family != "" {
			filter.FamilyID = &s.family
		}
		if s.id != "" {
			filter.LLMID = &s.id
		}
		if cmd.Flags().Changed("local") {
			filter.Local = &s.local
		}
	}

	var pref *api.LLMPreference
	if s.prefer != "" {
		capability := api.CapabilityType(s.prefer)
		pref = &api.LLMPreference{CapabilityType: &capability}
	}
	return filter, pref
}

func (a *app) loadCmd() *cobra.Command {
	var sel selection
	var request bool

	cmd := &cobra.Command{
		Use:   "load [ID]",
		Short: "Load an LLM, or request that one be loaded",
		Long: `Load the LLM named by UUID or registry id. Without ID the server picks one
matching --family/--id/--local, ranked by --prefer. --request submits a load
request for the owner to accept instead of loading directly.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.login()
			if err != nil {
				return err
			}
			defer c.Close()

			ctx := cmd.Context()
			filter, pref := sel.build(cmd)

			var out any
			switch {
			case request && len(args) == 1:
				out, err = c.RequestLoad(ctx, args[0])
			case request:
				out, err = c.RequestLoadFlex(ctx, filter, pref)
			case len(args) == 1:
				out, err = c.LoadLLM(ctx, args[0])
			default:
				out, err = c.LoadLLMFlex(ctx, filter, pref)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	sel.register(cmd)
	cmd.Flags().BoolVar(&request, "request", false, "submit a request instead of loading")
	return cmd
}

func (a *app) unloadCmd() *cobra.Command {
	var request bool

	cmd := &cobra.Command{
		Use:   "unload ID",
		Short: "Unload an LLM, or request that it be unloaded",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.login()
			if err != nil {
				return err
			}
			defer c.Close()

			var out any
			if request {
				out, err = c.RequestUnload(cmd.Context(), args[0])
			} else {
				out, err = c.UnloadLLM(cmd.Context(), args[0])
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().BoolVar(&request, "request", false, "submit a request instead of unloading")
	return cmd
}

func (a *app) promptCmd() *cobra.Command {
	var sel selection
	var llmID string
	var sessionID, sessionLLM string
	var params, sessionParams []string

	cmd := &cobra.Command{
		Use:   "prompt TEXT",
		Short: "Prompt an LLM and stream the output",
		Long: `Create a session (or reuse one with --session and --session-llm), send
TEXT and print generated text as it arrives. --llm picks a running LLM by
UUID or registry id; the selection flags let the server pick.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parseParams(params)
			if err != nil {
				return err
			}
			sp, err := parseParams(sessionParams)
			if err != nil {
				return err
			}

			c, err := a.login()
			if err != nil {
				return err
			}
			defer c.Close()

			ctx := cmd.Context()
			var sess *client.Session
			switch {
			case sessionID != "":
				sid, err := uuid.Parse(sessionID)
				if err != nil {
					return fmt.Errorf("session id: %w", err)
				}
				lid, err := uuid.Parse(sessionLLM)
				if err != nil {
					return fmt.Errorf("session llm: %w", err)
				}
				sess = c.Session(sid, lid)
			case llmID != "":
				sess, err = c.CreateSessionID(ctx, llmID, sp)
			default:
				filter, pref := sel.build(cmd)
				if filter == nil && pref == nil {
					sess, err = c.CreateSession(ctx, sp)
				} else {
					sess, err = c.CreateSessionFlex(ctx, filter, pref, sp)
				}
			}
			if err != nil {
				return err
			}
			a.logger.Debug("session ready",
				slog.String("session_id", sess.ID.String()),
				slog.String("llm_uuid", sess.LLMUUID.String()))

			s, err := sess.Prompt(ctx, args[0], p)
			if err != nil {
				return err
			}
			return streamText(cmd.OutOrStdout(), s)
		},
	}
	sel.register(cmd)
	cmd.Flags().StringVar(&llmID, "llm", "", "running LLM UUID or registry id")
	cmd.Flags().StringVar(&sessionID, "session", "", "existing session id")
	cmd.Flags().StringVar(&sessionLLM, "session-llm", "", "LLM UUID of the existing session")
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "inference parameter key=value (repeatable)")
	cmd.Flags().StringArrayVar(&sessionParams, "session-param", nil, "session parameter key=value (repeatable)")
	cmd.MarkFlagsRequiredTogether("session", "session-llm")
	return cmd
}

// streamText prints progress text as it arrives and ends with a newline.
func streamText(w io.Writer, s *stream.EventStream) error {
	acc := stream.NewAccumulator()
	for ev := range s.All() {
		acc.Append(ev)
		if _, err := io.WriteString(w, ev.Text()); err != nil {
			return err
		}
		if acc.Done() {
			break
		}
	}
	fmt.Fprintln(w)

	if err := acc.Err(); err != nil {
		return err
	}
	if err := s.Err(); err != nil {
		return err
	}
	if !acc.Done() {
		return stream.ErrIncomplete
	}
	return nil
}

func (a *app) interruptCmd() *cobra.Command {
	var sessionID, llmUUID string

	cmd := &cobra.Command{
		Use:   "interrupt",
		Short: "Stop inference in a session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sid, err := uuid.Parse(sessionID)
			if err != nil {
				return fmt.Errorf("session id: %w", err)
			}
			lid, err := uuid.Parse(llmUUID)
			if err != nil {
				return fmt.Errorf("llm uuid: %w", err)
			}

			c, err := a.login()
			if err != nil {
				return err
			}
			defer c.Close()

			status, err := c.Session(sid, lid).Interrupt(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), status)
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session id")
	cmd.Flags().StringVar(&llmUUID, "llm", "", "LLM UUID")
	_ = cmd.MarkFlagRequired("session")
	_ = cmd.MarkFlagRequired("llm")
	return cmd
}

func (a *app) schemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema [NAME]",
		Short: "Print the JSON Schema of a wire type",
		Long:  "Print the JSON Schema of a wire type. Without NAME, list the known types.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				for _, name := range api.SchemaNames() {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			}
			schema, err := api.Schema(args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), schema)
		},
	}
}

func (a *app) waitCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "wait",
		Short: "Wait for the server's unix socket to appear",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.SocketPath == "" {
				return transport.ErrLocalDisabled
			}

			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			if err := transport.WaitForSocket(ctx, a.cfg.SocketPath); err != nil {
				return fmt.Errorf("wait for %s: %w", a.cfg.SocketPath, err)
			}
			a.logger.Debug("socket ready", slog.String("path", a.cfg.SocketPath))
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "give up after this long (0 waits forever)")
	return cmd
}
