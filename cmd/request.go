package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"crms/internal/bootstrap/logging"
	"crms/internal/domain/request"
	"crms/internal/errs"
	"crms/internal/usecase/requests"
)

const (
	cliDateLayout     = "2006-01-02"
	cliScheduleLayout = "2006-01-02T15:04"
)

var requestCmd = &cobra.Command{
	Use:   "request",
	Short: "Create, inspect and act on maintenance requests",
}

var requestCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a submitted maintenance request",
	RunE: withApp(func(cmd *cobra.Command, deps appDeps) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		description, _ := cmd.Flags().GetString("description")
		building, _ := cmd.Flags().GetString("building")
		room, _ := cmd.Flags().GetString("room")
		category, _ := cmd.Flags().GetString("category")
		subcategory, _ := cmd.Flags().GetString("subcategory")
		priority, _ := cmd.Flags().GetString("priority")
		servicer, _ := cmd.Flags().GetString("servicer")
		images, _ := cmd.Flags().GetStringSlice("image")
		actor, _ := cmd.Flags().GetString("actor")

		created, err := deps.Requests.CreateRequest(ctx, requests.CreateRequestInput{
			Description:   description,
			ImageRefs:     images,
			BuildingID:    building,
			RoomID:        room,
			CategoryID:    category,
			SubcategoryID: subcategory,
			Priority:      priority,
			ServicerID:    servicer,
			Actor:         actor,
		})
		if err != nil {
			logging.Error(ctx, "create request failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "create request")
		}

		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "created request: %s id=%s\n", created.RequestNo, created.ID); err != nil {
			return errs.Wrap(err, "write create output")
		}
		return nil
	}),
}

var requestListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a technician's active requests",
	RunE: withApp(func(cmd *cobra.Command, deps appDeps) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		technicianID := technicianFlag(cmd, deps)
		if technicianID == "" {
			return errors.New("technician id is required: pass --technician or set identity.technician_id")
		}
		state, err := filterFromFlags(cmd)
		if err != nil {
			return err
		}

		items, err := deps.Requests.ListProjected(ctx, technicianID, state)
		if err != nil {
			logging.Error(ctx, "list requests failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "list requests")
		}

		output, _ := cmd.Flags().GetString("output")
		return writeRequests(cmd.OutOrStdout(), output, items)
	}),
}

var requestShowCmd = &cobra.Command{
	Use:   "show <request-id>",
	Short: "Show one request with resolved names",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, deps appDeps) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		item, err := deps.Requests.GetProjected(ctx, cmd.Flags().Arg(0))
		if err != nil {
			return errs.Wrap(err, "show request")
		}
		return writeYAML(cmd.OutOrStdout(), toRequestView(item))
	}),
}

var requestHistoryCmd = &cobra.Command{
	Use:   "history <request-id>",
	Short: "Show a request's timeline",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, deps appDeps) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		entries, err := deps.Requests.History(ctx, cmd.Flags().Arg(0))
		if err != nil {
			return errs.Wrap(err, "read history")
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TIME\tACTOR\tACTION\tDETAIL")
		for _, entry := range entries {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
				entry.CreatedOn.Local().Format(time.DateTime), entry.Actor, entry.Action, entry.Body)
		}
		return tw.Flush()
	}),
}

var requestScheduleCmd = &cobra.Command{
	Use:   "schedule <request-id>",
	Short: "Set the estimated work window",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, deps appDeps) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		fromRaw, _ := cmd.Flags().GetString("from")
		toRaw, _ := cmd.Flags().GetString("to")
		from, err := time.ParseInLocation(cliScheduleLayout, strings.TrimSpace(fromRaw), time.Local)
		if err != nil {
			return fmt.Errorf("invalid --from %q: expected %s", fromRaw, cliScheduleLayout)
		}
		to, err := time.ParseInLocation(cliScheduleLayout, strings.TrimSpace(toRaw), time.Local)
		if err != nil {
			return fmt.Errorf("invalid --to %q: expected %s", toRaw, cliScheduleLayout)
		}
		actor, _ := cmd.Flags().GetString("actor")

		requestID := cmd.Flags().Arg(0)
		if err := deps.Requests.Schedule(ctx, requests.ScheduleInput{RequestID: requestID, From: from, To: to, Actor: actor}); err != nil {
			logging.Error(ctx, "schedule request failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "schedule request")
		}
		return printAction(cmd, "scheduled", requestID)
	}),
}

var requestStartCmd = &cobra.Command{
	Use:   "start <request-id>",
	Short: "Record the actual start and move the request to in progress",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, deps appDeps) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		actor, _ := cmd.Flags().GetString("actor")
		requestID := cmd.Flags().Arg(0)
		if err := deps.Requests.Start(ctx, requests.ActionInput{RequestID: requestID, Actor: actor}); err != nil {
			logging.Error(ctx, "start request failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "start request")
		}
		return printAction(cmd, "started", requestID)
	}),
}

var requestCompleteCmd = &cobra.Command{
	Use:   "complete <request-id>",
	Short: "Record the actual end and complete the request",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, deps appDeps) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		actor, _ := cmd.Flags().GetString("actor")
		requestID := cmd.Flags().Arg(0)
		if err := deps.Requests.Complete(ctx, requests.ActionInput{RequestID: requestID, Actor: actor}); err != nil {
			logging.Error(ctx, "complete request failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "complete request")
		}
		return printAction(cmd, "completed", requestID)
	}),
}

var requestSendBackCmd = &cobra.Command{
	Use:   "send-back <request-id>",
	Short: "Put the request on hold with a reason",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, deps appDeps) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		actor, _ := cmd.Flags().GetString("actor")
		reason, _ := cmd.Flags().GetString("reason")
		requestID := cmd.Flags().Arg(0)
		if err := deps.Requests.SendBack(ctx, requests.SendBackInput{RequestID: requestID, Reason: reason, Actor: actor}); err != nil {
			logging.Error(ctx, "send back request failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "send back request")
		}
		return printAction(cmd, "sent back", requestID)
	}),
}

var requestAutoStatusCmd = &cobra.Command{
	Use:   "auto-status <request-id>",
	Short: "Apply the schedule window rule once",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, deps appDeps) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		requestID := cmd.Flags().Arg(0)
		next, changed, err := deps.Requests.ApplyAutoStatus(ctx, requestID)
		if err != nil {
			return errs.Wrap(err, "apply auto status")
		}
		if !changed {
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "no change: %s\n", requestID)
		} else {
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "status updated: %s -> %s\n", requestID, next.Label())
		}
		if err != nil {
			return errs.Wrap(err, "write auto-status output")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(requestCmd)
	requestCmd.AddCommand(
		requestCreateCmd,
		requestListCmd,
		requestShowCmd,
		requestHistoryCmd,
		requestScheduleCmd,
		requestStartCmd,
		requestCompleteCmd,
		requestSendBackCmd,
		requestAutoStatusCmd,
	)

	requestCreateCmd.Flags().String("description", "", "Problem description")
	requestCreateCmd.Flags().String("building", "", "Building id")
	requestCreateCmd.Flags().String("room", "", "Room id")
	requestCreateCmd.Flags().String("category", "", "Category id")
	requestCreateCmd.Flags().String("subcategory", "", "Subcategory id")
	requestCreateCmd.Flags().String("priority", "moderate", "Priority (low|moderate|high)")
	requestCreateCmd.Flags().String("servicer", "", "Assigned technician id")
	requestCreateCmd.Flags().StringSlice("image", nil, "Image reference (repeatable)")
	_ = requestCreateCmd.MarkFlagRequired("building")
	_ = requestCreateCmd.MarkFlagRequired("room")
	_ = requestCreateCmd.MarkFlagRequired("category")

	requestListCmd.Flags().String("technician", "", "Technician id (defaults to identity.technician_id)")
	requestListCmd.Flags().String("search", "", "Case-insensitive search text")
	requestListCmd.Flags().StringSlice("status", nil, "Status filter (repeatable)")
	requestListCmd.Flags().String("from", "", "Created on or after (YYYY-MM-DD)")
	requestListCmd.Flags().String("to", "", "Created on or before (YYYY-MM-DD)")
	requestListCmd.Flags().StringP("output", "o", "table", "Output format (table|yaml)")

	requestScheduleCmd.Flags().String("from", "", "Estimated start (YYYY-MM-DDTHH:MM, local time)")
	requestScheduleCmd.Flags().String("to", "", "Estimated end (YYYY-MM-DDTHH:MM, local time)")
	_ = requestScheduleCmd.MarkFlagRequired("from")
	_ = requestScheduleCmd.MarkFlagRequired("to")

	requestSendBackCmd.Flags().String("reason", "", "Why the request is sent back")
	_ = requestSendBackCmd.MarkFlagRequired("reason")

	for _, c := range []*cobra.Command{requestCreateCmd, requestScheduleCmd, requestStartCmd, requestCompleteCmd, requestSendBackCmd} {
		c.Flags().String("actor", "cli", "Actor recorded in the request history")
	}
}

func filterFromFlags(cmd *cobra.Command) (request.FilterState, error) {
	search, _ := cmd.Flags().GetString("search")
	statuses, _ := cmd.Flags().GetStringSlice("status")
	state := request.FilterState{SearchText: search, Statuses: request.NewStatusSet()}
	for _, raw := range statuses {
		status, err := request.ParseStatus(raw)
		if err != nil {
			return request.FilterState{}, err
		}
		state.Statuses[status] = struct{}{}
	}

	for _, item := range []struct {
		flag string
		dst  **time.Time
	}{
		{"from", &state.FromDate},
		{"to", &state.ToDate},
	} {
		raw, _ := cmd.Flags().GetString(item.flag)
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		parsed, err := time.ParseInLocation(cliDateLayout, raw, time.Local)
		if err != nil {
			return request.FilterState{}, fmt.Errorf("invalid --%s %q: expected %s", item.flag, raw, cliDateLayout)
		}
		*item.dst = &parsed
	}
	return state, nil
}

func printAction(cmd *cobra.Command, verb string, requestID string) error {
	if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s request: %s\n", verb, requestID); err != nil {
		return errs.Wrap(err, "write action output")
	}
	return nil
}

type requestView struct {
	ID             string   `yaml:"id"`
	RequestNo      string   `yaml:"request_no"`
	Status         string   `yaml:"status"`
	Priority       string   `yaml:"priority"`
	Building       string   `yaml:"building"`
	Room           string   `yaml:"room"`
	Category       string   `yaml:"category"`
	Subcategory    string   `yaml:"subcategory"`
	Description    string   `yaml:"description,omitempty"`
	ImageRefs      []string `yaml:"image_refs,omitempty"`
	CreatedOn      string   `yaml:"created_on"`
	EstimatedStart string   `yaml:"estimated_start,omitempty"`
	EstimatedEnd   string   `yaml:"estimated_end,omitempty"`
	ActualStart    string   `yaml:"actual_start,omitempty"`
	ActualEnd      string   `yaml:"actual_end,omitempty"`
	SendBackReason string   `yaml:"send_back_reason,omitempty"`
	Servicer       string   `yaml:"servicer"`
}

func toRequestView(item request.ProjectedRequest) requestView {
	optional := func(value *time.Time) string {
		if value == nil {
			return ""
		}
		return value.Local().Format(time.DateTime)
	}
	return requestView{
		ID:             item.ID,
		RequestNo:      item.RequestNo,
		Status:         item.Status.Label(),
		Priority:       string(item.Priority),
		Building:       item.BuildingName,
		Room:           item.RoomName,
		Category:       item.CategoryName,
		Subcategory:    item.SubcategoryName,
		Description:    item.Description,
		ImageRefs:      item.ImageRefs,
		CreatedOn:      item.CreatedOn.Local().Format(time.DateTime),
		EstimatedStart: optional(item.EstimatedStart),
		EstimatedEnd:   optional(item.EstimatedEnd),
		ActualStart:    optional(item.ActualStart),
		ActualEnd:      optional(item.ActualEnd),
		SendBackReason: item.SendBackReason,
		Servicer:       item.ServicerID,
	}
}

func writeRequests(w io.Writer, format string, items []request.ProjectedRequest) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "table":
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "REQUEST\tSTATUS\tPRIORITY\tBUILDING\tROOM\tCATEGORY\tCREATED\tID")
		for _, item := range items {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				item.RequestNo,
				item.Status.Label(),
				item.Priority,
				item.BuildingName,
				item.RoomName,
				item.CategoryName,
				item.CreatedOn.Local().Format(cliDateLayout),
				item.ID,
			)
		}
		return tw.Flush()
	case "yaml":
		views := make([]requestView, 0, len(items))
		for _, item := range items {
			views = append(views, toRequestView(item))
		}
		return writeYAML(w, views)
	default:
		return fmt.Errorf("unsupported output format %q: expected table or yaml", format)
	}
}

func writeYAML(w io.Writer, v any) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(v); err != nil {
		return errs.Wrap(err, "encode yaml")
	}
	return encoder.Close()
}
