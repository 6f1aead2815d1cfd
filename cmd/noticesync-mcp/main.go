package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// syncRequest mirrors the noticesync API request model.
type syncRequest struct {
	RollNo            string            `json:"rollNo"`
	Password          string            `json:"password"`
	SecurityAnswers   map[string]string `json:"securityAnswers"`
	LastKnownNoticeAt string            `json:"lastKnownNoticeAt,omitempty"`
}

type errorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// syncResponse mirrors the POST /api/v1/sync acknowledgment.
type syncResponse struct {
	ID     string       `json:"id"`
	Status string       `json:"status"`
	Error  *errorDetail `json:"error"`
}

// runRecord mirrors GET /api/v1/sync/:id.
type runRecord struct {
	ID         string       `json:"id"`
	Identity   string       `json:"identity"`
	Status     string       `json:"status"`
	Step       string       `json:"step"`
	Watermark  string       `json:"watermark"`
	Delivered  int          `json:"delivered"`
	Error      *errorDetail `json:"error"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt *time.Time   `json:"finished_at"`
}

func main() {
	apiURL := os.Getenv("NOTICESYNC_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("NOTICESYNC_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "NOTICESYNC_API_KEY is required")
		os.Exit(1)
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(apiURL, "/")).
		SetHeader("X-API-Key", apiKey).
		SetTimeout(30 * time.Second)

	s := server.NewMCPServer(
		"noticesync",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	triggerTool := mcp.NewTool("trigger_notice_sync",
		mcp.WithDescription("Log into the placement portal with the given account and forward every notice newer than the watermark to the configured webhook. Optionally waits for the run to finish."),
		mcp.WithString("roll_no",
			mcp.Required(),
			mcp.Description("Portal roll number, e.g. 23XX10012"),
		),
		mcp.WithString("password",
			mcp.Required(),
			mcp.Description("Portal password"),
		),
		mcp.WithObject("security_answers",
			mcp.Required(),
			mcp.Description("Map of the exact security question text to its answer; exactly three entries"),
		),
		mcp.WithString("last_known_notice_at",
			mcp.Description(`Timestamp of the newest notice already held, "DD-MM-YYYY HH:MM" or RFC 3339. Omit to fetch every listed notice.`),
		),
		mcp.WithBoolean("wait",
			mcp.Description("Wait for the run to finish and return its outcome (default: true)"),
		),
	)
	s.AddTool(triggerTool, handleTrigger(client))

	statusTool := mcp.NewTool("get_sync_status",
		mcp.WithDescription("Return the status of a sync run started earlier."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Run ID returned by trigger_notice_sync"),
		),
	)
	s.AddTool(statusTool, handleStatus(client))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func handleTrigger(client *resty.Client) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		rollNo, err := request.RequireString("roll_no")
		if err != nil {
			return mcp.NewToolResultError("roll_no is required"), nil
		}
		password, err := request.RequireString("password")
		if err != nil {
			return mcp.NewToolResultError("password is required"), nil
		}
		answers, err := stringMap(request.GetArguments()["security_answers"])
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		var ack syncResponse
		res, err := client.R().
			SetContext(ctx).
			SetBody(syncRequest{
				RollNo:            rollNo,
				Password:          password,
				SecurityAnswers:   answers,
				LastKnownNoticeAt: request.GetString("last_known_notice_at", ""),
			}).
			SetResult(&ack).
			SetError(&ack).
			Post("/api/v1/sync")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("API request failed: %v", err)), nil
		}
		if res.IsError() {
			return mcp.NewToolResultError(describeError(res.StatusCode(), ack.Error)), nil
		}

		if !request.GetBool("wait", true) {
			return mcp.NewToolResultText(fmt.Sprintf("Run %s started.", ack.ID)), nil
		}

		run, err := pollRun(ctx, client, ack.ID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("polling run %s failed: %v", ack.ID, err)), nil
		}
		if run.Status == "failed" {
			return mcp.NewToolResultError(formatRun(run)), nil
		}
		return mcp.NewToolResultText(formatRun(run)), nil
	}
}

func handleStatus(client *resty.Client) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError("id is required"), nil
		}
		run, err := getRun(ctx, client, id)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(formatRun(run)), nil
	}
}

func getRun(ctx context.Context, client *resty.Client, id string) (*runRecord, error) {
	var (
		run  runRecord
		fail syncResponse
	)
	res, err := client.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetResult(&run).
		SetError(&fail).
		Get("/api/v1/sync/{id}")
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	if res.IsError() {
		return nil, fmt.Errorf("%s", describeError(res.StatusCode(), fail.Error))
	}
	return &run, nil
}

// pollRun polls the run until it leaves "running" or ctx is done.
func pollRun(ctx context.Context, client *resty.Client, id string) (*runRecord, error) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			run, err := getRun(ctx, client, id)
			if err != nil {
				return nil, err
			}
			if run.Status != "running" {
				return run, nil
			}
		}
	}
}

func stringMap(v any) (map[string]string, error) {
	raw, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("security_answers must be an object of question to answer")
	}
	out := make(map[string]string, len(raw))
	for q, a := range raw {
		s, ok := a.(string)
		if !ok {
			return nil, fmt.Errorf("answer for %q must be a string", q)
		}
		out[q] = s
	}
	return out, nil
}

func describeError(status int, detail *errorDetail) string {
	if detail == nil {
		return fmt.Sprintf("API returned status %d", status)
	}
	return fmt.Sprintf("[%s] %s", detail.Kind, detail.Message)
}

func formatRun(run *runRecord) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Run %s for %s: %s\n", run.ID, run.Identity, run.Status)
	if run.Watermark != "" {
		fmt.Fprintf(&sb, "Watermark: %s\n", run.Watermark)
	}
	switch run.Status {
	case "succeeded":
		fmt.Fprintf(&sb, "Delivered: %d notice(s)\n", run.Delivered)
	case "failed":
		if run.Error != nil {
			fmt.Fprintf(&sb, "Failed at %s: [%s] %s\n", run.Step, run.Error.Kind, run.Error.Message)
		}
	}
	if run.FinishedAt != nil {
		fmt.Fprintf(&sb, "Took: %s\n", run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
	}
	data, _ := json.Marshal(run)
	sb.WriteString("\n")
	sb.Write(data)
	return sb.String()
}
