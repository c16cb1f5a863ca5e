// Command sprocket is the sprocket CLI client.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sprocketd/sprocket/internal/version"
)

const defaultServer = "http://localhost:9290"

func main() {
	var (
		serverURL = flag.String("server", defaultServer, "sprocket server URL")
		token     = flag.String("token", os.Getenv("SPROCKET_TOKEN"), "JWT auth token")
	)
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	cli := &Client{
		BaseURL:    strings.TrimRight(*serverURL, "/"),
		Token:      *token,
		HTTPClient: &http.Client{Timeout: 10 * time.Minute}, // start blocks on the worker
	}

	cmd := args[0]
	rest := args[1:]

	var err error
	switch cmd {
	case "version":
		err = cmdVersion(rest)
	case "status":
		err = cli.cmdStatus(rest)
	case "login":
		err = cli.cmdLogin(rest)
	case "agents":
		err = cli.cmdAgents(rest)
	case "tasks":
		err = cli.cmdTasks(rest)
	case "task":
		err = cli.cmdTask(rest)
	case "cancel-all":
		err = cli.cmdCancelAll(rest)
	case "validate":
		err = cli.cmdValidate(rest)
	case "next":
		err = cli.cmdNext(rest)
	case "history":
		err = cli.cmdHistory(rest)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `sprocket: workflow engine CLI

Usage:
  sprocket [flags] <command> [args]

Flags:
  --server  <url>    server URL (default: http://localhost:9290)
  --token   <token>  JWT auth token (or $SPROCKET_TOKEN)

Commands:
  version                           print version
  status                            show server status
  login <user> <pass>               obtain an auth token
  agents                            list agent availability
  tasks [set]                       list tasks (pending|active|completed|failed)
  task create <agent> <unit> <src>  create a task (--auto for full automation)
  task show <id>                    show one task
  task start <id>                   start a task (blocks on the worker)
  task complete <id> <result>       complete a task with a status token
  task fail <id> <error>            fail a task
  task cancel <id> <reason>         cancel a task
  task chain <id>                   chain from a completed task
  task meta <id> <key> <value>      set task metadata
  cancel-all <reason>               cancel every pending and active task
  validate <agent> <unit>           validate an agent's outputs
  next <agent> <status>             resolve the next agent for a status
  history                           show recent lifecycle events
`)
}

// --- version ---

func cmdVersion(_ []string) error {
	fmt.Println("sprocket " + version.String())
	return nil
}

// Client holds HTTP client state for CLI commands.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// get performs a GET and decodes JSON into v.
func (c *Client) get(path string, v any) error {
	req, err := http.NewRequest(http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	return c.do(req, v)
}

// post performs a POST with a JSON body and decodes the response into v
// (which may be nil).
func (c *Client) post(path string, body any, v any) error {
	return c.send(http.MethodPost, path, body, v)
}

// put performs a PUT with a JSON body.
func (c *Client) put(path string, body any, v any) error {
	return c.send(http.MethodPut, path, body, v)
}

func (c *Client) send(method, path string, body any, v any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = strings.NewReader(string(data))
	}
	req, err := http.NewRequest(method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	return c.do(req, v)
}

func (c *Client) do(req *http.Request, v any) error {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if v != nil && resp.ContentLength != 0 && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(v)
	}
	return nil
}

// --- status / login ---

func (c *Client) cmdStatus(_ []string) error {
	var result map[string]string
	if err := c.get("/api/status", &result); err != nil {
		return err
	}
	fmt.Printf("status:  %s\n", result["status"])
	fmt.Printf("version: %s\n", result["version"])
	return nil
}

func (c *Client) cmdLogin(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: sprocket login <user> <pass>")
	}
	var result map[string]string
	err := c.post("/api/auth/login", map[string]string{
		"username": args[0],
		"password": args[1],
	}, &result)
	if err != nil {
		return err
	}
	fmt.Println(result["token"])
	return nil
}

// --- agents ---

func (c *Client) cmdAgents(_ []string) error {
	var agents []map[string]any
	if err := c.get("/api/agents", &agents); err != nil {
		return err
	}
	if len(agents) == 0 {
		fmt.Println("no agents have been referenced yet")
		return nil
	}
	fmt.Printf("%-20s %-8s %-36s\n", "AGENT", "STATUS", "CURRENT TASK")
	fmt.Println(strings.Repeat("-", 66))
	for _, a := range agents {
		fmt.Printf("%-20s %-8s %-36s\n",
			strVal(a["agent"]), strVal(a["status"]), strVal(a["current_task_id"]))
	}
	return nil
}

// --- tasks ---

func (c *Client) cmdTasks(args []string) error {
	path := "/api/tasks"
	if len(args) > 0 {
		path += "?set=" + args[0]
	}
	var tasks []map[string]any
	if err := c.get(path, &tasks); err != nil {
		return err
	}
	if len(tasks) == 0 {
		fmt.Println("no tasks")
		return nil
	}
	fmt.Printf("%-36s %-12s %-10s %-28s\n", "ID", "AGENT", "STATUS", "TITLE")
	fmt.Println(strings.Repeat("-", 90))
	for _, t := range tasks {
		fmt.Printf("%-36s %-12s %-10s %-28s\n",
			strVal(t["id"]),
			strVal(t["agent"]),
			strVal(t["status"]),
			truncate(strVal(t["title"]), 27),
		)
	}
	return nil
}

func (c *Client) cmdTask(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: sprocket task <create|show|start|complete|fail|cancel|chain|meta> ...")
	}
	sub := args[0]
	rest := args[1:]
	switch sub {
	case "create":
		return c.taskCreate(rest)
	case "show":
		if len(rest) < 1 {
			return fmt.Errorf("usage: sprocket task show <id>")
		}
		var t map[string]any
		if err := c.get("/api/tasks/"+rest[0], &t); err != nil {
			return err
		}
		return printJSON(t)
	case "start":
		if len(rest) < 1 {
			return fmt.Errorf("usage: sprocket task start <id>")
		}
		var t map[string]any
		if err := c.post("/api/tasks/"+rest[0]+"/start", nil, &t); err != nil {
			return err
		}
		fmt.Printf("task %s is now %s\n", strVal(t["id"]), strVal(t["status"]))
		return nil
	case "complete":
		if len(rest) < 2 {
			return fmt.Errorf("usage: sprocket task complete <id> <result>")
		}
		var res map[string]any
		body := map[string]string{"result": strings.Join(rest[1:], " ")}
		if err := c.post("/api/tasks/"+rest[0]+"/complete", body, &res); err != nil {
			return err
		}
		return printJSON(res)
	case "fail":
		if len(rest) < 2 {
			return fmt.Errorf("usage: sprocket task fail <id> <error>")
		}
		body := map[string]string{"error": strings.Join(rest[1:], " ")}
		if err := c.post("/api/tasks/"+rest[0]+"/fail", body, nil); err != nil {
			return err
		}
		fmt.Printf("task %s failed\n", rest[0])
		return nil
	case "cancel":
		if len(rest) < 2 {
			return fmt.Errorf("usage: sprocket task cancel <id> <reason>")
		}
		body := map[string]string{"reason": strings.Join(rest[1:], " ")}
		if err := c.post("/api/tasks/"+rest[0]+"/cancel", body, nil); err != nil {
			return err
		}
		fmt.Printf("task %s cancelled\n", rest[0])
		return nil
	case "chain":
		if len(rest) < 1 {
			return fmt.Errorf("usage: sprocket task chain <id>")
		}
		var res map[string]any
		if err := c.post("/api/tasks/"+rest[0]+"/chain", nil, &res); err != nil {
			return err
		}
		fmt.Println(strVal(res["message"]))
		return nil
	case "meta":
		if len(rest) < 3 {
			return fmt.Errorf("usage: sprocket task meta <id> <key> <value>")
		}
		body := map[string]string{"key": rest[1], "value": rest[2]}
		return c.put("/api/tasks/"+rest[0]+"/metadata", body, nil)
	default:
		return fmt.Errorf("unknown task subcommand: %s", sub)
	}
}

func (c *Client) taskCreate(args []string) error {
	fs := flag.NewFlagSet("task create", flag.ContinueOnError)
	auto := fs.Bool("auto", false, "enable auto-complete and auto-chain")
	priority := fs.String("priority", "normal", "task priority")
	title := fs.String("title", "", "task title")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) < 3 {
		return fmt.Errorf("usage: sprocket task create [--auto] <agent> <unit> <source>")
	}

	body := map[string]any{
		"agent":       rest[0],
		"unit":        rest[1],
		"source_path": rest[2],
		"priority":    *priority,
		"title":       *title,
		"automation": map[string]bool{
			"auto_complete": *auto,
			"auto_chain":    *auto,
		},
	}
	var t map[string]any
	if err := c.post("/api/tasks", body, &t); err != nil {
		return err
	}
	fmt.Printf("created task %s\n", strVal(t["id"]))
	return nil
}

// --- bulk / resolution ---

func (c *Client) cmdCancelAll(args []string) error {
	reason := "cancelled by operator"
	if len(args) > 0 {
		reason = strings.Join(args, " ")
	}
	var res map[string]int
	if err := c.post("/api/tasks/cancel-all", map[string]string{"reason": reason}, &res); err != nil {
		return err
	}
	fmt.Printf("cancelled %d task(s)\n", res["cancelled"])
	return nil
}

func (c *Client) cmdValidate(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: sprocket validate <agent> <unit>")
	}
	var res map[string]any
	body := map[string]string{"agent": args[0], "unit": args[1]}
	if err := c.post("/api/validate", body, &res); err != nil {
		return err
	}
	fmt.Println(strVal(res["summary"]))
	return nil
}

func (c *Client) cmdNext(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: sprocket next <agent> <status>")
	}
	var res map[string]string
	path := fmt.Sprintf("/api/resolve/next-agent?agent=%s&status=%s", args[0], args[1])
	if err := c.get(path, &res); err != nil {
		return err
	}
	if res["next_agent"] == "" {
		fmt.Println("no next agent defined")
		return nil
	}
	fmt.Println(res["next_agent"])
	return nil
}

func (c *Client) cmdHistory(_ []string) error {
	var evs []map[string]any
	if err := c.get("/api/history", &evs); err != nil {
		return err
	}
	if len(evs) == 0 {
		fmt.Println("no events")
		return nil
	}
	for _, ev := range evs {
		fmt.Printf("%s  %-16s task=%s agent=%s %s\n",
			strVal(ev["timestamp"]),
			strVal(ev["type"]),
			strVal(ev["task_id"]),
			strVal(ev["agent"]),
			strVal(ev["detail"]),
		)
	}
	return nil
}

// --- helpers ---

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func strVal(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
