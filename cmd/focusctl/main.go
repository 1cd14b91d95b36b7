// focusctl controls a running focusd and reads its output.
//
// Usage:
//
//	focusctl send START_SESSION|CALIBRATE|END_SESSION
//	focusctl status
//	focusctl summary
//	focusctl watch
//
// Commands go through the control file in -dir unless -server is set, in
// which case the HTTP API is used.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-focus/internal/httpc"
	"github.com/teslashibe/go-focus/pkg/control"
	"github.com/teslashibe/go-focus/pkg/hub"
	"github.com/teslashibe/go-focus/pkg/report"
)

type options struct {
	dir     string
	server  string
	control string
	status  string
	summary string
	topics  string
}

func main() {
	var o options
	flag.StringVar(&o.dir, "dir", ".", "focusd output directory")
	flag.StringVar(&o.server, "server", "", "focusd HTTP address, e.g. http://localhost:8090")
	flag.StringVar(&o.control, "control", "control.json", "Control file name inside -dir")
	flag.StringVar(&o.status, "status", "status.json", "Status file name inside -dir")
	flag.StringVar(&o.summary, "summary", "summary.json", "Summary file name inside -dir")
	flag.StringVar(&o.topics, "topics", "", "Comma-separated topics for watch (status,tick,summary); empty for all")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch cmd, args := flag.Arg(0), flag.Args()[1:]; cmd {
	case "send":
		err = send(ctx, o, args)
	case "status":
		err = status(ctx, o)
	case "summary":
		err = summary(ctx, o)
	case "watch":
		err = watch(ctx, o)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: focusctl [flags] send KIND | status | summary | watch\n\n")
	fmt.Fprintf(os.Stderr, "KIND is one of START_SESSION, CALIBRATE, END_SESSION.\n\nFlags:\n")
	flag.PrintDefaults()
}

func send(ctx context.Context, o options, args []string) error {
	if len(args) != 1 {
		return errors.New("send takes exactly one command")
	}
	kind, err := control.ParseKind(args[0])
	if err != nil {
		return err
	}

	if o.server != "" {
		var resp struct {
			Command  string `json:"command"`
			IssuedAt string `json:"issued_at"`
		}
		if err := httpc.PostJSON(ctx, apiURL(o.server, "/api/control"), map[string]string{"command": string(kind)}, &resp); err != nil {
			return err
		}
		fmt.Printf("Sent %s (%s)\n", resp.Command, resp.IssuedAt)
		return nil
	}

	cmd := control.Command{Kind: kind, IssuedAt: time.Now()}
	path := filepath.Join(o.dir, o.control)
	if err := control.WriteFile(path, cmd); err != nil {
		return err
	}
	fmt.Printf("Wrote %s to %s\n", kind, path)
	return nil
}

func status(ctx context.Context, o options) error {
	var doc report.StatusDoc
	if o.server != "" {
		if err := httpc.GetJSON(ctx, apiURL(o.server, "/api/status"), &doc); err != nil {
			return err
		}
	} else {
		var err error
		doc, err = report.ReadStatus(filepath.Join(o.dir, o.status))
		if errors.Is(err, fs.ErrNotExist) {
			fmt.Println("No status yet, is focusd running?")
			return nil
		}
		if err != nil {
			return err
		}
	}

	at := time.Unix(0, int64(doc.TS*1e9))
	fmt.Printf("State   : %s\n", doc.State)
	fmt.Printf("Message : %s\n", doc.Message)
	if doc.SessionID != "" {
		fmt.Printf("Session : %s\n", doc.SessionID)
	}
	fmt.Printf("Updated : %s\n", at.Format(report.TimeLayout))
	return nil
}

func summary(ctx context.Context, o options) error {
	var doc report.SummaryDoc
	if o.server != "" {
		err := httpc.GetJSON(ctx, apiURL(o.server, "/api/summary"), &doc)
		var se *httpc.StatusError
		if errors.As(err, &se) && se.StatusCode == 404 {
			fmt.Println("No session summary yet.")
			return nil
		}
		if err != nil {
			return err
		}
	} else {
		var err error
		doc, err = report.ReadSummary(filepath.Join(o.dir, o.summary))
		if errors.Is(err, fs.ErrNotExist) {
			fmt.Println("No session summary yet.")
			return nil
		}
		if err != nil {
			return err
		}
	}
	report.PrintSummary(os.Stdout, doc)
	return nil
}

// watch streams status, tick and summary messages until interrupted.
func watch(ctx context.Context, o options) error {
	if o.server == "" {
		return errors.New("watch requires -server")
	}
	u, err := url.Parse(apiURL(o.server, "/ws/status"))
	if err != nil {
		return err
	}
	if o.topics != "" {
		u.RawQuery = url.Values{"topics": {o.topics}}.Encode()
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("connect %s: %w", u, err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	}()

	for {
		var env hub.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		printEnvelope(env)
	}
}

func printEnvelope(env hub.Envelope) {
	stamp := time.Now().Format("15:04:05")
	switch env.Type {
	case "status":
		var doc report.StatusDoc
		if json.Unmarshal(env.Data, &doc) == nil {
			fmt.Printf("%s [status] %s: %s\n", stamp, doc.State, doc.Message)
			return
		}
	case "summary":
		var doc report.SummaryDoc
		if json.Unmarshal(env.Data, &doc) == nil {
			fmt.Printf("%s [summary]\n", stamp)
			report.PrintSummary(os.Stdout, doc)
			return
		}
	}
	fmt.Printf("%s [%s] %s\n", stamp, env.Type, env.Data)
}

func apiURL(server, path string) string {
	if !strings.Contains(server, "://") {
		server = "http://" + server
	}
	return strings.TrimRight(server, "/") + path
}
