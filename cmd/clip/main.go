// Command clip posts clipboard items to a Clipdrop server and follows their
// upload progress over the websocket channel.
package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/docker/go-units"
	"github.com/fatih/color"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/rohits-web03/clipdrop/internal/blobstore"
	"github.com/rohits-web03/clipdrop/internal/clipboard"
	"github.com/rohits-web03/clipdrop/internal/logging"
	"github.com/rohits-web03/clipdrop/internal/subscriber"
)

var (
	logger    *slog.Logger
	serverURL string
	token     string
	logLevel  string
)

func main() {
	flag.StringVar(&serverURL, "server", envOr("CLIP_SERVER", "http://localhost:8080"), "Clipdrop server base URL")
	flag.StringVar(&token, "token", os.Getenv("CLIP_TOKEN"), "Bearer token for owner-scoped items")
	flag.StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	flag.Usage = printUsage
	flag.Parse()

	logger = logging.NewWithWriter(os.Stderr, "development", logLevel)

	args := flag.Args()
	if len(args) < 1 {
		printUsage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch args[0] {
	case "put":
		err = handlePut(ctx, args[1:])
	case "watch":
		err = handleWatch(ctx, args[1:])
	default:
		fmt.Fprintf(os.Stderr, "%s Unknown command '%s'\n", color.RedString("Error:"), color.CyanString(args[0]))
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %s\n", color.RedString("Error:"), err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [flags] <command> [args]\n\n", filepath.Base(os.Args[0]))
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  %s %s | %s [%s]\n", color.GreenString("put"), color.CyanString("-file <path>"), color.CyanString("-text <content>"), color.CyanString("-ttl <days>"))
	fmt.Fprintf(os.Stderr, "  %s %s\n\n", color.GreenString("watch"), color.CyanString("-id <clipboard id>"))
	fmt.Fprintf(os.Stderr, "Flags:\n")
	flag.PrintDefaults()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func handlePut(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("put", flag.ContinueOnError)
	path := fs.String("file", "", "File to upload")
	text := fs.String("text", "", "Text to store")
	ttl := fs.Float64("ttl", 0, "Retention in days (server default when 0)")
	watch := fs.Bool("watch", true, "Follow progress while the blob store commits")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if (*path == "") == (*text == "") {
		return errors.New("put needs exactly one of -file or -text")
	}

	req := clipboard.CreateRequest{Kind: "text", Content: *text}
	if *path != "" {
		data, err := os.ReadFile(*path)
		if err != nil {
			return fmt.Errorf("read %s: %w", *path, err)
		}
		contentType := mime.TypeByExtension(filepath.Ext(*path))
		if contentType == "" {
			contentType = http.DetectContentType(data)
		}
		req = clipboard.CreateRequest{
			Kind:     "file",
			FileName: filepath.Base(*path),
			FileType: contentType,
			FileData: base64.StdEncoding.EncodeToString(data),
		}
		fmt.Fprintf(os.Stderr, "Uploading %s (%s)\n", color.CyanString(req.FileName), units.HumanSize(float64(len(data))))
	}
	if *ttl > 0 {
		req.TTLDays = ttl
	}

	res, err := create(ctx, req)
	if err != nil {
		return err
	}

	fmt.Printf("%s %s\n", color.GreenString("id:"), res.ID)
	fmt.Printf("%s %s\n", color.GreenString("url:"), res.URL)
	fmt.Printf("%s %s\n", color.GreenString("expires:"), res.ExpiresAt.Local().Format(time.RFC1123))

	if res.Status == clipboard.StatusCompleted || !*watch {
		fmt.Printf("%s %s\n", color.GreenString("status:"), res.Status)
		return nil
	}
	fmt.Printf("%s %s\n", color.YellowString("status:"), res.Status)
	return follow(ctx, res.ID)
}

func handleWatch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	id := fs.String("id", "", "Clipboard id to follow")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return errors.New("watch needs -id")
	}
	return follow(ctx, *id)
}

func httpClient() *retryablehttp.Client {
	rc := retryablehttp.NewClient()
	rc.Logger = logger
	rc.RetryMax = 2
	rc.HTTPClient.Timeout = 5 * time.Minute
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return rc
}

func create(ctx context.Context, body clipboard.CreateRequest) (clipboard.CreateResult, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return clipboard.CreateResult{}, err
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(serverURL, "/")+"/v1/clipboard", bytes.NewReader(raw))
	if err != nil {
		return clipboard.CreateResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := httpClient().Do(req)
	if err != nil {
		return clipboard.CreateResult{}, fmt.Errorf("create clipboard item: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return clipboard.CreateResult{}, err
	}
	if resp.StatusCode != http.StatusCreated {
		var failure struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(data, &failure)
		if failure.Message == "" {
			failure.Message = resp.Status
		}
		return clipboard.CreateResult{}, fmt.Errorf("server rejected item (%d): %s", resp.StatusCode, failure.Message)
	}

	var res clipboard.CreateResult
	if err := json.Unmarshal(data, &res); err != nil {
		return clipboard.CreateResult{}, fmt.Errorf("decode create response: %w", err)
	}
	return res, nil
}

// progressURL maps the server base URL onto its websocket endpoint.
func progressURL() (string, error) {
	u, err := url.Parse(strings.TrimRight(serverURL, "/"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	u.Path += "/ws"
	return u.String(), nil
}

func render(st subscriber.State) {
	switch {
	case st.Err != "":
		fmt.Fprintf(os.Stderr, "\r%s %s\n", color.RedString("error:"), st.Err)
	case st.Remote != nil:
		fmt.Fprintf(os.Stderr, "\rlocal %3.0f%%  remote %3.0f%%  %-10s", st.Local, st.Remote.Progress.Percentage, st.Remote.Status)
	default:
		fmt.Fprintf(os.Stderr, "\rlocal %3.0f%%  waiting for the blob store", st.Local)
	}
}

func follow(ctx context.Context, id string) error {
	target, err := progressURL()
	if err != nil {
		return fmt.Errorf("progress url: %w", err)
	}
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	sub, err := subscriber.New(subscriber.Options{
		URL:      target,
		ID:       id,
		Header:   header,
		Logger:   logger,
		OnUpdate: render,
	})
	if err != nil {
		return err
	}
	// dial failures are retried by the subscriber itself
	_ = sub.Start()

	select {
	case <-sub.Done():
	case <-ctx.Done():
		_ = sub.Close()
		fmt.Fprintln(os.Stderr)
		return ctx.Err()
	}
	_ = sub.Close()
	fmt.Fprintln(os.Stderr)

	st := sub.State()
	if st.Remote == nil {
		return errors.New("progress channel closed before any status arrived")
	}
	if st.Remote.Status == blobstore.StatusFailed {
		return fmt.Errorf("upload failed: %s", st.Remote.Error)
	}
	fmt.Printf("%s %s\n", color.GreenString("status:"), st.Remote.Status)
	return nil
}
