package comfy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"comfyremote/internal/infra"
)

const (
	defaultTimeout = 30 * time.Second

	// FallbackFilename is the well-known "most recent output" artifact.
	FallbackFilename = "latest.png"
	defaultImageType = "output"

	maxErrorBody = 2048
)

// Options configures the ComfyUI client.
type Options struct {
	BaseURL string
	// PublicURL is the address clients use to fetch artifacts. Defaults to
	// BaseURL.
	PublicURL  string
	ClientID   string
	HTTPClient *http.Client
	Timeout    time.Duration
	Logger     *infra.Logger
}

// Client talks to a ComfyUI-compatible HTTP API.
type Client struct {
	baseURL    string
	publicURL  string
	clientID   string
	httpClient *http.Client
	logger     *infra.Logger
}

// NewClient constructs a client. The base URL is required.
func NewClient(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New("comfy: base url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("comfy: invalid base url: %w", err)
	}
	public := strings.TrimRight(strings.TrimSpace(opts.PublicURL), "/")
	if public == "" {
		public = base
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	clientID := strings.TrimSpace(opts.ClientID)
	if clientID == "" {
		clientID = uuid.NewString()
	}
	logger := infra.OrDiscard(opts.Logger)
	return &Client{
		baseURL:    base,
		publicURL:  public,
		clientID:   clientID,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// BaseURL returns the configured service address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Submit posts a job graph to /prompt and returns the prompt id.
func (c *Client) Submit(ctx context.Context, graph any) (string, error) {
	body, err := json.Marshal(promptRequest{Prompt: graph, ClientID: c.clientID})
	if err != nil {
		return "", &SubmissionError{Err: fmt.Errorf("encode request: %w", err)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/prompt", bytes.NewReader(body))
	if err != nil {
		return "", &SubmissionError{Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &SubmissionError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &SubmissionError{StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode >= 300 {
		return "", &SubmissionError{StatusCode: resp.StatusCode, Body: truncate(raw)}
	}

	var decoded promptResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", &SubmissionError{StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	if decoded.Error != nil || len(decoded.NodeErrors) > 0 {
		return "", &SubmissionError{StatusCode: resp.StatusCode, Body: truncate(raw), Err: errors.New("service rejected prompt")}
	}
	promptID := strings.TrimSpace(decoded.PromptID)
	if promptID == "" {
		return "", &SubmissionError{StatusCode: resp.StatusCode, Err: errors.New("empty prompt_id")}
	}
	c.logger.Debug().
		Str("prompt_id", promptID).
		Int("number", decoded.Number).
		Msg("comfy: prompt submitted")
	return promptID, nil
}

// Queue reads the current queue snapshot.
func (c *Client) Queue(ctx context.Context) (QueueSnapshot, error) {
	raw, err := c.get(ctx, "queue", c.baseURL+"/queue")
	if err != nil {
		return QueueSnapshot{}, err
	}
	snap, err := parseQueue(raw)
	if err != nil {
		return QueueSnapshot{}, &TransportError{Op: "queue", Err: err}
	}
	return snap, nil
}

// History fetches the result record of a prompt. ErrHistoryNotFound is
// returned when the service has no record for it.
func (c *Client) History(ctx context.Context, promptID string) (*HistoryEntry, error) {
	promptID = strings.TrimSpace(promptID)
	if promptID == "" {
		return nil, errors.New("comfy: prompt id required")
	}
	raw, err := c.get(ctx, "history", c.baseURL+"/history/"+url.PathEscape(promptID))
	if err != nil {
		return nil, err
	}
	var records map[string]HistoryEntry
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, &TransportError{Op: "history", Err: fmt.Errorf("decode response: %w", err)}
	}
	entry, ok := records[promptID]
	if !ok {
		return nil, ErrHistoryNotFound
	}
	return &entry, nil
}

// ViewURL builds the retrievable address of an output image. The URL is
// never dereferenced here.
func (c *Client) ViewURL(ref ImageRef) string {
	kind := ref.Type
	if kind == "" {
		kind = defaultImageType
	}
	params := url.Values{}
	params.Set("filename", ref.Filename)
	params.Set("subfolder", ref.Subfolder)
	params.Set("type", kind)
	return c.publicURL + "/view?" + params.Encode()
}

// FallbackURL is the default artifact reference used when no result record
// can be read.
func (c *Client) FallbackURL() string {
	params := url.Values{}
	params.Set("filename", FallbackFilename)
	params.Set("type", defaultImageType)
	return c.publicURL + "/view?" + params.Encode()
}

// Download fetches artifact bytes and the reported content type.
func (c *Client) Download(ctx context.Context, rawURL string) ([]byte, string, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || parsed.Scheme == "" {
		return nil, "", fmt.Errorf("comfy: invalid artifact url: %s", rawURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("comfy: build download request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", &TransportError{Op: "download", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, "", &TransportError{Op: "download", StatusCode: resp.StatusCode}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", &TransportError{Op: "download", Err: err}
	}
	format := resp.Header.Get("Content-Type")
	if format == "" {
		format = "image/png"
	}
	return data, format, nil
}

func (c *Client) get(ctx context.Context, op, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	if resp.StatusCode >= 300 {
		return nil, &TransportError{Op: op, StatusCode: resp.StatusCode}
	}
	return raw, nil
}

// parseQueue tolerates missing lists and both item encodings: objects with
// a prompt_id field and ComfyUI's positional [number, prompt_id, ...] rows.
func parseQueue(raw []byte) (QueueSnapshot, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return QueueSnapshot{}, fmt.Errorf("decode response: %w", err)
	}
	snap := QueueSnapshot{Running: promptIDs(fields["queue_running"])}
	if pending, ok := fields["queue_pending"]; ok {
		snap.Pending = promptIDs(pending)
	} else {
		snap.Pending = promptIDs(fields["pending"])
	}
	return snap, nil
}

func promptIDs(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if id := itemPromptID(item); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func itemPromptID(item json.RawMessage) string {
	var obj struct {
		PromptID string `json:"prompt_id"`
	}
	if err := json.Unmarshal(item, &obj); err == nil {
		return obj.PromptID
	}
	var row []json.RawMessage
	if err := json.Unmarshal(item, &row); err != nil || len(row) < 2 {
		return ""
	}
	var id string
	if err := json.Unmarshal(row[1], &id); err != nil {
		return ""
	}
	return id
}

func truncate(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > maxErrorBody {
		cut := maxErrorBody
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut]
	}
	return s
}
