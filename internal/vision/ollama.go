package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// Ollama implements the Client interface against an Ollama server's chat
// API. Vision models there can be slow, so the default timeout is generous;
// the caller's context still bounds every call.
type Ollama struct {
	baseURL  string
	model    string
	username string
	password string
	client   *http.Client
}

// NewOllama creates an Ollama Client. Recommended vision models, in order:
// qwen2.5vl:7b, llama3.2-vision, llava:1.6, llava:latest.
func NewOllama(baseURL, model, username, password string, timeout time.Duration) (*Ollama, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "qwen2.5vl:7b"
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	return &Ollama{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		model:    model,
		username: username,
		password: password,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name       string `json:"name"`
		Size       int64  `json:"size"`
		ModifiedAt string `json:"modified_at"`
		Details    struct {
			ParameterSize     string `json:"parameter_size"`
			QuantizationLevel string `json:"quantization_level"`
		} `json:"details"`
	} `json:"models"`
}

// Extract sends the image and extraction prompt in a single chat call and
// returns the raw response text.
func (o *Ollama) Extract(ctx context.Context, req Request) (string, error) {
	model := req.Model
	if model == "" {
		model = o.model
	}

	avail := o.Probe(ctx)
	if avail.Status != StatusOnline {
		return "", fmt.Errorf("%w: %s", ErrUnreachable, avail.Message)
	}
	if !modelListed(avail.Models, model) {
		return "", fmt.Errorf("%w: %q not in endpoint model list", ErrModelUnavailable, model)
	}

	pngData, err := normalizeImage(req.Image, req.ContentType)
	if err != nil {
		return "", err
	}

	body := ollamaChatRequest{
		Model:  model,
		Stream: false,
		Messages: []ollamaMessage{
			{Role: "system", Content: systemPrompt},
			{
				Role:    "user",
				Content: buildPrompt(req.Headers, req.Instructions),
				Images:  []string{base64.StdEncoding.EncodeToString(pngData)},
			},
		},
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	o.setAuth(httpReq)

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return "", o.mapTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%w: %s", ErrModelUnavailable, strings.TrimSpace(string(respBody)))
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	return strings.TrimSpace(chatResp.Message.Content), nil
}

// Probe lists the endpoint's models via /api/tags. A server that cannot be
// reached reports offline; it never errors.
func (o *Ollama) Probe(ctx context.Context) Availability {
	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(probeCtx, http.MethodGet, o.baseURL+"/api/tags", nil)
	if err != nil {
		return Availability{Status: StatusOffline, Message: err.Error()}
	}
	o.setAuth(httpReq)

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return Availability{Status: StatusOffline, Message: "cannot connect to ollama"}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Availability{
			Status:  StatusOffline,
			Message: fmt.Sprintf("ollama returned status %d", resp.StatusCode),
		}
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return Availability{Status: StatusOffline, Message: "decoding model list failed"}
	}

	models := make([]ModelInfo, 0, len(tags.Models))
	for _, m := range tags.Models {
		models = append(models, ModelInfo{
			Name:              m.Name,
			Size:              m.Size,
			ParameterSize:     m.Details.ParameterSize,
			QuantizationLevel: m.Details.QuantizationLevel,
			ModifiedAt:        m.ModifiedAt,
		})
	}
	return Availability{Status: StatusOnline, Models: models}
}

// Close is a no-op for the HTTP client.
func (o *Ollama) Close() error {
	return nil
}

func (o *Ollama) setAuth(req *http.Request) {
	if o.username != "" || o.password != "" {
		req.SetBasicAuth(o.username, o.password)
	}
}

// mapTransportError translates net/http failures into the client taxonomy.
func (o *Ollama) mapTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}

// modelListed reports whether name matches a served model, tolerating a
// missing tag suffix ("llava" matches "llava:latest").
func modelListed(models []ModelInfo, name string) bool {
	for _, m := range models {
		if m.Name == name {
			return true
		}
		if base, _, ok := strings.Cut(m.Name, ":"); ok && base == name {
			return true
		}
	}
	return false
}
