package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// XAIProvider implements Provider for the xAI Grok chat completions API
// (OpenAI-compatible wire format).
type XAIProvider struct {
	apiKey       string
	apiBase      string
	defaultModel string
	visionModel  string
	client       *http.Client
}

// APIKeyFromEnv resolves the xAI key: GROK_API_KEY takes precedence over XAI_API_KEY.
func APIKeyFromEnv() string {
	if k := os.Getenv("GROK_API_KEY"); k != "" {
		return k
	}
	return os.Getenv("XAI_API_KEY")
}

func NewXAIProvider(apiKey, apiBase, defaultModel, visionModel string) *XAIProvider {
	if apiBase == "" {
		apiBase = "https://api.x.ai/v1"
	}
	if defaultModel == "" {
		defaultModel = "grok-4"
	}
	if visionModel == "" {
		visionModel = "grok-4"
	}
	return &XAIProvider{
		apiKey:       apiKey,
		apiBase:      strings.TrimRight(apiBase, "/"),
		defaultModel: defaultModel,
		visionModel:  visionModel,
		client:       &http.Client{Timeout: 180 * time.Second},
	}
}

func (p *XAIProvider) Name() string         { return "xai" }
func (p *XAIProvider) DefaultModel() string { return p.defaultModel }
func (p *XAIProvider) VisionModel() string  { return p.visionModel }

func (p *XAIProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	body := p.buildRequestBody(req, false)
	respBody, err := p.doRequest(ctx, body)
	if err != nil {
		return nil, err
	}
	defer respBody.Close()

	var raw xaiResponse
	if err := json.NewDecoder(respBody).Decode(&raw); err != nil {
		return nil, fmt.Errorf("xai: decode response: %w", err)
	}
	return raw.toChatResponse(), nil
}

func (p *XAIProvider) ChatStream(ctx context.Context, req ChatRequest, onChunk func(StreamChunk)) (*ChatResponse, error) {
	body := p.buildRequestBody(req, true)
	respBody, err := p.doRequest(ctx, body)
	if err != nil {
		return nil, err
	}
	defer respBody.Close()

	result := &ChatResponse{FinishReason: "stop"}
	var usage *Usage

	scanner := bufio.NewScanner(respBody)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}

		var chunk xaiStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if chunk.Usage != nil {
			usage = chunk.Usage
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta != "" {
			result.Content += delta
			if onChunk != nil {
				onChunk(StreamChunk{Content: delta})
			}
		}
		if fr := chunk.Choices[0].FinishReason; fr != "" {
			result.FinishReason = fr
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("xai: stream read: %w", err)
	}
	if onChunk != nil {
		onChunk(StreamChunk{Done: true})
	}
	result.Usage = usage
	return result, nil
}

func (p *XAIProvider) buildRequestBody(req ChatRequest, stream bool) map[string]interface{} {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	msgs := make([]map[string]interface{}, 0, len(req.Messages))
	for _, m := range req.Messages {
		if len(m.Images) == 0 {
			msgs = append(msgs, map[string]interface{}{"role": m.Role, "content": m.Content})
			continue
		}
		// Vision messages use the parts form: text part + image_url parts.
		parts := []map[string]interface{}{{"type": "text", "text": m.Content}}
		for _, img := range m.Images {
			parts = append(parts, map[string]interface{}{
				"type": "image_url",
				"image_url": map[string]interface{}{
					"url": fmt.Sprintf("data:%s;base64,%s", img.MimeType, img.Data),
				},
			})
		}
		msgs = append(msgs, map[string]interface{}{"role": m.Role, "content": parts})
	}

	body := map[string]interface{}{
		"model":    model,
		"messages": msgs,
		"stream":   stream,
	}
	if stream {
		body["stream_options"] = map[string]interface{}{"include_usage": true}
	}
	for k, v := range req.Options {
		body[k] = v
	}
	return body
}

func (p *XAIProvider) doRequest(ctx context.Context, body interface{}) (io.ReadCloser, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiBase+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("xai: request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("xai: API error %d: %s", resp.StatusCode, strings.TrimSpace(string(errBody)))
	}
	return resp.Body, nil
}

type xaiResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *Usage `json:"usage"`
}

func (r *xaiResponse) toChatResponse() *ChatResponse {
	resp := &ChatResponse{FinishReason: "stop", Usage: r.Usage}
	if len(r.Choices) > 0 {
		resp.Content = r.Choices[0].Message.Content
		if r.Choices[0].FinishReason != "" {
			resp.FinishReason = r.Choices[0].FinishReason
		}
	}
	return resp
}

type xaiStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *Usage `json:"usage"`
}
