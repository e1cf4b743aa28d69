package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// Message es el formato de rol/contenido que entiende el endpoint de chat.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatClient define la interfaz para generar respuestas con un LLM.
type ChatClient interface {
	Complete(ctx context.Context, messages []Message) (string, error)
	Generate(ctx context.Context, prompt string) (string, error)
}

// Embedder convierte texto en un vector de longitud fija.
type Embedder interface {
	CreateEmbedding(ctx context.Context, text string) ([]float32, error)
}

var (
	ErrEmptyResponse     = errors.New("llm empty response")
	ErrMalformedResponse = errors.New("llm malformed response")
)

// StatusError representa una respuesta no-2xx del proveedor.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("llm http error: status=%d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("llm http error: status=%d", e.StatusCode)
}

// Options agrupa parametros fijos de muestreo y transporte.
type Options struct {
	Model          string
	EmbeddingModel string
	Temperature    float64
	MaxTokens      int
	Timeout        time.Duration
}

// HTTPClient implementa ChatClient y Embedder contra una API OpenAI-compatible.
type HTTPClient struct {
	baseURL string
	apiKey  string
	opts    Options
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPClient construye un cliente HTTP apuntando a la API de chat completions.
func NewHTTPClient(baseURL, apiKey string, opts Options, logger *zap.Logger) *HTTPClient {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1000
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		opts:    opts,
		client:  &http.Client{Timeout: opts.Timeout},
		logger:  logger,
	}
}

// Generate envia un unico prompt de usuario.
func (c *HTTPClient) Generate(ctx context.Context, prompt string) (string, error) {
	return c.Complete(ctx, []Message{{Role: "user", Content: prompt}})
}

// Complete envia el historial completo, en orden, y devuelve el texto del asistente.
func (c *HTTPClient) Complete(ctx context.Context, messages []Message) (string, error) {
	ctx, span := otel.Tracer("coach-llm/llm").Start(ctx, "llm.complete")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", c.opts.Model),
		attribute.Int("llm.messages", len(messages)),
	)

	reqBody := chatRequest{
		Model:       c.opts.Model,
		Messages:    messages,
		Temperature: c.opts.Temperature,
		MaxTokens:   c.opts.MaxTokens,
	}

	var cr chatResponse
	if err := c.post(ctx, "/chat/completions", reqBody, &cr); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		return "", err
	}

	if len(cr.Choices) == 0 || strings.TrimSpace(cr.Choices[0].Message.Content) == "" {
		span.SetStatus(codes.Error, "empty choices")
		return "", ErrEmptyResponse
	}

	return cr.Choices[0].Message.Content, nil
}

// CreateEmbedding llama a /embeddings con el modelo configurado.
func (c *HTTPClient) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	ctx, span := otel.Tracer("coach-llm/llm").Start(ctx, "llm.embedding")
	defer span.End()
	span.SetAttributes(attribute.String("llm.embedding_model", c.opts.EmbeddingModel))

	input := strings.TrimSpace(text)
	if input == "" {
		input = " "
	}

	var er embeddingResponse
	if err := c.post(ctx, "/embeddings", embeddingRequest{Model: c.opts.EmbeddingModel, Input: []string{input}}, &er); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "embedding failed")
		return nil, err
	}
	if len(er.Data) == 0 || len(er.Data[0].Embedding) == 0 {
		return nil, ErrEmptyResponse
	}

	vec := make([]float32, len(er.Data[0].Embedding))
	for i, f := range er.Data[0].Embedding {
		vec[i] = float32(f)
	}
	return vec, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, body any, out any) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("llm error status",
			zap.Int("status", resp.StatusCode),
			zap.String("path", path),
			zap.Int("body_bytes", len(respBody)),
		)
		return &StatusError{StatusCode: resp.StatusCode, Message: apiErrorMessage(respBody)}
	}

	var envelope struct {
		Error *apiError `json:"error,omitempty"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if envelope.Error != nil {
		return fmt.Errorf("llm api error: %s", envelope.Error.Message)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

// apiErrorMessage extrae error.message si el cuerpo lo trae; cualquier otra forma se ignora.
func apiErrorMessage(body []byte) string {
	var envelope struct {
		Error *apiError `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Error == nil {
		return ""
	}
	return envelope.Error.Message
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

type apiError struct {
	Message string `json:"message"`
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}
