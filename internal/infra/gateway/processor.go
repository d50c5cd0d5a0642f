package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/totegamma/agentdesk"
	"github.com/totegamma/agentdesk/internal/domain"
)

var tracer = otel.Tracer("gateway")

const defaultDispatchPath = "/agents/dispatch"

// maxAckSize bounds how much of the acknowledgement body is read.
const maxAckSize = 1 << 20

type ProcessorConfig struct {
	BaseURL      string
	DispatchPath string
	Timeout      time.Duration
	UserAgent    string
}

// ProcessorGateway forwards new requests to the external processor. It
// makes exactly one attempt per call.
type ProcessorGateway struct {
	client    *http.Client
	endpoint  string
	userAgent string
}

func NewProcessorGateway(conf ProcessorConfig) *ProcessorGateway {
	path := conf.DispatchPath
	if path == "" {
		path = defaultDispatchPath
	}

	g := &ProcessorGateway{
		endpoint:  strings.TrimRight(conf.BaseURL, "/") + "/" + strings.TrimLeft(path, "/"),
		userAgent: conf.UserAgent,
	}
	g.client = &http.Client{
		Timeout:   conf.Timeout,
		Transport: g,
	}
	return g
}

func (g *ProcessorGateway) RoundTrip(req *http.Request) (*http.Response, error) {
	if g.userAgent != "" {
		req.Header.Set("User-Agent", g.userAgent)
	}
	return http.DefaultTransport.RoundTrip(req)
}

func (g *ProcessorGateway) Dispatch(ctx context.Context, dr agentdesk.DispatchRequest) error {
	ctx, span := tracer.Start(ctx, "Processor.Gateway.Dispatch")
	defer span.End()
	span.SetAttributes(attribute.String("RequestId", dr.RequestID))

	body, err := json.Marshal(dr)
	if err != nil {
		return &domain.DispatchError{Reason: "failed to encode request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return &domain.DispatchError{Reason: "failed to create request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		span.RecordError(err)
		return &domain.DispatchError{Reason: "failed to perform request", Err: err}
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("StatusCode", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxAckSize))
		return &domain.DispatchError{Reason: fmt.Sprintf("unexpected status code: %d", resp.StatusCode)}
	}

	var ack agentdesk.DispatchAck
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxAckSize)).Decode(&ack); err != nil {
		return &domain.DispatchError{Reason: "failed to decode acknowledgement", Err: err}
	}

	if !ack.Accepted() {
		return &domain.DispatchError{Reason: fmt.Sprintf("processor answered status %q", ack.Status)}
	}

	return nil
}
