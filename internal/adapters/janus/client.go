// Package janus is a thin HTTP/JSON client for a Janus-style media server.
// Every call is a single blocking request; no retries happen here.
package janus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/domain"
	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/metrics"
)

const (
	DefaultRequestTimeout  = 10 * time.Second
	DefaultLongPollTimeout = 60 * time.Second
)

type Config struct {
	// URL of the Janus HTTP transport, e.g. http://localhost:8088/janus.
	URL            string
	RequestTimeout time.Duration
	// LongPollTimeout bounds one GET on the session endpoint. Janus answers
	// with a keepalive after ~30s, so this must be larger.
	LongPollTimeout time.Duration
}

type Client struct {
	http *resty.Client
	cfg  Config
}

func New(cfg Config) *Client {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.LongPollTimeout <= 0 {
		cfg.LongPollTimeout = DefaultLongPollTimeout
	}
	hc := resty.New().
		SetBaseURL(cfg.URL).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	return &Client{http: hc, cfg: cfg}
}

func sessionPath(sessionID uint64) string {
	return "/" + strconv.FormatUint(sessionID, 10)
}

func handlePath(sessionID, handleID uint64) string {
	return sessionPath(sessionID) + "/" + strconv.FormatUint(handleID, 10)
}

func (c *Client) post(ctx context.Context, op, path string, req Request) (*Event, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	req.Transaction = uuid.NewString()
	resp, err := c.http.R().SetContext(ctx).SetBody(req).Post(path)
	if err != nil {
		return nil, c.fail(op, &domain.SignalingError{Op: op, Err: err})
	}
	if resp.IsError() {
		return nil, c.fail(op, &domain.SignalingError{Op: op, Code: resp.StatusCode(), Reason: resp.Status()})
	}

	var ev Event
	if err := json.Unmarshal(resp.Body(), &ev); err != nil {
		return nil, c.fail(op, &domain.SignalingError{Op: op, Err: fmt.Errorf("decode response: %w", err)})
	}
	switch ev.Janus {
	case "success", "ack":
	case "error":
		se := &domain.SignalingError{Op: op, Reason: "error"}
		if ev.Error != nil {
			se.Code, se.Reason = ev.Error.Code, ev.Error.Reason
		}
		return nil, c.fail(op, se)
	default:
		return nil, c.fail(op, &domain.SignalingError{Op: op, Reason: "unexpected reply " + strconv.Quote(ev.Janus)})
	}
	if err := ev.PluginError(op); err != nil {
		return nil, c.fail(op, err)
	}
	metrics.SignalingRequests.WithLabelValues(op, "ok").Inc()
	return &ev, nil
}

func (c *Client) fail(op string, err error) error {
	metrics.SignalingRequests.WithLabelValues(op, "error").Inc()
	log.Warn().Str("module", "janus").Str("op", op).Err(err).Msg("signaling request failed")
	return err
}

// CreateSession opens a media-server session and returns its ID.
func (c *Client) CreateSession(ctx context.Context) (uint64, error) {
	ev, err := c.post(ctx, "create", "", Request{Janus: "create"})
	if err != nil {
		return 0, err
	}
	if ev.Data == nil || ev.Data.ID == 0 {
		return 0, &domain.SignalingError{Op: "create", Reason: "missing session id"}
	}
	return ev.Data.ID, nil
}

// Attach binds a plugin to the session and returns the handle ID.
func (c *Client) Attach(ctx context.Context, sessionID uint64, plugin string) (uint64, error) {
	ev, err := c.post(ctx, "attach", sessionPath(sessionID), Request{Janus: "attach", Plugin: plugin})
	if err != nil {
		return 0, err
	}
	if ev.Data == nil || ev.Data.ID == 0 {
		return 0, &domain.SignalingError{Op: "attach", Reason: "missing handle id"}
	}
	return ev.Data.ID, nil
}

// SendMessage delivers a plugin message. Synchronous plugins answer with
// "success" and plugin data; asynchronous ones answer "ack" and emit the
// result later as an event.
func (c *Client) SendMessage(ctx context.Context, sessionID, handleID uint64, body any, jsep *webrtc.SessionDescription) (*Response, error) {
	return c.post(ctx, "message", handlePath(sessionID, handleID), Request{Janus: "message", Body: body, Jsep: jsep})
}

// Trickle forwards one ICE candidate.
func (c *Client) Trickle(ctx context.Context, sessionID, handleID uint64, candidate webrtc.ICECandidateInit) error {
	_, err := c.post(ctx, "trickle", handlePath(sessionID, handleID), Request{Janus: "trickle", Candidate: candidatePayload(candidate)})
	return err
}

// TrickleCompleted signals the end of candidate gathering.
func (c *Client) TrickleCompleted(ctx context.Context, sessionID, handleID uint64) error {
	_, err := c.post(ctx, "trickle", handlePath(sessionID, handleID), Request{Janus: "trickle", Candidate: completedPayload{Completed: true}})
	return err
}

func (c *Client) Detach(ctx context.Context, sessionID, handleID uint64) error {
	_, err := c.post(ctx, "detach", handlePath(sessionID, handleID), Request{Janus: "detach"})
	return err
}

func (c *Client) Destroy(ctx context.Context, sessionID uint64) error {
	_, err := c.post(ctx, "destroy", sessionPath(sessionID), Request{Janus: "destroy"})
	return err
}

// Poll performs one long-poll on the session endpoint. The server may answer
// with a single event or an array; both are returned as a slice in order.
func (c *Client) Poll(ctx context.Context, sessionID uint64, maxEvents int) ([]Event, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.LongPollTimeout)
	defer cancel()

	r := c.http.R().SetContext(ctx).SetQueryParam("rid", strconv.FormatInt(time.Now().UnixMilli(), 10))
	if maxEvents > 1 {
		r.SetQueryParam("maxev", strconv.Itoa(maxEvents))
	}
	resp, err := r.Get(sessionPath(sessionID))
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, &domain.SignalingError{Op: "poll", Err: err}
	}
	if resp.IsError() {
		return nil, &domain.SignalingError{Op: "poll", Code: resp.StatusCode(), Reason: resp.Status()}
	}
	events, err := decodeEvents(resp.Body())
	if err != nil {
		return nil, &domain.SignalingError{Op: "poll", Err: err}
	}
	for i := range events {
		if events[i].Janus == "error" && events[i].Error != nil {
			return nil, &domain.SignalingError{Op: "poll", Code: events[i].Error.Code, Reason: events[i].Error.Reason}
		}
	}
	return events, nil
}

func decodeEvents(body []byte) ([]Event, error) {
	trimmed := bytes.TrimLeft(body, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var events []Event
		if err := json.Unmarshal(trimmed, &events); err != nil {
			return nil, fmt.Errorf("decode event array: %w", err)
		}
		return events, nil
	}
	var ev Event
	if err := json.Unmarshal(trimmed, &ev); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	return []Event{ev}, nil
}
