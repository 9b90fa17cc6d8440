package janus

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"

	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/domain"
)

// Request is the envelope of every control call.
type Request struct {
	Janus       string                     `json:"janus"`
	Transaction string                     `json:"transaction"`
	Plugin      string                     `json:"plugin,omitempty"`
	Body        any                        `json:"body,omitempty"`
	Jsep        *webrtc.SessionDescription `json:"jsep,omitempty"`
	Candidate   any                        `json:"candidate,omitempty"`
}

type IDData struct {
	ID uint64 `json:"id"`
}

type ErrorBody struct {
	Code   int    `json:"code"`
	Reason string `json:"reason"`
}

type PluginData struct {
	Plugin string          `json:"plugin"`
	Data   json.RawMessage `json:"data"`
}

// Event is both a synchronous response and an asynchronous event pulled
// from the long-poll endpoint.
type Event struct {
	Janus       string                     `json:"janus"`
	Transaction string                     `json:"transaction,omitempty"`
	SessionID   uint64                     `json:"session_id,omitempty"`
	Sender      uint64                     `json:"sender,omitempty"`
	Data        *IDData                    `json:"data,omitempty"`
	Error       *ErrorBody                 `json:"error,omitempty"`
	PluginData  *PluginData                `json:"plugindata,omitempty"`
	Jsep        *webrtc.SessionDescription `json:"jsep,omitempty"`
	// Candidate is set on server-side "trickle" events.
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

// Response is what a control call returns.
type Response = Event

// pluginStatus is the part of plugin data shared by the videoroom replies.
type pluginStatus struct {
	Kind      string `json:"videoroom"`
	ErrorCode int    `json:"error_code"`
	Error     string `json:"error"`
}

// PluginError extracts an error reported inside plugin data, if any.
func (e *Event) PluginError(op string) error {
	if e.PluginData == nil || len(e.PluginData.Data) == 0 {
		return nil
	}
	var st pluginStatus
	if err := json.Unmarshal(e.PluginData.Data, &st); err != nil {
		return nil
	}
	if st.ErrorCode == 0 && st.Error == "" {
		return nil
	}
	return &domain.SignalingError{Op: op, Code: st.ErrorCode, Reason: st.Error}
}

// PluginKind returns the "videoroom" discriminator of the plugin payload.
func (e *Event) PluginKind() string {
	if e.PluginData == nil {
		return ""
	}
	var st pluginStatus
	_ = json.Unmarshal(e.PluginData.Data, &st)
	return st.Kind
}

// Payload returns the plugin data, or nil.
func (e *Event) Payload() json.RawMessage {
	if e.PluginData == nil {
		return nil
	}
	return e.PluginData.Data
}
