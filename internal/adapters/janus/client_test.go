package janus

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/adapters/janus/janustest"
	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/domain"
)

const offerSDP = "v=0\r\n" +
	"o=- 4215775240449105457 2 IN IP4 127.0.0.1\r\n" +
	"s=-\r\n" +
	"t=0 0\r\n" +
	"m=audio 9 UDP/TLS/RTP/SAVPF 111\r\n" +
	"c=IN IP4 0.0.0.0\r\n" +
	"a=rtpmap:111 opus/48000/2\r\n"

func newTestClient(t *testing.T) (*Client, *janustest.Server) {
	t.Helper()
	srv := janustest.NewServer()
	t.Cleanup(srv.Close)
	return New(Config{URL: srv.JanusURL(), RequestTimeout: 2 * time.Second, LongPollTimeout: 2 * time.Second}), srv
}

func TestSessionLifecycle(t *testing.T) {
	c, srv := newTestClient(t)
	ctx := context.Background()

	sid, err := c.CreateSession(ctx)
	require.NoError(t, err)
	require.NotZero(t, sid)

	hid, err := c.Attach(ctx, sid, janustest.Plugin)
	require.NoError(t, err)
	require.NotZero(t, hid)

	require.NoError(t, c.Detach(ctx, sid, hid))
	require.NoError(t, c.Destroy(ctx, sid))
	assert.False(t, srv.HasSession(sid))

	attach := srv.CallsOf("attach")
	require.Len(t, attach, 1)
	assert.Equal(t, janustest.Plugin, attach[0].Plugin)
	assert.Equal(t, sid, attach[0].Session)
}

func TestSendMessageSyncAndAsync(t *testing.T) {
	c, srv := newTestClient(t)
	ctx := context.Background()
	sid, _ := c.CreateSession(ctx)
	hid, _ := c.Attach(ctx, sid, janustest.Plugin)

	resp, err := c.SendMessage(ctx, sid, hid, map[string]any{"request": "create", "room": 7}, nil)
	require.NoError(t, err)
	assert.Equal(t, "success", resp.Janus)
	assert.Equal(t, "created", resp.PluginKind())

	_, err = c.SendMessage(ctx, sid, hid, map[string]any{"request": "create", "room": 7}, nil)
	var se *domain.SignalingError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, janustest.RoomExists, se.Code)

	offer := &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offerSDP}
	resp, err = c.SendMessage(ctx, sid, hid, map[string]any{"request": "configure", "audio": true}, offer)
	require.NoError(t, err)
	assert.Equal(t, "ack", resp.Janus)

	configure := srv.CallsOf("message")[2]
	var jsep map[string]string
	require.NoError(t, json.Unmarshal(configure.Jsep, &jsep))
	assert.Equal(t, "offer", jsep["type"])
	assert.Equal(t, offerSDP, jsep["sdp"])
}

func TestErrorsAreSignalingErrors(t *testing.T) {
	c, srv := newTestClient(t)
	ctx := context.Background()

	_, err := c.Attach(ctx, 42, janustest.Plugin)
	var se *domain.SignalingError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, janustest.NoSession, se.Code)
	assert.Equal(t, "attach", se.Op)

	srv.FailNext("create")
	_, err = c.CreateSession(ctx)
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "injected failure", se.Reason)

	srv.Close()
	_, err = c.CreateSession(ctx)
	require.ErrorAs(t, err, &se)
	assert.NotNil(t, se.Err)
}

func TestHTTPStatusIsSignalingError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gateway down", http.StatusBadGateway)
	}))
	defer srv.Close()
	c := New(Config{URL: srv.URL})

	_, err := c.CreateSession(context.Background())
	var se *domain.SignalingError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadGateway, se.Code)
}

func TestTrickle(t *testing.T) {
	c, srv := newTestClient(t)
	ctx := context.Background()
	sid, _ := c.CreateSession(ctx)
	hid, _ := c.Attach(ctx, sid, janustest.Plugin)

	mid, idx := "0", uint16(0)
	require.NoError(t, c.Trickle(ctx, sid, hid, webrtc.ICECandidateInit{
		Candidate:     "candidate:1 1 udp 2122260223 192.168.1.2 54321 typ host",
		SDPMid:        &mid,
		SDPMLineIndex: &idx,
	}))
	require.NoError(t, c.TrickleCompleted(ctx, sid, hid))

	calls := srv.CallsOf("trickle")
	require.Len(t, calls, 2)
	assert.JSONEq(t, `{"candidate":"candidate:1 1 udp 2122260223 192.168.1.2 54321 typ host","sdpMid":"0","sdpMLineIndex":0}`, string(calls[0].Candidate))
	assert.JSONEq(t, `{"completed":true}`, string(calls[1].Candidate))
	assert.Equal(t, hid, calls[0].Handle)
}

func TestPollSingleAndArray(t *testing.T) {
	c, srv := newTestClient(t)
	ctx := context.Background()
	srv.AddSession(1)

	srv.Push(1, map[string]any{"janus": "event", "sender": 123})
	events, err := c.Poll(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, uint64(123), events[0].Sender)

	srv.Push(1, map[string]any{"janus": "event", "sender": 1})
	srv.Push(1, map[string]any{"janus": "event", "sender": 2})
	srv.Push(1, map[string]any{"janus": "event", "sender": 3})
	events, err = c.Poll(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, events, 3)
	for i, ev := range events {
		assert.Equal(t, uint64(i+1), ev.Sender)
	}

	events, err = c.Poll(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "keepalive", events[0].Janus)

	_, err = c.Poll(ctx, 99, 1)
	var se *domain.SignalingError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, janustest.NoSession, se.Code)
}

func TestPollHonoursCancellation(t *testing.T) {
	c, srv := newTestClient(t)
	srv.PollWait = 5 * time.Second
	srv.AddSession(1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Poll(ctx, 1, 1)
		done <- err
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(2 * time.Second):
		t.Fatal("poll did not return after cancel")
	}
}

func TestDecodeEvents(t *testing.T) {
	events, err := decodeEvents([]byte("  \n[{\"janus\":\"event\",\"sender\":5},{\"janus\":\"webrtcup\"}]"))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "webrtcup", events[1].Janus)

	_, err = decodeEvents([]byte("not json"))
	assert.Error(t, err)
}

func TestValidateOffer(t *testing.T) {
	assert.NoError(t, ValidateOffer(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offerSDP}))
	assert.ErrorIs(t, ValidateOffer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: offerSDP}), domain.ErrValidation)
	assert.ErrorIs(t, ValidateOffer(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "garbage"}), domain.ErrValidation)
	noMedia := "v=0\r\no=- 1 1 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\n"
	assert.ErrorIs(t, ValidateOffer(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: noMedia}), domain.ErrValidation)
}
