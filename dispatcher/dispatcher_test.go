package dispatcher

import (
	"crypto/ed25519"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sage-x-project/nodecore/envelope"
	"github.com/sage-x-project/nodecore/router"
)

// loopbackSender records the last payload sent, so a test can decode it
// and feed a reply to Dispatch without a real router/transport.
type loopbackSender struct {
	sent []byte
}

func (s *loopbackSender) Send(_ string, payload []byte) (router.DeliveryReceipt, error) {
	s.sent = payload
	return router.DeliveryReceipt{Delivered: true}, nil
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *loopbackSender, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	_ = pub
	sender := &loopbackSender{}
	return New("self", priv, sender), sender, priv
}

func TestDispatchRoutesToRegisteredHandler(t *testing.T) {
	d, _, priv := newTestDispatcher(t)

	var gotFrom string
	var gotBody []byte
	d.RegisterHandler(TypeGossip, func(from string, body []byte) error {
		gotFrom, gotBody = from, body
		return nil
	})

	env, err := envelope.New(TypeGossip, "peer-a", "self", []byte("hi"))
	require.NoError(t, err)
	envelope.Sign(env, priv)

	require.NoError(t, d.Dispatch(env))
	require.Equal(t, "peer-a", gotFrom)
	require.Equal(t, []byte("hi"), gotBody)
}

func TestDispatchUnknownTypeInvokesHookAndReturnsNil(t *testing.T) {
	d, _, priv := newTestDispatcher(t)

	var hookFrom, hookType string
	d.OnUnknownType(func(from, typ string) { hookFrom, hookType = from, typ })

	env, err := envelope.New("mystery", "peer-a", "self", nil)
	require.NoError(t, err)
	envelope.Sign(env, priv)

	require.NoError(t, d.Dispatch(env))
	require.Equal(t, "peer-a", hookFrom)
	require.Equal(t, "mystery", hookType)
}

func TestRequestTimesOutWithoutResponse(t *testing.T) {
	d, _, _ := newTestDispatcher(t)

	_, err := d.Request("peer-b", "ping", nil, 20*time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)
	require.Equal(t, 0, d.PendingCount())
}

func TestRequestResolvesOnCorrelatedResponse(t *testing.T) {
	d, sender, priv := newTestDispatcher(t)

	done := make(chan struct{})
	var result ResponseBody
	var reqErr error
	go func() {
		result, reqErr = d.Request("peer-b", "echo", []byte("ping"), time.Second)
		close(done)
	}()

	// Wait for the request to be sent, then decode its id and reply.
	require.Eventually(t, func() bool { return sender.sent != nil }, time.Second, time.Millisecond)
	sentEnv, err := envelope.Decode(sender.sent)
	require.NoError(t, err)
	var req RequestBody
	require.NoError(t, json.Unmarshal(sentEnv.Body, &req))

	respBody, err := json.Marshal(ResponseBody{ID: req.ID, Result: []byte("pong")})
	require.NoError(t, err)
	respEnv, err := envelope.New(TypeResponse, "peer-b", "self", respBody)
	require.NoError(t, err)
	envelope.Sign(respEnv, priv)

	require.NoError(t, d.Dispatch(respEnv))
	<-done

	require.NoError(t, reqErr)
	require.Equal(t, []byte("pong"), result.Result)
}

func TestReplyEncodesHandlerError(t *testing.T) {
	d, sender, _ := newTestDispatcher(t)

	require.NoError(t, d.Reply("peer-a", "req-1", nil, errUnsupported))

	env, err := envelope.Decode(sender.sent)
	require.NoError(t, err)
	var resp ResponseBody
	require.NoError(t, json.Unmarshal(env.Body, &resp))
	require.Equal(t, "req-1", resp.ID)
	require.Equal(t, errUnsupported.Error(), resp.Error)
}

var errUnsupported = testError("unsupported method")

type testError string

func (e testError) Error() string { return string(e) }
