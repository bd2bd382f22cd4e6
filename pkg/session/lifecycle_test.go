package session

import (
	"errors"
	"testing"

	"github.com/iniwex5/ikeparams/pkg/ikev2"
	"github.com/iniwex5/ikeparams/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type recordingIkeCallback struct {
	events []string
	errs   []error
}

func (r *recordingIkeCallback) OnOpened(*IkeSessionConfiguration) { r.events = append(r.events, "opened") }
func (r *recordingIkeCallback) OnClosed()                         { r.events = append(r.events, "closed") }

func (r *recordingIkeCallback) OnClosedWithError(err error) {
	r.events = append(r.events, "closedWithError")
	r.errs = append(r.errs, err)
}

func (r *recordingIkeCallback) OnError(err error) {
	r.events = append(r.events, "error")
	r.errs = append(r.errs, err)
}

type recordingChildCallback struct {
	events []string
}

func (r *recordingChildCallback) OnOpened(*ChildSessionConfiguration) { r.events = append(r.events, "opened") }
func (r *recordingChildCallback) OnClosed()                           { r.events = append(r.events, "closed") }
func (r *recordingChildCallback) OnClosedWithError(error)             { r.events = append(r.events, "closedWithError") }

func TestIkeLifecycleSingleTerminalCallback(t *testing.T) {
	cb := &recordingIkeCallback{}
	l := NewIkeLifecycle(cb, nil)

	assert.True(t, l.Opened(&IkeSessionConfiguration{}))
	assert.False(t, l.Opened(&IkeSessionConfiguration{}))
	assert.True(t, l.Error(errors.New("rekey failed")))
	assert.True(t, l.Closed())
	assert.False(t, l.ClosedWithError(errors.New("late")))
	assert.False(t, l.Error(errors.New("late")))
	assert.True(t, l.IsClosed())

	assert.Equal(t, []string{"opened", "error", "closed"}, cb.events)
}

func TestIkeLifecycleClosesChildrenFirst(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	restore := logger.SetForTest(zap.New(core))
	defer restore()

	ikeCb := &recordingIkeCallback{}
	ike := NewIkeLifecycle(ikeCb, nil)
	childCb := &recordingChildCallback{}
	child := NewChildLifecycle(childCb, nil)
	ike.AddChild(child)

	require.True(t, child.Opened(&ChildSessionConfiguration{}))
	assert.True(t, child.IsOpened())

	fatal := errors.New("peer gone")
	assert.True(t, ike.ClosedWithError(fatal))
	assert.Equal(t, []string{"opened", "closedWithError"}, childCb.events)
	assert.Equal(t, []string{"closedWithError"}, ikeCb.events)
	assert.ErrorIs(t, ikeCb.errs[0], fatal)
	assert.False(t, child.Closed())

	assert.Equal(t, 1, logs.FilterMessage("IKE 会话异常关闭").Len())
	assert.NotZero(t, logs.FilterMessage("忽略事件").Len())
}

func TestChildAddedAfterIkeClosed(t *testing.T) {
	ike := NewIkeLifecycle(&recordingIkeCallback{}, nil)
	require.True(t, ike.Closed())

	childCb := &recordingChildCallback{}
	child := NewChildLifecycle(childCb, nil)
	ike.AddChild(child)

	assert.Equal(t, []string{"closedWithError"}, childCb.events)
	assert.False(t, child.Opened(&ChildSessionConfiguration{}))
	assert.False(t, child.IsOpened())
	assert.Equal(t, []string{"closedWithError"}, childCb.events)
}

func TestLifecycleExecutor(t *testing.T) {
	var queued []func()
	exec := func(fn func()) { queued = append(queued, fn) }

	cb := &recordingChildCallback{}
	l := NewChildLifecycle(cb, exec)
	l.Opened(&ChildSessionConfiguration{})
	l.Closed()
	assert.Empty(t, cb.events, "callbacks run on the executor")

	for _, fn := range queued {
		fn()
	}
	assert.Equal(t, []string{"opened", "closed"}, cb.events)
}

func TestNegotiateChildSa(t *testing.T) {
	params, err := NewTunnelModeChildSessionParamsBuilder().
		AddSaProposal(mustChildProposal(t, ikev2.MODP_2048_bit)).
		Build()
	require.NoError(t, err)

	first := mustChildProposal(t)
	idx, err := NegotiateChildSa(params, first, false)
	require.NoError(t, err)
	assert.Equal(t, 0, idx)

	withDh := mustChildProposal(t, ikev2.MODP_2048_bit)
	_, err = NegotiateChildSa(params, withDh, false)
	assert.ErrorIs(t, err, ikev2.ErrNoProposalChosen, "first child must not carry dh")

	otherDh := mustChildProposal(t, ikev2.CURVE25519)
	idx, err = NegotiateChildSa(params, otherDh, true)
	require.NoError(t, err)
	assert.Equal(t, 0, idx)

	other, err := ikev2.NewChildSaProposalBuilder().AddEncryptionAlgorithm(ikev2.ENCR_AES_GCM_16, ikev2.KeyLenAES256).Build()
	require.NoError(t, err)
	_, err = NegotiateChildSa(params, other, true)
	var ne *ikev2.NegotiationError
	assert.ErrorAs(t, err, &ne)
}

func TestRekeyProposalsUpgradeToPfs(t *testing.T) {
	params, err := NewTunnelModeChildSessionParamsBuilder().
		AddSaProposal(mustChildProposal(t)).
		Build()
	require.NoError(t, err)
	local := params.RekeyProposals(ikev2.MODP_2048_bit)

	peer := mustChildProposal(t, ikev2.MODP_2048_bit)
	idx, chosen, err := ikev2.SelectProposal(local, []*ikev2.SaProposal{peer})
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
	assert.Equal(t, []ikev2.DhGroup{ikev2.MODP_2048_bit}, chosen.DhGroups())
	assert.NoError(t, ikev2.ValidateKeGroup(chosen, ikev2.MODP_2048_bit, true))

	_, _, err = ikev2.SelectProposal(local, []*ikev2.SaProposal{mustChildProposal(t, ikev2.CURVE25519)})
	assert.ErrorIs(t, err, ikev2.ErrNoProposalChosen)
}
