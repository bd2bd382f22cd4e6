package session

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"net/netip"
	"testing"
	"time"

	"github.com/iniwex5/ikeparams/pkg/eap"
	"github.com/iniwex5/ikeparams/pkg/ikev2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustIkeProposal(t *testing.T, groups ...ikev2.DhGroup) *ikev2.SaProposal {
	t.Helper()
	b := ikev2.NewIkeSaProposalBuilder().
		AddEncryptionAlgorithm(ikev2.ENCR_AES_GCM_16, ikev2.KeyLenAES128).
		AddPseudorandomFunction(ikev2.PRF_HMAC_SHA2_256)
	for _, g := range groups {
		b.AddDhGroup(g)
	}
	p, err := b.Build()
	require.NoError(t, err)
	return p
}

func fqdn(t *testing.T, s string) ikev2.Identification {
	t.Helper()
	id, err := ikev2.NewFqdnIdentification(s)
	require.NoError(t, err)
	return id
}

func baseIkeBuilder(t *testing.T) *IkeSessionParamsBuilder {
	t.Helper()
	return NewIkeSessionParamsBuilder().
		SetServerHostname("epdg.epc.mnc001.mcc001.pub.3gppnetwork.org").
		AddSaProposal(mustIkeProposal(t, ikev2.MODP_2048_bit, ikev2.CURVE25519)).
		SetLocalIdentification(fqdn(t, "client.example.com")).
		SetRemoteIdentification(fqdn(t, "ims")).
		SetAuthPsk([]byte("secret"))
}

func akaConfig(t *testing.T) *eap.SessionConfig {
	t.Helper()
	cfg, err := eap.NewBuilder().AddAka(1, eap.AppTypeUSIM).Build()
	require.NoError(t, err)
	return cfg
}

func TestIkeSessionParamsDefaults(t *testing.T) {
	p, err := baseIkeBuilder(t).Build()
	require.NoError(t, err)

	assert.Equal(t, 14400*time.Second, p.HardLifetime())
	assert.Equal(t, 7200*time.Second, p.SoftLifetime())
	assert.Equal(t, 120*time.Second, p.DpdDelay())
	assert.Equal(t, 10*time.Second, p.NattKeepaliveDelay())
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}, p.RetransmissionTimeouts())
	assert.Equal(t, 0, p.Dscp())
	assert.Equal(t, AuthMethodPsk, p.LocalAuthConfig().Method())
	assert.Equal(t, AuthMethodPsk, p.RemoteAuthConfig().Method())
	assert.Empty(t, p.Options())
}

func TestIkeLifetimeValidation(t *testing.T) {
	_, err := baseIkeBuilder(t).SetLifetimeSeconds(300, 7200).Build()
	assert.ErrorIs(t, err, ErrLifetimeOutOfRange)

	p, err := baseIkeBuilder(t).SetLifetimeSeconds(14400, 7200).Build()
	require.NoError(t, err)
	assert.Equal(t, 14400*time.Second, p.HardLifetime())
	assert.Equal(t, 7200*time.Second, p.SoftLifetime())

	_, err = baseIkeBuilder(t).SetLifetimeSeconds(300, 299).Build()
	assert.ErrorIs(t, err, ErrLifetimeOutOfRange)

	_, err = baseIkeBuilder(t).SetLifetimeSeconds(86401, 7200).Build()
	assert.ErrorIs(t, err, ErrLifetimeOutOfRange)

	_, err = baseIkeBuilder(t).SetLifetimeSeconds(300, 119).Build()
	assert.ErrorIs(t, err, ErrLifetimeOutOfRange)

	_, err = baseIkeBuilder(t).SetLifetimeSeconds(300, 240).Build()
	assert.NoError(t, err)
}

func TestIkeSessionParamsRequiredFields(t *testing.T) {
	_, err := NewIkeSessionParamsBuilder().Build()
	for _, want := range []error{ErrMissingHostname, ErrNoProposals, ErrMissingIdentification, ErrMissingAuth} {
		assert.ErrorIs(t, err, want)
	}
	var pe *ParamsError
	assert.ErrorAs(t, err, &pe)
}

func TestIkeSessionParamsRejectsChildProposal(t *testing.T) {
	child, err := ikev2.NewChildSaProposalBuilder().AddEncryptionAlgorithm(ikev2.ENCR_AES_GCM_16, ikev2.KeyLenAES128).Build()
	require.NoError(t, err)
	_, err = baseIkeBuilder(t).AddSaProposal(child).Build()
	assert.ErrorIs(t, err, ErrWrongProposalProtocol)
}

func TestIkeSessionParamsTimerRanges(t *testing.T) {
	_, err := baseIkeBuilder(t).SetDpdDelaySeconds(19).Build()
	assert.ErrorIs(t, err, ErrDpdDelayOutOfRange)

	_, err = baseIkeBuilder(t).SetNattKeepaliveDelaySeconds(3601).Build()
	assert.ErrorIs(t, err, ErrNattKeepaliveOutOfRange)

	_, err = baseIkeBuilder(t).SetRetransmissionTimeoutsMillis(nil).Build()
	assert.ErrorIs(t, err, ErrRetransmissionOutOfRange)

	_, err = baseIkeBuilder(t).SetRetransmissionTimeoutsMillis([]int{500, 499}).Build()
	assert.ErrorIs(t, err, ErrRetransmissionOutOfRange)

	_, err = baseIkeBuilder(t).SetRetransmissionTimeoutsMillis(make([]int, 11)).Build()
	assert.ErrorIs(t, err, ErrRetransmissionOutOfRange)

	_, err = baseIkeBuilder(t).SetDscp(64).Build()
	assert.ErrorIs(t, err, ErrDscpOutOfRange)

	p, err := baseIkeBuilder(t).SetDpdDelaySeconds(20).SetNattKeepaliveDelaySeconds(3600).SetDscp(46).Build()
	require.NoError(t, err)
	assert.Equal(t, 46, p.Dscp())
}

func TestEapOnlyRequiresEap(t *testing.T) {
	_, err := baseIkeBuilder(t).AddOption(OptionEapOnlyAuth).Build()
	assert.ErrorIs(t, err, ErrEapOnlyWithoutEap)

	unsafe, err := eap.NewBuilder().AddAka(1, eap.AppTypeUSIM).AddMsChapV2("user", "pass").Build()
	require.NoError(t, err)
	_, err = baseIkeBuilder(t).SetAuthEap(nil, unsafe).AddOption(OptionEapOnlyAuth).Build()
	assert.ErrorIs(t, err, ErrEapOnlyUnsafeMethod)

	p, err := baseIkeBuilder(t).SetAuthEap(nil, akaConfig(t)).AddOption(OptionEapOnlyAuth).Build()
	require.NoError(t, err)
	assert.True(t, p.HasOption(OptionEapOnlyAuth))
	assert.Equal(t, AuthMethodEap, p.LocalAuthConfig().Method())
	assert.Equal(t, AuthMethodDigitalSignature, p.RemoteAuthConfig().Method())
}

func TestAuthSetterReplacesPair(t *testing.T) {
	p, err := baseIkeBuilder(t).SetAuthEap(nil, akaConfig(t)).SetAuthPsk([]byte("again")).Build()
	require.NoError(t, err)
	psk, ok := p.LocalAuthConfig().(PskAuthConfig)
	require.True(t, ok)
	assert.Equal(t, []byte("again"), psk.Psk())
}

func TestKeyIdWithDigitalSignatureFails(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	keyID, err := ikev2.NewKeyIdIdentification([]byte{0x01, 0x02})
	require.NoError(t, err)

	_, err = baseIkeBuilder(t).
		SetLocalIdentification(keyID).
		SetAuthDigitalSignature(nil, &x509.Certificate{}, nil, key).
		Build()
	assert.ErrorIs(t, err, ErrKeyIdWithDigitalSign)

	_, err = baseIkeBuilder(t).SetLocalIdentification(keyID).Build()
	assert.NoError(t, err)
}

func TestDefaultDhGroupAndRetry(t *testing.T) {
	p, err := baseIkeBuilder(t).
		AddSaProposal(mustIkeProposal(t, ikev2.MODP_2048_bit)).
		Build()
	require.NoError(t, err)

	assert.Equal(t, ikev2.MODP_2048_bit, p.DefaultDhGroup())
	assert.True(t, p.AcceptsDhGroupForRetry(ikev2.MODP_2048_bit))
	assert.False(t, p.AcceptsDhGroupForRetry(ikev2.CURVE25519), "second proposal lacks CURVE25519")
	assert.False(t, p.AcceptsDhGroupForRetry(ikev2.MODP_4096_bit))
}

func TestAcceptsRemoteIdentification(t *testing.T) {
	p, err := baseIkeBuilder(t).Build()
	require.NoError(t, err)
	assert.True(t, p.AcceptsRemoteIdentification(fqdn(t, "ims")))
	assert.False(t, p.AcceptsRemoteIdentification(fqdn(t, "other")))

	anyID, err := baseIkeBuilder(t).AddOption(OptionAcceptAnyRemoteID).Build()
	require.NoError(t, err)
	assert.True(t, anyID.AcceptsRemoteIdentification(fqdn(t, "other")))
}

func TestPcscfRequestsKeepOrder(t *testing.T) {
	p, err := baseIkeBuilder(t).
		AddPcscfServerRequest(ikev2.FamilyIPv6).
		AddPcscfServerRequestFor(netip.MustParseAddr("10.1.1.1")).
		AddPcscfServerRequest(ikev2.FamilyIPv4).
		Build()
	require.NoError(t, err)

	reqs := p.ConfigRequests()
	require.Len(t, reqs, 3)
	assert.Equal(t, ikev2.P_CSCF_IP6_ADDRESS, reqs[0].Type)
	assert.Equal(t, ikev2.P_CSCF_IP4_ADDRESS, reqs[1].Type)
	assert.Equal(t, []byte{10, 1, 1, 1}, reqs[1].Value)
	assert.True(t, reqs[2].IsEmpty())
}

func TestIkeBuilderConsumed(t *testing.T) {
	b := baseIkeBuilder(t)
	_, err := b.Build()
	require.NoError(t, err)
	_, err = b.Build()
	assert.ErrorIs(t, err, ErrBuilderConsumed)
}
