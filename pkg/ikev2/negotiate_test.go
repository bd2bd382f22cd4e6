package ikev2

import (
	"errors"
	"testing"

	"github.com/iniwex5/ikeparams/pkg/logger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func ikeSelection(t *testing.T, enc EncrID, keyLen int, integ IntegID, prf PrfID, dh DhGroup) *SaProposal {
	t.Helper()
	b := NewIkeSaProposalBuilder().
		AddEncryptionAlgorithm(enc, keyLen).
		AddPseudorandomFunction(prf).
		AddDhGroup(dh)
	if integ != AUTH_NONE {
		b.AddIntegrityAlgorithm(integ)
	}
	p, err := b.Build()
	if err != nil {
		t.Fatalf("build selection failed: %v", err)
	}
	return p
}

func TestIsNegotiatedFromOneOfEachFamily(t *testing.T) {
	offered := buildIkeCbc(t)
	sel := ikeSelection(t, ENCR_AES_CBC, KeyLenAES256, AUTH_HMAC_SHA1_96, PRF_HMAC_SHA2_256, MODP_1024_bit)
	if !offered.IsNegotiatedFrom(sel) {
		t.Fatalf("selection %v should be negotiated from %v", sel, offered)
	}
}

func TestIsNegotiatedFromRejectsUnofferedTransform(t *testing.T) {
	offered := buildIkeCbc(t)
	cases := []*SaProposal{
		ikeSelection(t, ENCR_AES_CBC, KeyLenAES192, AUTH_HMAC_SHA1_96, PRF_HMAC_SHA2_256, MODP_2048_bit),
		ikeSelection(t, ENCR_AES_CBC, KeyLenAES128, AUTH_HMAC_SHA2_512_256, PRF_HMAC_SHA2_256, MODP_2048_bit),
		ikeSelection(t, ENCR_AES_CBC, KeyLenAES128, AUTH_HMAC_SHA1_96, PRF_HMAC_SHA1, MODP_2048_bit),
		ikeSelection(t, ENCR_AES_CBC, KeyLenAES128, AUTH_HMAC_SHA1_96, PRF_HMAC_SHA2_256, CURVE25519),
	}
	for _, sel := range cases {
		if offered.IsNegotiatedFrom(sel) {
			t.Fatalf("selection %v should not be negotiated from %v", sel, offered)
		}
	}
}

func TestIsNegotiatedFromRejectsMultipleChoices(t *testing.T) {
	offered := buildIkeCbc(t)
	if offered.IsNegotiatedFrom(offered) {
		t.Fatalf("selection with two transforms per family must be rejected")
	}
}

func TestIsNegotiatedFromProtocolMismatch(t *testing.T) {
	ike := ikeSelection(t, ENCR_AES_GCM_16, KeyLenAES128, AUTH_NONE, PRF_HMAC_SHA2_256, MODP_2048_bit)
	child, err := NewChildSaProposalBuilder().AddEncryptionAlgorithm(ENCR_AES_GCM_16, KeyLenAES128).Build()
	if err != nil {
		t.Fatalf("build child failed: %v", err)
	}
	if ike.IsNegotiatedFrom(child) || child.IsNegotiatedFrom(ike) {
		t.Fatalf("protocol mismatch must be rejected")
	}
	if err := ike.CheckNegotiatedFrom(child, true); !errors.Is(err, ErrProtocolMismatch) {
		t.Fatalf("expected ErrProtocolMismatch, got %v", err)
	}
}

func TestIsNegotiatedFromTreatsNoneAsEmpty(t *testing.T) {
	offered, err := NewChildSaProposalBuilder().AddEncryptionAlgorithm(ENCR_AES_GCM_16, KeyLenAES128).Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	sel, err := NewChildSaProposalBuilder().
		AddEncryptionAlgorithm(ENCR_AES_GCM_16, KeyLenAES128).
		AddIntegrityAlgorithm(AUTH_NONE).
		Build()
	if err != nil {
		t.Fatalf("build selection failed: %v", err)
	}
	if !offered.IsNegotiatedFrom(sel) {
		t.Fatalf("integrity {NONE} should match empty integrity")
	}
}

func TestIsNegotiatedFromExceptDhGroup(t *testing.T) {
	offered, err := NewChildSaProposalBuilder().
		AddEncryptionAlgorithm(ENCR_AES_CBC, KeyLenAES128).
		AddIntegrityAlgorithm(AUTH_HMAC_SHA2_256_128).
		Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	sel, err := offered.WithDhGroup(MODP_2048_bit)
	if err != nil {
		t.Fatalf("WithDhGroup failed: %v", err)
	}
	if offered.IsNegotiatedFrom(sel) {
		t.Fatalf("unoffered dh group must fail the strict check")
	}
	if !offered.IsNegotiatedFromExceptDhGroup(sel) {
		t.Fatalf("dh group must be ignored by the rekey check")
	}

	other, err := NewChildSaProposalBuilder().
		AddEncryptionAlgorithm(ENCR_AES_CBC, KeyLenAES256).
		AddIntegrityAlgorithm(AUTH_HMAC_SHA2_256_128).
		Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if offered.IsNegotiatedFromExceptDhGroup(other) {
		t.Fatalf("other families must still be checked")
	}
}

func TestNegotiateReturnsIndex(t *testing.T) {
	offered := DefaultIkeSaProposals()
	sel := ikeSelection(t, ENCR_AES_CBC, KeyLenAES128, AUTH_HMAC_SHA2_256_128, PRF_HMAC_SHA2_256, MODP_2048_bit)
	idx, err := Negotiate(offered, sel)
	if err != nil {
		t.Fatalf("Negotiate failed: %v", err)
	}
	if idx != 2 {
		t.Fatalf("expected index 2, got %d", idx)
	}
}

func TestNegotiateMismatchLogsAndFails(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	restore := logger.SetForTest(zap.New(core))
	defer restore()

	sel := ikeSelection(t, ENCR_AES_CTR, KeyLenAES128, AUTH_HMAC_SHA2_256_128, PRF_HMAC_SHA2_256, MODP_2048_bit)
	idx, err := Negotiate(DefaultIkeSaProposals(), sel)
	if idx != -1 || !errors.Is(err, ErrNoProposalChosen) {
		t.Fatalf("expected ErrNoProposalChosen, got %d %v", idx, err)
	}
	var ne *NegotiationError
	if !errors.As(err, &ne) {
		t.Fatalf("expected NegotiationError, got %T", err)
	}
	if ne.NotifyType() != NO_PROPOSAL_CHOSEN {
		t.Fatalf("unexpected notify type %d", ne.NotifyType())
	}
	if logs.FilterMessage("对端选择的提议与本端提供的不匹配").Len() != 1 {
		t.Fatalf("expected one warn log, got %d", logs.Len())
	}
}

func TestSelectProposalFollowsLocalPreference(t *testing.T) {
	local := DefaultChildSaProposals()
	peer, err := NewChildSaProposalBuilder().
		AddEncryptionAlgorithm(ENCR_AES_CBC, KeyLenAES128).
		AddIntegrityAlgorithm(AUTH_HMAC_SHA1_96).
		AddIntegrityAlgorithm(AUTH_HMAC_SHA2_256_128).
		Build()
	if err != nil {
		t.Fatalf("build peer failed: %v", err)
	}
	idx, chosen, err := SelectProposal(local, []*SaProposal{peer})
	if err != nil {
		t.Fatalf("SelectProposal failed: %v", err)
	}
	if idx != 0 {
		t.Fatalf("expected peer index 0, got %d", idx)
	}
	integ := chosen.IntegrityTransforms()
	if len(integ) != 1 || integ[0].ID != uint16(AUTH_HMAC_SHA2_256_128) {
		t.Fatalf("expected local preferred SHA2_256, got %v", integ)
	}
	if !peer.IsNegotiatedFrom(chosen) {
		t.Fatalf("chosen %v must be negotiated from peer %v", chosen, peer)
	}
}

func TestSelectProposalNoMatch(t *testing.T) {
	peer, err := NewChildSaProposalBuilder().AddEncryptionAlgorithm(ENCR_3DES, KeyLenUnused).AddIntegrityAlgorithm(AUTH_HMAC_SHA1_96).Build()
	if err != nil {
		t.Fatalf("build peer failed: %v", err)
	}
	if _, _, err := SelectProposal(DefaultChildSaProposals(), []*SaProposal{peer}); !errors.Is(err, ErrNoProposalChosen) {
		t.Fatalf("expected ErrNoProposalChosen, got %v", err)
	}
}

func TestValidateKeGroup(t *testing.T) {
	noPfs, err := NewChildSaProposalBuilder().AddEncryptionAlgorithm(ENCR_AES_GCM_16, KeyLenAES128).Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	pfs, err := noPfs.WithDhGroup(MODP_2048_bit)
	if err != nil {
		t.Fatalf("WithDhGroup failed: %v", err)
	}

	if err := ValidateKeGroup(noPfs, DH_NONE, false); err != nil {
		t.Fatalf("no dh and no ke should pass: %v", err)
	}
	if err := ValidateKeGroup(pfs, MODP_2048_bit, true); err != nil {
		t.Fatalf("matching ke should pass: %v", err)
	}

	err = ValidateKeGroup(noPfs, MODP_2048_bit, true)
	var ne *NegotiationError
	if !errors.Is(err, ErrUnexpectedKe) || !errors.As(err, &ne) || ne.NotifyType() != INVALID_SYNTAX {
		t.Fatalf("unexpected ke should fail with INVALID_SYNTAX, got %v", err)
	}
	if err := ValidateKeGroup(pfs, DH_NONE, false); !errors.Is(err, ErrMissingKe) {
		t.Fatalf("missing ke should fail, got %v", err)
	}
	err = ValidateKeGroup(pfs, CURVE25519, true)
	if !errors.Is(err, ErrKeGroupMismatch) || !errors.As(err, &ne) || ne.NotifyType() != INVALID_KE_PAYLOAD {
		t.Fatalf("mismatched ke should fail with INVALID_KE_PAYLOAD, got %v", err)
	}
	err = ValidateKeGroup(nil, MODP_2048_bit, true)
	if !errors.Is(err, ErrNoProposalChosen) || !errors.As(err, &ne) {
		t.Fatalf("nil negotiated proposal should fail with NO_PROPOSAL_CHOSEN, got %v", err)
	}
}
