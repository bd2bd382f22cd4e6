package eap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildAkaConfig(t *testing.T) {
	cfg, err := NewBuilder().
		SetIdentity([]byte("0001010123456789@nai.epc.mnc001.mcc001.3gppnetwork.org")).
		AddAka(1, AppTypeUSIM).
		AddAkaPrime(1, AppTypeUSIM, "WLAN", false).
		Build()
	require.NoError(t, err)

	methods := cfg.Methods()
	require.Len(t, methods, 2)
	assert.Equal(t, TypeAKA, methods[0].Type())
	assert.Equal(t, TypeAKAPrime, methods[1].Type())
	assert.True(t, cfg.AllMethodsEapOnlySafe())
	assert.Contains(t, string(cfg.Identity()), "@nai.epc")

	m, ok := cfg.Method(TypeAKAPrime)
	require.True(t, ok)
	assert.Equal(t, "WLAN", m.(AkaPrimeConfig).NetworkName)
}

func TestEapOnlySafety(t *testing.T) {
	assert.True(t, SimConfig{}.EapOnlySafe())
	assert.True(t, AkaConfig{}.EapOnlySafe())
	assert.True(t, AkaPrimeConfig{}.EapOnlySafe())
	assert.False(t, MsChapV2Config{}.EapOnlySafe())
	assert.False(t, TtlsConfig{}.EapOnlySafe())

	cfg, err := NewBuilder().AddSim(1, AppTypeSIM).AddMsChapV2("user", "pass").Build()
	require.NoError(t, err)
	assert.False(t, cfg.AllMethodsEapOnlySafe())
}

func TestBuildValidation(t *testing.T) {
	_, err := NewBuilder().Build()
	assert.ErrorIs(t, err, ErrNoMethod)

	_, err = NewBuilder().AddAka(1, AppTypeUSIM).AddAka(2, AppTypeUSIM).Build()
	assert.ErrorIs(t, err, ErrDuplicateMethod)

	_, err = NewBuilder().AddAkaPrime(1, AppTypeUSIM, "", false).AddMsChapV2("", "x").Build()
	assert.ErrorIs(t, err, ErrInvalidMethod)

	_, err = NewBuilder().AddTtls(nil, nil).Build()
	assert.ErrorIs(t, err, ErrInvalidMethod)
}

func TestTtlsInnerConfig(t *testing.T) {
	inner, err := NewBuilder().AddMsChapV2("user", "pass").Build()
	require.NoError(t, err)

	outer, err := NewBuilder().AddTtls(nil, inner).Build()
	require.NoError(t, err)
	assert.False(t, outer.AllMethodsEapOnlySafe())

	_, err = NewBuilder().AddTtls(nil, outer).Build()
	assert.ErrorIs(t, err, ErrNestedTunnel)
}

func TestBuilderConsumed(t *testing.T) {
	b := NewBuilder().AddSim(1, AppTypeSIM)
	_, err := b.Build()
	require.NoError(t, err)

	_, err = b.Build()
	assert.ErrorIs(t, err, ErrConfigConsumed)
}
