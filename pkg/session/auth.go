package session

import (
	"bytes"
	"crypto"
	"crypto/x509"

	"github.com/iniwex5/ikeparams/pkg/eap"
)

// AuthMethod IKE 认证方式
type AuthMethod int

const (
	AuthMethodPsk AuthMethod = iota + 1
	AuthMethodDigitalSignature
	AuthMethodEap
)

func (m AuthMethod) String() string {
	switch m {
	case AuthMethodPsk:
		return "PSK"
	case AuthMethodDigitalSignature:
		return "DIGITAL_SIGNATURE"
	case AuthMethodEap:
		return "EAP"
	default:
		return "UNKNOWN"
	}
}

// AuthConfig 本端或对端的认证配置
type AuthConfig interface {
	Method() AuthMethod
}

// PskAuthConfig 双方共用同一个预共享密钥
type PskAuthConfig struct {
	psk []byte
}

func (PskAuthConfig) Method() AuthMethod { return AuthMethodPsk }
func (c PskAuthConfig) Psk() []byte      { return bytes.Clone(c.psk) }

// DigitalSignLocalConfig 本端证书与私钥
type DigitalSignLocalConfig struct {
	ClientCert    *x509.Certificate
	Intermediates []*x509.Certificate
	PrivateKey    crypto.Signer
}

func (DigitalSignLocalConfig) Method() AuthMethod { return AuthMethodDigitalSignature }

// DigitalSignRemoteConfig 用于验证对端证书的信任锚，nil 表示使用系统信任库
type DigitalSignRemoteConfig struct {
	TrustAnchor *x509.Certificate
}

func (DigitalSignRemoteConfig) Method() AuthMethod { return AuthMethodDigitalSignature }

// EapAuthConfig 本端通过 EAP 认证
type EapAuthConfig struct {
	Config *eap.SessionConfig
}

func (EapAuthConfig) Method() AuthMethod { return AuthMethodEap }
