package eap

import (
	"bytes"
	"crypto/x509"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/multierr"
)

// EAP 方法类型 (IANA EAP Method Types)
type MethodType uint8

const (
	TypeIdentity MethodType = 1
	TypeSIM      MethodType = 18 // EAP-SIM (RFC 4186, 2G)
	TypeTTLS     MethodType = 21 // EAP-TTLS (RFC 5281)
	TypeAKA      MethodType = 23 // EAP-AKA (RFC 4187, 4G)
	TypeMSCHAPv2 MethodType = 26
	TypeAKAPrime MethodType = 50 // EAP-AKA' (RFC 5448, 5G)
)

func (t MethodType) String() string {
	switch t {
	case TypeIdentity:
		return "Identity"
	case TypeSIM:
		return "EAP-SIM"
	case TypeTTLS:
		return "EAP-TTLS"
	case TypeAKA:
		return "EAP-AKA"
	case TypeMSCHAPv2:
		return "EAP-MSCHAPv2"
	case TypeAKAPrime:
		return "EAP-AKA'"
	default:
		return fmt.Sprintf("EAP(%d)", uint8(t))
	}
}

// UICC 应用类型 (3GPP TS 31.102)
type AppType uint8

const (
	AppTypeSIM  AppType = 1
	AppTypeUSIM AppType = 2
	AppTypeRUIM AppType = 3
	AppTypeCSIM AppType = 4
	AppTypeISIM AppType = 5
)

var (
	ErrNoMethod        = errors.New("EAP 配置至少需要一个认证方法")
	ErrDuplicateMethod = errors.New("EAP 认证方法重复")
	ErrInvalidMethod   = errors.New("EAP 认证方法参数非法")
	ErrNestedTunnel    = errors.New("EAP-TTLS 内层不能再使用 EAP-TTLS")
	ErrConfigConsumed  = errors.New("EAP builder 已使用，不能再次 Build")
)

// Method 一个 EAP 认证方法的配置
type Method interface {
	Type() MethodType
	// EapOnlySafe 方法自身能够双向认证并生成共享密钥 (RFC 5998 第 4 节)
	EapOnlySafe() bool
}

// SimConfig EAP-SIM
type SimConfig struct {
	SubID   int
	AppType AppType
}

func (SimConfig) Type() MethodType  { return TypeSIM }
func (SimConfig) EapOnlySafe() bool { return true }

// AkaConfig EAP-AKA
type AkaConfig struct {
	SubID   int
	AppType AppType
}

func (AkaConfig) Type() MethodType  { return TypeAKA }
func (AkaConfig) EapOnlySafe() bool { return true }

// AkaPrimeConfig EAP-AKA'，NetworkName 参与 CK'/IK' 推导 (RFC 5448 3.1 节)
type AkaPrimeConfig struct {
	SubID                       int
	AppType                     AppType
	NetworkName                 string
	AllowMismatchedNetworkNames bool
}

func (AkaPrimeConfig) Type() MethodType  { return TypeAKAPrime }
func (AkaPrimeConfig) EapOnlySafe() bool { return true }

type MsChapV2Config struct {
	Username string
	Password string
}

func (MsChapV2Config) Type() MethodType  { return TypeMSCHAPv2 }
func (MsChapV2Config) EapOnlySafe() bool { return false }

// TtlsConfig EAP-TTLS 隧道，Inner 为隧道内的 EAP 配置
type TtlsConfig struct {
	ServerCA *x509.Certificate // nil 表示使用系统信任库
	Inner    *SessionConfig
}

func (TtlsConfig) Type() MethodType  { return TypeTTLS }
func (TtlsConfig) EapOnlySafe() bool { return false }

// SessionConfig 一次 EAP 会话的不可变配置
type SessionConfig struct {
	identity []byte
	methods  []Method
}

// Identity 用于 EAP-Identity 响应，未设置时为空
func (c *SessionConfig) Identity() []byte { return bytes.Clone(c.identity) }

// Methods 按添加顺序返回方法配置
func (c *SessionConfig) Methods() []Method { return slices.Clone(c.methods) }

// Method 按类型查找方法配置
func (c *SessionConfig) Method(t MethodType) (Method, bool) {
	for _, m := range c.methods {
		if m.Type() == t {
			return m, true
		}
	}
	return nil, false
}

// AllMethodsEapOnlySafe EAP-only 认证要求每个方法都满足 RFC 5998
func (c *SessionConfig) AllMethodsEapOnlySafe() bool {
	for _, m := range c.methods {
		if !m.EapOnlySafe() {
			return false
		}
	}
	return len(c.methods) > 0
}

// Builder 构建 SessionConfig，Build 后即被消耗
type Builder struct {
	identity []byte
	methods  []Method
	consumed bool
}

func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) SetIdentity(id []byte) *Builder {
	b.identity = bytes.Clone(id)
	return b
}

func (b *Builder) AddSim(subID int, appType AppType) *Builder {
	b.methods = append(b.methods, SimConfig{SubID: subID, AppType: appType})
	return b
}

func (b *Builder) AddAka(subID int, appType AppType) *Builder {
	b.methods = append(b.methods, AkaConfig{SubID: subID, AppType: appType})
	return b
}

func (b *Builder) AddAkaPrime(subID int, appType AppType, networkName string, allowMismatch bool) *Builder {
	b.methods = append(b.methods, AkaPrimeConfig{
		SubID:                       subID,
		AppType:                     appType,
		NetworkName:                 networkName,
		AllowMismatchedNetworkNames: allowMismatch,
	})
	return b
}

func (b *Builder) AddMsChapV2(username, password string) *Builder {
	b.methods = append(b.methods, MsChapV2Config{Username: username, Password: password})
	return b
}

func (b *Builder) AddTtls(serverCA *x509.Certificate, inner *SessionConfig) *Builder {
	b.methods = append(b.methods, TtlsConfig{ServerCA: serverCA, Inner: inner})
	return b
}

// Build 一次性报告全部问题
func (b *Builder) Build() (*SessionConfig, error) {
	if b.consumed {
		return nil, ErrConfigConsumed
	}
	b.consumed = true
	methods := b.methods
	b.methods = nil

	var errs error
	if len(methods) == 0 {
		errs = multierr.Append(errs, ErrNoMethod)
	}
	seen := make(map[MethodType]bool, len(methods))
	for _, m := range methods {
		if seen[m.Type()] {
			errs = multierr.Append(errs, fmt.Errorf("%w: %s", ErrDuplicateMethod, m.Type()))
		}
		seen[m.Type()] = true
		errs = multierr.Append(errs, validateMethod(m))
	}
	if errs != nil {
		return nil, errs
	}
	return &SessionConfig{identity: b.identity, methods: methods}, nil
}

func validateMethod(m Method) error {
	switch m := m.(type) {
	case AkaPrimeConfig:
		if m.NetworkName == "" {
			return fmt.Errorf("%w: EAP-AKA' 缺少网络名称", ErrInvalidMethod)
		}
	case MsChapV2Config:
		if m.Username == "" || m.Password == "" {
			return fmt.Errorf("%w: EAP-MSCHAPv2 缺少用户名或密码", ErrInvalidMethod)
		}
	case TtlsConfig:
		if m.Inner == nil {
			return fmt.Errorf("%w: EAP-TTLS 缺少内层配置", ErrInvalidMethod)
		}
		if _, nested := m.Inner.Method(TypeTTLS); nested {
			return ErrNestedTunnel
		}
	}
	return nil
}
