package ikev2

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"net/netip"
)

// 身份标识类型 (RFC 7296 3.5 节)
type IDType uint8

const (
	ID_IPV4_ADDR   IDType = 1
	ID_FQDN        IDType = 2
	ID_RFC822_ADDR IDType = 3
	ID_IPV6_ADDR   IDType = 5
	ID_DER_ASN1_DN IDType = 9
	ID_DER_ASN1_GN IDType = 10
	ID_KEY_ID      IDType = 11
)

func (t IDType) String() string {
	switch t {
	case ID_IPV4_ADDR:
		return "IPV4_ADDR"
	case ID_FQDN:
		return "FQDN"
	case ID_RFC822_ADDR:
		return "RFC822_ADDR"
	case ID_IPV6_ADDR:
		return "IPV6_ADDR"
	case ID_DER_ASN1_DN:
		return "DER_ASN1_DN"
	case ID_DER_ASN1_GN:
		return "DER_ASN1_GN"
	case ID_KEY_ID:
		return "KEY_ID"
	default:
		return fmt.Sprintf("ID(%d)", uint8(t))
	}
}

var ErrInvalidIdentification = errors.New("非法的身份标识")

// Identification IDi / IDr 载荷的内容
type Identification struct {
	Type IDType
	Data []byte
}

func NewIpv4Identification(addr netip.Addr) (Identification, error) {
	addr = addr.Unmap()
	if !addr.Is4() {
		return Identification{}, fmt.Errorf("%w: %s 不是 IPv4 地址", ErrInvalidIdentification, addr)
	}
	b := addr.As4()
	return Identification{Type: ID_IPV4_ADDR, Data: b[:]}, nil
}

func NewIpv6Identification(addr netip.Addr) (Identification, error) {
	if !addr.Is6() || addr.Is4In6() {
		return Identification{}, fmt.Errorf("%w: %s 不是 IPv6 地址", ErrInvalidIdentification, addr)
	}
	b := addr.As16()
	return Identification{Type: ID_IPV6_ADDR, Data: b[:]}, nil
}

func NewFqdnIdentification(fqdn string) (Identification, error) {
	if fqdn == "" {
		return Identification{}, fmt.Errorf("%w: FQDN 为空", ErrInvalidIdentification)
	}
	return Identification{Type: ID_FQDN, Data: []byte(fqdn)}, nil
}

// NewRfc822Identification 例如 "0<IMSI>@nai.epc.mnc001.mcc001.3gppnetwork.org"
func NewRfc822Identification(addr string) (Identification, error) {
	if addr == "" {
		return Identification{}, fmt.Errorf("%w: RFC822 地址为空", ErrInvalidIdentification)
	}
	return Identification{Type: ID_RFC822_ADDR, Data: []byte(addr)}, nil
}

func NewKeyIdIdentification(keyID []byte) (Identification, error) {
	if len(keyID) == 0 {
		return Identification{}, fmt.Errorf("%w: KEY_ID 为空", ErrInvalidIdentification)
	}
	return Identification{Type: ID_KEY_ID, Data: bytes.Clone(keyID)}, nil
}

// NewDerAsn1DnIdentification der 为 DER 编码的 X.501 Distinguished Name
func NewDerAsn1DnIdentification(der []byte) (Identification, error) {
	if len(der) == 0 {
		return Identification{}, fmt.Errorf("%w: DN 为空", ErrInvalidIdentification)
	}
	return Identification{Type: ID_DER_ASN1_DN, Data: bytes.Clone(der)}, nil
}

func (id Identification) IsZero() bool { return id.Type == 0 && len(id.Data) == 0 }

func (id Identification) Equal(o Identification) bool {
	return id.Type == o.Type && bytes.Equal(id.Data, o.Data)
}

func (id Identification) String() string {
	switch id.Type {
	case ID_IPV4_ADDR, ID_IPV6_ADDR:
		if a, ok := netip.AddrFromSlice(id.Data); ok {
			return id.Type.String() + ":" + a.String()
		}
	case ID_FQDN, ID_RFC822_ADDR:
		return id.Type.String() + ":" + string(id.Data)
	}
	return id.Type.String() + ":" + hex.EncodeToString(id.Data)
}
