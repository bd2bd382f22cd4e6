package ikev2

import "fmt"

// IKEv2 RFC 7296 常量

// 协议 ID
type ProtocolID uint8

const (
	ProtoIKE ProtocolID = 1
	ProtoAH  ProtocolID = 2
	ProtoESP ProtocolID = 3
)

func (p ProtocolID) String() string {
	switch p {
	case ProtoIKE:
		return "IKE"
	case ProtoAH:
		return "AH"
	case ProtoESP:
		return "ESP"
	default:
		return fmt.Sprintf("PROTO(%d)", uint8(p))
	}
}

// 变换类型
type TransformType uint8

const (
	TransformTypeEncr  TransformType = 1
	TransformTypePRF   TransformType = 2
	TransformTypeInteg TransformType = 3
	TransformTypeDH    TransformType = 4
	TransformTypeESN   TransformType = 5
)

func (t TransformType) String() string {
	switch t {
	case TransformTypeEncr:
		return "ENCR"
	case TransformTypePRF:
		return "PRF"
	case TransformTypeInteg:
		return "INTEG"
	case TransformTypeDH:
		return "DH"
	case TransformTypeESN:
		return "ESN"
	default:
		return fmt.Sprintf("TRANSFORM(%d)", uint8(t))
	}
}

// 变换类型 1 - 加密算法变换 ID
type EncrID uint16

const (
	ENCR_3DES              EncrID = 3
	ENCR_AES_CBC           EncrID = 12
	ENCR_AES_CTR           EncrID = 13
	ENCR_AES_CCM_8         EncrID = 14
	ENCR_AES_CCM_12        EncrID = 15
	ENCR_AES_CCM_16        EncrID = 16
	ENCR_AES_GCM_8         EncrID = 18
	ENCR_AES_GCM_12        EncrID = 19
	ENCR_AES_GCM_16        EncrID = 20
	ENCR_CHACHA20_POLY1305 EncrID = 28 // RFC 7634
)

// 变换类型 2 - 伪随机函数变换 ID
type PrfID uint16

const (
	PRF_HMAC_SHA1     PrfID = 2
	PRF_AES128_XCBC   PrfID = 4
	PRF_HMAC_SHA2_256 PrfID = 5
	PRF_HMAC_SHA2_384 PrfID = 6
	PRF_HMAC_SHA2_512 PrfID = 7
	PRF_AES128_CMAC   PrfID = 8
)

// 变换类型 3 - 完整性算法变换 ID
type IntegID uint16

const (
	AUTH_NONE              IntegID = 0
	AUTH_HMAC_SHA1_96      IntegID = 2
	AUTH_AES_XCBC_96       IntegID = 5
	AUTH_AES_CMAC_96       IntegID = 8
	AUTH_HMAC_SHA2_256_128 IntegID = 12
	AUTH_HMAC_SHA2_384_192 IntegID = 13
	AUTH_HMAC_SHA2_512_256 IntegID = 14
)

// 变换类型 4 - Diffie-Hellman 组变换 ID
type DhGroup uint16

const (
	DH_NONE       DhGroup = 0
	MODP_1024_bit DhGroup = 2
	MODP_1536_bit DhGroup = 5
	MODP_2048_bit DhGroup = 14
	MODP_3072_bit DhGroup = 15
	MODP_4096_bit DhGroup = 16
	CURVE25519    DhGroup = 31 // RFC 8031
)

// 变换类型 5 - 扩展序列号
type EsnPolicy uint16

const (
	ESN_NONE    EsnPolicy = 0
	ESN_ENABLED EsnPolicy = 1
)

// 属性类型
const (
	AttributeKeyLength uint16 = 14
)

// 密钥长度（位）。固定长度算法必须使用 KeyLenUnused
const (
	KeyLenUnused = 0
	KeyLenAES128 = 128
	KeyLenAES192 = 192
	KeyLenAES256 = 256
)

// 通知消息类型 - 与提议协商相关的错误类型
const (
	NO_PROPOSAL_CHOSEN uint16 = 14
	INVALID_KE_PAYLOAD uint16 = 17
	INVALID_SYNTAX     uint16 = 7
	TS_UNACCEPTABLE    uint16 = 38
)
