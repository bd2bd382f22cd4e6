package ikev2

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// algorithmInfo 描述一个算法在目录中的静态属性
type algorithmInfo struct {
	name    string
	aead    bool  // 组合模式 (AEAD) 加密算法
	keyLens []int // nil 表示固定密钥长度
}

var aesKeyLens = []int{KeyLenAES128, KeyLenAES192, KeyLenAES256}

func (id EncrID) info() (algorithmInfo, bool) {
	switch id {
	case ENCR_3DES:
		return algorithmInfo{name: "3DES"}, true
	case ENCR_AES_CBC:
		return algorithmInfo{name: "AES_CBC", keyLens: aesKeyLens}, true
	case ENCR_AES_CTR:
		return algorithmInfo{name: "AES_CTR", keyLens: aesKeyLens}, true
	case ENCR_AES_CCM_8:
		return algorithmInfo{name: "AES_CCM_8", aead: true, keyLens: aesKeyLens}, true
	case ENCR_AES_CCM_12:
		return algorithmInfo{name: "AES_CCM_12", aead: true, keyLens: aesKeyLens}, true
	case ENCR_AES_CCM_16:
		return algorithmInfo{name: "AES_CCM_16", aead: true, keyLens: aesKeyLens}, true
	case ENCR_AES_GCM_8:
		return algorithmInfo{name: "AES_GCM_8", aead: true, keyLens: aesKeyLens}, true
	case ENCR_AES_GCM_12:
		return algorithmInfo{name: "AES_GCM_12", aead: true, keyLens: aesKeyLens}, true
	case ENCR_AES_GCM_16:
		return algorithmInfo{name: "AES_GCM_16", aead: true, keyLens: aesKeyLens}, true
	case ENCR_CHACHA20_POLY1305:
		return algorithmInfo{name: "CHACHA20_POLY1305", aead: true}, true
	default:
		return algorithmInfo{}, false
	}
}

func (id IntegID) info() (algorithmInfo, bool) {
	switch id {
	case AUTH_NONE:
		return algorithmInfo{name: "NONE"}, true
	case AUTH_HMAC_SHA1_96:
		return algorithmInfo{name: "HMAC_SHA1_96"}, true
	case AUTH_AES_XCBC_96:
		return algorithmInfo{name: "AES_XCBC_96"}, true
	case AUTH_AES_CMAC_96:
		return algorithmInfo{name: "AES_CMAC_96"}, true
	case AUTH_HMAC_SHA2_256_128:
		return algorithmInfo{name: "HMAC_SHA2_256_128"}, true
	case AUTH_HMAC_SHA2_384_192:
		return algorithmInfo{name: "HMAC_SHA2_384_192"}, true
	case AUTH_HMAC_SHA2_512_256:
		return algorithmInfo{name: "HMAC_SHA2_512_256"}, true
	default:
		return algorithmInfo{}, false
	}
}

func (id PrfID) info() (algorithmInfo, bool) {
	switch id {
	case PRF_HMAC_SHA1:
		return algorithmInfo{name: "PRF_HMAC_SHA1"}, true
	case PRF_AES128_XCBC:
		return algorithmInfo{name: "PRF_AES128_XCBC"}, true
	case PRF_HMAC_SHA2_256:
		return algorithmInfo{name: "PRF_HMAC_SHA2_256"}, true
	case PRF_HMAC_SHA2_384:
		return algorithmInfo{name: "PRF_HMAC_SHA2_384"}, true
	case PRF_HMAC_SHA2_512:
		return algorithmInfo{name: "PRF_HMAC_SHA2_512"}, true
	case PRF_AES128_CMAC:
		return algorithmInfo{name: "PRF_AES128_CMAC"}, true
	default:
		return algorithmInfo{}, false
	}
}

func (g DhGroup) info() (algorithmInfo, bool) {
	switch g {
	case DH_NONE:
		return algorithmInfo{name: "DH_NONE"}, true
	case MODP_1024_bit:
		return algorithmInfo{name: "MODP_1024"}, true
	case MODP_1536_bit:
		return algorithmInfo{name: "MODP_1536"}, true
	case MODP_2048_bit:
		return algorithmInfo{name: "MODP_2048"}, true
	case MODP_3072_bit:
		return algorithmInfo{name: "MODP_3072"}, true
	case MODP_4096_bit:
		return algorithmInfo{name: "MODP_4096"}, true
	case CURVE25519:
		return algorithmInfo{name: "CURVE25519"}, true
	default:
		return algorithmInfo{}, false
	}
}

func (e EsnPolicy) info() (algorithmInfo, bool) {
	switch e {
	case ESN_NONE:
		return algorithmInfo{name: "ESN_NONE"}, true
	case ESN_ENABLED:
		return algorithmInfo{name: "ESN"}, true
	default:
		return algorithmInfo{}, false
	}
}

// IsAEAD 判断加密算法是否为组合模式 (自带完整性保护)
func (id EncrID) IsAEAD() bool {
	info, ok := id.info()
	return ok && info.aead
}

// KeyLengths 返回算法允许的密钥长度；固定长度算法返回 nil
func (id EncrID) KeyLengths() []int {
	info, _ := id.info()
	return slices.Clone(info.keyLens)
}

func (id EncrID) String() string   { return algorithmName(id.info, uint16(id)) }
func (id IntegID) String() string  { return algorithmName(id.info, uint16(id)) }
func (id PrfID) String() string    { return algorithmName(id.info, uint16(id)) }
func (g DhGroup) String() string   { return algorithmName(g.info, uint16(g)) }
func (e EsnPolicy) String() string { return algorithmName(e.info, uint16(e)) }

func algorithmName(lookup func() (algorithmInfo, bool), id uint16) string {
	if info, ok := lookup(); ok {
		return info.name
	}
	return fmt.Sprintf("UNKNOWN(%d)", id)
}

// Transform 一个算法选择 (RFC 7296 3.3.2 节)
// 可比较的值类型；(Type, ID, KeyLength) 相同即为同一变换
type Transform struct {
	Type      TransformType
	ID        uint16
	KeyLength int // 位，KeyLenUnused 表示不携带 Key Length 属性
}

func (t Transform) lookup() (algorithmInfo, bool) {
	switch t.Type {
	case TransformTypeEncr:
		return EncrID(t.ID).info()
	case TransformTypePRF:
		return PrfID(t.ID).info()
	case TransformTypeInteg:
		return IntegID(t.ID).info()
	case TransformTypeDH:
		return DhGroup(t.ID).info()
	case TransformTypeESN:
		return EsnPolicy(t.ID).info()
	default:
		return algorithmInfo{}, false
	}
}

func (t Transform) String() string {
	info, ok := t.lookup()
	if !ok {
		return fmt.Sprintf("%s(%d)", t.Type, t.ID)
	}
	if t.KeyLength != KeyLenUnused {
		return info.name + "/" + strconv.Itoa(t.KeyLength)
	}
	return info.name
}

// ValidateTransform 检查 (类型, ID, 密钥长度) 三元组是否合法
// 固定长度算法必须使用 KeyLenUnused，可变长度算法必须使用允许的长度之一
func ValidateTransform(t Transform) error {
	info, ok := t.lookup()
	if !ok {
		return fmt.Errorf("%w: 未知的 %s 算法 %d", ErrInvalidTransform, t.Type, t.ID)
	}
	if info.keyLens == nil {
		if t.KeyLength != KeyLenUnused {
			return fmt.Errorf("%w: %s 不接受密钥长度 %d", ErrInvalidTransform, info.name, t.KeyLength)
		}
		return nil
	}
	if !slices.Contains(info.keyLens, t.KeyLength) {
		return fmt.Errorf("%w: %s 不支持密钥长度 %d", ErrInvalidTransform, info.name, t.KeyLength)
	}
	return nil
}

// NewEncryptionTransform 创建加密变换
func NewEncryptionTransform(id EncrID, keyLen int) (Transform, error) {
	t := Transform{Type: TransformTypeEncr, ID: uint16(id), KeyLength: keyLen}
	return t, ValidateTransform(t)
}

// NewIntegrityTransform 创建完整性变换
func NewIntegrityTransform(id IntegID) (Transform, error) {
	t := Transform{Type: TransformTypeInteg, ID: uint16(id)}
	return t, ValidateTransform(t)
}

// NewPrfTransform 创建 PRF 变换
func NewPrfTransform(id PrfID) (Transform, error) {
	t := Transform{Type: TransformTypePRF, ID: uint16(id)}
	return t, ValidateTransform(t)
}

// NewDhGroupTransform 创建 DH 组变换
func NewDhGroupTransform(g DhGroup) (Transform, error) {
	t := Transform{Type: TransformTypeDH, ID: uint16(g)}
	return t, ValidateTransform(t)
}

// NewEsnTransform 创建 ESN 变换
func NewEsnTransform(e EsnPolicy) (Transform, error) {
	t := Transform{Type: TransformTypeESN, ID: uint16(e)}
	return t, ValidateTransform(t)
}

// ParseTransform 按名称解析变换，例如 "AES_GCM_16/256"、"HMAC_SHA2_256_128"、
// "PRF_HMAC_SHA2_256"、"MODP_2048"、"ESN"。供配置文件和命令行使用
func ParseTransform(s string) (Transform, error) {
	name, lenStr, hasLen := strings.Cut(strings.ToUpper(strings.TrimSpace(s)), "/")
	keyLen := KeyLenUnused
	if hasLen {
		n, err := strconv.Atoi(lenStr)
		if err != nil {
			return Transform{}, fmt.Errorf("%w: 密钥长度 %q 非法", ErrInvalidTransform, lenStr)
		}
		keyLen = n
	}

	for _, tt := range []TransformType{TransformTypeEncr, TransformTypePRF, TransformTypeInteg, TransformTypeDH, TransformTypeESN} {
		for _, id := range catalogIDs(tt) {
			t := Transform{Type: tt, ID: id, KeyLength: keyLen}
			if info, _ := t.lookup(); info.name == name {
				return t, ValidateTransform(t)
			}
		}
	}
	return Transform{}, fmt.Errorf("%w: 未知算法名称 %q", ErrInvalidTransform, s)
}

var (
	encrIDs  = []EncrID{ENCR_3DES, ENCR_AES_CBC, ENCR_AES_CTR, ENCR_AES_CCM_8, ENCR_AES_CCM_12, ENCR_AES_CCM_16, ENCR_AES_GCM_8, ENCR_AES_GCM_12, ENCR_AES_GCM_16, ENCR_CHACHA20_POLY1305}
	prfIDs   = []PrfID{PRF_HMAC_SHA1, PRF_AES128_XCBC, PRF_HMAC_SHA2_256, PRF_HMAC_SHA2_384, PRF_HMAC_SHA2_512, PRF_AES128_CMAC}
	integIDs = []IntegID{AUTH_NONE, AUTH_HMAC_SHA1_96, AUTH_AES_XCBC_96, AUTH_AES_CMAC_96, AUTH_HMAC_SHA2_256_128, AUTH_HMAC_SHA2_384_192, AUTH_HMAC_SHA2_512_256}
	dhIDs    = []DhGroup{DH_NONE, MODP_1024_bit, MODP_1536_bit, MODP_2048_bit, MODP_3072_bit, MODP_4096_bit, CURVE25519}
	esnIDs   = []EsnPolicy{ESN_NONE, ESN_ENABLED}
)

// catalogIDs 列出目录中某一族的全部 ID
func catalogIDs(tt TransformType) []uint16 {
	switch tt {
	case TransformTypeEncr:
		return rawIDs(encrIDs)
	case TransformTypePRF:
		return rawIDs(prfIDs)
	case TransformTypeInteg:
		return rawIDs(integIDs)
	case TransformTypeDH:
		return rawIDs(dhIDs)
	case TransformTypeESN:
		return rawIDs(esnIDs)
	default:
		return nil
	}
}

func rawIDs[T ~uint16](ids []T) []uint16 {
	out := make([]uint16, len(ids))
	for i, id := range ids {
		out[i] = uint16(id)
	}
	return out
}
