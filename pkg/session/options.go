package session

import "strings"

// IkeOption IKE 会话行为开关
type IkeOption uint

const (
	// 不校验对端 IDr，接受任意身份
	OptionAcceptAnyRemoteID IkeOption = iota
	// 仅 EAP 认证，对端可不携带 AUTH 证书 (RFC 5998)
	OptionEapOnlyAuth
	OptionMobike
	// 直接使用 UDP 4500 端口发起
	OptionForcePort4500
	OptionInitialContact
	// Rekey 时允许地址迁移
	OptionRekeyMobility
)

var optionNames = map[IkeOption]string{
	OptionAcceptAnyRemoteID: "ACCEPT_ANY_REMOTE_ID",
	OptionEapOnlyAuth:       "EAP_ONLY_AUTH",
	OptionMobike:            "MOBIKE",
	OptionForcePort4500:     "FORCE_PORT_4500",
	OptionInitialContact:    "INITIAL_CONTACT",
	OptionRekeyMobility:     "REKEY_MOBILITY",
}

func (o IkeOption) String() string {
	if s, ok := optionNames[o]; ok {
		return s
	}
	return "UNKNOWN"
}

func (o IkeOption) valid() bool {
	_, ok := optionNames[o]
	return ok
}

// ParseIkeOption 按名称解析，大小写不敏感
func ParseIkeOption(name string) (IkeOption, bool) {
	for o, s := range optionNames {
		if strings.EqualFold(s, name) {
			return o, true
		}
	}
	return 0, false
}

// optionSet 位集合
type optionSet uint64

func (s optionSet) has(o IkeOption) bool { return s&(1<<o) != 0 }
func (s *optionSet) add(o IkeOption)     { *s |= 1 << o }
func (s *optionSet) remove(o IkeOption)  { *s &^= 1 << o }
