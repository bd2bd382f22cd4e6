package session

import "github.com/iniwex5/ikeparams/pkg/ikev2"

// AuthConfigRequests IKE_AUTH 请求中 CP(CFG_REQUEST) 的属性列表
// 顺序为 Child 的请求、IKE 的请求，最后是 APPLICATION_VERSION
func AuthConfigRequests(ike *IkeSessionParams, child *ChildSessionParams) []ikev2.ConfigAttribute {
	var out []ikev2.ConfigAttribute
	if child != nil {
		out = append(out, child.configRequests...)
	}
	if ike != nil {
		out = append(out, ike.configRequests...)
	}
	return append(out, ikev2.ApplicationVersionRequest())
}
