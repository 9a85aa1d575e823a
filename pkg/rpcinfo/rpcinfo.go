package rpcinfo

// RpcInfo is created at the start of an RPC and lives exactly as long as
// that one call (spec §3). It is single-owner: only the task that created
// it may mutate it (spec §5).
type RpcInfo struct {
	Role   Role
	Caller *Endpoint
	Callee *Endpoint
	Method string
	Config Config
}

// NewRpcInfo constructs an RpcInfo for one call. caller/callee are owned
// by this RpcInfo for its lifetime.
func NewRpcInfo(role Role, caller, callee *Endpoint, method string, cfg Config) *RpcInfo {
	return &RpcInfo{Role: role, Caller: caller, Callee: callee, Method: method, Config: cfg}
}
