package registry

// ABI fragments for every contract surface the swap pipeline touches.
const (
	// ERC20PermitABI covers the read surface needed for EIP-2612 typed-data
	// domains plus the classic allowance/approve pair.
	ERC20PermitABI = `[
		{"name":"name","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
		{"name":"version","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
		{"name":"decimals","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
		{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"nonces","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"allowance","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"approve","type":"function","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"value","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
	]`

	// Permit2ABI is the time-bound delegation allowance registry.
	Permit2ABI = `[
		{"name":"allowance","type":"function","stateMutability":"view","inputs":[{"name":"user","type":"address"},{"name":"token","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"amount","type":"uint160"},{"name":"expiration","type":"uint48"},{"name":"nonce","type":"uint48"}]},
		{"name":"approve","type":"function","stateMutability":"nonpayable","inputs":[{"name":"token","type":"address"},{"name":"spender","type":"address"},{"name":"amount","type":"uint160"},{"name":"expiration","type":"uint48"}],"outputs":[]}
	]`

	UniversalRouterABI = `[
		{"name":"execute","type":"function","stateMutability":"payable","inputs":[{"name":"commands","type":"bytes"},{"name":"inputs","type":"bytes[]"},{"name":"deadline","type":"uint256"}],"outputs":[]}
	]`

	PermitSwapABI = `[
		{"name":"permitSwapAndPayFeeNative","type":"function","stateMutability":"payable","inputs":[
			{"name":"p","type":"tuple","components":[{"name":"owner","type":"address"},{"name":"value","type":"uint256"},{"name":"deadline","type":"uint256"},{"name":"v","type":"uint8"},{"name":"r","type":"bytes32"},{"name":"s","type":"bytes32"}]},
			{"name":"s","type":"tuple","components":[{"name":"minEthOut","type":"uint256"},{"name":"deadline","type":"uint256"}]},
			{"name":"maxFeeEth","type":"uint256"}
		],"outputs":[]}
	]`
)
