package registry

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Canonical Permit2 deployment, identical on every supported chain.
var Permit2Address = common.HexToAddress("0x000000000022D473030F116dDEE9F6B43aC78BA3")

// NativeTokenSentinel is the conventional pseudo-address relays accept as the
// fee token when the fee is paid in the chain's native currency.
var NativeTokenSentinel = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

// Universal Router sentinel recipients. The router substitutes address(1) with
// msg.sender and address(2) with the router itself at execution time.
var (
	RecipientMsgSender   = common.HexToAddress("0x0000000000000000000000000000000000000001")
	RecipientAddressThis = common.HexToAddress("0x0000000000000000000000000000000000000002")
)

var universalRouterByChainID = map[int64]common.Address{
	1:     common.HexToAddress("0x66a9893cC07D91D95644AEDD05D03f95e1dBA8Af"),
	10:    common.HexToAddress("0x851116D9223fabED8E56C0E6b8Ad0c31d98B3507"),
	130:   common.HexToAddress("0xEf740bf23aCaE26f6492B10de645D6B98dC8Eaf3"),
	137:   common.HexToAddress("0x1095692A6237d83C6a72F3F5eFEdb9A670C49223"),
	8453:  common.HexToAddress("0x6fF5693b99212Da76ad316178A184AB56D299b43"),
	42161: common.HexToAddress("0xA51afAFe0263b40EdaEf0Df8781eA9aa03E381a3"),
}

func UniversalRouter(chainID int64) (common.Address, error) {
	addr, ok := universalRouterByChainID[chainID]
	if !ok {
		return common.Address{}, fmt.Errorf("no universal router registered for chain id %d; provide --router", chainID)
	}
	return addr, nil
}
