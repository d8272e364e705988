package action

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

type Category string

const (
	CategoryPayment Category = "payment"
	CategoryDeFi    Category = "defi"
	CategoryBridge  Category = "bridge"
	CategoryCustom  Category = "custom"
)

// Template describes an action kind for listing in a UI.
type Template struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Category    Category `json:"category"`
}

var templates = []Template{
	{ID: ERC20Transfer{}.TemplateID(), Name: "ERC20 Transfer", Description: "Send any ERC20 token to a recipient", Category: CategoryPayment},
	{ID: UniswapV2Swap{}.TemplateID(), Name: "Uniswap Token Swap", Description: "Swap tokens on Uniswap", Category: CategoryDeFi},
	{ID: Bridge{}.TemplateID(), Name: "Gas Refuel", Description: "Top up gas on another chain", Category: CategoryBridge},
	{ID: Custom{}.TemplateID(), Name: "Custom Action", Description: "Custom contract interaction (advanced)", Category: CategoryCustom},
	{ID: AaveRebalance{}.TemplateID(), Name: "Aave Position Rebalancer", Description: "Rebalance Aave position to target health factor", Category: CategoryDeFi},
	{ID: BridgeETHViaWETH{}.TemplateID(), Name: "Bridge WETH to Base + OP Sepolia", Description: "Unwrap and bridge all available WETH to both L2s", Category: CategoryDeFi},
}

// Templates lists every action kind.
func Templates() []Template {
	return append([]Template(nil), templates...)
}

func TemplateByID(id string) (Template, bool) {
	for _, t := range templates {
		if t.ID == id {
			return t, true
		}
	}
	return Template{}, false
}

// ParseTokenAmount converts a human readable amount such as "1.5" into base
// units. Digits beyond decimals are truncated.
func ParseTokenAmount(amount string, decimals int32) (*big.Int, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("invalid amount %q: negative", amount)
	}
	return d.Shift(decimals).BigInt(), nil
}

// FormatTokenAmount renders base units with trailing zeros removed.
func FormatTokenAmount(amount *big.Int, decimals int32) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -decimals).String()
}

// FormatEther renders wei as ETH.
func FormatEther(wei *big.Int) string {
	return FormatTokenAmount(wei, 18)
}
