package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
	"k8s.io/apimachinery/pkg/util/validation/field"
)

const (
	ChainHederaMainnet uint64 = 295
	ChainHederaTestnet uint64 = 296
)

// Contracts are the deployed addresses on one chain. Empty means not deployed.
type Contracts struct {
	Executor         string `yaml:"executor"`
	Configuration    string `yaml:"configuration"`
	Protocol         string `yaml:"protocol"`
	Registry         string `yaml:"registry"`
	PaymentTerminal  string `yaml:"paymentTerminal"`
	AaveRebalancer   string `yaml:"aaveRebalancer"`
	BridgeETHViaWETH string `yaml:"bridgeEthViaWeth"`
}

// Deployment is one chain the relay can submit to
type Deployment struct {
	RPCURL    string    `yaml:"rpcUrl"`
	Contracts Contracts `yaml:"contracts"`
}

// Deployments maps chain id to deployment
type Deployments map[uint64]Deployment

type deploymentsFile struct {
	Chains map[string]Deployment `yaml:"chains"`
}

// DefaultDeployments carries the public Hedera JSON-RPC relays. Contracts
// must still come from the deployments file.
func DefaultDeployments() Deployments {
	return Deployments{
		ChainHederaMainnet: {RPCURL: "https://mainnet.hashio.io/api"},
		ChainHederaTestnet: {RPCURL: "https://testnet.hashio.io/api"},
	}
}

// LoadDeployments reads a YAML deployments file on top of the defaults
func LoadDeployments(path string) (Deployments, error) {
	deployments := DefaultDeployments()
	if path == "" {
		return deployments, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read deployments file: %w", err)
	}
	return ParseDeployments(raw, deployments)
}

// ParseDeployments decodes YAML into base. Chains in raw override base; an
// empty rpcUrl keeps the base RPC.
func ParseDeployments(raw []byte, base Deployments) (Deployments, error) {
	var file deploymentsFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse deployments: %w", err)
	}

	out := make(Deployments, len(base)+len(file.Chains))
	for id, d := range base {
		out[id] = d
	}
	for key, d := range file.Chains {
		id, err := strconv.ParseUint(key, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid chain id %q: %w", key, err)
		}
		if d.RPCURL == "" {
			d.RPCURL = base[id].RPCURL
		}
		out[id] = d
	}
	return out, nil
}

// Validate checks every configured address and RPC URL
func (d Deployments) Validate(path *field.Path) field.ErrorList {
	var allErrors field.ErrorList
	for id, dep := range d {
		chainPath := path.Key(strconv.FormatUint(id, 10))
		if dep.RPCURL == "" {
			allErrors = append(allErrors, field.Required(chainPath.Child("rpcUrl"), "rpc url is required"))
		}
		addresses := map[string]string{
			"executor":         dep.Contracts.Executor,
			"configuration":    dep.Contracts.Configuration,
			"protocol":         dep.Contracts.Protocol,
			"registry":         dep.Contracts.Registry,
			"paymentTerminal":  dep.Contracts.PaymentTerminal,
			"aaveRebalancer":   dep.Contracts.AaveRebalancer,
			"bridgeEthViaWeth": dep.Contracts.BridgeETHViaWETH,
		}
		for name, addr := range addresses {
			if addr != "" && !common.IsHexAddress(addr) {
				allErrors = append(allErrors, field.Invalid(chainPath.Child("contracts", name), addr, "not a hex address"))
			}
		}
	}
	return allErrors
}

// Address returns the parsed address and whether it is deployed
func Address(s string) (common.Address, bool) {
	if s == "" || !common.IsHexAddress(s) {
		return common.Address{}, false
	}
	addr := common.HexToAddress(s)
	return addr, addr != (common.Address{})
}

// ProtocolAddress returns the protocol contract that chip signatures on
// chainID are bound to.
func (d Deployments) ProtocolAddress(chainID uint64) (common.Address, bool) {
	dep, ok := d[chainID]
	if !ok {
		return common.Address{}, false
	}
	return Address(dep.Contracts.Protocol)
}
