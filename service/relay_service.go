package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/layer-3/tapthat/action"
	"github.com/layer-3/tapthat/config"
	"github.com/layer-3/tapthat/contracts"
	"github.com/layer-3/tapthat/core"
	"github.com/layer-3/tapthat/internal/eth"
	"github.com/layer-3/tapthat/metrics"
	"github.com/layer-3/tapthat/ports"
	"go.uber.org/zap"
)

const (
	// AaveRebalancerGasLimit covers the flash loan, debt repayment and swap
	// of a rebalance.
	AaveRebalancerGasLimit uint64 = 1_500_000
	// BridgeExtensionGasLimit covers two L1 bridge deposits in one call.
	BridgeExtensionGasLimit uint64 = 3_000_000
	// PreflightGasUnits is the gas budget checked against the relay balance
	// before sending value.
	PreflightGasUnits int64 = 1_500_000

	defaultQueueDepth = 64

	// ETHToken is the token address recorded for native ETH bridge requests.
	ETHToken = "0x0000000000000000000000000000000000000000"
)

// Notifier delivers a payload to every device of a user
type Notifier interface {
	Send(ctx context.Context, userAddress string, payload any) error
}

// TapRequest is a chip authorization forwarded by the tapping device.
type TapRequest struct {
	Owner         string
	Chip          string
	ChipSignature string
	Timestamp     string
	Nonce         string
	ChainID       uint64
	// Value is optional. When set it must equal the configured value.
	Value string
}

// TapResult is either a mined transaction or a pending bridge approval.
type TapResult struct {
	Success          bool   `json:"success"`
	TransactionHash  string `json:"transactionHash,omitempty"`
	BlockNumber      string `json:"blockNumber,omitempty"`
	RequiresApproval bool   `json:"requiresApproval,omitempty"`
	RequestID        string `json:"requestId,omitempty"`
	Notified         *bool  `json:"notified,omitempty"`
	Message          string `json:"message,omitempty"`
}

// PaymentRequest is a payer chip authorization for the payment terminal.
type PaymentRequest struct {
	Payer          string
	PayerChip      string
	Payee          string
	PayeeChip      string
	Token          string
	Amount         string
	Timestamp      string
	Nonce          string
	PayerSignature string
	ChainID        uint64
}

type TxResult struct {
	Success         bool   `json:"success"`
	TransactionHash string `json:"transactionHash"`
	BlockNumber     string `json:"blockNumber"`
}

// RelayConfig holds what the relay needs besides its collaborators
type RelayConfig struct {
	Deployments config.Deployments
	// RelayerKey is the raw RELAYER_PRIVATE_KEY value. It is checked on use.
	RelayerKey       string
	BridgeRequestTTL time.Duration
	QueueDepth       int
}

// chainRelay owns the per-chain client and its submit queue.
type chainRelay struct {
	chain ports.Chain
	queue *SubmitQueue
}

// RelayService submits chip-authorized actions on behalf of their owners and
// turns bridge taps into pending approval requests.
type RelayService struct {
	cfg      RelayConfig
	dial     ports.ChainDialer
	bridges  ports.BridgeRequestStore
	notifier Notifier
	events   ports.EventPublisher
	logger   *zap.Logger

	now       func() time.Time
	requestID func() ([32]byte, error)

	mu     sync.Mutex
	relays map[uint64]*chainRelay
}

func NewRelayService(
	cfg RelayConfig,
	dial ports.ChainDialer,
	bridges ports.BridgeRequestStore,
	notifier Notifier,
	events ports.EventPublisher,
	logger *zap.Logger,
) *RelayService {
	if cfg.BridgeRequestTTL <= 0 {
		cfg.BridgeRequestTTL = config.DefaultBridgeRequestTTL
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = defaultQueueDepth
	}
	return &RelayService{
		cfg:       cfg,
		dial:      dial,
		bridges:   bridges,
		notifier:  notifier,
		events:    events,
		logger:    logger,
		now:       time.Now,
		requestID: eth.NewNonce,
		relays:    make(map[uint64]*chainRelay),
	}
}

type tapArgs struct {
	owner     common.Address
	chip      common.Address
	signature []byte
	timestamp *big.Int
	nonce     [32]byte
	value     *big.Int
}

// ExecuteTap re-reads the owner's configured action for the chip and either
// submits it through the executor or records a bridge request for approval.
func (s *RelayService) ExecuteTap(ctx context.Context, req TapRequest) (*TapResult, error) {
	args, err := parseTapRequest(req)
	if err != nil {
		return nil, err
	}

	deployment, err := s.deployment(req.ChainID)
	if err != nil {
		return nil, err
	}
	executor, ok := config.Address(deployment.Contracts.Executor)
	if !ok {
		return nil, core.ValidationError("Contracts not deployed on this network")
	}
	configuration, ok := config.Address(deployment.Contracts.Configuration)
	if !ok {
		return nil, core.ValidationError("Contracts not deployed on this network")
	}

	relay, err := s.relay(ctx, req.ChainID, deployment)
	if err != nil {
		return nil, err
	}

	configured, err := s.readConfiguration(ctx, relay.chain, configuration, args.owner, args.chip)
	if err != nil {
		return nil, err
	}

	if configured.IsEmpty() {
		return nil, core.ValidationError("No action configured for this chip")
	}
	if !configured.IsActive {
		return nil, core.ValidationError("Action configuration is inactive")
	}

	if action.IsBridgeAction(configured.TargetContract) {
		return s.createBridgeRequest(ctx, req, args, configured)
	}

	return s.submitTap(ctx, req.ChainID, relay, deployment, executor, args, configured)
}

func (s *RelayService) readConfiguration(ctx context.Context, chain ports.Chain, at, owner, chip common.Address) (*core.ActionConfiguration, error) {
	data, err := contracts.PackGetConfiguration(owner, chip)
	if err != nil {
		return nil, fmt.Errorf("failed to pack getConfiguration: %w", err)
	}
	out, err := chain.Call(ctx, at, data)
	if err != nil {
		return nil, core.ExecutionError("Failed to read chip configuration", err)
	}
	cfg, err := contracts.UnpackConfiguration(out)
	if err != nil {
		return nil, core.ExecutionError("Failed to decode chip configuration", err)
	}
	return cfg, nil
}

func (s *RelayService) createBridgeRequest(ctx context.Context, req TapRequest, args *tapArgs, cfg *core.ActionConfiguration) (*TapResult, error) {
	params, ok := action.ParseBridgeCallData(cfg.StaticCallData)
	if !ok {
		metrics.RelayExecutions.WithLabelValues("bridge", "invalid").Inc()
		return nil, core.ValidationError("Invalid bridge callData")
	}

	now := s.now().UTC()
	bridge := &core.BridgeRequest{
		UserAddress:   core.NormalizeAddress(req.Owner),
		ChipAddress:   core.NormalizeAddress(req.Chip),
		SourceChain:   params.SourceChainID,
		DestChain:     params.DestChainID,
		TokenAddress:  ETHToken,
		Amount:        params.Amount.String(),
		CallData:      hexutil.Encode(cfg.StaticCallData),
		ChipSignature: req.ChipSignature,
		Timestamp:     args.timestamp.Uint64(),
		Nonce:         req.Nonce,
		Status:        core.BridgeStatusPending,
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.cfg.BridgeRequestTTL),
	}

	if err := s.storeBridgeRequest(ctx, bridge); err != nil {
		metrics.RelayExecutions.WithLabelValues("bridge", "error").Inc()
		return nil, err
	}
	metrics.BridgeRequestsCreated.Inc()

	log := s.logger.With(
		zap.String("requestId", bridge.RequestID),
		zap.String("user", bridge.UserAddress),
		zap.Uint64("sourceChain", bridge.SourceChain),
		zap.Uint64("destChain", bridge.DestChain),
	)
	log.Info("bridge request created")

	if err := s.events.PublishBridgeRequested(ctx, bridge); err != nil {
		log.Warn("failed to publish bridge requested event", zap.Error(err))
	}

	notified := true
	if err := s.notifier.Send(ctx, bridge.UserAddress, NewBridgeNotification(bridge, "ETH")); err != nil {
		notified = false
		log.Warn("bridge notification not delivered", zap.Error(err))
	}

	metrics.RelayExecutions.WithLabelValues("bridge", "success").Inc()
	return &TapResult{
		Success:          true,
		RequiresApproval: true,
		RequestID:        bridge.RequestID,
		Notified:         &notified,
		Message:          "Bridge request created. Check your desktop browser for approval notification.",
	}, nil
}

// storeBridgeRequest assigns a fresh request id and persists the request,
// drawing a second id if the first collides.
func (s *RelayService) storeBridgeRequest(ctx context.Context, bridge *core.BridgeRequest) error {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		id, genErr := s.requestID()
		if genErr != nil {
			return genErr
		}
		bridge.RequestID = hexutil.Encode(id[:])

		err = s.bridges.Create(ctx, bridge)
		if !errors.Is(err, core.ErrDuplicateRequest) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("failed to store bridge request: %w", err)
	}
	return nil
}

func (s *RelayService) submitTap(
	ctx context.Context,
	chainID uint64,
	relay *chainRelay,
	deployment config.Deployment,
	executor common.Address,
	args *tapArgs,
	cfg *core.ActionConfiguration,
) (*TapResult, error) {
	value := new(big.Int)
	if cfg.Value != nil {
		value.Set(cfg.Value)
	}
	if args.value != nil && args.value.Cmp(value) != 0 {
		return nil, core.ValidationError("Value %s does not match configured value %s", args.value, value)
	}

	gasLimit := s.gasPolicy(deployment, cfg.TargetContract)

	data, err := contracts.PackExecuteTap(args.owner, args.chip, args.signature, args.timestamp, args.nonce)
	if err != nil {
		return nil, fmt.Errorf("failed to pack executeTap: %w", err)
	}

	start := time.Now()
	receipt, err := s.submit(ctx, relay, ports.TxRequest{
		To:       executor,
		Data:     data,
		Value:    value,
		GasLimit: gasLimit,
	})
	if err != nil {
		metrics.RelayExecutions.WithLabelValues("tap", "error").Inc()
		s.logger.Error("tap execution failed",
			zap.Uint64("chainId", chainID),
			zap.String("owner", args.owner.Hex()),
			zap.String("chip", args.chip.Hex()),
			zap.Error(err),
		)
		return nil, err
	}
	metrics.RelayExecutions.WithLabelValues("tap", "success").Inc()
	metrics.RelayExecutionDuration.WithLabelValues(strconv.FormatUint(chainID, 10)).Observe(time.Since(start).Seconds())

	s.logger.Info("tap executed",
		zap.Uint64("chainId", chainID),
		zap.String("owner", args.owner.Hex()),
		zap.String("txHash", receipt.TxHash.Hex()),
		zap.Uint64("block", receipt.BlockNumber),
	)

	return &TapResult{
		Success:         true,
		TransactionHash: receipt.TxHash.Hex(),
		BlockNumber:     strconv.FormatUint(receipt.BlockNumber, 10),
	}, nil
}

// gasPolicy returns a fixed gas limit for targets the provider estimate is
// known to undershoot, 0 otherwise.
func (s *RelayService) gasPolicy(deployment config.Deployment, target common.Address) uint64 {
	if addr, ok := config.Address(deployment.Contracts.AaveRebalancer); ok && addr == target {
		metrics.GasPolicySelections.WithLabelValues("aave_rebalancer").Inc()
		return AaveRebalancerGasLimit
	}
	if addr, ok := config.Address(deployment.Contracts.BridgeETHViaWETH); ok && addr == target {
		metrics.GasPolicySelections.WithLabelValues("bridge_extension").Inc()
		return BridgeExtensionGasLimit
	}
	metrics.GasPolicySelections.WithLabelValues("estimate").Inc()
	return 0
}

// submit runs the balance preflight and the transaction on the chain worker.
func (s *RelayService) submit(ctx context.Context, relay *chainRelay, tx ports.TxRequest) (*ports.TxReceipt, error) {
	var receipt *ports.TxReceipt
	err := relay.queue.Submit(ctx, func(ctx context.Context) error {
		if tx.Value != nil && tx.Value.Sign() > 0 {
			if err := preflight(ctx, relay.chain, tx.Value); err != nil {
				return err
			}
		}
		r, err := relay.chain.Transact(ctx, tx)
		if err != nil {
			return err
		}
		receipt = r
		return nil
	})
	if err != nil {
		if core.KindOf(err) != core.KindUnknown {
			return nil, err
		}
		return nil, core.ExecutionError("Execution relay failed", err)
	}
	return receipt, nil
}

// preflight checks that the relay account holds value plus a worst-case gas
// budget.
func preflight(ctx context.Context, chain ports.Chain, value *big.Int) error {
	balance, err := chain.BalanceAt(ctx, chain.RelayAddress())
	if err != nil {
		return core.ExecutionError("Failed to read relayer balance", err)
	}
	gasPrice, err := chain.SuggestGasPrice(ctx)
	if err != nil {
		return core.ExecutionError("Failed to read gas price", err)
	}

	gas := new(big.Int).Mul(big.NewInt(PreflightGasUnits), gasPrice)
	need := new(big.Int).Add(value, gas)
	if balance.Cmp(need) >= 0 {
		return nil
	}

	return &core.Error{
		Kind: core.KindExecution,
		Msg: fmt.Sprintf("Insufficient relayer balance. Need %s ETH (%s bridge + %s gas), have %s ETH",
			action.FormatEther(need), action.FormatEther(value), action.FormatEther(gas), action.FormatEther(balance)),
		Shortfall: &core.Shortfall{
			Need:  need,
			Have:  balance,
			Value: new(big.Int).Set(value),
			Gas:   gas,
		},
	}
}

// ExecutePayment submits a payer-signed payment authorization to the
// payment terminal.
func (s *RelayService) ExecutePayment(ctx context.Context, req PaymentRequest) (*TxResult, error) {
	auth, signature, err := parsePaymentRequest(req)
	if err != nil {
		return nil, err
	}

	deployment, err := s.deployment(req.ChainID)
	if err != nil {
		return nil, err
	}
	terminal, ok := config.Address(deployment.Contracts.PaymentTerminal)
	if !ok {
		return nil, core.ValidationError("Payment terminal not deployed on this network")
	}

	relay, err := s.relay(ctx, req.ChainID, deployment)
	if err != nil {
		return nil, err
	}

	data, err := contracts.PackExecutePayment(auth, signature)
	if err != nil {
		return nil, fmt.Errorf("failed to pack executePayment: %w", err)
	}

	receipt, err := s.submit(ctx, relay, ports.TxRequest{To: terminal, Data: data, Value: new(big.Int)})
	if err != nil {
		metrics.RelayExecutions.WithLabelValues("payment", "error").Inc()
		s.logger.Error("payment execution failed",
			zap.Uint64("chainId", req.ChainID),
			zap.String("payer", auth.Payer.Hex()),
			zap.Error(err),
		)
		return nil, err
	}
	metrics.RelayExecutions.WithLabelValues("payment", "success").Inc()

	s.logger.Info("payment executed",
		zap.Uint64("chainId", req.ChainID),
		zap.String("payer", auth.Payer.Hex()),
		zap.String("payee", auth.Payee.Hex()),
		zap.String("txHash", receipt.TxHash.Hex()),
	)

	return &TxResult{
		Success:         true,
		TransactionHash: receipt.TxHash.Hex(),
		BlockNumber:     strconv.FormatUint(receipt.BlockNumber, 10),
	}, nil
}

func (s *RelayService) deployment(chainID uint64) (config.Deployment, error) {
	deployment, ok := s.cfg.Deployments[chainID]
	if !ok || deployment.RPCURL == "" {
		return config.Deployment{}, core.ValidationError("Unsupported chain")
	}
	return deployment, nil
}

// relay returns the cached chainRelay for chainID, dialing it on first use.
// The relay key is only read here, after the chain has been accepted.
func (s *RelayService) relay(ctx context.Context, chainID uint64, deployment config.Deployment) (*chainRelay, error) {
	key, err := eth.NormalizePrivateKey(s.cfg.RelayerKey)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.relays[chainID]; ok {
		return r, nil
	}

	chain, err := s.dial(ctx, chainID, deployment.RPCURL, key)
	if err != nil {
		if core.KindOf(err) != core.KindUnknown {
			return nil, err
		}
		return nil, core.ExecutionError("Failed to connect to chain", err)
	}

	r := &chainRelay{
		chain: chain,
		queue: NewSubmitQueue(chainID, s.cfg.QueueDepth),
	}
	s.relays[chainID] = r

	s.logger.Info("chain relay ready",
		zap.Uint64("chainId", chainID),
		zap.String("relayer", chain.RelayAddress().Hex()),
	)
	return r, nil
}

// Close stops every chain worker and closes its client
func (s *RelayService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, r := range s.relays {
		r.queue.Close()
		r.chain.Close()
		delete(s.relays, id)
	}
}

func parseTapRequest(req TapRequest) (*tapArgs, error) {
	if req.Owner == "" || req.Chip == "" || req.ChipSignature == "" ||
		req.Timestamp == "" || req.Nonce == "" || req.ChainID == 0 {
		return nil, core.ValidationError("Missing required parameters")
	}

	owner, err := eth.ParseAddress(req.Owner)
	if err != nil {
		return nil, core.ValidationError("Invalid owner address")
	}
	chip, err := eth.ParseAddress(req.Chip)
	if err != nil {
		return nil, core.ValidationError("Invalid chip address")
	}
	signature, err := eth.ParseSignature(req.ChipSignature)
	if err != nil {
		return nil, core.ValidationError("Invalid chip signature")
	}
	timestamp, err := parseUint(req.Timestamp, 64)
	if err != nil {
		return nil, core.ValidationError("Invalid timestamp")
	}
	nonce, err := eth.ParseNonce(req.Nonce)
	if err != nil {
		return nil, core.ValidationError("Invalid nonce")
	}

	args := &tapArgs{
		owner:     owner,
		chip:      chip,
		signature: signature,
		timestamp: timestamp,
		nonce:     nonce,
	}
	if req.Value != "" {
		value, err := parseUint(req.Value, 256)
		if err != nil {
			return nil, core.ValidationError("Invalid value")
		}
		args.value = value
	}
	return args, nil
}

func parsePaymentRequest(req PaymentRequest) (core.PaymentAuthorization, []byte, error) {
	var auth core.PaymentAuthorization

	if req.Payer == "" || req.PayerChip == "" || req.Payee == "" || req.PayeeChip == "" ||
		req.Token == "" || req.Amount == "" || req.Timestamp == "" || req.Nonce == "" ||
		req.PayerSignature == "" || req.ChainID == 0 {
		return auth, nil, core.ValidationError("Missing required parameters")
	}

	addresses := []struct {
		name string
		raw  string
		dst  *common.Address
	}{
		{"payer", req.Payer, &auth.Payer},
		{"payerChip", req.PayerChip, &auth.PayerChip},
		{"payee", req.Payee, &auth.Payee},
		{"payeeChip", req.PayeeChip, &auth.PayeeChip},
		{"token", req.Token, &auth.Token},
	}
	for _, a := range addresses {
		addr, err := eth.ParseAddress(a.raw)
		if err != nil {
			return auth, nil, core.ValidationError("Invalid %s address", a.name)
		}
		*a.dst = addr
	}

	amount, err := parseUint(req.Amount, 256)
	if err != nil {
		return auth, nil, core.ValidationError("Invalid amount")
	}
	timestamp, err := parseUint(req.Timestamp, 256)
	if err != nil {
		return auth, nil, core.ValidationError("Invalid timestamp")
	}
	nonce, err := eth.ParseNonce(req.Nonce)
	if err != nil {
		return auth, nil, core.ValidationError("Invalid nonce")
	}
	signature, err := eth.ParseSignature(req.PayerSignature)
	if err != nil {
		return auth, nil, core.ValidationError("Invalid payer signature")
	}

	auth.Amount = amount
	auth.Timestamp = timestamp
	auth.Nonce = nonce
	return auth, signature, nil
}

// parseUint accepts a decimal or 0x-prefixed unsigned integer of at most bits.
func parseUint(s string, bits int) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 0)
	if !ok || v.Sign() < 0 || v.BitLen() > bits {
		return nil, fmt.Errorf("invalid unsigned integer %q", s)
	}
	return v, nil
}
