package eth

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/layer-3/tapthat/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testProtocol = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")

func testCallAuthorization(t *testing.T) core.CallAuthorization {
	t.Helper()
	nonce, err := NewNonce()
	require.NoError(t, err)
	return core.CallAuthorization{
		Owner:     common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"),
		Target:    core.BridgeSentinel,
		CallData:  common.FromHex("0xdeadbeef00000000000000000000000000000000000000000000000000000001"),
		Value:     big.NewInt(0),
		Timestamp: big.NewInt(1735689600),
		Nonce:     nonce,
	}
}

func TestRecoverSigner_CallAuthorization(t *testing.T) {
	chip, err := GenerateKeySigner()
	require.NoError(t, err)

	auth := testCallAuthorization(t)
	td := CallAuthorizationTypedData(ProtocolDomain(testProtocol), auth)

	addr, sig, err := chip.SignTypedData(context.Background(), td)
	require.NoError(t, err)
	require.Equal(t, chip.Address(), addr)
	require.Len(t, sig, 65)

	recovered, err := RecoverSigner(CallAuthorizationTypedData(ProtocolDomain(testProtocol), auth), sig)
	require.NoError(t, err)
	assert.Equal(t, chip.Address(), recovered)

	// v in {0,1} is accepted as well as {27,28}
	raw := append([]byte(nil), sig...)
	raw[64] -= 27
	recovered, err = RecoverSigner(td, raw)
	require.NoError(t, err)
	assert.Equal(t, chip.Address(), recovered)
}

func TestRecoverSigner_TamperedFields(t *testing.T) {
	chip, err := GenerateKeySigner()
	require.NoError(t, err)

	auth := testCallAuthorization(t)
	_, sig, err := chip.SignTypedData(context.Background(), CallAuthorizationTypedData(ProtocolDomain(testProtocol), auth))
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(a *core.CallAuthorization)
	}{
		{"target", func(a *core.CallAuthorization) { a.Target = common.HexToAddress("0x0000000000000000000000000000000000000002") }},
		{"owner", func(a *core.CallAuthorization) { a.Owner = common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC") }},
		{"value", func(a *core.CallAuthorization) { a.Value = big.NewInt(1) }},
		{"timestamp", func(a *core.CallAuthorization) { a.Timestamp = big.NewInt(1735689601) }},
		{"nonce", func(a *core.CallAuthorization) { a.Nonce[0] ^= 0xff }},
		{"callData", func(a *core.CallAuthorization) { a.CallData = common.FromHex("0xdeadbeef") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mutated := auth
			mutated.CallData = append([]byte(nil), auth.CallData...)
			tt.mutate(&mutated)

			recovered, err := RecoverSigner(CallAuthorizationTypedData(ProtocolDomain(testProtocol), mutated), sig)
			if err == nil {
				assert.NotEqual(t, chip.Address(), recovered)
			}
		})
	}

	t.Run("domain", func(t *testing.T) {
		other := common.HexToAddress("0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512")
		recovered, err := RecoverSigner(CallAuthorizationTypedData(ProtocolDomain(other), auth), sig)
		if err == nil {
			assert.NotEqual(t, chip.Address(), recovered)
		}
	})
}

func TestRecoverSigner_MalformedSignature(t *testing.T) {
	td := CallAuthorizationTypedData(ProtocolDomain(testProtocol), testCallAuthorization(t))

	_, err := RecoverSigner(td, []byte{0x01, 0x02})
	assert.ErrorIs(t, err, core.ErrInvalidSignature)

	bad := make([]byte, 65)
	bad[64] = 30
	_, err = RecoverSigner(td, bad)
	assert.ErrorIs(t, err, core.ErrInvalidSignature)

	_, err = RecoverSignerHex(td, "0xzz")
	assert.ErrorIs(t, err, core.ErrInvalidSignature)
}

func TestRecoverSigner_PaymentAndRegistration(t *testing.T) {
	ctx := context.Background()
	chip, err := GenerateKeySigner()
	require.NoError(t, err)

	nonce, err := NewNonce()
	require.NoError(t, err)
	payment := core.PaymentAuthorization{
		Payer:     common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"),
		PayerChip: chip.Address(),
		Payee:     common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC"),
		PayeeChip: common.HexToAddress("0x90F79bf6EB2c4f870365E785982E1f101E93b906"),
		Token:     common.HexToAddress("0x036CbD53842c5426634e7929541eC2318f3dCF7e"),
		Amount:    big.NewInt(1_000_000),
		Timestamp: big.NewInt(1735689600),
		Nonce:     nonce,
	}
	td := PaymentAuthorizationTypedData(PaymentTerminalDomain(testProtocol), payment)
	_, sig, err := chip.SignTypedData(ctx, td)
	require.NoError(t, err)
	recovered, err := RecoverSigner(td, sig)
	require.NoError(t, err)
	assert.Equal(t, chip.Address(), recovered)

	reg := core.ChipRegistration{Owner: payment.Payer, ChipAddress: chip.Address()}
	regTD := ChipRegistrationTypedData(RegistryDomain(testProtocol), reg)
	_, sig, err = chip.SignTypedData(ctx, regTD)
	require.NoError(t, err)
	recovered, err = RecoverSigner(regTD, sig)
	require.NoError(t, err)
	assert.Equal(t, chip.Address(), recovered)

	// same message under a different domain name must not verify
	recovered, err = RecoverSigner(ChipRegistrationTypedData(ProtocolDomain(testProtocol), reg), sig)
	if err == nil {
		assert.NotEqual(t, chip.Address(), recovered)
	}
}
