package txsubmit

import (
	"testing"

	"github.com/stellar/go/keypair"
	"github.com/stellar/go/txnbuild"
	"github.com/stellar/go/xdr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testContractID = "CDLZFC3SYJYDZT7K67VZ75HPJVIEUVNIXF47ZG2FB2RMQQVU2HHGCYSC"
	testPassphrase = "Test SDF Network ; September 2015"
)

func testBuilder() *Builder {
	return NewBuilder(testContractID, testPassphrase)
}

func TestI128Split(t *testing.T) {
	// 正数：高 64 位为 0
	v := scI128Val(105000000)
	require.Equal(t, xdr.ScValTypeScvI128, v.Type)
	assert.Equal(t, xdr.Int64(0), v.I128.Hi)
	assert.Equal(t, xdr.Uint64(105000000), v.I128.Lo)

	// 负数：高 64 位为 -1，低 64 位为补码
	v = scI128Val(-1)
	assert.Equal(t, xdr.Int64(-1), v.I128.Hi)
	assert.Equal(t, xdr.Uint64(0xffffffffffffffff), v.I128.Lo)

	v = scI128Val(0)
	assert.Equal(t, xdr.Int64(0), v.I128.Hi)
	assert.Equal(t, xdr.Uint64(0), v.I128.Lo)
}

func TestScAddress(t *testing.T) {
	// 合约地址
	addr, err := scAddress(testContractID)
	require.NoError(t, err)
	assert.Equal(t, xdr.ScAddressTypeScAddressTypeContract, addr.Type)
	require.NotNil(t, addr.ContractId)

	// 账户地址
	account := keypair.MustRandom().Address()
	addr, err = scAddress(account)
	require.NoError(t, err)
	assert.Equal(t, xdr.ScAddressTypeScAddressTypeAccount, addr.Type)
	require.NotNil(t, addr.AccountId)
	assert.Equal(t, account, addr.AccountId.Address())

	// 非法地址
	_, err = scAddress("")
	assert.Error(t, err)
	_, err = scAddress("SABCDEF")
	assert.Error(t, err)
	_, err = scAddress("Cnotvalid")
	assert.Error(t, err)
}

// execute_payment 的参数顺序：signer, destination, amount, asset, payload, sig, auth_data, client_data
func TestExecutePaymentArgOrder(t *testing.T) {
	b := testBuilder()
	signer := keypair.MustRandom().Address()
	destination := keypair.MustRandom().Address()

	inv, err := b.ExecutePayment(signer, destination, 105000000, testContractID,
		[]byte("payload"), []byte("sig"), []byte("auth"), []byte("client"))
	require.NoError(t, err)

	assert.Equal(t, "execute_payment", inv.Function)
	require.Len(t, inv.Args, 8)
	assert.Equal(t, xdr.ScValTypeScvAddress, inv.Args[0].Type)
	assert.Equal(t, signer, inv.Args[0].Address.AccountId.Address())
	assert.Equal(t, xdr.ScValTypeScvAddress, inv.Args[1].Type)
	assert.Equal(t, destination, inv.Args[1].Address.AccountId.Address())
	assert.Equal(t, xdr.ScValTypeScvI128, inv.Args[2].Type)
	assert.Equal(t, xdr.Uint64(105000000), inv.Args[2].I128.Lo)
	assert.Equal(t, xdr.ScValTypeScvAddress, inv.Args[3].Type)
	assert.Equal(t, []byte("payload"), []byte(*inv.Args[4].Bytes))
	assert.Equal(t, []byte("sig"), []byte(*inv.Args[5].Bytes))
	assert.Equal(t, []byte("auth"), []byte(*inv.Args[6].Bytes))
	assert.Equal(t, []byte("client"), []byte(*inv.Args[7].Bytes))
}

// deposit 的参数顺序与 execute_payment 不同：asset 在 amount 之前，没有 destination
func TestDepositArgOrder(t *testing.T) {
	b := testBuilder()
	user := keypair.MustRandom().Address()

	inv, err := b.Deposit(user, testContractID, 42,
		[]byte("payload"), []byte("sig"), []byte("auth"), []byte("client"))
	require.NoError(t, err)

	assert.Equal(t, "deposit", inv.Function)
	require.Len(t, inv.Args, 7)
	assert.Equal(t, xdr.ScValTypeScvAddress, inv.Args[0].Type)
	assert.Equal(t, xdr.ScValTypeScvAddress, inv.Args[1].Type)
	assert.Equal(t, xdr.ScAddressTypeScAddressTypeContract, inv.Args[1].Address.Type)
	assert.Equal(t, xdr.ScValTypeScvI128, inv.Args[2].Type)
	assert.Equal(t, xdr.Uint64(42), inv.Args[2].I128.Lo)
	assert.Equal(t, []byte("payload"), []byte(*inv.Args[3].Bytes))
}

func TestRegisterSignerArgs(t *testing.T) {
	b := testBuilder()
	signer := keypair.MustRandom().Address()
	pubkey := make([]byte, 65)
	pubkey[0] = 0x04
	rpIDHash := make([]byte, 32)

	inv, err := b.RegisterSigner(signer, pubkey, rpIDHash)
	require.NoError(t, err)
	assert.Equal(t, "register_signer", inv.Function)
	require.Len(t, inv.Args, 3)
	assert.Len(t, []byte(*inv.Args[1].Bytes), 65)
	assert.Len(t, []byte(*inv.Args[2].Bytes), 32)
}

func TestOperationRendersInvokeContract(t *testing.T) {
	b := testBuilder()
	inv, err := b.IsSignerRegistered(keypair.MustRandom().Address())
	require.NoError(t, err)

	op, err := b.Operation(inv, nil)
	require.NoError(t, err)
	require.NotNil(t, op.HostFunction.InvokeContract)
	assert.Equal(t, xdr.ScSymbol("is_signer_registered"), op.HostFunction.InvokeContract.FunctionName)
	assert.Len(t, op.HostFunction.InvokeContract.Args, 1)
	assert.Empty(t, op.Auth)
}

func TestBuildTransactionFeeAndResources(t *testing.T) {
	b := testBuilder()
	source := &txnbuild.SimpleAccount{AccountID: keypair.MustRandom().Address(), Sequence: 7}

	inv := b.GetWalletInfo()
	op, err := b.Operation(inv, nil)
	require.NoError(t, err)

	// 费用低于基础费时向上取整到基础费
	tx, err := b.BuildTransaction(source, op, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(DefaultBaseFee), tx.BaseFee())
	assert.Equal(t, int64(8), tx.SequenceNumber())

	// 资源数据挂到操作扩展上，总费用 = 基础费 + 资源费
	sorobanData := &xdr.SorobanTransactionData{ResourceFee: 5000}
	source2 := &txnbuild.SimpleAccount{AccountID: source.AccountID, Sequence: 7}
	op2, err := b.Operation(inv, nil)
	require.NoError(t, err)
	tx, err = b.BuildTransaction(source2, op2, sorobanData, int64(DefaultBaseFee)+5000)
	require.NoError(t, err)
	assert.Equal(t, int64(DefaultBaseFee)+5000, tx.BaseFee())
	assert.Equal(t, int32(1), op2.Ext.V)
	require.NotNil(t, op2.Ext.SorobanData)

	// 信封可以被解码回来
	txB64, err := tx.Base64()
	require.NoError(t, err)
	var envelope xdr.TransactionEnvelope
	require.NoError(t, xdr.SafeUnmarshalBase64(txB64, &envelope))
	require.Len(t, envelope.Operations(), 1)
	_, ok := envelope.Operations()[0].Body.GetInvokeHostFunctionOp()
	assert.True(t, ok)
}
