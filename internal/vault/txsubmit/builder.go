package txsubmit

import (
	"github.com/pkg/errors"
	"github.com/stellar/go/strkey"
	"github.com/stellar/go/txnbuild"
	"github.com/stellar/go/xdr"
)

// DefaultBaseFee 信封基础费用（stroops）
const DefaultBaseFee = txnbuild.MinBaseFee

// DefaultTimeout 交易时间界限（秒）
const DefaultTimeout = 300

// Invocation 一次合约调用的函数描述符：函数名加参数列表
// 它是唯一的中间表示，所有路径（prepare、手工拼接、裸协议）都从它渲染线格式
type Invocation struct {
	Function string
	Args     []xdr.ScVal
}

// Builder 构造 vault 合约调用
type Builder struct {
	contractID        string
	networkPassphrase string
	baseFee           int64
}

// NewBuilder 创建交易构造器
func NewBuilder(contractID string, networkPassphrase string) *Builder {
	return &Builder{
		contractID:        contractID,
		networkPassphrase: networkPassphrase,
		baseFee:           DefaultBaseFee,
	}
}

// ContractID 返回 vault 合约地址
func (b *Builder) ContractID() string {
	return b.contractID
}

// NetworkPassphrase 返回网络口令
func (b *Builder) NetworkPassphrase() string {
	return b.networkPassphrase
}

// RegisterSigner register_signer(signer_address, passkey_pubkey, rp_id_hash)
func (b *Builder) RegisterSigner(signer string, passkeyPubkey []byte, rpIDHash []byte) (Invocation, error) {
	signerVal, err := scAddressVal(signer)
	if err != nil {
		return Invocation{}, err
	}
	return Invocation{
		Function: "register_signer",
		Args:     []xdr.ScVal{signerVal, scBytesVal(passkeyPubkey), scBytesVal(rpIDHash)},
	}, nil
}

// IsSignerRegistered is_signer_registered(signer_address)
func (b *Builder) IsSignerRegistered(signer string) (Invocation, error) {
	signerVal, err := scAddressVal(signer)
	if err != nil {
		return Invocation{}, err
	}
	return Invocation{Function: "is_signer_registered", Args: []xdr.ScVal{signerVal}}, nil
}

// GetPasskeyPubkey get_passkey_pubkey(signer_address)
func (b *Builder) GetPasskeyPubkey(signer string) (Invocation, error) {
	signerVal, err := scAddressVal(signer)
	if err != nil {
		return Invocation{}, err
	}
	return Invocation{Function: "get_passkey_pubkey", Args: []xdr.ScVal{signerVal}}, nil
}

// GetBalance get_balance(user_address, asset)
func (b *Builder) GetBalance(user string, asset string) (Invocation, error) {
	userVal, err := scAddressVal(user)
	if err != nil {
		return Invocation{}, err
	}
	assetVal, err := scAddressVal(asset)
	if err != nil {
		return Invocation{}, err
	}
	return Invocation{Function: "get_balance", Args: []xdr.ScVal{userVal, assetVal}}, nil
}

// GetVerifierAddress get_verifier_address()
func (b *Builder) GetVerifierAddress() Invocation {
	return Invocation{Function: "get_verifier_address"}
}

// GetWalletInfo get_wallet_info()
func (b *Builder) GetWalletInfo() Invocation {
	return Invocation{Function: "get_wallet_info"}
}

// ExecutePayment execute_payment(signer, destination, amount, asset, payload, sig, auth_data, client_data)
// WebAuthn 三元组按独立参数传递，不打包复合结构
func (b *Builder) ExecutePayment(signer, destination string, amountStroops int64, asset string, payload, signature, authData, clientData []byte) (Invocation, error) {
	signerVal, err := scAddressVal(signer)
	if err != nil {
		return Invocation{}, err
	}
	destVal, err := scAddressVal(destination)
	if err != nil {
		return Invocation{}, err
	}
	assetVal, err := scAddressVal(asset)
	if err != nil {
		return Invocation{}, err
	}
	return Invocation{
		Function: "execute_payment",
		Args: []xdr.ScVal{
			signerVal,
			destVal,
			scI128Val(amountStroops),
			assetVal,
			scBytesVal(payload),
			scBytesVal(signature),
			scBytesVal(authData),
			scBytesVal(clientData),
		},
	}, nil
}

// Deposit deposit(user, asset, amount, payload, sig, auth_data, client_data)
// 注意参数顺序与 execute_payment 不同：asset 在 amount 之前，且没有 destination
func (b *Builder) Deposit(user string, asset string, amountStroops int64, payload, signature, authData, clientData []byte) (Invocation, error) {
	userVal, err := scAddressVal(user)
	if err != nil {
		return Invocation{}, err
	}
	assetVal, err := scAddressVal(asset)
	if err != nil {
		return Invocation{}, err
	}
	return Invocation{
		Function: "deposit",
		Args: []xdr.ScVal{
			userVal,
			assetVal,
			scI128Val(amountStroops),
			scBytesVal(payload),
			scBytesVal(signature),
			scBytesVal(authData),
			scBytesVal(clientData),
		},
	}, nil
}

// Operation 将函数描述符渲染为 InvokeHostFunction 操作
func (b *Builder) Operation(inv Invocation, auth []xdr.SorobanAuthorizationEntry) (*txnbuild.InvokeHostFunction, error) {
	contractAddr, err := scAddress(b.contractID)
	if err != nil {
		return nil, err
	}
	return &txnbuild.InvokeHostFunction{
		HostFunction: xdr.HostFunction{
			Type: xdr.HostFunctionTypeHostFunctionTypeInvokeContract,
			InvokeContract: &xdr.InvokeContractArgs{
				ContractAddress: contractAddr,
				FunctionName:    xdr.ScSymbol(inv.Function),
				Args:            inv.Args,
			},
		},
		Auth: auth,
	}, nil
}

// BuildTransaction 组装未签名交易
// sorobanData 非空时附加资源数据，fee 为总费用（基础费 + 资源费）
func (b *Builder) BuildTransaction(source *txnbuild.SimpleAccount, op *txnbuild.InvokeHostFunction, sorobanData *xdr.SorobanTransactionData, fee int64) (*txnbuild.Transaction, error) {
	if sorobanData != nil {
		op.Ext = xdr.TransactionExt{
			V:           1,
			SorobanData: sorobanData,
		}
	}
	if fee < b.baseFee {
		fee = b.baseFee
	}

	tx, err := txnbuild.NewTransaction(txnbuild.TransactionParams{
		SourceAccount:        source,
		IncrementSequenceNum: true,
		Operations:           []txnbuild.Operation{op},
		BaseFee:              fee,
		Preconditions: txnbuild.Preconditions{
			TimeBounds: txnbuild.NewTimeout(DefaultTimeout),
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to build transaction")
	}
	return tx, nil
}

// scAddress 将 strkey 地址（C... 合约 / G... 账户）解析为 ScAddress
func scAddress(addr string) (xdr.ScAddress, error) {
	if len(addr) == 0 {
		return xdr.ScAddress{}, errors.New("address is empty")
	}
	switch addr[0] {
	case 'C':
		raw, err := strkey.Decode(strkey.VersionByteContract, addr)
		if err != nil {
			return xdr.ScAddress{}, errors.Wrapf(err, "invalid contract address %s", addr)
		}
		var contractID xdr.ContractId
		copy(contractID[:], raw)
		return xdr.ScAddress{
			Type:       xdr.ScAddressTypeScAddressTypeContract,
			ContractId: &contractID,
		}, nil
	case 'G':
		var accountID xdr.AccountId
		if err := accountID.SetAddress(addr); err != nil {
			return xdr.ScAddress{}, errors.Wrapf(err, "invalid account address %s", addr)
		}
		return xdr.ScAddress{
			Type:      xdr.ScAddressTypeScAddressTypeAccount,
			AccountId: &accountID,
		}, nil
	default:
		return xdr.ScAddress{}, errors.Errorf("unsupported address format: %s", addr)
	}
}

func scAddressVal(addr string) (xdr.ScVal, error) {
	scAddr, err := scAddress(addr)
	if err != nil {
		return xdr.ScVal{}, err
	}
	return xdr.ScVal{Type: xdr.ScValTypeScvAddress, Address: &scAddr}, nil
}

func scBytesVal(b []byte) xdr.ScVal {
	bytes := xdr.ScBytes(b)
	return xdr.ScVal{Type: xdr.ScValTypeScvBytes, Bytes: &bytes}
}

// scI128Val 把 int64 数量拆成 i128 的高低 64 位两半
func scI128Val(v int64) xdr.ScVal {
	hi := int64(0)
	if v < 0 {
		hi = -1
	}
	return xdr.ScVal{
		Type: xdr.ScValTypeScvI128,
		I128: &xdr.Int128Parts{
			Hi: xdr.Int64(hi),
			Lo: xdr.Uint64(uint64(v)),
		},
	}
}
