package registry

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"testing"
	"time"

	"github.com/stellar/go/keypair"
	"github.com/stellar/go/strkey"
	"github.com/stellar/go/xdr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SafeVault/wallet-service/internal/types"
	"github.com/SafeVault/wallet-service/internal/vault/challenge"
	"github.com/SafeVault/wallet-service/internal/vault/txsubmit"
	"github.com/SafeVault/wallet-service/internal/vault/vaulterr"
)

const (
	testContractID = "CDLZFC3SYJYDZT7K67VZ75HPJVIEUVNIXF47ZG2FB2RMQQVU2HHGCYSC"
	testPassphrase = "Test SDF Network ; September 2015"
)

// MockPipeline 模拟提交管道
type MockPipeline struct {
	// storedKey 链上存储的公钥；nil 表示未注册
	storedKey []byte
	// registered is_signer_registered 的返回值
	registered bool
	// readErr 所有只读调用返回的错误
	readErr error

	outcome   *types.SubmissionOutcome
	submitErr error
	submitted []txsubmit.Invocation
	// postSubmitStoredKey 提交成功后读回的公钥（模拟落账生效）
	postSubmitStoredKey []byte
}

func (m *MockPipeline) Submit(ctx context.Context, inv txsubmit.Invocation, expectedAuthCount int) (*types.SubmissionOutcome, error) {
	m.submitted = append(m.submitted, inv)
	if m.submitErr != nil {
		return nil, m.submitErr
	}
	if m.postSubmitStoredKey != nil {
		m.storedKey = m.postSubmitStoredKey
	}
	if m.outcome != nil {
		return m.outcome, nil
	}
	return &types.SubmissionOutcome{Status: types.SubmissionStatusSuccess, TxHash: "deadbeef"}, nil
}

func (m *MockPipeline) SimulateRead(ctx context.Context, inv txsubmit.Invocation) (xdr.ScVal, error) {
	if m.readErr != nil {
		return xdr.ScVal{}, m.readErr
	}
	switch inv.Function {
	case "is_signer_registered":
		v := m.registered
		return xdr.ScVal{Type: xdr.ScValTypeScvBool, B: &v}, nil
	case "get_passkey_pubkey":
		if m.storedKey == nil {
			return xdr.ScVal{Type: xdr.ScValTypeScvVoid}, nil
		}
		b := xdr.ScBytes(m.storedKey)
		return xdr.ScVal{Type: xdr.ScValTypeScvBytes, Bytes: &b}, nil
	case "get_verifier_address":
		raw, err := strkey.Decode(strkey.VersionByteContract, testContractID)
		if err != nil {
			return xdr.ScVal{}, err
		}
		var hash xdr.ContractId
		copy(hash[:], raw)
		addr := xdr.ScAddress{Type: xdr.ScAddressTypeScAddressTypeContract, ContractId: &hash}
		return xdr.ScVal{Type: xdr.ScValTypeScvAddress, Address: &addr}, nil
	case "get_wallet_info":
		name := xdr.ScString("passkey-vault")
		version := xdr.ScString("1.0.0")
		vec := xdr.ScVec{
			{Type: xdr.ScValTypeScvString, Str: &name},
			{Type: xdr.ScValTypeScvString, Str: &version},
		}
		pv := &vec
		return xdr.ScVal{Type: xdr.ScValTypeScvVec, Vec: &pv}, nil
	}
	return xdr.ScVal{}, nil
}

// testKey 生成一把 P-256 钥匙，返回 SPKI 包装和 65 字节未压缩点
func testKey(t *testing.T) (wrapped []byte, point []byte) {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	wrapped, err = x509.MarshalPKIXPublicKey(&priv.PublicKey)
	require.NoError(t, err)
	point = elliptic.Marshal(elliptic.P256(), priv.PublicKey.X, priv.PublicKey.Y)
	require.Len(t, point, 65)
	return wrapped, point
}

func testClient(pipeline Pipeline) *Client {
	b := txsubmit.NewBuilder(testContractID, testPassphrase)
	return NewClient(pipeline, b, nil)
}

func registerRequest(t *testing.T, wrapped []byte) *types.RegisterSignerRequest {
	t.Helper()
	return &types.RegisterSignerRequest{
		Signer:           keypair.MustRandom().Address(),
		WrappedPublicKey: wrapped,
		RelyingPartyID:   "vault.example.com",
	}
}

func TestStatusRegistered(t *testing.T) {
	c := testClient(&MockPipeline{registered: true})
	state, err := c.Status(context.Background(), keypair.MustRandom().Address())
	require.NoError(t, err)
	assert.Equal(t, types.RegistrationStateRegistered, state)
}

func TestStatusUnregistered(t *testing.T) {
	c := testClient(&MockPipeline{registered: false})
	state, err := c.Status(context.Background(), keypair.MustRandom().Address())
	require.NoError(t, err)
	assert.Equal(t, types.RegistrationStateUnregistered, state)
}

func TestEnsureFreshRegistration(t *testing.T) {
	wrapped, point := testKey(t)
	pipeline := &MockPipeline{postSubmitStoredKey: point}
	c := testClient(pipeline)

	result, err := c.Ensure(context.Background(), registerRequest(t, wrapped))
	require.NoError(t, err)
	assert.Equal(t, types.RegistrationStateConfirmed, result.State)
	assert.Equal(t, "deadbeef", result.TxHash)
	assert.False(t, result.Rotated)

	require.Len(t, pipeline.submitted, 1)
	inv := pipeline.submitted[0]
	assert.Equal(t, "register_signer", inv.Function)
	require.Len(t, inv.Args, 3)
	// Codec 已经把 SPKI 外壳剥掉，链上只存 65 字节点
	assert.Equal(t, point, []byte(*inv.Args[1].Bytes))
	// RP ID 在服务端求哈希
	expectedHash := sha256.Sum256([]byte("vault.example.com"))
	assert.Equal(t, expectedHash[:], []byte(*inv.Args[2].Bytes))
}

// 同一把钥匙重复注册：短路确认，绝不重复上链
func TestEnsureIdempotent(t *testing.T) {
	wrapped, point := testKey(t)
	pipeline := &MockPipeline{storedKey: point}
	c := testClient(pipeline)

	result, err := c.Ensure(context.Background(), registerRequest(t, wrapped))
	require.NoError(t, err)
	assert.Equal(t, types.RegistrationStateConfirmed, result.State)
	assert.Empty(t, result.TxHash)
	assert.Empty(t, pipeline.submitted, "identical key must not be re-registered")
}

// 存量公钥不一致且未显式允许轮换：拒绝覆盖
func TestEnsureRejectsImplicitRotation(t *testing.T) {
	wrapped, _ := testKey(t)
	_, otherPoint := testKey(t)
	pipeline := &MockPipeline{storedKey: otherPoint}
	c := testClient(pipeline)

	_, err := c.Ensure(context.Background(), registerRequest(t, wrapped))
	require.Error(t, err)
	assert.True(t, vaulterr.IsKind(err, vaulterr.KindRegistrationUnconfirmed))
	assert.Empty(t, pipeline.submitted)
}

func TestEnsureExplicitRotation(t *testing.T) {
	wrapped, point := testKey(t)
	_, otherPoint := testKey(t)
	pipeline := &MockPipeline{storedKey: otherPoint, postSubmitStoredKey: point}
	c := testClient(pipeline)

	req := registerRequest(t, wrapped)
	req.AllowRotation = true
	result, err := c.Ensure(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, types.RegistrationStateConfirmed, result.State)
	assert.True(t, result.Rotated)
	require.Len(t, pipeline.submitted, 1)
}

// 落账成功不等于注册成功：读回的公钥不一致时按未确认处理
func TestEnsureReadBackMismatch(t *testing.T) {
	wrapped, _ := testKey(t)
	_, otherPoint := testKey(t)
	pipeline := &MockPipeline{postSubmitStoredKey: otherPoint}
	c := testClient(pipeline)

	_, err := c.Ensure(context.Background(), registerRequest(t, wrapped))
	require.Error(t, err)
	assert.True(t, vaulterr.IsKind(err, vaulterr.KindRegistrationUnconfirmed))
}

// 轮询耗尽：注册可能已落账，返回 registering 而不是失败
func TestEnsurePendingOutcome(t *testing.T) {
	wrapped, _ := testKey(t)
	pipeline := &MockPipeline{
		outcome: &types.SubmissionOutcome{Status: types.SubmissionStatusPending, TxHash: "cafe"},
	}
	c := testClient(pipeline)

	result, err := c.Ensure(context.Background(), registerRequest(t, wrapped))
	require.NoError(t, err)
	assert.Equal(t, types.RegistrationStateRegistering, result.State)
	assert.Equal(t, "cafe", result.TxHash)
}

func TestEnsureBadRPIDHash(t *testing.T) {
	wrapped, _ := testKey(t)
	c := testClient(&MockPipeline{})

	req := registerRequest(t, wrapped)
	req.RelyingPartyID = ""
	req.RelyingPartyIDHash = []byte("short")
	_, err := c.Ensure(context.Background(), req)
	require.Error(t, err)
	assert.True(t, vaulterr.IsKind(err, vaulterr.KindKeyFormat))

	req.RelyingPartyIDHash = nil
	_, err = c.Ensure(context.Background(), req)
	require.Error(t, err)
	assert.True(t, vaulterr.IsKind(err, vaulterr.KindKeyFormat))
}

// 确认状态缓存后不再重复看链
func TestStatusUsesCache(t *testing.T) {
	wrapped, point := testKey(t)
	store := challenge.NewMemoryStore(time.Minute)
	defer store.Close()

	pipeline := &MockPipeline{postSubmitStoredKey: point}
	b := txsubmit.NewBuilder(testContractID, testPassphrase)
	c := NewClient(pipeline, b, store)

	req := registerRequest(t, wrapped)
	_, err := c.Ensure(context.Background(), req)
	require.NoError(t, err)

	// 缓存命中时即便链上读挂了也能回答
	pipeline.readErr = vaulterr.New(vaulterr.KindNetwork, "rpc down")
	pipeline.storedKey = nil
	state, err := c.Status(context.Background(), req.Signer)
	require.NoError(t, err)
	assert.Equal(t, types.RegistrationStateRegistered, state)
}

func TestVerifierAddressAndWalletInfo(t *testing.T) {
	c := testClient(&MockPipeline{})

	addr, err := c.VerifierAddress(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testContractID, addr)

	info, err := c.WalletInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"passkey-vault", "1.0.0"}, info)
}

func TestVerifierAddressReadError(t *testing.T) {
	c := testClient(&MockPipeline{readErr: vaulterr.New(vaulterr.KindNetwork, "rpc down")})

	_, err := c.VerifierAddress(context.Background())
	require.Error(t, err)
	assert.True(t, vaulterr.IsKind(err, vaulterr.KindNetwork))
}
