package soroban

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/stellar/go/xdr"

	"github.com/SafeVault/wallet-service/internal/vault/vaulterr"
)

// RPCClient Soroban RPC 客户端
type RPCClient struct {
	endpoint string
	client   *http.Client
}

// NewRPCClient 创建 Soroban RPC 客户端
func NewRPCClient(endpoint string) *RPCClient {
	return &RPCClient{
		endpoint: endpoint,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// RPCRequest RPC 请求
type RPCRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
	ID      int         `json:"id"`
}

// RPCResponse RPC 响应
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
	ID      int             `json:"id"`
}

// RPCError RPC 错误
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

// call 执行 RPC 调用
func (c *RPCClient) call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	req := &RPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      1,
	}

	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal RPC request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create HTTP request")
	}

	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, vaulterr.Wrap(err, vaulterr.KindNetwork, "failed to execute HTTP request to %s", method)
	}
	defer resp.Body.Close()

	var rpcResp RPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, vaulterr.Wrap(err, vaulterr.KindProtocolParse, "failed to decode RPC response for %s", method)
	}

	if rpcResp.Error != nil {
		return nil, vaulterr.New(vaulterr.KindNetwork, "RPC error from %s: %s (code: %d)", method, rpcResp.Error.Message, rpcResp.Error.Code)
	}

	return rpcResp.Result, nil
}

// RawCall 裸调用：绕过本客户端的结构化响应类型，直接返回原始 JSON
// 当结构化解析因版本不兼容失败时，提交管道会用它手工构造请求
func (c *RPCClient) RawCall(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	return c.call(ctx, method, params)
}

// GetHealth 健康检查
func (c *RPCClient) GetHealth(ctx context.Context) error {
	result, err := c.call(ctx, "getHealth", nil)
	if err != nil {
		return errors.Wrap(err, "failed to call getHealth")
	}

	var health struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(result, &health); err != nil {
		return vaulterr.Wrap(err, vaulterr.KindProtocolParse, "failed to unmarshal health status")
	}
	if health.Status != "healthy" {
		return fmt.Errorf("RPC node unhealthy: %s", health.Status)
	}
	return nil
}

// GetLatestLedger 获取最新账本
func (c *RPCClient) GetLatestLedger(ctx context.Context) (*LatestLedger, error) {
	result, err := c.call(ctx, "getLatestLedger", nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to call getLatestLedger")
	}

	var ledger LatestLedger
	if err := json.Unmarshal(result, &ledger); err != nil {
		return nil, vaulterr.Wrap(err, vaulterr.KindProtocolParse, "failed to unmarshal latest ledger")
	}
	return &ledger, nil
}

// GetAccount 查询账户序列号
// RPC 节点没有独立的 getAccount 方法，通过 getLedgerEntries 读取账户条目实现
func (c *RPCClient) GetAccount(ctx context.Context, accountID string) (*Account, error) {
	var accID xdr.AccountId
	if err := accID.SetAddress(accountID); err != nil {
		return nil, vaulterr.Wrap(err, vaulterr.KindProtocolParse, "invalid account address %s", accountID)
	}

	key := xdr.LedgerKey{
		Type: xdr.LedgerEntryTypeAccount,
		Account: &xdr.LedgerKeyAccount{
			AccountId: accID,
		},
	}
	keyB64, err := xdr.MarshalBase64(key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal account ledger key")
	}

	result, err := c.call(ctx, "getLedgerEntries", map[string]interface{}{
		"keys": []string{keyB64},
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to call getLedgerEntries")
	}

	var entries ledgerEntriesResponse
	if err := json.Unmarshal(result, &entries); err != nil {
		return nil, vaulterr.Wrap(err, vaulterr.KindProtocolParse, "failed to unmarshal ledger entries")
	}
	if len(entries.Entries) == 0 {
		return nil, vaulterr.New(vaulterr.KindNetwork, "account %s not found on ledger", accountID)
	}

	var entryData xdr.LedgerEntryData
	if err := xdr.SafeUnmarshalBase64(entries.Entries[0].XDR, &entryData); err != nil {
		return nil, vaulterr.Wrap(err, vaulterr.KindProtocolParse, "failed to decode account entry XDR")
	}
	accountEntry, ok := entryData.GetAccount()
	if !ok {
		return nil, vaulterr.New(vaulterr.KindProtocolParse, "ledger entry for %s is not an account", accountID)
	}

	return &Account{
		AccountID: accountID,
		Sequence:  int64(accountEntry.SeqNum),
	}, nil
}

// SimulateTransaction 模拟交易，返回资源占用与所需授权条目
func (c *RPCClient) SimulateTransaction(ctx context.Context, txBase64 string) (*SimulateResponse, error) {
	result, err := c.call(ctx, "simulateTransaction", map[string]interface{}{
		"transaction": txBase64,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to call simulateTransaction")
	}

	var sim SimulateResponse
	if err := json.Unmarshal(result, &sim); err != nil {
		return nil, vaulterr.Wrap(err, vaulterr.KindProtocolParse, "failed to unmarshal simulation response")
	}
	return &sim, nil
}

// SendTransaction 提交已签名交易
func (c *RPCClient) SendTransaction(ctx context.Context, txBase64 string) (*SendResponse, error) {
	result, err := c.call(ctx, "sendTransaction", map[string]interface{}{
		"transaction": txBase64,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to call sendTransaction")
	}

	var send SendResponse
	if err := json.Unmarshal(result, &send); err != nil {
		return nil, vaulterr.Wrap(err, vaulterr.KindProtocolParse, "failed to unmarshal send response")
	}
	return &send, nil
}

// GetTransaction 按哈希查询交易终态
func (c *RPCClient) GetTransaction(ctx context.Context, hash string) (*GetTransactionResponse, error) {
	result, err := c.call(ctx, "getTransaction", map[string]interface{}{
		"hash": hash,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to call getTransaction")
	}

	var tx GetTransactionResponse
	if err := json.Unmarshal(result, &tx); err != nil {
		return nil, vaulterr.Wrap(err, vaulterr.KindProtocolParse, "failed to unmarshal transaction response")
	}
	return &tx, nil
}
