package soroban

// 交易终态状态字符串（getTransaction / sendTransaction 返回）
const (
	StatusPending   = "PENDING"
	StatusNotFound  = "NOT_FOUND"
	StatusSuccess   = "SUCCESS"
	StatusFailed    = "FAILED"
	StatusError     = "ERROR"
	StatusTryAgain  = "TRY_AGAIN_LATER"
	StatusDuplicate = "DUPLICATE"
)

// LatestLedger getLatestLedger 响应
type LatestLedger struct {
	ID              string `json:"id"`
	ProtocolVersion int    `json:"protocolVersion"`
	Sequence        uint32 `json:"sequence"`
}

// Account 账户信息（由 getLedgerEntries 解码而来）
type Account struct {
	AccountID string
	Sequence  int64
}

// SimulateHostFunctionResult simulateTransaction 单个调用结果
type SimulateHostFunctionResult struct {
	// Auth 该调用需要的授权条目（base64 XDR SorobanAuthorizationEntry）
	Auth []string `json:"auth"`
	// XDR 返回值（base64 XDR ScVal）
	XDR string `json:"xdr"`
}

// SimulateResponse simulateTransaction 响应
type SimulateResponse struct {
	Error           string                       `json:"error,omitempty"`
	TransactionData string                       `json:"transactionData"`
	MinResourceFee  string                       `json:"minResourceFee"`
	Events          []string                     `json:"events"`
	Results         []SimulateHostFunctionResult `json:"results"`
	LatestLedger    uint32                       `json:"latestLedger"`
	RestorePreamble *RestorePreamble             `json:"restorePreamble,omitempty"`
}

// RestorePreamble 归档条目恢复信息（仅透传，不在本核心内自动恢复）
type RestorePreamble struct {
	TransactionData string `json:"transactionData"`
	MinResourceFee  string `json:"minResourceFee"`
}

// SendResponse sendTransaction 响应
type SendResponse struct {
	Status              string   `json:"status"`
	Hash                string   `json:"hash"`
	LatestLedger        uint32   `json:"latestLedger"`
	ErrorResultXDR      string   `json:"errorResultXdr,omitempty"`
	DiagnosticEventsXDR []string `json:"diagnosticEventsXdr,omitempty"`
}

// GetTransactionResponse getTransaction 响应
type GetTransactionResponse struct {
	Status              string   `json:"status"`
	LatestLedger        uint32   `json:"latestLedger"`
	Ledger              uint32   `json:"ledger,omitempty"`
	CreatedAt           string   `json:"createdAt,omitempty"`
	ApplicationOrder    int32    `json:"applicationOrder,omitempty"`
	EnvelopeXDR         string   `json:"envelopeXdr,omitempty"`
	ResultXDR           string   `json:"resultXdr,omitempty"`
	ResultMetaXDR       string   `json:"resultMetaXdr,omitempty"`
	DiagnosticEventsXDR []string `json:"diagnosticEventsXdr,omitempty"`
}

// ledgerEntriesResponse getLedgerEntries 响应
type ledgerEntriesResponse struct {
	Entries []struct {
		Key                string `json:"key"`
		XDR                string `json:"xdr"`
		LastModifiedLedger uint32 `json:"lastModifiedLedgerSeq"`
	} `json:"entries"`
	LatestLedger uint32 `json:"latestLedger"`
}
