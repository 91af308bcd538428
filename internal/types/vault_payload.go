package types

// RegistrationState 签名者注册状态机的对外可见状态
type RegistrationState string

const (
	RegistrationStateUnknown      RegistrationState = "unknown"
	RegistrationStateChecking     RegistrationState = "checking"
	RegistrationStateRegistered   RegistrationState = "registered"
	RegistrationStateUnregistered RegistrationState = "unregistered"
	RegistrationStateRegistering  RegistrationState = "registering"
	RegistrationStateConfirmed    RegistrationState = "confirmed"
	RegistrationStateFailed       RegistrationState = "registration_failed"
)

// SubmissionStatus 提交终态
type SubmissionStatus string

const (
	SubmissionStatusPending SubmissionStatus = "pending"
	SubmissionStatusSuccess SubmissionStatus = "success"
	SubmissionStatusFailed  SubmissionStatus = "failed"
)

// TransactionIntent 一次转账/入金意图
// 三个 WebAuthn 字段保持独立，不打包成复合结构，避免合约侧反序列化歧义
type TransactionIntent struct {
	// Signer 签名者的账户地址（G...）
	Signer string `json:"signer"`
	// Destination 收款地址（转账时必填，入金时忽略）
	Destination string `json:"destination,omitempty"`
	// Amount 代币单位的十进制数量（如 "10.5" XLM）
	Amount string `json:"amount"`
	// Asset 资产合约地址（C...，XLM 传原生 SAC 地址）
	Asset string `json:"asset"`
	// SignaturePayload 被签名的载荷，前 32 字节绑定 challenge
	SignaturePayload []byte `json:"signature_payload"`
	// WebAuthnSignature 认证器签名（64 字节原始或 70–72 字节 DER）
	WebAuthnSignature []byte `json:"webauthn_signature"`
	// AuthenticatorData 认证器数据
	AuthenticatorData []byte `json:"authenticator_data"`
	// ClientDataJSON 客户端上下文 JSON
	ClientDataJSON []byte `json:"client_data_json"`
}

// RegisterSignerRequest 注册请求
type RegisterSignerRequest struct {
	Signer string `json:"signer"`
	// WrappedPublicKey SPKI 包装的公钥（注册时由 Codec 提取 65 字节点）
	WrappedPublicKey []byte `json:"wrapped_public_key"`
	// RelyingPartyID 应用的 RP ID（服务端哈希为 32 字节）
	RelyingPartyID string `json:"relying_party_id,omitempty"`
	// RelyingPartyIDHash 预先计算好的 RP ID 哈希（与 RelyingPartyID 二选一）
	RelyingPartyIDHash []byte `json:"relying_party_id_hash,omitempty"`
	// AllowRotation 存量公钥与本次公钥不一致时是否允许覆盖注册
	AllowRotation bool `json:"allow_rotation,omitempty"`
}

// RegistrationResult 注册结果
type RegistrationResult struct {
	State  RegistrationState `json:"state"`
	TxHash string            `json:"tx_hash,omitempty"`
	// Rotated 本次注册覆盖了已有的不同公钥
	Rotated bool `json:"rotated,omitempty"`
}

// SubmissionOutcome 终态结果
type SubmissionOutcome struct {
	Status SubmissionStatus `json:"status"`
	// TxHash 账本交易哈希，pending 时调用方凭它独立核对
	TxHash string `json:"tx_hash,omitempty"`
	// Ledger 交易落账的账本序号
	Ledger uint32 `json:"ledger,omitempty"`
	// ContractReturnValue 合约布尔返回值（成功且可解码时）
	ContractReturnValue *bool `json:"contract_return_value,omitempty"`
	// ErrorKind 机器可读错误分类标签
	ErrorKind string `json:"error_kind,omitempty"`
	// HostErrorKind 宿主错误细类（ErrorKind 为 HOST_ERROR 时）
	HostErrorKind string `json:"host_error_kind,omitempty"`
	// Message 面向人类的描述
	Message string `json:"message,omitempty"`
	// Diagnostics 解码出的诊断事件文本，仅作佐证
	Diagnostics []string `json:"diagnostics,omitempty"`
}
