package errors

import (
	stdErrors "errors"
	"fmt"
	"sync"
)

// Code 表示系统内统一的错误码。
type Code string

// Severity 描述错误的严重程度，用于日志与审计。
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

const (
	CodeUnknown         Code = "UNKNOWN"
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeNotFound        Code = "NOT_FOUND"
	CodeConflict        Code = "CONFLICT"

	// 协议消息校验相关错误码。
	CodeAlreadyExpired         Code = "ALREADY_EXPIRED"
	CodeNonCanonicalParts      Code = "NON_CANONICAL_PARTICIPANTS"
	CodeAgentNotParticipant    Code = "AGENT_NOT_PARTICIPANT"
	CodeEmptyParticipantSet    Code = "EMPTY_PARTICIPANT_SET"
	CodeMissingSignature       Code = "MISSING_SIGNATURE"
	CodeParticipantNotRequired Code = "PARTICIPANT_NOT_IN_REQUIRED_SET"

	// Merkle 边界引擎相关错误码。
	CodeMerkleIndexOutOfRange Code = "MERKLE_INDEX_OUT_OF_RANGE"
	CodeEmptyActionList       Code = "EMPTY_ACTION_LIST"

	// 状态机与轮询相关错误码。
	CodeStatusTerminal Code = "STATUS_TERMINAL_NOT_READY"
	CodeTimeout        Code = "TIMEOUT"

	// 基础设施相关错误码。
	CodeStorageFailure Code = "STORAGE_FAILURE"
	CodeQueueFailure   Code = "QUEUE_FAILURE"
	CodeChainFailure   Code = "CHAIN_FAILURE"
)

// Attributes 为错误码提供默认行为。
type Attributes struct {
	Message   string
	Severity  Severity
	Retryable bool
}

var (
	registryMu sync.RWMutex
	registry   = map[Code]Attributes{
		CodeUnknown:         {Message: "unknown error", Severity: SeverityCritical},
		CodeInvalidArgument: {Message: "invalid argument", Severity: SeverityInfo},
		CodeNotFound:        {Message: "resource not found", Severity: SeverityInfo},
		CodeConflict:        {Message: "resource conflict", Severity: SeverityWarning},

		CodeAlreadyExpired:         {Message: "message already expired", Severity: SeverityInfo},
		CodeNonCanonicalParts:      {Message: "participants not in canonical order", Severity: SeverityInfo},
		CodeAgentNotParticipant:    {Message: "agent missing from participant set", Severity: SeverityInfo},
		CodeEmptyParticipantSet:    {Message: "participant set is empty", Severity: SeverityInfo},
		CodeMissingSignature:       {Message: "attestation carries no signature", Severity: SeverityInfo},
		CodeParticipantNotRequired: {Message: "participant not in required set", Severity: SeverityInfo},

		CodeMerkleIndexOutOfRange: {Message: "merkle leaf index out of range", Severity: SeverityInfo},
		CodeEmptyActionList:       {Message: "action list is empty", Severity: SeverityInfo},

		CodeStatusTerminal: {Message: "coordination reached a terminal status before ready", Severity: SeverityWarning},
		CodeTimeout:        {Message: "operation timed out", Severity: SeverityWarning, Retryable: true},

		CodeStorageFailure: {Message: "storage failure", Severity: SeverityCritical, Retryable: true},
		CodeQueueFailure:   {Message: "queue failure", Severity: SeverityCritical, Retryable: true},
		CodeChainFailure:   {Message: "chain access failure", Severity: SeverityWarning, Retryable: true},
	}
)

// Register 允许业务模块在初始化阶段注册新的错误码描述。
func Register(code Code, attr Attributes) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[code] = attr
}

// AttributesOf 返回错误码对应的属性，未注册时退回 UNKNOWN。
func AttributesOf(code Code) Attributes {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if attr, ok := registry[code]; ok {
		return attr
	}
	return registry[CodeUnknown]
}

// Error 是系统内统一的错误类型。所有校验类错误都应立即返回且不重试，
// Retryable 仅对基础设施类错误有意义。
type Error struct {
	code     Code
	message  string
	cause    error
	metadata map[string]string
}

// New 创建一个新的错误实例。message 为空时使用错误码的默认描述。
func New(code Code, message string) *Error {
	if message == "" {
		message = AttributesOf(code).Message
	}
	return &Error{code: code, message: message}
}

// Newf 以格式化方式创建错误实例。
func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap 在已有错误外包裹统一错误类型。
func Wrap(code Code, cause error, message string) *Error {
	e := New(code, message)
	e.cause = cause
	return e
}

// WithMeta 附加额外信息并返回同一错误，便于链式调用。
func (e *Error) WithMeta(key, value string) *Error {
	if e == nil {
		return nil
	}
	if e.metadata == nil {
		e.metadata = make(map[string]string)
	}
	e.metadata[key] = value
	return e
}

// Error 实现 error 接口。
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.code, e.message)
}

// Unwrap 实现 errors.Unwrap。
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is 允许通过 errors.Is 判断是否为相同错误码。
func (e *Error) Is(target error) bool {
	if e == nil || target == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.code == t.code
}

// Code 返回错误码。
func (e *Error) Code() Code {
	if e == nil {
		return CodeUnknown
	}
	return e.code
}

// Metadata 返回附加信息的拷贝。
func (e *Error) Metadata() map[string]string {
	if e == nil || len(e.metadata) == 0 {
		return nil
	}
	clone := make(map[string]string, len(e.metadata))
	for k, v := range e.metadata {
		clone[k] = v
	}
	return clone
}

// From 尝试从 error 中解析统一错误类型。
func From(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	var target *Error
	if stdErrors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// CodeOf 返回任意 error 对应的错误码。
func CodeOf(err error) Code {
	if e, ok := From(err); ok {
		return e.Code()
	}
	return CodeUnknown
}

// Retryable 判断任意 error 是否可重试。
func Retryable(err error) bool {
	if e, ok := From(err); ok {
		return AttributesOf(e.Code()).Retryable
	}
	return false
}

// SeverityOf 返回任意 error 的严重程度。
func SeverityOf(err error) Severity {
	if e, ok := From(err); ok {
		return AttributesOf(e.Code()).Severity
	}
	return AttributesOf(CodeUnknown).Severity
}
