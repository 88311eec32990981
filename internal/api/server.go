package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"AgentPact-Chain/internal/agent"
	"AgentPact-Chain/internal/bounds"
	"AgentPact-Chain/internal/coordination"
	xerrors "AgentPact-Chain/internal/errors"
	"AgentPact-Chain/internal/observability/metrics"
	"AgentPact-Chain/internal/web3"
	"AgentPact-Chain/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
)

// Server 负责暴露 REST 接口，供外部驱动协调生命周期与受限执行。
type Server struct {
	addr        string
	coordinator *agent.Coordinator
	executor    *agent.BoundedExecutor
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, coordinator *agent.Coordinator, executor *agent.BoundedExecutor) *Server {
	return &Server{addr: addr, coordinator: coordinator, executor: executor}
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/api/v1/intents", s.instrument("intents", http.HandlerFunc(s.handleIntents)))
	mux.Handle("/api/v1/intents/", s.instrument("intent", http.HandlerFunc(s.handleIntent)))
	mux.Handle("/api/v1/policies", s.instrument("policies", http.HandlerFunc(s.handlePolicies)))
	mux.Handle("/api/v1/policies/", s.instrument("policy", http.HandlerFunc(s.handlePolicy)))
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleIntents(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handlePropose(w, r)
	case http.MethodGet:
		s.handleListIntents(w, r)
	default:
		http.Error(w, "仅支持 GET/POST", http.StatusMethodNotAllowed)
	}
}

// proposeRequest 是发起协调的请求体。coordinationType 可给标签或哈希，
// 二者择一，标签优先。
type proposeRequest struct {
	Participants     []string `json:"participants"`
	TypeLabel        string   `json:"type_label,omitempty"`
	TypeHash         string   `json:"type_hash,omitempty"`
	Value            string   `json:"value,omitempty"`
	TTLSeconds       int64    `json:"ttl_seconds,omitempty"`
	Expiry           uint64   `json:"expiry,omitempty"`
	PayloadVersion   string   `json:"payload_version,omitempty"`
	CoordinationData string   `json:"coordination_data,omitempty"`
	ConditionsHash   string   `json:"conditions_hash,omitempty"`
	Metadata         string   `json:"metadata,omitempty"`
}

func (s *Server) handlePropose(w http.ResponseWriter, r *http.Request) {
	if s.coordinator == nil {
		http.Error(w, "Coordinator 未初始化", http.StatusServiceUnavailable)
		return
	}
	var req proposeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}

	participants, err := coordination.ParseParticipants(req.Participants)
	if err != nil {
		writeError(w, err)
		return
	}

	opts := coordination.IntentOptions{
		Participants: participants,
		Expiry:       req.Expiry,
		TTL:          time.Duration(req.TTLSeconds) * time.Second,
	}
	if req.TypeLabel != "" {
		opts.Type = coordination.TypeFromLabel(req.TypeLabel)
	} else {
		opts.Type = coordination.TypeFromHash(common.HexToHash(req.TypeHash))
	}
	if req.Value != "" {
		value, ok := new(big.Int).SetString(req.Value, 10)
		if !ok {
			writeError(w, xerrors.Newf(xerrors.CodeInvalidArgument, "无法解析 value: %s", req.Value))
			return
		}
		opts.Value = value
	}
	if opts.CoordinationData, err = decodeOptionalHex(req.CoordinationData); err != nil {
		writeError(w, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "coordination_data 非法"))
		return
	}
	if opts.Metadata, err = decodeOptionalHex(req.Metadata); err != nil {
		writeError(w, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "metadata 非法"))
		return
	}
	opts.PayloadVersion = common.HexToHash(req.PayloadVersion)
	opts.ConditionsHash = common.HexToHash(req.ConditionsHash)

	rec, err := s.coordinator.Propose(r.Context(), opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleListIntents(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	records, err := s.coordinator.ListIntents(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// handleIntent 分发 /api/v1/intents/{hash}[/action] 请求。
func (s *Server) handleIntent(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/intents/")
	parts := strings.SplitN(rest, "/", 2)
	if parts[0] == "" {
		http.Error(w, "缺少 intentHash", http.StatusBadRequest)
		return
	}
	intentHash := common.HexToHash(parts[0])

	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		s.handleGetIntent(w, r, intentHash)
	case action == "status" && r.Method == http.MethodGet:
		s.handleStatus(w, r, intentHash)
	case action == "acceptances" && r.Method == http.MethodPost:
		s.handleAccept(w, r, intentHash)
	case action == "execute" && r.Method == http.MethodPost:
		s.handleExecute(w, r, intentHash)
	case action == "cancel" && r.Method == http.MethodPost:
		s.handleCancel(w, r, intentHash)
	case action == "await" && r.Method == http.MethodPost:
		s.handleAwait(w, r, intentHash)
	default:
		http.Error(w, "未知操作", http.StatusNotFound)
	}
}

func (s *Server) handleGetIntent(w http.ResponseWriter, r *http.Request, intentHash common.Hash) {
	rec, err := s.coordinator.Intent(r.Context(), intentHash)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request, intentHash common.Hash) {
	st, err := s.coordinator.Status(r.Context(), intentHash)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       st.Status.String(),
		"proposer":     st.Proposer,
		"participants": st.Participants,
		"accepted_by":  st.AcceptedBy,
		"expiry":       st.Expiry,
	})
}

type acceptRequest struct {
	TTLSeconds     int64  `json:"ttl_seconds,omitempty"`
	Expiry         uint64 `json:"expiry,omitempty"`
	ConditionsHash string `json:"conditions_hash,omitempty"`
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request, intentHash common.Hash) {
	var req acceptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}
	att, err := s.coordinator.Accept(r.Context(), intentHash, coordination.AttestationOptions{
		Expiry:         req.Expiry,
		TTL:            time.Duration(req.TTLSeconds) * time.Second,
		ConditionsHash: common.HexToHash(req.ConditionsHash),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, att)
}

type executeRequest struct {
	ExecutionData string `json:"execution_data,omitempty"`
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request, intentHash common.Hash) {
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}
	data, err := decodeOptionalHex(req.ExecutionData)
	if err != nil {
		writeError(w, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "execution_data 非法"))
		return
	}
	result, err := s.coordinator.Execute(r.Context(), intentHash, data)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request, intentHash common.Hash) {
	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}
	result, err := s.coordinator.Cancel(r.Context(), intentHash, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type awaitRequest struct {
	IntervalSeconds float64 `json:"interval_seconds,omitempty"`
	TimeoutSeconds  float64 `json:"timeout_seconds,omitempty"`
}

func (s *Server) handleAwait(w http.ResponseWriter, r *http.Request, intentHash common.Hash) {
	var req awaitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}
	interval := time.Duration(req.IntervalSeconds * float64(time.Second))
	if interval <= 0 {
		interval = 2 * time.Second
	}
	timeout := time.Duration(req.TimeoutSeconds * float64(time.Second))
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	st, err := s.coordinator.AwaitReady(r.Context(), intentHash, interval, timeout)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": st.Status.String()})
}

// policyRequest 是注册策略的请求体，动作项复用允许清单的条目格式。
type policyRequest struct {
	Agent         string                 `json:"agent"`
	SpendingLimit string                 `json:"spending_limit,omitempty"`
	WindowStart   uint64                 `json:"window_start"`
	WindowEnd     uint64                 `json:"window_end"`
	MaxCalls      uint64                 `json:"max_calls"`
	Actions       []bounds.ManifestEntry `json:"actions"`
}

func (s *Server) handlePolicies(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	if s.executor == nil {
		http.Error(w, "BoundedExecutor 未初始化", http.StatusServiceUnavailable)
		return
	}
	var req policyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}
	if !common.IsHexAddress(req.Agent) {
		writeError(w, xerrors.Newf(xerrors.CodeInvalidArgument, "agent 地址非法: %s", req.Agent))
		return
	}
	manifest := bounds.Manifest{Actions: req.Actions}
	actions, err := manifest.Resolve()
	if err != nil {
		writeError(w, err)
		return
	}
	limit := new(big.Int)
	if req.SpendingLimit != "" {
		if _, ok := limit.SetString(req.SpendingLimit, 10); !ok {
			writeError(w, xerrors.Newf(xerrors.CodeInvalidArgument, "无法解析 spending_limit: %s", req.SpendingLimit))
			return
		}
	}
	root, err := bounds.ComputeRoot(actions)
	if err != nil {
		writeError(w, err)
		return
	}
	reg, err := s.executor.RegisterPolicy(r.Context(), common.HexToAddress(req.Agent), actions, limit,
		web3.PolicyWindow{Start: req.WindowStart, End: req.WindowEnd}, req.MaxCalls)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"policy_id":   reg.PolicyID,
		"tx_hash":     reg.TxHash,
		"bounds_root": root,
	})
}

type policyExecuteRequest struct {
	Target    string `json:"target"`
	Selector  string `json:"selector,omitempty"`
	Signature string `json:"signature,omitempty"`
	CallArgs  string `json:"call_args,omitempty"`
	Value     string `json:"value,omitempty"`
}

// handlePolicy 分发 /api/v1/policies/{id}[/execute] 请求。
func (s *Server) handlePolicy(w http.ResponseWriter, r *http.Request) {
	if s.executor == nil {
		http.Error(w, "BoundedExecutor 未初始化", http.StatusServiceUnavailable)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/policies/")
	parts := strings.SplitN(rest, "/", 2)
	if parts[0] == "" {
		http.Error(w, "缺少 policyId", http.StatusBadRequest)
		return
	}
	policyID := common.HexToHash(parts[0])

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		policy, err := s.executor.Policy(r.Context(), policyID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, policy)
	case len(parts) == 2 && parts[1] == "execute" && r.Method == http.MethodPost:
		s.handlePolicyExecute(w, r, policyID)
	default:
		http.Error(w, "未知操作", http.StatusNotFound)
	}
}

func (s *Server) handlePolicyExecute(w http.ResponseWriter, r *http.Request, policyID common.Hash) {
	var req policyExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}
	if !common.IsHexAddress(req.Target) {
		writeError(w, xerrors.Newf(xerrors.CodeInvalidArgument, "target 地址非法: %s", req.Target))
		return
	}

	var selector bounds.Selector
	switch {
	case req.Signature != "":
		selector = bounds.SelectorFromSignature(req.Signature)
	case req.Selector != "":
		raw, err := hexutil.Decode(req.Selector)
		if err != nil || len(raw) != bounds.SelectorLength {
			writeError(w, xerrors.Newf(xerrors.CodeInvalidArgument, "selector 非法: %s", req.Selector))
			return
		}
		copy(selector[:], raw)
	default:
		writeError(w, xerrors.New(xerrors.CodeInvalidArgument, "必须提供 selector 或 signature"))
		return
	}

	callArgs, err := decodeOptionalHex(req.CallArgs)
	if err != nil {
		writeError(w, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "call_args 非法"))
		return
	}
	value := new(big.Int)
	if req.Value != "" {
		if _, ok := value.SetString(req.Value, 10); !ok {
			writeError(w, xerrors.Newf(xerrors.CodeInvalidArgument, "无法解析 value: %s", req.Value))
			return
		}
	}

	result, err := s.executor.Execute(r.Context(), policyID, common.HexToAddress(req.Target), selector, callArgs, value)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// instrument 记录请求指标并注入请求标识。
func (s *Server) instrument(name string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := uuid.NewString()
		w.Header().Set("X-Request-Id", requestID)

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		duration := time.Since(start)
		metrics.ObserveHTTPRequest(name, r.Method, recorder.status, duration)
		if recorder.status >= 500 {
			logger.L().Error("请求处理失败",
				slog.String("request_id", requestID),
				slog.String("path", r.URL.Path),
				slog.Int("status", recorder.status))
		}
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// decodeOptionalHex 解析可选的 0x 前缀字节串，空串视为无数据。
func decodeOptionalHex(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0x" {
		return nil, nil
	}
	return hexutil.Decode(s)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError 将统一错误码映射到 HTTP 状态码。
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch xerrors.CodeOf(err) {
	case xerrors.CodeInvalidArgument, xerrors.CodeAlreadyExpired, xerrors.CodeNonCanonicalParts,
		xerrors.CodeAgentNotParticipant, xerrors.CodeEmptyParticipantSet, xerrors.CodeMissingSignature,
		xerrors.CodeParticipantNotRequired, xerrors.CodeMerkleIndexOutOfRange, xerrors.CodeEmptyActionList:
		status = http.StatusBadRequest
	case xerrors.CodeNotFound:
		status = http.StatusNotFound
	case xerrors.CodeConflict, xerrors.CodeStatusTerminal:
		status = http.StatusConflict
	case xerrors.CodeTimeout:
		status = http.StatusGatewayTimeout
	}

	body := map[string]any{
		"code":    string(xerrors.CodeOf(err)),
		"message": err.Error(),
	}
	writeJSON(w, status, body)
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
