package coordination

import (
	"context"
	"database/sql"
	"encoding/json"
	stdErrors "errors"
	"math/big"
	"strings"
	"time"

	xerrors "AgentPact-Chain/internal/errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-sql-driver/mysql"
)

// MySQLStore 使用 MySQL 保存协调镜像。
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore 创建 MySQLStore 并应用内嵌的 SQL 迁移。
func NewMySQLStore(ctx context.Context, dsn string) (*MySQLStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "MySQL DSN 不能为空")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 MySQL 失败")
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(10 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "无法连接到 MySQL")
	}

	store := &MySQLStore{db: db}
	if err := store.runMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// PutIntent 实现 Store 接口。
func (s *MySQLStore) PutIntent(ctx context.Context, rec *IntentRecord) error {
	if rec == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "intent 记录不能为空")
	}
	participants, err := json.Marshal(rec.Intent.Participants)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "序列化参与方失败")
	}
	now := time.Now().Unix()
	createdAt := rec.CreatedAt
	if createdAt == 0 {
		createdAt = now
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO coordination_intents (
        intent_hash, payload_hash, expiry, nonce, agent_id, coordination_type,
        coordination_value, participants, payload_version, payload_data,
        payload_conditions, payload_timestamp, payload_metadata, signature,
        created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.IntentHash.Hex(),
		rec.Intent.PayloadHash.Hex(),
		rec.Intent.Expiry,
		rec.Intent.Nonce,
		rec.Intent.AgentID.Hex(),
		rec.Intent.CoordinationType.Hex(),
		bigString(rec.Intent.CoordinationValue),
		string(participants),
		rec.Payload.Version.Hex(),
		hexutil.Encode(rec.Payload.CoordinationData),
		rec.Payload.ConditionsHash.Hex(),
		bigString(rec.Payload.Timestamp),
		hexutil.Encode(rec.Payload.Metadata),
		hexutil.Encode(rec.Signature),
		createdAt,
		now,
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if stdErrors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return ErrIntentExists
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入 intent 失败")
	}
	return nil
}

// GetIntent 实现 Store 接口。
func (s *MySQLStore) GetIntent(ctx context.Context, hash common.Hash) (*IntentRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT intent_hash, payload_hash, expiry, nonce,
        agent_id, coordination_type, coordination_value, participants,
        payload_version, payload_data, payload_conditions, payload_timestamp,
        payload_metadata, signature, created_at, updated_at
        FROM coordination_intents WHERE intent_hash = ?`, hash.Hex())
	rec, err := scanIntentRecord(row)
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, ErrIntentNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取 intent 失败")
	}
	return rec, nil
}

// ListIntents 实现 Store 接口。
func (s *MySQLStore) ListIntents(ctx context.Context, limit int) ([]*IntentRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT intent_hash, payload_hash, expiry, nonce,
        agent_id, coordination_type, coordination_value, participants,
        payload_version, payload_data, payload_conditions, payload_timestamp,
        payload_metadata, signature, created_at, updated_at
        FROM coordination_intents ORDER BY updated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询 intent 列表失败")
	}
	defer rows.Close()

	var out []*IntentRecord
	for rows.Next() {
		rec, err := scanIntentRecord(rows)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析 intent 记录失败")
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历 intent 记录失败")
	}
	return out, nil
}

// PutAcceptance 实现 Store 接口。
func (s *MySQLStore) PutAcceptance(ctx context.Context, att AcceptanceAttestation) error {
	if _, err := s.GetIntent(ctx, att.IntentHash); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO coordination_acceptances (
        intent_hash, participant, nonce, expiry, conditions_hash, signature, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		att.IntentHash.Hex(),
		att.Participant.Hex(),
		att.Nonce,
		att.Expiry,
		att.ConditionsHash.Hex(),
		hexutil.Encode(att.Signature),
		time.Now().Unix(),
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if stdErrors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return ErrAcceptanceExists
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入接受证明失败")
	}
	_, err = s.db.ExecContext(ctx, `UPDATE coordination_intents SET updated_at = ? WHERE intent_hash = ?`,
		time.Now().Unix(), att.IntentHash.Hex())
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新 intent 时间戳失败")
	}
	return nil
}

// ListAcceptances 实现 Store 接口。
func (s *MySQLStore) ListAcceptances(ctx context.Context, intentHash common.Hash) ([]AcceptanceAttestation, error) {
	if _, err := s.GetIntent(ctx, intentHash); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT intent_hash, participant, nonce, expiry,
        conditions_hash, signature FROM coordination_acceptances
        WHERE intent_hash = ? ORDER BY participant ASC`, intentHash.Hex())
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询接受证明失败")
	}
	defer rows.Close()

	var out []AcceptanceAttestation
	for rows.Next() {
		var (
			att          AcceptanceAttestation
			hashHex      string
			particHex    string
			condHex      string
			signatureHex string
		)
		if err := rows.Scan(&hashHex, &particHex, &att.Nonce, &att.Expiry, &condHex, &signatureHex); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析接受证明失败")
		}
		att.IntentHash = common.HexToHash(hashHex)
		att.Participant = common.HexToAddress(particHex)
		att.ConditionsHash = common.HexToHash(condHex)
		if att.Signature, err = decodeHexBlob(signatureHex); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析签名失败")
		}
		out = append(out, att)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历接受证明失败")
	}
	return out, nil
}

// Close 释放数据库连接。
func (s *MySQLStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIntentRecord(row rowScanner) (*IntentRecord, error) {
	var (
		rec              IntentRecord
		hashHex          string
		payloadHashHex   string
		agentHex         string
		coordTypeHex     string
		coordValue       string
		participantsJSON string
		versionHex       string
		dataHex          string
		conditionsHex    string
		timestampStr     string
		metadataHex      string
		signatureHex     string
	)
	err := row.Scan(&hashHex, &payloadHashHex, &rec.Intent.Expiry, &rec.Intent.Nonce,
		&agentHex, &coordTypeHex, &coordValue, &participantsJSON,
		&versionHex, &dataHex, &conditionsHex, &timestampStr,
		&metadataHex, &signatureHex, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}

	rec.IntentHash = common.HexToHash(hashHex)
	rec.Intent.PayloadHash = common.HexToHash(payloadHashHex)
	rec.Intent.AgentID = common.HexToAddress(agentHex)
	rec.Intent.CoordinationType = common.HexToHash(coordTypeHex)
	rec.Intent.CoordinationValue = parseBigString(coordValue)
	if err := json.Unmarshal([]byte(participantsJSON), &rec.Intent.Participants); err != nil {
		return nil, err
	}
	rec.Payload.Version = common.HexToHash(versionHex)
	rec.Payload.CoordinationType = rec.Intent.CoordinationType
	rec.Payload.ConditionsHash = common.HexToHash(conditionsHex)
	rec.Payload.Timestamp = parseBigString(timestampStr)
	if rec.Payload.CoordinationData, err = decodeHexBlob(dataHex); err != nil {
		return nil, err
	}
	if rec.Payload.Metadata, err = decodeHexBlob(metadataHex); err != nil {
		return nil, err
	}
	if rec.Signature, err = decodeHexBlob(signatureHex); err != nil {
		return nil, err
	}
	return &rec, nil
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func parseBigString(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return new(big.Int)
	}
	return v
}

func decodeHexBlob(s string) ([]byte, error) {
	if s == "" || s == "0x" {
		return nil, nil
	}
	return hexutil.Decode(s)
}

var _ Store = (*MySQLStore)(nil)
