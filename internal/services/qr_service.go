package services

import (
	"bytes"
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image/png"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/skip2/go-qrcode"
)

// QRService issues short-lived transfer-request codes: the receiver encodes
// their account and the requested point amount, the payer scans and the
// wallet performs an ordinary transfer.
type QRService struct {
	db    *sql.DB
	redis *redis.Client
}

func NewQRService(db *sql.DB, redis *redis.Client) *QRService {
	return &QRService{
		db:    db,
		redis: redis,
	}
}

// TransferRequest is the payload behind a transfer-request QR code.
type TransferRequest struct {
	AccountID string `json:"accountId"`
	Amount    int64  `json:"amount"`
	Timestamp int64  `json:"timestamp"`
	Nonce     string `json:"nonce"`
}

func (s *QRService) GenerateQRCode(ctx context.Context, accountID string, amount int64) (string, string, error) {
	qrData := TransferRequest{
		AccountID: accountID,
		Amount:    amount,
		Timestamp: time.Now().Unix(),
		Nonce:     s.generateNonce(),
	}

	jsonData, err := json.Marshal(qrData)
	if err != nil {
		return "", "", err
	}

	qrCode := base64.URLEncoding.EncodeToString(jsonData)

	key := fmt.Sprintf("qr:%s", qrCode)
	if err := s.redis.Set(ctx, key, jsonData, 5*time.Minute).Err(); err != nil {
		return "", "", err
	}

	qr, err := qrcode.New(qrCode, qrcode.Medium)
	if err != nil {
		return "", "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(256)); err != nil {
		return "", "", err
	}

	qrImage := base64.StdEncoding.EncodeToString(buf.Bytes())

	return qrCode, qrImage, nil
}

// ProcessQRCode resolves a scanned code to its transfer request. Each code
// is single use; resolving it consumes it.
func (s *QRService) ProcessQRCode(ctx context.Context, qrData string) (*TransferRequest, error) {
	key := fmt.Sprintf("qr:%s", qrData)

	data, err := s.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("invalid or expired QR code")
	}
	if err != nil {
		return nil, err
	}

	var result TransferRequest
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}

	s.redis.Del(ctx, key)

	return &result, nil
}

// RestoreQRCode puts a consumed code back after the transfer it requested
// failed, so the payer can retry without the receiver regenerating. The
// restored code gets a fresh short TTL.
func (s *QRService) RestoreQRCode(ctx context.Context, qrData string, request *TransferRequest) error {
	jsonData, err := json.Marshal(request)
	if err != nil {
		return err
	}
	key := fmt.Sprintf("qr:%s", qrData)
	return s.redis.Set(ctx, key, jsonData, time.Minute).Err()
}

func (s *QRService) generateNonce() string {
	b := make([]byte, 16)
	rand.Read(b)
	return base64.URLEncoding.EncodeToString(b)
}
