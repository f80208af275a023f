package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
)

func TestQRService_GenerateQRCode(t *testing.T) {
	redisClient, mock := redismock.NewClientMock()
	service := NewQRService(nil, redisClient)

	mock.Regexp().ExpectSet(`qr:.+`, `.+`, 5*time.Minute).SetVal("OK")

	qrCode, qrImage, err := service.GenerateQRCode(context.Background(), "1000000001", 50)
	assert.NoError(t, err)
	assert.NotEmpty(t, qrImage)

	// The code itself decodes back to the transfer request
	payload, err := base64.URLEncoding.DecodeString(qrCode)
	assert.NoError(t, err)

	var req TransferRequest
	assert.NoError(t, json.Unmarshal(payload, &req))
	assert.Equal(t, "1000000001", req.AccountID)
	assert.Equal(t, int64(50), req.Amount)
	assert.NotEmpty(t, req.Nonce)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQRService_ProcessQRCode(t *testing.T) {
	t.Run("resolves and consumes the code", func(t *testing.T) {
		redisClient, mock := redismock.NewClientMock()
		service := NewQRService(nil, redisClient)

		stored := TransferRequest{
			AccountID: "1000000001",
			Amount:    50,
			Timestamp: time.Now().Unix(),
			Nonce:     "n1",
		}
		payload, _ := json.Marshal(stored)
		qrCode := base64.URLEncoding.EncodeToString(payload)

		mock.ExpectGet("qr:" + qrCode).SetVal(string(payload))
		mock.ExpectDel("qr:" + qrCode).SetVal(1)

		req, err := service.ProcessQRCode(context.Background(), qrCode)
		assert.NoError(t, err)
		assert.Equal(t, "1000000001", req.AccountID)
		assert.Equal(t, int64(50), req.Amount)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("restored code survives a failed transfer", func(t *testing.T) {
		redisClient, mock := redismock.NewClientMock()
		service := NewQRService(nil, redisClient)

		request := TransferRequest{
			AccountID: "1000000001",
			Amount:    50,
			Timestamp: time.Now().Unix(),
			Nonce:     "n2",
		}
		payload, _ := json.Marshal(request)
		qrCode := base64.URLEncoding.EncodeToString(payload)

		mock.ExpectSet("qr:"+qrCode, payload, time.Minute).SetVal("OK")

		err := service.RestoreQRCode(context.Background(), qrCode, &request)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("expired code rejected", func(t *testing.T) {
		redisClient, mock := redismock.NewClientMock()
		service := NewQRService(nil, redisClient)

		mock.ExpectGet("qr:stale").RedisNil()

		_, err := service.ProcessQRCode(context.Background(), "stale")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid or expired")
	})
}
