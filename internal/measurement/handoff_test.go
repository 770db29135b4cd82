package measurement

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	redisclient "wisefido-iop/internal/common/redis"
	"wisefido-iop/internal/models"
)

func testRecord(patientID string) *models.MeasurementRecord {
	notes := "stable"
	return &models.MeasurementRecord{
		RecordID:         "rec-" + patientID,
		PatientID:        patientID,
		PatientDisplayID: "P00" + patientID,
		RightEyeMmHg:     intPtr(19),
		Notes:            &notes,
		CapturedAt:       time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC),
	}
}

func TestMailbox_OneShotPerPatient(t *testing.T) {
	m := NewMailbox(0)
	ctx := context.Background()

	require.NoError(t, m.Deliver(ctx, testRecord("1")))
	require.NoError(t, m.Deliver(ctx, testRecord("2")))

	p, ok := m.Take("2")
	require.True(t, ok)
	assert.Equal(t, "P002", p.PatientID)
	assert.Equal(t, "01/06/2025", p.Date)
	assert.Equal(t, "stable", p.Notes)
	assert.Nil(t, p.LeftEye)

	_, ok = m.Take("2")
	assert.False(t, ok)
	_, ok = m.Take("1")
	assert.True(t, ok)
}

func TestMailbox_Expiry(t *testing.T) {
	m := NewMailbox(time.Millisecond)
	require.NoError(t, m.Deliver(context.Background(), testRecord("1")))
	time.Sleep(5 * time.Millisecond)

	_, ok := m.Take("1")
	assert.False(t, ok)
}

func TestStreamHandoff_PublishesPayload(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	h := NewStreamHandoff(client, "", zap.NewNop())
	require.NoError(t, h.Deliver(context.Background(), testRecord("4")))
	h.Wait()

	msgs, err := redisclient.ReadLatest(context.Background(), client, DefaultStream, 1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	var payload Payload
	require.NoError(t, json.Unmarshal([]byte(msgs[0].Values["data"].(string)), &payload))
	assert.Equal(t, "rec-4", payload.RecordID)
	assert.Equal(t, "P004", payload.PatientID)
	assert.Equal(t, 19, *payload.RightEye)
}

func TestStreamHandoff_RedisDownDoesNotBlock(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	mr.Close()

	h := NewStreamHandoff(client, "iop:test:stream", zap.NewNop())
	start := time.Now()
	assert.NoError(t, h.Deliver(context.Background(), testRecord("1")))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	h.Wait()
}
