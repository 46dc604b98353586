package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardiosense/cardiosense/pkg/risk"
	"github.com/cardiosense/cardiosense/pkg/types"
	"github.com/cardiosense/cardiosense/server/internal/config"
)

func reading(level risk.Level, emergency bool) types.Reading {
	return types.Reading{
		ID:         "r-1",
		PatientID:  "bed-2",
		Timestamp:  time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC),
		Vitals:     risk.NewVitalSample(80, 120, 80, 98, 37),
		Assessment: risk.RiskAssessment{Level: level, Emergency: emergency, Triggered: []string{}},
	}
}

func TestNewEvent_Type(t *testing.T) {
	assert.Equal(t, TypeCreated, NewEvent(reading(risk.LevelHigh, false)).Type)
	assert.Equal(t, TypeEmergency, NewEvent(reading(risk.LevelCritical, false)).Type)
	assert.Equal(t, TypeEmergency, NewEvent(reading(risk.LevelCritical, true)).Type)

	e := NewEvent(reading(risk.LevelLow, false))
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, e.Reading.Timestamp, e.OccurredAt)
}

type fakeJetStream struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (f *fakeJetStream) PublishAsync(subj string, data []byte, _ ...nats.PubOpt) (nats.PubAckFuture, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.subjects = append(f.subjects, subj)
	f.payloads = append(f.payloads, data)
	return nil, nil
}

func TestNATS_Publish(t *testing.T) {
	js := &fakeJetStream{}
	p := &NATS{js: js, prefix: "cardiosense.assessments"}

	require.NoError(t, p.Publish(context.Background(), NewEvent(reading(risk.LevelLow, false))))
	require.NoError(t, p.Publish(context.Background(), NewEvent(reading(risk.LevelCritical, true))))

	assert.Equal(t, []string{"cardiosense.assessments.created", "cardiosense.assessments.emergency"}, js.subjects)

	var got Event
	require.NoError(t, json.Unmarshal(js.payloads[1], &got))
	assert.Equal(t, TypeEmergency, got.Type)
	assert.Equal(t, "bed-2", got.Reading.PatientID)
	assert.Equal(t, risk.DefaultQTInterval, got.Reading.Vitals.QTInterval)

	assert.NoError(t, p.Close())
}

func TestNATS_PublishError(t *testing.T) {
	p := &NATS{js: &fakeJetStream{err: nats.ErrConnectionClosed}, prefix: "x"}
	err := p.Publish(context.Background(), NewEvent(reading(risk.LevelLow, false)))
	require.Error(t, err)
	assert.ErrorIs(t, err, nats.ErrConnectionClosed)
}

type fakeWriter struct {
	msgs   []kafkago.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafka_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := &Kafka{w: w, topic: "cardiosense.assessments"}
	e := NewEvent(reading(risk.LevelCritical, true))

	require.NoError(t, p.Publish(context.Background(), e))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "bed-2", string(msg.Key))
	assert.Equal(t, e.OccurredAt, msg.Time)
	assert.Contains(t, msg.Headers, kafkago.Header{Key: "event-type", Value: []byte(TypeEmergency)})

	var got Event
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, e.ID, got.ID)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafka_PublishError(t *testing.T) {
	boom := errors.New("leader not available")
	p := &Kafka{w: &fakeWriter{err: boom}, topic: "t"}
	err := p.Publish(context.Background(), NewEvent(reading(risk.LevelLow, false)))
	assert.ErrorIs(t, err, boom)
}

func TestNew(t *testing.T) {
	p, err := New(config.EventsConfig{Backend: "none"})
	require.NoError(t, err)
	assert.IsType(t, Nop{}, p)
	assert.NoError(t, p.Publish(context.Background(), Event{}))

	p, err = New(config.EventsConfig{Backend: "kafka", Brokers: []string{"localhost:9092"}, Topic: "t"})
	require.NoError(t, err)
	assert.IsType(t, &Kafka{}, p)
	assert.NoError(t, p.Close())

	_, err = New(config.EventsConfig{Backend: "sqs"})
	assert.Error(t, err)
}
