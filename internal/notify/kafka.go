package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// KafkaPublisher emits notices as appointment events for downstream delivery services.
type KafkaPublisher struct {
	writer *kafka.Writer
	source string
}

type appointmentEvent struct {
	EventID       string    `json:"eventId"`
	Kind          Kind      `json:"kind"`
	AppointmentID string    `json:"appointmentId"`
	DoctorID      string    `json:"doctorId"`
	PatientID     string    `json:"patientId"`
	ScheduledAt   time.Time `json:"scheduledInstant"`
	LocalDate     string    `json:"localDate"`
	DisplayTime   string    `json:"displayTime"`
	MeetingID     string    `json:"meetingId"`
	Type          string    `json:"type"`
}

func NewKafkaPublisher(brokers []string, topic, source string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic cannot be empty")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{}, // one doctor's events stay ordered on one partition
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Snappy,
		MaxAttempts:  3,
		BatchTimeout: 50 * time.Millisecond,
	}

	return &KafkaPublisher{writer: writer, source: source}, nil
}

func (p *KafkaPublisher) Notify(ctx context.Context, n Notice) error {
	msg, err := p.message(n)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", n.Kind, err)
	}
	return nil
}

func (p *KafkaPublisher) message(n Notice) (kafka.Message, error) {
	ev := appointmentEvent{
		EventID:       uuid.NewString(),
		Kind:          n.Kind,
		AppointmentID: n.AppointmentID.String(),
		DoctorID:      n.DoctorID.String(),
		PatientID:     n.PatientID.String(),
		ScheduledAt:   n.ScheduledAt.UTC(),
		LocalDate:     n.LocalDate,
		DisplayTime:   n.DisplayTime,
		MeetingID:     n.MeetingID,
		Type:          n.Type,
	}

	value, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal event: %w", err)
	}

	return kafka.Message{
		Key:   []byte(ev.DoctorID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event-id", Value: []byte(ev.EventID)},
			{Key: "event-type", Value: []byte(ev.Kind)},
			{Key: "source", Value: []byte(p.source)},
		},
		Time: time.Now().UTC(),
	}, nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
