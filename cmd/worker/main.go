package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/busline/ticketing-backend/internal/config"
	"github.com/busline/ticketing-backend/internal/events"
	"github.com/busline/ticketing-backend/pkg/sms"
)

// The notification worker consumes booking and payment events from Kafka
// and sends passenger SMS notifications, recording every delivery in the
// notifications ledger.

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting Busline notification worker")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if !cfg.Kafka.Enabled() {
		logger.Fatal("Kafka brokers are required for the notification worker")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Fatalf("Failed to ping database: %v", err)
	}
	logger.Info("Database connection established")

	var gateway sms.Gateway
	if cfg.SMS.Mode == "production" {
		if cfg.SMS.Method == "url" {
			gateway = sms.NewDialogURLGateway(cfg.SMS.ESMSQK, cfg.SMS.Mask)
		} else {
			gateway = sms.NewDialogGateway(sms.DialogConfig{
				APIURL:   cfg.SMS.APIURL,
				Username: cfg.SMS.Username,
				Password: cfg.SMS.Password,
				Mask:     cfg.SMS.Mask,
			})
		}
		logger.Infof("SMS gateway initialized: %s", gateway.Name())
	} else {
		gateway = &devGateway{logger: logger}
		logger.Info("SMS gateway in development mode, messages are logged only")
	}

	consumer := events.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup, cfg.Kafka.BookingEventsTopic)
	defer consumer.Close()

	notifier := &notifier{
		pool:     pool,
		gateway:  gateway,
		currency: cfg.Payment.Currency,
		logger:   logger,
	}

	logger.WithFields(logrus.Fields{
		"topic": cfg.Kafka.BookingEventsTopic,
		"group": cfg.Kafka.ConsumerGroup,
	}).Info("Consuming booking events")

	err = consumer.Consume(ctx, notifier.handle)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("Consumer stopped: %v", err)
	}

	logger.Info("Notification worker exited")
}

// notifier turns booking events into SMS notifications and ledger rows.
type notifier struct {
	pool     *pgxpool.Pool
	gateway  sms.Gateway
	currency string
	logger   *logrus.Logger
}

// handle processes one event. Failures are logged and recorded in the
// ledger but never stop the consumer: a notification is best-effort.
func (n *notifier) handle(ctx context.Context, msg kafka.Message) error {
	var event events.BookingEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		n.logger.WithError(err).WithField("offset", msg.Offset).Warn("Skipping undecodable event")
		return nil
	}

	message, ok := n.buildMessage(event)
	if !ok {
		n.logger.WithField("type", event.Type).Debug("No notification for event type")
		return nil
	}

	entry := n.logger.WithFields(logrus.Fields{
		"type":              event.Type,
		"booking_reference": event.BookingReference,
	})

	if event.PassengerPhone == "" {
		entry.Debug("Event carries no passenger phone, skipping SMS")
		n.record(ctx, event, "", message, "skipped", "no passenger phone", 0)
		return nil
	}

	txID, err := n.gateway.SendMessage(event.PassengerPhone, message)
	if err != nil {
		entry.WithError(err).Error("Failed to send notification SMS")
		n.record(ctx, event, event.PassengerPhone, message, "failed", err.Error(), 0)
		return nil
	}

	entry.WithField("provider_tx_id", txID).Info("Notification sent")
	n.record(ctx, event, event.PassengerPhone, message, "sent", "", txID)
	return nil
}

// buildMessage renders the SMS body for an event type. The second return
// is false for event types that carry no passenger notification.
func (n *notifier) buildMessage(event events.BookingEvent) (string, bool) {
	switch event.Type {
	case events.TypeBookingConfirmed:
		return fmt.Sprintf(
			"Your booking %s is confirmed. Seats: %s. Total: %s. Complete your payment to secure your trip. Busline",
			event.BookingReference, joinSeats(event.SeatNumbers), n.amount(event.TotalCents),
		), true
	case events.TypeBookingCancelled:
		return fmt.Sprintf(
			"Your booking %s has been cancelled. Any payment made will be refunded. Busline",
			event.BookingReference,
		), true
	case events.TypeBookingReactivated:
		return fmt.Sprintf(
			"Your booking %s is active again. Seats: %s. Busline",
			event.BookingReference, joinSeats(event.SeatNumbers),
		), true
	case events.TypePaymentCaptured:
		return fmt.Sprintf(
			"Payment of %s received for booking %s. Your ticket is ready, show the QR code at boarding. Busline",
			n.amount(event.AmountCents), event.BookingReference,
		), true
	case events.TypePaymentRefunded:
		return fmt.Sprintf(
			"A refund of %s has been issued for booking %s. Busline",
			n.amount(event.AmountCents), event.BookingReference,
		), true
	default:
		return "", false
	}
}

func (n *notifier) amount(cents int64) string {
	return fmt.Sprintf("%s %.2f", n.currency, float64(cents)/100)
}

func joinSeats(seats []string) string {
	if len(seats) == 0 {
		return "-"
	}
	return strings.Join(seats, ", ")
}

// record writes one ledger row. Ledger failures are logged only: losing
// the audit row is better than crashing the worker mid-stream.
func (n *notifier) record(ctx context.Context, event events.BookingEvent, recipient, message, status, errorMessage string, providerTxID int64) {
	query := `
		INSERT INTO notifications (
			id, booking_id, user_id, event_type, recipient, message,
			provider, provider_tx_id, status, error_message, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	var txID *int64
	if providerTxID != 0 {
		txID = &providerTxID
	}
	var errMsg *string
	if errorMessage != "" {
		errMsg = &errorMessage
	}

	_, err := n.pool.Exec(ctx, query,
		uuid.New().String(), event.BookingID, event.UserID, event.Type, recipient, message,
		n.gateway.Name(), txID, status, errMsg, time.Now(),
	)
	if err != nil {
		n.logger.WithError(err).WithField("booking_id", event.BookingID).Error("Failed to record notification")
	}
}

// devGateway logs messages instead of sending them.
type devGateway struct {
	logger *logrus.Logger
}

func (g *devGateway) SendMessage(phone, message string) (int64, error) {
	g.logger.WithFields(logrus.Fields{
		"phone":   phone,
		"message": message,
	}).Info("SMS (development mode, not sent)")
	return time.Now().UnixMicro(), nil
}

func (g *devGateway) Name() string {
	return "dev-log"
}
