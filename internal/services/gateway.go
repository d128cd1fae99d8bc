package services

import (
	cryptorand "crypto/rand"
	"encoding/hex"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/busline/ticketing-backend/internal/config"
	"github.com/busline/ticketing-backend/internal/models"
)

// Test scenarios the demo gateway understands. Anything else is treated
// as a successful charge, matching a gateway that ignores unknown flags.
const (
	ScenarioSuccess           = "success"
	ScenarioInsufficientFunds = "insufficient_funds"
	ScenarioInvalidCard       = "invalid_card"
	ScenarioNetworkError      = "network_error"
	ScenarioTimeout           = "timeout"
	ScenarioDeclined          = "declined"
)

type gatewayFailure struct {
	code    string
	message string
}

var gatewayFailures = map[string]gatewayFailure{
	ScenarioInsufficientFunds: {"INSUFFICIENT_FUNDS", "Insufficient funds in account (DEMO)"},
	ScenarioInvalidCard:       {"INVALID_CARD", "Invalid card details (DEMO)"},
	ScenarioNetworkError:      {"NETWORK_ERROR", "Network error occurred (DEMO)"},
	ScenarioTimeout:           {"TIMEOUT", "Transaction timed out (DEMO)"},
	ScenarioDeclined:          {"DECLINED", "Payment declined by bank (DEMO)"},
}

// randomFailures are the scenarios the dice can land on when no test
// scenario was requested.
var randomFailures = []string{ScenarioInsufficientFunds, ScenarioNetworkError, ScenarioDeclined}

// DemoGateway simulates a card payment gateway. No real money moves:
// charges succeed or fail according to the requested test scenario, or
// at random with the configured failure rate when none is given.
type DemoGateway struct {
	name        string
	failureRate float64

	mu  sync.Mutex
	rng *rand.Rand

	logger *logrus.Logger
}

// NewDemoGateway creates a new DemoGateway
func NewDemoGateway(cfg *config.PaymentConfig, logger *logrus.Logger) *DemoGateway {
	return &DemoGateway{
		name:        cfg.GatewayName,
		failureRate: cfg.FailureRate,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:      logger,
	}
}

// Name returns the gateway's display name.
func (g *DemoGateway) Name() string {
	return g.name
}

// Charge runs a simulated charge for the payment attempt and returns
// the gateway's verdict. The caller records the outcome; the gateway
// itself holds no state between calls.
func (g *DemoGateway) Charge(payment *models.Payment, scenario *string) *models.GatewayResult {
	resolved := g.resolveScenario(scenario)

	result := &models.GatewayResult{
		GatewayTransactionID: "GATEWAY_" + payment.TransactionID,
		ProcessedAt:          time.Now().UTC(),
	}

	if failure, ok := gatewayFailures[resolved]; ok {
		result.ErrorCode = failure.code
		result.ErrorMessage = failure.message
	} else {
		result.Success = true
		result.AuthorizationCode = g.authorizationCode()
	}

	g.logger.WithFields(logrus.Fields{
		"gateway":        g.name,
		"transaction_id": payment.TransactionID,
		"scenario":       resolved,
		"success":        result.Success,
		"error_code":     result.ErrorCode,
	}).Info("Demo gateway charge processed")

	return result
}

// Refund simulates a refund against a captured charge and returns the
// gateway's refund transaction ID. The demo gateway never rejects a
// refund; validity checks live with the caller.
func (g *DemoGateway) Refund(payment *models.Payment, amountCents int64) (string, error) {
	randomBytes := make([]byte, 4)
	if _, err := cryptorand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate refund transaction ID: %w", err)
	}

	refundID := fmt.Sprintf("REF-%s-%s",
		time.Now().Format("20060102150405"),
		strings.ToUpper(hex.EncodeToString(randomBytes)))

	g.logger.WithFields(logrus.Fields{
		"gateway":               g.name,
		"transaction_id":        payment.TransactionID,
		"refund_transaction_id": refundID,
		"amount_cents":          amountCents,
	}).Info("Demo gateway refund processed")

	return refundID, nil
}

// resolveScenario picks the effective scenario for a charge. An explicit
// scenario wins; otherwise the dice decide with the configured failure
// rate, spreading failures across a few realistic causes.
func (g *DemoGateway) resolveScenario(scenario *string) string {
	if scenario != nil && *scenario != "" {
		return strings.ToLower(strings.TrimSpace(*scenario))
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.rng.Float64() < g.failureRate {
		return randomFailures[g.rng.Intn(len(randomFailures))]
	}
	return ScenarioSuccess
}

func (g *DemoGateway) authorizationCode() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return fmt.Sprintf("AUTH_%06d", g.rng.Intn(1000000))
}
