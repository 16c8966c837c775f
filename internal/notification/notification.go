package notification

import (
    "context"
    "log/slog"
)

const (
    // KindTransferReceived tells a user money arrived in their wallet.
    KindTransferReceived = "transfer_received"
    // KindFraudAlert tells a user one of their transactions was blocked.
    KindFraudAlert = "fraud_alert"
    // KindWalletFrozen tells a user their wallet was frozen.
    KindWalletFrozen = "wallet_frozen"
)

// Message describes a notification payload. Reference carries the ledger
// reference number of the transaction the message is about, when there is one.
type Message struct {
    Kind        string
    Destination string
    Body        string
    Reference   string
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
    Send(ctx context.Context, message Message) error
}

// LoggerNotifier is a stub implementation that writes notifications to the logger.
type LoggerNotifier struct {
    logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier stub.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
    return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
    if n == nil || n.logger == nil {
        return nil
    }
    n.logger.Info("notification",
        "kind", message.Kind,
        "destination", message.Destination,
        "body", message.Body,
        "reference", message.Reference,
    )
    return nil
}
