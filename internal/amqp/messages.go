package amqp

import (
	"encoding/json"
	"time"
)

// TransactionPostedMessage announces one committed ledger posting. It carries
// only identifiers; consumers fetch the full rows from the database so a
// stale message can never overwrite newer state.
type TransactionPostedMessage struct {
	TransactionID int64     `json:"transaction_id"`
	AccountID     int64     `json:"account_id"`
	UserID        int64     `json:"user_id"`
	Recurring     bool      `json:"recurring"`
	Timestamp     time.Time `json:"timestamp"`
}

func NewTransactionPostedMessage(transactionID, accountID, userID int64, recurring bool) *TransactionPostedMessage {
	return &TransactionPostedMessage{
		TransactionID: transactionID,
		AccountID:     accountID,
		UserID:        userID,
		Recurring:     recurring,
		Timestamp:     time.Now(),
	}
}

func (m *TransactionPostedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func TransactionPostedMessageFromJSON(data []byte) (*TransactionPostedMessage, error) {
	var msg TransactionPostedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
