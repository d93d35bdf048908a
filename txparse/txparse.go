// Package txparse validates unsigned transaction payloads and parses the
// agent's transfer summaries. In returnBytes mode the agent hands base64
// transaction bytes to the host for external signing; this package checks the
// payload is well-formed and turns the accompanying summary JSON into typed
// values. It never signs anything.
package txparse

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidTransaction = errors.New("txparse: invalid transaction bytes")
	ErrInvalidSummary     = errors.New("txparse: invalid transfer summary")
)

// tinybarsPerHBAR is the fixed Hedera denomination: 1 HBAR = 10^8 tinybars.
var tinybarsPerHBAR = decimal.New(1, 8)

// ValidateTransactionBytes checks that encoded is a non-empty standard-base64
// payload and returns the decoded bytes.
func ValidateTransactionBytes(encoded string) ([]byte, error) {
	trimmed := strings.TrimSpace(encoded)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidTransaction)
	}
	raw, err := base64.StdEncoding.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTransaction, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: decodes to zero bytes", ErrInvalidTransaction)
	}
	return raw, nil
}

// TinybarToHBAR converts a tinybar amount to HBAR with exact decimal
// arithmetic.
func TinybarToHBAR(tinybars int64) decimal.Decimal {
	return decimal.NewFromInt(tinybars).Div(tinybarsPerHBAR)
}

// Transfer is one leg of a crypto transfer. Negative amounts debit the
// account, positive amounts credit it.
type Transfer struct {
	Account        string `json:"account"`
	AmountTinybars int64  `json:"amountTinybars"`
}

// AmountHBAR returns the transfer amount in HBAR.
func (t Transfer) AmountHBAR() decimal.Decimal {
	return TinybarToHBAR(t.AmountTinybars)
}

// TransferSummary is the agent's description of an unsigned transaction:
// the payload itself plus the transfer legs it claims to contain.
type TransferSummary struct {
	TransactionBytes string     `json:"transactionBytes"`
	Memo             string     `json:"memo,omitempty"`
	Transfers        []Transfer `json:"transfers"`
}

// ParseTransferSummary decodes and validates a transfer summary document.
// The transaction bytes must be valid base64 and the transfer legs must net
// to zero, since a crypto transfer list moves value, it never creates it.
func ParseTransferSummary(data []byte) (*TransferSummary, error) {
	var s TransferSummary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSummary, err)
	}
	if s.TransactionBytes == "" {
		return nil, fmt.Errorf("%w: missing transactionBytes", ErrInvalidSummary)
	}
	if _, err := ValidateTransactionBytes(s.TransactionBytes); err != nil {
		return nil, err
	}

	var net int64
	for _, t := range s.Transfers {
		if t.Account == "" {
			return nil, fmt.Errorf("%w: transfer with empty account", ErrInvalidSummary)
		}
		net += t.AmountTinybars
	}
	if len(s.Transfers) > 0 && net != 0 {
		return nil, fmt.Errorf("%w: transfers net to %d tinybars, want 0", ErrInvalidSummary, net)
	}
	return &s, nil
}

// ExtractSummary pulls a transfer summary out of free-form agent output. The
// agent may surround the JSON document with prose, so the last JSON-looking
// line wins, falling back to the outermost brace pair.
func ExtractSummary(text string) (*TransferSummary, error) {
	payload, ok := extractJSON(text)
	if !ok {
		return nil, fmt.Errorf("%w: no JSON document in output", ErrInvalidSummary)
	}
	return ParseTransferSummary([]byte(payload))
}

func extractJSON(text string) (string, bool) {
	lines := strings.Split(text, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		candidate := strings.TrimSpace(lines[i])
		if strings.HasPrefix(candidate, "{") && strings.HasSuffix(candidate, "}") {
			return candidate, true
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1], true
	}
	return "", false
}
