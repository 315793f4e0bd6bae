package chains

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"bridgewallet.io/bridge-wallet/pkg/errors"
)

// Transaction is the WalletConnect ethereum transaction param.
type Transaction struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Nonce    string `json:"nonce"`
	GasPrice string `json:"gasPrice"`
	Gas      string `json:"gas"`
	GasLimit string `json:"gasLimit"`
	Value    string `json:"value"`
	Data     string `json:"data"`
}

// SignPayload is a decoded signing request. Address and Message hold the two
// positional params with the per-method ordering already normalized.
type SignPayload struct {
	Event   Event
	Address string
	Message string
	// Raw keeps every positional param in order: string elements unquoted,
	// other elements (typed-data objects) as their compact JSON text.
	Raw []string
}

// Ethereum decodes generic ethereum sign and transaction requests and raises
// the matching callback. Stateless; safe to share across sessions.
type Ethereum struct {
	OnSign        func(id int64, payload SignPayload)
	OnTransaction func(id int64, tx Transaction, event Event, timestamp *uint64)
}

func (h *Ethereum) Handle(event Event, id int64, params json.RawMessage, timestamp *uint64) error {
	switch event {
	case EventEthSignTransaction, EventEthSendTransaction:
		return h.handleTransaction(event, id, params, timestamp)
	default:
		return h.handleSign(event, id, params)
	}
}

func (h *Ethereum) handleSign(event Event, id int64, params json.RawMessage) error {
	fields, err := stringParams(params)
	if err != nil {
		return err
	}
	if len(fields) < 2 {
		return errors.KindErrorf(errors.KindBadJSONRPCRequest, "%v expects two params, got %v", event, len(fields))
	}
	payload := SignPayload{Event: event, Raw: fields}
	// personal_sign carries [data, address]; every other variant leads
	// with the address.
	if event == EventPersonalSign {
		payload.Address = fields[1]
		payload.Message = fields[0]
	} else {
		payload.Address = fields[0]
		payload.Message = fields[1]
	}
	if h.OnSign != nil {
		h.OnSign(id, payload)
	}
	return nil
}

func (h *Ethereum) handleTransaction(event Event, id int64, params json.RawMessage, timestamp *uint64) error {
	var txs []Transaction
	if err := json.Unmarshal(params, &txs); err != nil {
		return errors.WithKind(errors.KindBadJSONRPCRequest, errors.Wrap(err, "unmarshal transaction params"))
	}
	if len(txs) == 0 {
		return errors.KindErrorf(errors.KindBadJSONRPCRequest, "%v carries no transaction", event)
	}
	if h.OnTransaction != nil {
		h.OnTransaction(id, txs[0], event, timestamp)
	}
	return nil
}

// stringParams decodes a positional param array, tolerating non-string
// elements (typed-data objects) by keeping their compact JSON text.
func stringParams(params json.RawMessage) ([]string, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(params, &raw); err != nil {
		return nil, errors.WithKind(errors.KindBadJSONRPCRequest, errors.Wrap(err, "unmarshal positional params"))
	}
	fields := make([]string, 0, len(raw))
	for _, elem := range raw {
		var s string
		if err := json.Unmarshal(elem, &s); err != nil {
			s = string(elem)
		}
		fields = append(fields, s)
	}
	return fields, nil
}

// IsHexAddress reports whether the param looks like an ethereum address.
func IsHexAddress(address string) bool {
	return common.IsHexAddress(address)
}

// VerifyPersonalSign checks an eth_sign/personal_sign result against the
// requesting address: EIP-191 hash, yellow-paper V normalization, pubkey
// recovery.
func VerifyPersonalSign(signAddrHex, signatureHex string, msg []byte) bool {
	sig, err := hexutil.Decode(signatureHex)
	if err != nil {
		return false
	}
	if len(sig) != crypto.SignatureLength {
		return false
	}
	msg = accounts.TextHash(msg)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27 // Transform yellow paper V from 27/28 to 0/1
	}
	recovered, err := crypto.SigToPub(msg, sig)
	if err != nil {
		return false
	}
	recoveredAddr := crypto.PubkeyToAddress(*recovered)
	return common.HexToAddress(signAddrHex) == recoveredAddr
}
