package chains

import (
	"encoding/json"

	"bridgewallet.io/bridge-wallet/pkg/errors"
)

// BinanceOrder is the Binance Chain signing envelope. Msgs stay raw: the
// order body differs between trade, transfer and cancel orders and the wallet
// signs the canonical JSON as delivered.
type BinanceOrder struct {
	AccountNumber string            `json:"account_number"`
	ChainID       string            `json:"chain_id"`
	Data          string            `json:"data"`
	Memo          string            `json:"memo"`
	Sequence      string            `json:"sequence"`
	Source        string            `json:"source"`
	Msgs          []json.RawMessage `json:"msgs"`
}

// BinanceTxConfirmation is the post-broadcast confirmation param.
type BinanceTxConfirmation struct {
	Ok       bool   `json:"ok"`
	ErrorMsg string `json:"errorMsg"`
}

// Binance decodes Binance Chain requests and raises the matching callback.
type Binance struct {
	OnSign           func(id int64, order BinanceOrder)
	OnTxConfirmation func(id int64, confirmation BinanceTxConfirmation)
}

func (h *Binance) Handle(event Event, id int64, params json.RawMessage, timestamp *uint64) error {
	switch event {
	case EventBnbSign:
		var orders []BinanceOrder
		if err := json.Unmarshal(params, &orders); err != nil {
			return errors.WithKind(errors.KindBadJSONRPCRequest, errors.Wrap(err, "unmarshal bnb sign params"))
		}
		if len(orders) == 0 {
			return errors.NewKind(errors.KindBadJSONRPCRequest, "bnb_sign carries no order")
		}
		if h.OnSign != nil {
			h.OnSign(id, orders[0])
		}
		return nil
	case EventBnbTxConfirmation:
		var confirmations []BinanceTxConfirmation
		if err := json.Unmarshal(params, &confirmations); err != nil {
			return errors.WithKind(errors.KindBadJSONRPCRequest, errors.Wrap(err, "unmarshal bnb confirmation params"))
		}
		if len(confirmations) == 0 {
			return errors.NewKind(errors.KindBadJSONRPCRequest, "bnb_tx_confirmation carries no param")
		}
		if h.OnTxConfirmation != nil {
			h.OnTxConfirmation(id, confirmations[0])
		}
		return nil
	default:
		return errors.KindErrorf(errors.KindBadJSONRPCRequest, "unexpected binance event %v", event)
	}
}
