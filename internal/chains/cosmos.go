package chains

import (
	"encoding/json"

	"bridgewallet.io/bridge-wallet/pkg/errors"
)

// IBCTransaction is a Cosmos/IBC signing request. SignDoc stays raw: it is a
// chain-specific document the signer serializes canonically.
type IBCTransaction struct {
	SignerAddress string          `json:"signerAddress"`
	SignDoc       json.RawMessage `json:"signDoc"`
}

// Cosmos decodes IBC transaction requests and raises the callback.
type Cosmos struct {
	OnTransaction func(id int64, tx IBCTransaction, timestamp *uint64)
}

func (h *Cosmos) Handle(event Event, id int64, params json.RawMessage, timestamp *uint64) error {
	var txs []IBCTransaction
	if err := json.Unmarshal(params, &txs); err != nil {
		return errors.WithKind(errors.KindBadJSONRPCRequest, errors.Wrap(err, "unmarshal ibc transaction params"))
	}
	if len(txs) == 0 {
		return errors.NewKind(errors.KindBadJSONRPCRequest, "cosmos_sendTransaction carries no transaction")
	}
	if h.OnTransaction != nil {
		h.OnTransaction(id, txs[0], timestamp)
	}
	return nil
}
