package chains

// Event tags the closed set of inbound methods the interactor understands.
// Anything else is surfaced to the application as a custom request.
type Event string

const (
	// Session lifecycle, plus the Crypto.com extension aliases.
	EventSessionRequest   Event = "wc_sessionRequest"
	EventSessionUpdate    Event = "wc_sessionUpdate"
	EventDCSessionRequest Event = "dc_sessionRequest"
	EventDCSessionUpdate  Event = "dc_sessionUpdate"
	EventDCInstantRequest Event = "dc_instantRequest"
	EventDCKillSession    Event = "dc_killSession"

	// Ethereum family.
	EventEthSign            Event = "eth_sign"
	EventPersonalSign       Event = "personal_sign"
	EventSignTypedData      Event = "eth_signTypedData"
	EventSignTypedDataV2    Event = "eth_signTypedData_v2"
	EventSignTypedDataV3    Event = "eth_signTypedData_v3"
	EventSignTypedDataV4    Event = "eth_signTypedData_v4"
	EventEthSignTransaction Event = "eth_signTransaction"
	EventEthSendTransaction Event = "eth_sendTransaction"

	// Binance Chain.
	EventBnbSign           Event = "bnb_sign"
	EventBnbTxConfirmation Event = "bnb_tx_confirmation"

	// Trust custom methods.
	EventTrustSignTransaction Event = "trust_signTransaction"
	EventGetAccounts          Event = "get_accounts"

	// Cosmos/IBC.
	EventCosmosSendTransaction Event = "cosmos_sendTransaction"
)

// Family groups events by the handler that decodes them.
type Family int

const (
	FamilySession Family = iota
	FamilyEthereum
	FamilyBinance
	FamilyTrust
	FamilyCosmos
)

var events = map[string]Event{
	string(EventSessionRequest):        EventSessionRequest,
	string(EventSessionUpdate):         EventSessionUpdate,
	string(EventDCSessionRequest):      EventDCSessionRequest,
	string(EventDCSessionUpdate):       EventDCSessionUpdate,
	string(EventDCInstantRequest):      EventDCInstantRequest,
	string(EventDCKillSession):         EventDCKillSession,
	string(EventEthSign):               EventEthSign,
	string(EventPersonalSign):          EventPersonalSign,
	string(EventSignTypedData):         EventSignTypedData,
	string(EventSignTypedDataV2):       EventSignTypedDataV2,
	string(EventSignTypedDataV3):       EventSignTypedDataV3,
	string(EventSignTypedDataV4):       EventSignTypedDataV4,
	string(EventEthSignTransaction):    EventEthSignTransaction,
	string(EventEthSendTransaction):    EventEthSendTransaction,
	string(EventBnbSign):               EventBnbSign,
	string(EventBnbTxConfirmation):     EventBnbTxConfirmation,
	string(EventTrustSignTransaction):  EventTrustSignTransaction,
	string(EventGetAccounts):           EventGetAccounts,
	string(EventCosmosSendTransaction): EventCosmosSendTransaction,
}

// EventFromMethod maps a JSON-RPC method string to its event tag.
func EventFromMethod(method string) (Event, bool) {
	event, ok := events[method]
	return event, ok
}

// FamilyOf returns the handler family for an event.
func (e Event) FamilyOf() Family {
	switch e {
	case EventSessionRequest, EventSessionUpdate, EventDCSessionRequest,
		EventDCSessionUpdate, EventDCInstantRequest, EventDCKillSession:
		return FamilySession
	case EventBnbSign, EventBnbTxConfirmation:
		return FamilyBinance
	case EventTrustSignTransaction, EventGetAccounts:
		return FamilyTrust
	case EventCosmosSendTransaction:
		return FamilyCosmos
	default:
		return FamilyEthereum
	}
}

// IsSessionRequest reports whether the event opens a handshake.
func (e Event) IsSessionRequest() bool {
	return e == EventSessionRequest || e == EventDCSessionRequest
}

// IsSessionUpdate reports whether the event mutates an established session.
func (e Event) IsSessionUpdate() bool {
	return e == EventSessionUpdate || e == EventDCSessionUpdate
}
