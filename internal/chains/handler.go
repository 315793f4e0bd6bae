package chains

import (
	"encoding/json"
)

// Handler decodes the params of one chain family and raises its typed
// callbacks. Handlers are stateless; they hold only the callbacks the
// application attached.
type Handler interface {
	Handle(event Event, id int64, params json.RawMessage, timestamp *uint64) error
}

var (
	_ Handler = (*Ethereum)(nil)
	_ Handler = (*Binance)(nil)
	_ Handler = (*Trust)(nil)
	_ Handler = (*Cosmos)(nil)
)
