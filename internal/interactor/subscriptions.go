package interactor

import (
	"sync"

	set "gopkg.in/fatih/set.v0"
)

// subscriptions is the set of topics this client has subscribed on the
// bridge. Membership is decided under the mutex; the caller performs the
// socket write after the mutex is released.
type subscriptions struct {
	lock   sync.Mutex
	topics set.Interface
}

func newSubscriptions() *subscriptions {
	return &subscriptions{topics: set.New(set.NonThreadSafe)}
}

// Add inserts the topic and reports whether it was absent. A false return
// means the sub frame was already sent for this connection.
func (s *subscriptions) Add(topic string) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.topics.Has(topic) {
		return false
	}
	s.topics.Add(topic)
	return true
}

// Reset clears the set so reconnection re-subscribes every topic.
func (s *subscriptions) Reset() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.topics.Clear()
}

func (s *subscriptions) Size() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.topics.Size()
}
