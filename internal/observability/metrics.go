package observability

import "github.com/prometheus/client_golang/prometheus"

// Friend request workflow outcomes recorded by RecordFriendRequest.
const (
	FriendRequestSent     = "sent"
	FriendRequestAccepted = "accepted"
	FriendRequestRejected = "rejected" // a business rule refused the call
)

var (
	friendRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lingo_friend_requests_total",
			Help: "Friend request workflow calls by outcome and reason.",
		},
		[]string{"outcome", "reason"},
	)

	accountEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lingo_account_events_total",
			Help: "Account lifecycle events (signup, login, onboard) by result.",
		},
		[]string{"event", "result"},
	)

	chatSyncFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lingo_chat_sync_failures_total",
			Help: "Failed user upserts to the chat provider.",
		},
	)
)

func init() {
	prometheus.MustRegister(friendRequests, accountEvents, chatSyncFailures)
}

// RecordFriendRequest counts one workflow call. reason is empty on success.
func RecordFriendRequest(outcome, reason string) {
	friendRequests.WithLabelValues(outcome, reason).Inc()
}

// RecordAccountEvent counts an account event with result "ok" or "error".
func RecordAccountEvent(event string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	accountEvents.WithLabelValues(event, result).Inc()
}

// RecordChatSyncFailure counts a failed upsert to the chat provider.
func RecordChatSyncFailure() { chatSyncFailures.Inc() }
