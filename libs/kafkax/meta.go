package kafkax

import (
	"strings"

	"github.com/segmentio/kafka-go"
)

// EventMeta is the routing metadata carried as headers on every published
// message. Topics are per bounded context, so the topic name never stands in
// for the event type; subscribers filter on these headers instead.
type EventMeta struct {
	EventID   string
	EventType string
	Subject   string
}

func ExtractEventMeta(msg kafka.Message) EventMeta {
	meta := EventMeta{
		EventID:   HeaderValue(msg.Headers, "event_id"),
		EventType: HeaderValue(msg.Headers, "event_type"),
		Subject:   HeaderValue(msg.Headers, "subject"),
	}
	if meta.Subject == "" {
		meta.Subject = string(msg.Key)
	}
	return meta
}

func HeaderValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func SplitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
