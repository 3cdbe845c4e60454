package kafka_test

import (
	"context"
	"encoding/json"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/papercomputeco/chatrelay/pkg/eventstream"
	"github.com/papercomputeco/chatrelay/pkg/eventstream/kafka"
	"github.com/papercomputeco/chatrelay/pkg/logger"
)

type fakeWriter struct {
	messages []kafkago.Message
	err      error
	closes   int
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closes++
	return nil
}

var _ = Describe("Publisher", func() {
	var (
		writer *fakeWriter
		p      *kafka.Publisher
		event  *eventstream.SessionCompletedEvent
	)

	BeforeEach(func() {
		writer = &fakeWriter{}
		p = kafka.NewPublisherWithWriter(writer, "chat-sessions", logger.Nop())
		event = eventstream.NewSessionCompletedEvent(
			eventstream.EventSource{Service: "chatrelay", Provider: "glm", Model: "glm-4.6v"},
			eventstream.RequestMeta{SessionID: "sess-42", Streaming: true},
			eventstream.SessionResult{Outcome: eventstream.OutcomeDone, Chunks: 3},
		)
	})

	Describe("NewPublisher", func() {
		It("requires brokers", func() {
			_, err := kafka.NewPublisher(kafka.Config{Topic: "t"}, logger.Nop())
			Expect(err).To(MatchError(ContainSubstring("no brokers")))
		})

		It("requires a topic", func() {
			_, err := kafka.NewPublisher(kafka.Config{Brokers: []string{"localhost:9092"}}, logger.Nop())
			Expect(err).To(MatchError(ContainSubstring("no topic")))
		})

		It("builds a lazy writer without connecting", func() {
			pub, err := kafka.NewPublisher(kafka.Config{Brokers: []string{"localhost:9092"}, Topic: "t"}, logger.Nop())
			Expect(err).NotTo(HaveOccurred())
			Expect(pub.Close()).To(Succeed())
		})
	})

	It("writes the event as JSON keyed by session", func() {
		Expect(p.PublishSession(context.Background(), event)).To(Succeed())
		Expect(writer.messages).To(HaveLen(1))

		msg := writer.messages[0]
		Expect(string(msg.Key)).To(Equal("sess-42"))
		Expect(msg.Headers).To(ContainElement(kafkago.Header{Key: "content-type", Value: []byte("application/json")}))

		var decoded eventstream.SessionCompletedEvent
		Expect(json.Unmarshal(msg.Value, &decoded)).To(Succeed())
		Expect(decoded.EventID).To(Equal(event.EventID))
		Expect(decoded.Result.Chunks).To(Equal(3))
	})

	It("rejects nil events", func() {
		Expect(p.PublishSession(context.Background(), nil)).To(MatchError(eventstream.ErrNilSessionEvent))
	})

	It("wraps writer errors", func() {
		writer.err = errors.New("broker unavailable")
		err := p.PublishSession(context.Background(), event)
		Expect(err).To(MatchError(ContainSubstring("chat-sessions")))
		Expect(errors.Is(err, writer.err)).To(BeTrue())
	})

	It("closes once and refuses later publishes", func() {
		Expect(p.Close()).To(Succeed())
		Expect(p.Close()).To(Succeed())
		Expect(writer.closes).To(Equal(1))
		Expect(p.PublishSession(context.Background(), event)).To(HaveOccurred())
	})
})
