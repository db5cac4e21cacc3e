package nats

import (
	"github.com/stardustagi/ChatRelay/libs/logs"
)

func (s *NatsConnection) Publish(subject string, data []byte) error {
	if subject == "" {
		return errEmptySubject
	}
	var err error
	if s.useStream {
		_, err = s.js.Publish(subject, data)
	} else {
		err = s.conn.Publish(subject, data)
	}
	if err != nil {
		s.logger.Error("Failed to publish message",
			logs.String("subject", subject),
			logs.Bool("jetstream", s.useStream),
			logs.ErrorInfo(err))
	}
	return err
}

func (s *NatsConnection) PublishAsync(subject string, data []byte) error {
	if !s.useStream {
		return s.Publish(subject, data) // 降级到同步发布
	}
	_, err := s.js.PublishAsync(subject, data)
	if err != nil {
		s.logger.Error("Failed to publish async message",
			logs.String("subject", subject),
			logs.ErrorInfo(err))
	}
	return err
}
