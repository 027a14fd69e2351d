package kafkaconsumer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/IBM/sarama"
)

type messageProcessor func(context.Context, *sarama.ConsumerMessage) error

// groupHandler adapts a messageProcessor to a sarama consumer group session.
type groupHandler struct {
	process messageProcessor
	logger  *slog.Logger
}

func (h *groupHandler) Setup(sess sarama.ConsumerGroupSession) error {
	if h.logger != nil {
		h.logger.Info("partitions assigned",
			"member", sess.MemberID(),
			"generation", sess.GenerationID(),
			"claims", sess.Claims(),
		)
	}
	return nil
}

func (h *groupHandler) Cleanup(sess sarama.ConsumerGroupSession) error {
	if h.logger != nil {
		h.logger.Info("partitions released", "member", sess.MemberID(), "generation", sess.GenerationID())
	}
	return nil
}

// ConsumeClaim marks a message only after it was applied. A failed message
// ends the claim so the group redelivers it from the last marked offset.
func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := sess.Context()
	msgs := claim.Messages()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("claim %s/%d done: %w", claim.Topic(), claim.Partition(), ctx.Err())
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			if err := h.process(ctx, msg); err != nil {
				return fmt.Errorf("apply %s/%d@%d: %w", msg.Topic, msg.Partition, msg.Offset, err)
			}
			sess.MarkMessage(msg, "")
		}
	}
}
