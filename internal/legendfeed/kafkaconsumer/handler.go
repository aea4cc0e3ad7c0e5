package kafkaconsumer

import (
	"context"
	"fmt"
	"slices"

	"github.com/IBM/sarama"
)

// groupHandler feeds each claimed message to process and marks it once
// stored. joined receives the sorted partitions of each session, possibly
// none when the group has more members than partitions; left is called
// when the session ends.
type groupHandler struct {
	process func(context.Context, *sarama.ConsumerMessage) error
	joined  func([]int32)
	left    func()
}

func (h *groupHandler) Setup(sess sarama.ConsumerGroupSession) error {
	if h.joined == nil {
		return nil
	}
	var owned []int32
	for _, parts := range sess.Claims() {
		owned = append(owned, parts...)
	}
	slices.Sort(owned)
	h.joined(owned)
	return nil
}

func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	if h.left != nil {
		h.left()
	}
	return nil
}

func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := sess.Context()
	msgs := claim.Messages()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			if err := h.process(ctx, msg); err != nil {
				return fmt.Errorf("legend %s/%d@%d: %w", msg.Topic, msg.Partition, msg.Offset, err)
			}
			sess.MarkMessage(msg, "")
		}
	}
}
