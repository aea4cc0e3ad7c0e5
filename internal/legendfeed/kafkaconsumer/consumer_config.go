package kafkaconsumer

import (
	"time"

	"github.com/IBM/sarama"
)

type Config struct {
	Brokers             []string
	Topic               string
	GroupID             string
	ClientID            string
	SessionTimeout      time.Duration
	Heartbeat           time.Duration
	RebalanceTimeout    time.Duration
	InitialOffsetOldest bool
	// MaxBackoff caps the wait between failed group sessions
	MaxBackoff time.Duration
}

// NewConfig fills the group timings for a feed on topic. Reading from the
// newest offset is the default since legends older than the freshness
// window are dropped anyway.
func NewConfig(brokers []string, topic, groupID string) Config {
	return Config{
		Brokers:          brokers,
		Topic:            topic,
		GroupID:          groupID,
		ClientID:         "enermaps-wms",
		SessionTimeout:   30 * time.Second,
		Heartbeat:        3 * time.Second,
		RebalanceTimeout: 30 * time.Second,
		MaxBackoff:       30 * time.Second,
	}
}

func (c Config) sarama() *sarama.Config {
	sc := sarama.NewConfig()
	sc.Version = sarama.V2_1_0_0
	if c.ClientID != "" {
		sc.ClientID = c.ClientID
	}
	sc.Consumer.Group.Session.Timeout = c.SessionTimeout
	sc.Consumer.Group.Heartbeat.Interval = c.Heartbeat
	sc.Consumer.Group.Rebalance.Timeout = c.RebalanceTimeout
	sc.Consumer.Offsets.Initial = sarama.OffsetNewest
	if c.InitialOffsetOldest {
		sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	}
	sc.Consumer.Offsets.AutoCommit.Enable = true
	return sc
}
