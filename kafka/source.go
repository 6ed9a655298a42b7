// Copyright 2017 Pilosa Corp.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions
// are met:
//
// 1. Redistributions of source code must retain the above copyright
// notice, this list of conditions and the following disclaimer.
//
// 2. Redistributions in binary form must reproduce the above copyright
// notice, this list of conditions and the following disclaimer in the
// documentation and/or other materials provided with the distribution.
//
// 3. Neither the name of the copyright holder nor the names of its
// contributors may be used to endorse or promote products derived
// from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND
// CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES,
// INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
// MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR
// CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
// SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING,
// BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY,
// WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING
// NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH
// DAMAGE.

package kafka

import (
	"crypto/tls"
	"io"
	"io/ioutil"
	"log"
	"sync"

	"github.com/Shopify/sarama"
	cluster "github.com/bsm/sarama-cluster"
	"github.com/mirrorworld/hstore"
	"github.com/pkg/errors"
)

// consumer is the part of *cluster.Consumer the Source uses.
type consumer interface {
	Messages() <-chan *sarama.ConsumerMessage
	MarkOffset(msg *sarama.ConsumerMessage, metadata string)
	Close() error
}

// Source implements the hstore.Source interface using kafka as a data
// source. Each message is one record whose topic is the Kafka topic it was
// consumed from.
type Source struct {
	hosts   []string
	topics  []string
	group   string
	decoder Decoder
	maxMsgs int
	numMsgs int
	tls     *tls.Config
	log     hstore.Logger

	closeOnce sync.Once
	consumer  consumer
}

// SourceOption is a functional option for NewSource.
type SourceOption func(s *Source)

// OptSourceHosts sets the brokers to connect to.
func OptSourceHosts(hosts ...string) SourceOption {
	return func(s *Source) {
		s.hosts = hosts
	}
}

// OptSourceTopics sets the topics to consume.
func OptSourceTopics(topics ...string) SourceOption {
	return func(s *Source) {
		s.topics = topics
	}
}

// OptSourceGroup sets the consumer group.
func OptSourceGroup(group string) SourceOption {
	return func(s *Source) {
		s.group = group
	}
}

// OptSourceDecoder sets how message values are decoded. JSON is the default.
func OptSourceDecoder(d Decoder) SourceOption {
	return func(s *Source) {
		s.decoder = d
	}
}

// OptSourceMaxMsgs stops the source after n messages. Zero means no limit.
func OptSourceMaxMsgs(n int) SourceOption {
	return func(s *Source) {
		s.maxMsgs = n
	}
}

// OptSourceTLS connects to the brokers over TLS. A nil config leaves TLS
// off.
func OptSourceTLS(conf *tls.Config) SourceOption {
	return func(s *Source) {
		s.tls = conf
	}
}

// OptSourceLogger sets the logger.
func OptSourceLogger(l hstore.Logger) SourceOption {
	return func(s *Source) {
		s.log = l
	}
}

// NewSource gets a new Source. It must be opened before use.
func NewSource(opts ...SourceOption) *Source {
	s := &Source{
		hosts:   []string{"localhost:9092"},
		topics:  []string{"test"},
		group:   "group0",
		decoder: JSONDecoder{},
		log:     hstore.NopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record returns the next kafka message, decoded. It returns io.EOF once
// the source has been closed or MaxMsgs is reached.
func (s *Source) Record() (hstore.Message, error) {
	if s.maxMsgs > 0 {
		s.numMsgs++
		if s.numMsgs > s.maxMsgs {
			return hstore.Message{}, io.EOF
		}
	}
	msg, ok := <-s.consumer.Messages()
	if !ok {
		return hstore.Message{}, io.EOF
	}
	// mark before decoding so an undecodable message isn't redelivered forever
	s.consumer.MarkOffset(msg, "")
	data, err := s.decoder.Decode(msg.Value)
	if err != nil {
		return hstore.Message{}, errors.Wrapf(err, "decoding message at %s/%d/%d", msg.Topic, msg.Partition, msg.Offset)
	}
	return hstore.Message{Topic: msg.Topic, Data: data}, nil
}

// Open connects to the brokers and joins the consumer group.
func (s *Source) Open() error {
	sarama.Logger = log.New(ioutil.Discard, "", 0)
	config := cluster.NewConfig()
	config.Config.Version = sarama.V0_10_0_0
	config.Consumer.Return.Errors = true
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	config.Group.Return.Notifications = true
	if s.tls != nil {
		config.Net.TLS.Enable = true
		config.Net.TLS.Config = s.tls
	}

	c, err := cluster.NewConsumer(s.hosts, s.group, s.topics, config)
	if err != nil {
		return errors.Wrap(err, "getting new consumer")
	}
	s.consumer = c

	go func() {
		for err := range c.Errors() {
			s.log.Printf("kafka consumer error: %v", err)
		}
	}()
	go func() {
		for ntf := range c.Notifications() {
			s.log.Printf("rebalanced: %+v", ntf)
		}
	}()
	return nil
}

// Close closes the underlying kafka consumer, which makes Record return
// io.EOF once buffered messages are consumed.
func (s *Source) Close() (err error) {
	if s.consumer == nil {
		return nil
	}
	s.closeOnce.Do(func() {
		err = errors.Wrap(s.consumer.Close(), "closing kafka consumer")
	})
	return err
}
