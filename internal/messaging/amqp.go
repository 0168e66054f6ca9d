package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/streadway/amqp"

	"github.com/MikeMC777/storefront/internal/order"
)

// AMQPPublisher sends order events to a durable topic exchange using the
// event type as routing key.
type AMQPPublisher struct {
	exchange string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func DialAMQP(url, exchange string, retries int, delay time.Duration) (*AMQPPublisher, error) {
	if retries < 1 {
		retries = 1
	}
	var (
		conn *amqp.Connection
		err  error
	)
	for i := 0; i < retries; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			break
		}
		log.Printf("[amqp] connect attempt %d/%d: %v", i+1, retries, err)
		if i < retries-1 {
			time.Sleep(delay)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	log.Printf("[amqp] connected exchange=%s", exchange)
	return &AMQPPublisher{exchange: exchange, conn: conn, ch: ch}, nil
}

func publishing(ev order.Event) (amqp.Publishing, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("encode event: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.ID,
		Timestamp:    ev.OccurredAt,
		Type:         string(ev.Type),
		Headers: amqp.Table{
			"order_id":   ev.OrderID,
			"user_id":    ev.UserID,
			"event_type": string(ev.Type),
		},
	}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, ev order.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := publishing(ev)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ch.Publish(p.exchange, string(ev.Type), false, false, msg); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
