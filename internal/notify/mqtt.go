// Package notify は撮影セッションのイベントを外部へ通知する
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"photobooth/internal/config"
	"photobooth/internal/session"
)

// Publisher はトピックにメッセージを送る
type Publisher interface {
	Publish(topic string, qos byte, payload []byte) error
}

// Emitter はセッションイベントをMQTTのトピックへ送る
// イベントはキューに積み、Runのgoroutineで順に送信する
type Emitter struct {
	publisher Publisher
	topic     string
	qos       byte

	queue chan session.Event

	mu        sync.RWMutex
	published uint64
	dropped   uint64
	errors    uint64
}

// NewEmitter は新しいEmitterを作成する
func NewEmitter(publisher Publisher, topic string, qos byte) *Emitter {
	return &Emitter{
		publisher: publisher,
		topic:     topic,
		qos:       qos,
		queue:     make(chan session.Event, 64),
	}
}

// OnEvent はイベントを送信キューに積む
// キューが一杯の場合は捨てる
func (e *Emitter) OnEvent(event session.Event) {
	select {
	case e.queue <- event:
	default:
		e.mu.Lock()
		e.dropped++
		e.mu.Unlock()
	}
}

// Run はctxが終わるまでキューのイベントを送信する
func (e *Emitter) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-e.queue:
			if err := e.publish(event); err != nil {
				log.Printf("イベント %s の通知に失敗: %v", event.Type, err)
			}
		}
	}
}

func (e *Emitter) publish(event session.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		e.countError()
		return fmt.Errorf("イベントのJSON変換に失敗: %w", err)
	}

	// トピック: {topic}/{イベント種別}
	topic := fmt.Sprintf("%s/%s", e.topic, event.Type)
	if err := e.publisher.Publish(topic, e.qos, payload); err != nil {
		e.countError()
		return err
	}

	e.mu.Lock()
	e.published++
	e.mu.Unlock()
	return nil
}

func (e *Emitter) countError() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errors++
}

// Stats は送信件数、破棄件数、エラー件数を返す
func (e *Emitter) Stats() (published, dropped, errors uint64) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.published, e.dropped, e.errors
}

// connectTimeout はブローカーへの初回接続を待つ時間
const connectTimeout = 5 * time.Second

// MQTTPublisher はpahoクライアントでメッセージを送る
type MQTTPublisher struct {
	client mqtt.Client

	mu        sync.RWMutex
	connected bool
}

// Connect はブローカーに接続する
func Connect(ctx context.Context, cfg config.MQTTConfig) (*MQTTPublisher, error) {
	p := &MQTTPublisher{}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(mqtt.Client) {
		p.setConnected(true)
		log.Printf("MQTTブローカーに接続しました: %s", cfg.Broker)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		p.setConnected(false)
		log.Printf("MQTTブローカーとの接続が切れました（自動再接続します）: %v", err)
	}

	p.client = mqtt.NewClient(opts)

	if err := p.connect(ctx, cfg.Broker, connectTimeout); err != nil {
		return nil, err
	}

	p.setConnected(true)
	return p, nil
}

// connect は接続の完了を待つ
// 待ちきれなかった場合は裏で続いている接続の試行を止める
func (p *MQTTPublisher) connect(ctx context.Context, broker string, timeout time.Duration) error {
	token := p.client.Connect()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
	case <-ctx.Done():
		p.client.Disconnect(0)
		return fmt.Errorf("MQTT接続を中断しました: %w", ctx.Err())
	case <-timer.C:
		p.client.Disconnect(0)
		return fmt.Errorf("MQTT接続がタイムアウトしました: %s", broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("MQTT接続に失敗: %w", err)
	}
	return nil
}

// Publish はメッセージを送信する
func (p *MQTTPublisher) Publish(topic string, qos byte, payload []byte) error {
	if !p.isConnected() {
		return fmt.Errorf("MQTTブローカーに接続されていません")
	}

	token := p.client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		return fmt.Errorf("MQTT送信がタイムアウトしました: %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("MQTT送信に失敗: %w", err)
	}
	return nil
}

// Close は接続を閉じる
func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
	p.setConnected(false)
}

func (p *MQTTPublisher) setConnected(connected bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = connected
}

func (p *MQTTPublisher) isConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected
}
