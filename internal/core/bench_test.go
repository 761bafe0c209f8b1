package core

import (
	"context"
	"strconv"
	"testing"

	"github.com/vovakirdan/wirerelay/internal/proto"
)

func benchmarkBusFanOut(b *testing.B, recipients int) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := NewBus(1024)

	subs := make([]*Subscription, 0, recipients)
	for i := range recipients {
		subs = append(subs, bus.Subscribe("peer-"+strconv.Itoa(i)))
	}

	// Drain all but the first subscriber in the background.
	target := subs[0]
	for _, s := range subs[1:] {
		go func(sub *Subscription) {
			for {
				if _, err := sub.Next(ctx); err != nil {
					return
				}
			}
		}(s)
	}

	env := Envelope{Origin: "sender", Identifier: "sender", Message: proto.Text("payload")}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		bus.Publish(env)
		if _, err := target.Next(ctx); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkBusFanOut_10(b *testing.B)  { benchmarkBusFanOut(b, 10) }
func BenchmarkBusFanOut_100(b *testing.B) { benchmarkBusFanOut(b, 100) }
func BenchmarkBusFanOut_500(b *testing.B) { benchmarkBusFanOut(b, 500) }
