package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	statechartx "github.com/comalice/scxmlrt"
	"github.com/comalice/scxmlrt/internal/model"
	"github.com/comalice/scxmlrt/internal/production"
	"github.com/comalice/scxmlrt/internal/queue"
)

func buildTrafficLight() (*model.Graph, error) {
	b := model.NewBuilder("traffic")
	b.Initial("red")
	b.Leaf("red", model.Atomic).In("red", func(b *model.Builder) {
		b.On("TIMER", "", nil, "green")
	})
	b.Leaf("green", model.Atomic).In("green", func(b *model.Builder) {
		b.On("TIMER", "", nil, "yellow")
	})
	b.Leaf("yellow", model.Atomic).In("yellow", func(b *model.Builder) {
		b.On("TIMER", "", nil, "red")
	})
	return b.Finalize()
}

func main() {
	graph, err := buildTrafficLight()
	if err != nil {
		panic(err)
	}

	persister, err := production.NewJSONPersister("/tmp")
	if err != nil {
		panic(err)
	}

	publishChan := make(chan production.PublishedEvent, 100)
	publisher := production.NewChannelPublisher(publishChan)
	defer publisher.Close()

	visualizer := &production.DefaultVisualizer{}

	driver := statechartx.NewDriver()
	sess, err := driver.Create("traffic-light", graph, statechartx.Options{})
	if err != nil {
		panic(err)
	}

	ctx := context.Background()
	if err := sess.Start(ctx); err != nil {
		panic(err)
	}

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	cycles := 0
	for {
		select {
		case <-ticker.C:
			before := sess.Configuration()
			if err := sess.PushEvent(queue.Event{Name: "TIMER"}); err != nil {
				fmt.Printf("push_event error: %v\n", err)
				continue
			}
			if err := sess.RunUntilIdle(ctx); err != nil {
				fmt.Printf("run_until_idle error: %v\n", err)
				continue
			}

			fmt.Printf("\n--- Cycle %d ---\n", cycles+1)
			fmt.Println("Current states:", sess.Configuration())
			fmt.Println("DOT:\n" + visualizer.ExportDOT(graph, sess.Configuration()))

			snap := sess.Snapshot()
			if err := persister.Save(ctx, snap); err != nil {
				fmt.Printf("persist error: %v\n", err)
			}
			_ = publisher.Publish(ctx, queue.Event{Name: "TIMER"}, production.SessionMetadata{
				SessionID:  sess.ID(),
				Transition: fmt.Sprintf("%v -> %v", before, sess.Configuration()),
				Timestamp:  time.Now(),
			})
			select {
			case pubEvent := <-publishChan:
				fmt.Printf("Published: %s (%s)\n", pubEvent.Metadata.Transition, pubEvent.Event.Name)
			default:
			}

			cycles++
			if cycles >= 12 {
				fmt.Println("Demo complete after 12 cycles.")
				return
			}
		case <-sig:
			fmt.Println("\nShutting down gracefully...")
			return
		}
	}
}
