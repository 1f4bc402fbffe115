package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gclaussn/go-extask/client"
	"github.com/gclaussn/go-extask/engine"
	"github.com/gclaussn/go-extask/worker"
)

func main() {
	config, err := client.ReadConfig(os.Getenv("GO_EXTASK_CONFIG_FILE"))
	if err != nil {
		log.Fatal(err)
	}

	c, err := client.NewFromConfig(config)
	if err != nil {
		log.Fatalf("failed to create client: %v", err)
	}

	defer c.Shutdown()

	_, err = c.SubscribeToTopic(topicInvoice, worker.HandlerFunc[order, invoice](createInvoice), config.WorkerOptions(), func(o *worker.Options) {
		o.OnExecutionFailure = func(task engine.ExternalTask, err error) {
			log.Printf("failed to execute task %s: %v", task, err)
		}
	})
	if err != nil {
		log.Fatalf("failed to subscribe to topic %s: %v", topicInvoice, err)
	}

	ticker := time.NewTicker(time.Second)

	tickerCtx, tickerCancel := context.WithCancel(context.Background())
	go func() {
		i := 0
		for {
			select {
			case <-ticker.C:
				i++

				payload, _ := json.Marshal(order{OrderId: strconv.Itoa(i), Amount: i * 10})

				task, err := c.Engine().CreateExternalTask(tickerCtx, engine.CreateExternalTaskCmd{
					CorrelationId: strconv.Itoa(i),
					Payload:       payload,
					Topic:         topicInvoice,
				})
				if err != nil {
					log.Printf("failed to create task: %v", err)
					continue
				}

				log.Printf("created task %s", task)
			case <-tickerCtx.Done():
				return
			}
		}
	}()

	signalC := make(chan os.Signal, 1)
	signal.Notify(signalC, os.Interrupt, syscall.SIGTERM)

	<-signalC

	ticker.Stop()
	tickerCancel()
}
