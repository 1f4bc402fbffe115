package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/gclaussn/go-extask/engine"
	"github.com/gclaussn/go-extask/worker"
)

const topicInvoice = "invoice"

type order struct {
	OrderId string `json:"orderId"`
	Amount  int    `json:"amount"`
}

type invoice struct {
	InvoiceId string `json:"invoiceId"`
	Amount    int    `json:"amount"`
}

func createInvoice(_ context.Context, o order, task engine.ExternalTask) (invoice, error) {
	if o.OrderId == "" {
		return invoice{}, worker.NewBpmnError("ORDER_NOT_FOUND")
	}
	if o.Amount < 0 {
		return invoice{}, worker.NewServiceError(errors.New("amount must not be negative"), task.String())
	}

	return invoice{
		InvoiceId: fmt.Sprintf("invoice-%s", o.OrderId),
		Amount:    o.Amount,
	}, nil
}
