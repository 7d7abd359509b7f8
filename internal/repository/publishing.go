package repository

import (
	"context"
	"log/slog"

	"github.com/vedran77/rentals/internal/domain"
	"github.com/vedran77/rentals/internal/realtime"
)

// Publishing wraps a DocumentStore and publishes a realtime event after each
// successful write. Publish failures are logged and never fail the write.
type Publishing struct {
	DocumentStore
	Bus    realtime.Bus
	Logger *slog.Logger
}

func NewPublishing(store DocumentStore, bus realtime.Bus, logger *slog.Logger) *Publishing {
	return &Publishing{DocumentStore: store, Bus: bus, Logger: logger}
}

func (p *Publishing) Create(ctx context.Context, collection, id string, data any, perms []domain.Permission) (*Document, error) {
	doc, err := p.DocumentStore.Create(ctx, collection, id, data, perms)
	if err != nil {
		return nil, err
	}
	p.publish(ctx, doc, "create")
	return doc, nil
}

func (p *Publishing) Update(ctx context.Context, collection, id string, patch any, perms []domain.Permission) (*Document, error) {
	doc, err := p.DocumentStore.Update(ctx, collection, id, patch, perms)
	if err != nil {
		return nil, err
	}
	p.publish(ctx, doc, "update")
	return doc, nil
}

func (p *Publishing) Delete(ctx context.Context, collection, id string) error {
	doc, err := p.DocumentStore.Get(ctx, collection, id)
	if err != nil {
		return err
	}
	if err := p.DocumentStore.Delete(ctx, collection, id); err != nil {
		return err
	}
	p.publish(ctx, doc, "delete")
	return nil
}

func (p *Publishing) publish(ctx context.Context, doc *Document, action string) {
	payload, err := doc.Payload()
	if err != nil {
		p.Logger.Error("Could not encode realtime payload", "collection", doc.Collection, "id", doc.ID, "error", err.Error())
		return
	}
	evt := realtime.NewDocumentEvent(doc.Collection, doc.ID, action, payload, doc.Permissions)
	if err := p.Bus.Publish(context.WithoutCancel(ctx), evt); err != nil {
		p.Logger.Error("Could not publish realtime event", "collection", doc.Collection, "id", doc.ID, "error", err.Error())
	}
}
