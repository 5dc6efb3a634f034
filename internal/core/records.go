package core

import (
	"context"
	"encoding/json"
	"fmt"

	"permitdesk/pkg/domain"
)

// Typed codec helpers over the raw entity store. Every service operation
// goes through these so the JSON shape of a collection is decided in exactly
// one place.

func getProject(ctx context.Context, store domain.EntityStore, ownerID, projectID string) (domain.Project, error) {
	raw, err := store.Get(ctx, domain.ProjectsOf(ownerID), projectID)
	if err != nil {
		return domain.Project{}, err
	}
	var p domain.Project
	if err := json.Unmarshal(raw, &p); err != nil {
		return domain.Project{}, fmt.Errorf("decode project %s: %w", projectID, err)
	}
	return p, nil
}

func putProject(ctx context.Context, store domain.EntityStore, p domain.Project) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode project %s: %w", p.ID, err)
	}
	return store.Put(ctx, domain.ProjectsOf(p.OwnerID), p.ID, raw)
}

// putProjectIfReviewer writes the project conditionally on the stored
// reviewer still being expect ("" = unassigned) when the store supports
// conditional writes, and unconditionally otherwise.
func putProjectIfReviewer(ctx context.Context, store domain.EntityStore, p domain.Project, expect string) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode project %s: %w", p.ID, err)
	}
	if cs, ok := store.(domain.ConditionalStore); ok {
		return cs.PutIfMatch(ctx, domain.ProjectsOf(p.OwnerID), p.ID, raw, "reviewer", expect)
	}
	return store.Put(ctx, domain.ProjectsOf(p.OwnerID), p.ID, raw)
}

func decodeProjects(records []domain.Record) ([]domain.Project, error) {
	out := make([]domain.Project, 0, len(records))
	for _, rec := range records {
		var p domain.Project
		if err := json.Unmarshal(rec.Data, &p); err != nil {
			return nil, fmt.Errorf("decode project %s: %w", rec.ID, err)
		}
		out = append(out, p)
	}
	return out, nil
}

func getPermit(ctx context.Context, store domain.EntityStore, permitID string) (domain.Permit, error) {
	raw, err := store.Get(ctx, domain.Permits(), permitID)
	if err != nil {
		return domain.Permit{}, err
	}
	var p domain.Permit
	if err := json.Unmarshal(raw, &p); err != nil {
		return domain.Permit{}, fmt.Errorf("decode permit %s: %w", permitID, err)
	}
	return p, nil
}

func putPermit(ctx context.Context, store domain.EntityStore, p domain.Permit) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode permit %s: %w", p.ID, err)
	}
	return store.Put(ctx, domain.Permits(), p.ID, raw)
}

func putPermitIfReviewer(ctx context.Context, store domain.EntityStore, p domain.Permit, expect string) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode permit %s: %w", p.ID, err)
	}
	if cs, ok := store.(domain.ConditionalStore); ok {
		return cs.PutIfMatch(ctx, domain.Permits(), p.ID, raw, "reviewer", expect)
	}
	return store.Put(ctx, domain.Permits(), p.ID, raw)
}

func decodePermits(records []domain.Record) ([]domain.Permit, error) {
	out := make([]domain.Permit, 0, len(records))
	for _, rec := range records {
		var p domain.Permit
		if err := json.Unmarshal(rec.Data, &p); err != nil {
			return nil, fmt.Errorf("decode permit %s: %w", rec.ID, err)
		}
		out = append(out, p)
	}
	return out, nil
}

func getUser(ctx context.Context, store domain.EntityStore, userID string) (domain.User, error) {
	raw, err := store.Get(ctx, domain.Users(), userID)
	if err != nil {
		return domain.User{}, err
	}
	var u domain.User
	if err := json.Unmarshal(raw, &u); err != nil {
		return domain.User{}, fmt.Errorf("decode user %s: %w", userID, err)
	}
	return u, nil
}

func putUser(ctx context.Context, store domain.EntityStore, u domain.User) error {
	raw, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("encode user %s: %w", u.ID, err)
	}
	return store.Put(ctx, domain.Users(), u.ID, raw)
}

func putDocument(ctx context.Context, store domain.EntityStore, p domain.CollectionPath, d domain.Document) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode document %s: %w", d.ID, err)
	}
	return store.Put(ctx, p, d.ID, raw)
}

func getDocument(ctx context.Context, store domain.EntityStore, p domain.CollectionPath, docID string) (domain.Document, error) {
	raw, err := store.Get(ctx, p, docID)
	if err != nil {
		return domain.Document{}, err
	}
	var d domain.Document
	if err := json.Unmarshal(raw, &d); err != nil {
		return domain.Document{}, fmt.Errorf("decode document %s: %w", docID, err)
	}
	return d, nil
}

func listDocuments(ctx context.Context, store domain.EntityStore, p domain.CollectionPath) ([]domain.Document, error) {
	records, err := store.List(ctx, p, domain.Query{})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Document, 0, len(records))
	for _, rec := range records {
		var d domain.Document
		if err := json.Unmarshal(rec.Data, &d); err != nil {
			return nil, fmt.Errorf("decode document %s: %w", rec.ID, err)
		}
		out = append(out, d)
	}
	return out, nil
}

func putComment(ctx context.Context, store domain.EntityStore, p domain.CollectionPath, c domain.Comment) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode comment %s: %w", c.ID, err)
	}
	return store.Put(ctx, p, c.ID, raw)
}

func listComments(ctx context.Context, store domain.EntityStore, p domain.CollectionPath) ([]domain.Comment, error) {
	records, err := store.List(ctx, p, domain.Query{})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Comment, 0, len(records))
	for _, rec := range records {
		var c domain.Comment
		if err := json.Unmarshal(rec.Data, &c); err != nil {
			return nil, fmt.Errorf("decode comment %s: %w", rec.ID, err)
		}
		out = append(out, c)
	}
	return out, nil
}

func putNotification(ctx context.Context, store domain.EntityStore, n domain.Notification) error {
	raw, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification %s: %w", n.ID, err)
	}
	return store.Put(ctx, domain.NotificationsOf(n.UserID), n.ID, raw)
}

func listNotifications(ctx context.Context, store domain.EntityStore, userID string) ([]domain.Notification, error) {
	records, err := store.List(ctx, domain.NotificationsOf(userID), domain.Query{})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Notification, 0, len(records))
	for _, rec := range records {
		var n domain.Notification
		if err := json.Unmarshal(rec.Data, &n); err != nil {
			return nil, fmt.Errorf("decode notification %s: %w", rec.ID, err)
		}
		out = append(out, n)
	}
	return out, nil
}
