package repository

import (
	"LiveChat/entity"
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// conversationDoc adds open_key, present only while the conversation is open,
// so a partial unique index can enforce one open conversation per party.
type conversationDoc struct {
	entity.Conversation `bson:",inline"`
	OpenKey             string `bson:"open_key,omitempty"`
}

func (m *MongoDB) StartConversation(ctx context.Context, conv *entity.Conversation) (*entity.Conversation, bool, error) {
	collection := m.collection(conversationsCollection)

	filter := bson.D{{"open_key", conv.PartyKey}}
	update := bson.D{{"$setOnInsert", conv}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var doc conversationDoc
	err := collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if mongo.IsDuplicateKeyError(err) {
		// a concurrent start won the upsert race
		err = collection.FindOne(ctx, filter).Decode(&doc)
	}
	if err != nil {
		return nil, false, fmt.Errorf("mongodb start conversation: %w", err)
	}
	return &doc.Conversation, doc.ID == conv.ID, nil
}

func (m *MongoDB) GetConversation(ctx context.Context, id string) (*entity.Conversation, error) {
	var doc conversationDoc
	err := m.collection(conversationsCollection).FindOne(ctx, bson.D{{"_id", id}}).Decode(&doc)
	if err != nil {
		return nil, m.findError(err, "conversation "+id)
	}
	return &doc.Conversation, nil
}

func (m *MongoDB) ListConversations(ctx context.Context, filter entity.ConversationFilter) (*entity.ConversationPage, error) {
	filter.Normalize()
	collection := m.collection(conversationsCollection)

	query := bson.D{}
	if filter.Status != "" {
		query = append(query, bson.E{Key: "status", Value: filter.Status})
	}
	if filter.AgentID != "" {
		query = append(query, bson.E{Key: "agent.id", Value: filter.AgentID})
	}

	total, err := collection.CountDocuments(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("mongodb count conversations: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{"updated_at", -1}, {"_id", 1}}).
		SetSkip(int64(filter.Offset())).
		SetLimit(int64(filter.Limit))
	cursor, err := collection.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("mongodb find conversations: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []conversationDoc
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongodb decode conversations: %w", err)
	}

	page := &entity.ConversationPage{Total: total, Page: filter.Page, Limit: filter.Limit, Items: make([]entity.Conversation, 0, len(docs))}
	for _, d := range docs {
		page.Items = append(page.Items, d.Conversation)
	}
	return page, nil
}

// ClaimConversation is a conditional update keyed on status=waiting, so only
// one of several concurrent claimants can match the document.
func (m *MongoDB) ClaimConversation(ctx context.Context, id string, agent *entity.AgentRef, now time.Time) (*entity.Conversation, error) {
	collection := m.collection(conversationsCollection)

	filter := bson.D{{"_id", id}, {"status", entity.StatusWaiting}}
	update := bson.D{{"$set", bson.D{
		{"status", entity.StatusActive},
		{"agent", agent},
		{"updated_at", now},
	}}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc conversationDoc
	err := collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if err == nil {
		return &doc.Conversation, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("mongodb claim conversation: %w", err)
	}

	current, err := m.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	return current, fmt.Errorf("conversation %s is %s: %w", id, current.Status, entity.ErrConflict)
}

func (m *MongoDB) CloseConversation(ctx context.Context, id, closedBy string, now time.Time) (*entity.Conversation, bool, error) {
	collection := m.collection(conversationsCollection)

	filter := bson.D{{"_id", id}, {"status", bson.D{{"$ne", entity.StatusClosed}}}}
	update := bson.D{
		{"$set", bson.D{
			{"status", entity.StatusClosed},
			{"closed_by", closedBy},
			{"closed_at", now},
			{"updated_at", now},
		}},
		{"$unset", bson.D{{"open_key", ""}}},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc conversationDoc
	err := collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if err == nil {
		return &doc.Conversation, true, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, fmt.Errorf("mongodb close conversation: %w", err)
	}

	current, err := m.GetConversation(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return current, false, nil
}

func (m *MongoDB) CloseConversationAs(ctx context.Context, id, agentID string, now time.Time) (*entity.Conversation, bool, error) {
	collection := m.collection(conversationsCollection)

	filter := bson.D{
		{"_id", id},
		{"$or", bson.A{
			bson.D{{"status", entity.StatusWaiting}},
			bson.D{{"status", entity.StatusActive}, {"agent.id", agentID}},
		}},
	}
	update := bson.D{
		{"$set", bson.D{
			{"status", entity.StatusClosed},
			{"closed_by", agentID},
			{"closed_at", now},
			{"updated_at", now},
		}},
		{"$unset", bson.D{{"open_key", ""}}},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc conversationDoc
	err := collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if err == nil {
		return &doc.Conversation, true, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, fmt.Errorf("mongodb close conversation: %w", err)
	}

	current, err := m.GetConversation(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if current.Status != entity.StatusClosed {
		return nil, false, fmt.Errorf("conversation %s is assigned to another agent: %w", id, entity.ErrForbidden)
	}
	return current, false, nil
}

func (m *MongoDB) ListStaleConversations(ctx context.Context, before time.Time, limit int) ([]entity.Conversation, error) {
	filter := bson.D{
		{"status", bson.D{{"$ne", entity.StatusClosed}}},
		{"updated_at", bson.D{{"$lt", before}}},
		{"$or", bson.A{
			bson.D{{"last_message_at", bson.D{{"$exists", false}}}},
			bson.D{{"last_message_at", bson.D{{"$lt", before}}}},
		}},
	}
	opts := options.Find().SetSort(bson.D{{"updated_at", 1}}).SetLimit(int64(limit))

	cursor, err := m.collection(conversationsCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("mongodb find stale conversations: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []conversationDoc
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongodb decode stale conversations: %w", err)
	}
	result := make([]entity.Conversation, 0, len(docs))
	for _, d := range docs {
		result = append(result, d.Conversation)
	}
	return result, nil
}
