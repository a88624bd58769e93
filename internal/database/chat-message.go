package repository

import (
	"LiveChat/entity"
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// AppendMessage refreshes the summary of an open conversation and then
// inserts the message. Without multi-document transactions the open check and
// the insert are two writes; the summary update doubles as the open check.
func (m *MongoDB) AppendMessage(ctx context.Context, msg *entity.Message) (*entity.Conversation, error) {
	conversations := m.collection(conversationsCollection)

	filter := bson.D{{"_id", msg.ConversationID}, {"status", bson.D{{"$ne", entity.StatusClosed}}}}
	update := bson.D{{"$set", bson.D{
		{"last_message", msg.Body},
		{"last_message_at", msg.CreatedAt},
	}}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc conversationDoc
	err := conversations.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		current, err := m.GetConversation(ctx, msg.ConversationID)
		if err != nil {
			return nil, err
		}
		return current, fmt.Errorf("conversation %s: %w", current.ID, entity.ErrConversationClosed)
	}
	if err != nil {
		return nil, fmt.Errorf("mongodb update summary: %w", err)
	}

	if _, err = m.collection(chatMessagesCollection).InsertOne(ctx, msg); err != nil {
		return nil, fmt.Errorf("mongodb insert chat message: %w", err)
	}
	return &doc.Conversation, nil
}

// GetMessages returns the whole log of a conversation, oldest first.
func (m *MongoDB) GetMessages(ctx context.Context, conversationID string) ([]entity.Message, error) {
	collection := m.collection(chatMessagesCollection)

	filter := bson.D{{"conversation_id", conversationID}}
	opts := options.Find().SetSort(bson.D{{"created_at", 1}, {"_id", 1}})

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("mongodb find chat messages: %w", err)
	}
	defer cursor.Close(ctx)

	messages := []entity.Message{}
	if err = cursor.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("mongodb decode chat messages: %w", err)
	}
	return messages, nil
}

func (m *MongoDB) MarkRead(ctx context.Context, conversationID string, sender entity.SenderType) error {
	filter := bson.D{{"conversation_id", conversationID}, {"sender_type", sender}, {"read", false}}
	update := bson.D{{"$set", bson.D{{"read", true}}}}

	_, err := m.collection(chatMessagesCollection).UpdateMany(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("mongodb mark read: %w", err)
	}
	return nil
}
