package repository

import (
	"LiveChat/entity"
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (m *MongoDB) CreateAgent(ctx context.Context, agent *entity.Agent) error {
	_, err := m.collection(agentsCollection).InsertOne(ctx, agent)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("agent %s: %w", agent.Username, entity.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("mongodb insert agent: %w", err)
	}
	return nil
}

func (m *MongoDB) GetAgent(ctx context.Context, id string) (*entity.Agent, error) {
	var agent entity.Agent
	err := m.collection(agentsCollection).FindOne(ctx, bson.D{{"_id", id}}).Decode(&agent)
	if err != nil {
		return nil, m.findError(err, "agent "+id)
	}
	return &agent, nil
}

func (m *MongoDB) GetAgentByUsername(ctx context.Context, username string) (*entity.Agent, error) {
	var agent entity.Agent
	err := m.collection(agentsCollection).FindOne(ctx, bson.D{{"username", username}}).Decode(&agent)
	if err != nil {
		return nil, m.findError(err, "agent "+username)
	}
	return &agent, nil
}

func (m *MongoDB) ListAgents(ctx context.Context) ([]entity.Agent, error) {
	opts := options.Find().SetSort(bson.D{{"username", 1}})
	cursor, err := m.collection(agentsCollection).Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongodb find agents: %w", err)
	}
	defer cursor.Close(ctx)

	agents := []entity.Agent{}
	if err = cursor.All(ctx, &agents); err != nil {
		return nil, fmt.Errorf("mongodb decode agents: %w", err)
	}
	return agents, nil
}

func (m *MongoDB) UpdateAgent(ctx context.Context, agent *entity.Agent) error {
	update := bson.D{{"$set", bson.D{
		{"password_hash", agent.PasswordHash},
		{"display_name", agent.DisplayName},
		{"role", agent.Role},
		{"is_active", agent.IsActive},
		{"updated_at", agent.UpdatedAt},
	}}}
	res, err := m.collection(agentsCollection).UpdateOne(ctx, bson.D{{"_id", agent.ID}}, update)
	if err != nil {
		return fmt.Errorf("mongodb update agent: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("agent %s: %w", agent.ID, entity.ErrNotFound)
	}
	return nil
}

func (m *MongoDB) DeleteAgent(ctx context.Context, id string) error {
	res, err := m.collection(agentsCollection).DeleteOne(ctx, bson.D{{"_id", id}})
	if err != nil {
		return fmt.Errorf("mongodb delete agent: %w", err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("agent %s: %w", id, entity.ErrNotFound)
	}
	return nil
}
