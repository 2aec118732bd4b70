package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fathima-sithara/history-service/internal/domain"
)

type MongoStore struct {
	client   *mongo.Client
	convColl *mongo.Collection
	batchCol *mongo.Collection
}

func NewMongoClient(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}
	return client, nil
}

func NewMongoStore(client *mongo.Client, db *mongo.Database) *MongoStore {
	s := &MongoStore{
		client:   client,
		convColl: db.Collection("conversations"),
		batchCol: db.Collection("batches"),
	}
	_, _ = s.batchCol.Indexes().CreateOne(context.Background(), mongo.IndexModel{
		Keys:    bson.D{{Key: "conversation_id", Value: 1}, {Key: "end_time", Value: -1}},
		Options: options.Index().SetName("conv_end_time_idx"),
	})
	return s
}

func (s *MongoStore) EnsureConversation(ctx context.Context, c *domain.Conversation) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if c.UnreadCounts == nil {
		c.UnreadCounts = map[string]int64{}
	}
	if c.Archives == nil {
		c.Archives = []domain.ArchiveMetadata{}
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := s.convColl.UpdateByID(ctx, c.ID,
		bson.M{"$setOnInsert": c},
		options.Update().SetUpsert(true))
	return err
}

func (s *MongoStore) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return findConversation(ctx, s.convColl, id)
}

func findConversation(ctx context.Context, coll *mongo.Collection, id string) (*domain.Conversation, error) {
	var c domain.Conversation
	if err := coll.FindOne(ctx, bson.M{"_id": id}).Decode(&c); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *MongoStore) ListBatchesAsc(ctx context.Context, conversationID string) ([]domain.Batch, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "end_time", Value: 1}})
	return s.findBatches(ctx, bson.M{"conversation_id": conversationID}, opts)
}

func (s *MongoStore) ListBatchesDesc(ctx context.Context, conversationID string, limit int, before time.Time, beforeID string) ([]domain.Batch, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	filter := bson.M{"conversation_id": conversationID}
	if !before.IsZero() {
		// end_time is millisecond-truncated, so batches can tie on it; the
		// id is the cursor tiebreak.
		filter["$or"] = bson.A{
			bson.M{"end_time": bson.M{"$lt": before}},
			bson.M{"end_time": before, "_id": bson.M{"$lt": beforeID}},
		}
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "end_time", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))
	return s.findBatches(ctx, filter, opts)
}

func (s *MongoStore) findBatches(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]domain.Batch, error) {
	cur, err := s.batchCol.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []domain.Batch{}
	for cur.Next(ctx) {
		var b domain.Batch
		if err := cur.Decode(&b); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, cur.Err()
}

func (s *MongoStore) ListEligibleConversations(ctx context.Context, threshold int64) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	filter := bson.M{"$expr": bson.M{"$gte": bson.A{
		bson.M{"$subtract": bson.A{"$message_count", "$archived_message_count"}},
		threshold,
	}}}
	opts := options.Find().SetProjection(bson.M{"_id": 1})
	cur, err := s.convColl.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	ids := []string{}
	for cur.Next(ctx) {
		var doc struct {
			ID string `bson:"_id"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		ids = append(ids, doc.ID)
	}
	return ids, cur.Err()
}

func (s *MongoStore) RunTransaction(ctx context.Context, fn func(tx Tx) error) error {
	sess, err := s.client.StartSession()
	if err != nil {
		return err
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		tx := &mongoTx{ctx: sc, convColl: s.convColl, batchCol: s.batchCol}
		return nil, fn(tx)
	})
	return err
}

func (s *MongoStore) DeleteConversation(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := s.convColl.DeleteOne(ctx, bson.M{"_id": id})
	return err
}

func (s *MongoStore) DeleteAllBatches(ctx context.Context, conversationID string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err := s.batchCol.DeleteMany(ctx, bson.M{"conversation_id": conversationID})
	return err
}

type mongoTx struct {
	ctx      mongo.SessionContext
	convColl *mongo.Collection
	batchCol *mongo.Collection
}

func (t *mongoTx) GetConversation(id string) (*domain.Conversation, error) {
	return findConversation(t.ctx, t.convColl, id)
}

func (t *mongoTx) InsertBatch(b *domain.Batch) error {
	_, err := t.batchCol.InsertOne(t.ctx, b)
	return err
}

func (t *mongoTx) AppendToBatch(batchID string, m domain.Message) error {
	res, err := t.batchCol.UpdateByID(t.ctx, batchID, bson.M{
		"$push": bson.M{"messages": m},
		"$set":  bson.M{"end_time": m.Timestamp},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrBatchNotFound
	}
	return nil
}

func (t *mongoTx) UpdateConversation(id string, u ConversationUpdate) error {
	set := bson.M{}
	inc := bson.M{}
	if u.SetCurrentBatchID != nil {
		set["current_batch_id"] = *u.SetCurrentBatchID
	}
	if u.SetLastMessage != nil {
		set["last_message"] = u.SetLastMessage
	}
	if u.IncMessageCount != 0 {
		inc["message_count"] = u.IncMessageCount
	}
	if u.IncArchivedCount != 0 {
		inc["archived_message_count"] = u.IncArchivedCount
	}
	for userID, n := range u.IncUnread {
		inc["unread_counts."+userID] = n
	}
	for _, userID := range u.ResetUnread {
		set["unread_counts."+userID] = int64(0)
	}

	update := bson.M{}
	if len(set) > 0 {
		update["$set"] = set
	}
	if len(inc) > 0 {
		update["$inc"] = inc
	}
	if u.AppendArchive != nil {
		update["$push"] = bson.M{"archives": u.AppendArchive}
	}
	if len(update) == 0 {
		return nil
	}

	res, err := t.convColl.UpdateByID(t.ctx, id, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrConversationNotFound
	}
	return nil
}

func (t *mongoTx) DeleteBatch(batchID string) error {
	res, err := t.batchCol.DeleteOne(t.ctx, bson.M{"_id": batchID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrBatchNotFound
	}
	return nil
}
