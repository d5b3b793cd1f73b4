package mongo

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/robertarktes/cinema-seat-booking/internal/catalog"
	"github.com/robertarktes/cinema-seat-booking/internal/observability"
)

// CatalogRepository stores one document per theater. Position keeps the
// definition order, which is visible in query results.
type CatalogRepository struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewCatalogRepository(db *mongo.Database, logger observability.Logger) *CatalogRepository {
	return &CatalogRepository{
		coll:   db.Collection("theaters"),
		logger: logger,
	}
}

type TheaterDoc struct {
	Name      string    `bson:"_id"`
	Position  int       `bson:"position"`
	Rooms     []RoomDoc `bson:"rooms"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type RoomDoc struct {
	Name  string `bson:"name"`
	Movie string `bson:"movie,omitempty"`
}

// LoadDefinition reads every theater document in position order.
func (c *CatalogRepository) LoadDefinition(ctx context.Context) (*catalog.Definition, error) {
	cur, err := c.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "position", Value: 1}}))
	if err != nil {
		c.logger.Error("failed to query theaters", err)
		return nil, errors.Wrap(err, "querying theaters")
	}
	defer cur.Close(ctx)

	var docs []TheaterDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decoding theaters")
	}
	return toDefinition(docs), nil
}

// SaveDefinition upserts every theater of def, keyed by name.
func (c *CatalogRepository) SaveDefinition(ctx context.Context, def *catalog.Definition) error {
	now := time.Now()
	for _, doc := range fromDefinition(def) {
		doc.UpdatedAt = now
		_, err := c.coll.ReplaceOne(ctx, bson.M{"_id": doc.Name}, doc, options.Replace().SetUpsert(true))
		if err != nil {
			c.logger.Error("failed to save theater", err)
			return errors.Wrapf(err, "saving theater %q", doc.Name)
		}
	}
	return nil
}

func toDefinition(docs []TheaterDoc) *catalog.Definition {
	def := &catalog.Definition{}
	for _, d := range docs {
		td := catalog.TheaterDef{Name: d.Name}
		for _, r := range d.Rooms {
			rd := catalog.RoomDef{Name: r.Name}
			if r.Movie != "" {
				rd.Movie = &catalog.MovieDef{Title: r.Movie}
			}
			td.Rooms = append(td.Rooms, rd)
		}
		def.Theaters = append(def.Theaters, td)
	}
	return def
}

func fromDefinition(def *catalog.Definition) []TheaterDoc {
	docs := make([]TheaterDoc, 0, len(def.Theaters))
	for i, t := range def.Theaters {
		doc := TheaterDoc{Name: t.Name, Position: i, Rooms: []RoomDoc{}}
		for _, r := range t.Rooms {
			rd := RoomDoc{Name: r.Name}
			if r.Movie != nil {
				rd.Movie = r.Movie.Title
			}
			doc.Rooms = append(doc.Rooms, rd)
		}
		docs = append(docs, doc)
	}
	return docs
}
