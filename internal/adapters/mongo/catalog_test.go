package mongo

import (
	"context"
	"reflect"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/robertarktes/cinema-seat-booking/internal/catalog"
	"github.com/robertarktes/cinema-seat-booking/internal/domain"
	"github.com/robertarktes/cinema-seat-booking/internal/observability"
	"github.com/robertarktes/cinema-seat-booking/internal/outbox"
)

func testDefinition() *catalog.Definition {
	return &catalog.Definition{Theaters: []catalog.TheaterDef{
		{Name: "Rex", Rooms: []catalog.RoomDef{
			{Name: "One", Movie: &catalog.MovieDef{Title: "Heat"}},
			{Name: "Two"},
		}},
		{Name: "Odeon", Rooms: []catalog.RoomDef{
			{Name: "Gold", Movie: &catalog.MovieDef{Title: "Inception"}},
		}},
	}}
}

func TestDocumentConversion(t *testing.T) {
	def := testDefinition()
	docs := fromDefinition(def)
	if docs[0].Position != 0 || docs[1].Position != 1 {
		t.Errorf("positions not assigned in order: %+v", docs)
	}
	if docs[0].Rooms[1].Movie != "" {
		t.Errorf("room without movie should have an empty title")
	}
	if got := toDefinition(docs); !reflect.DeepEqual(got, def) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, def)
	}
}

func startMongo(t *testing.T) *mongo.Database {
	t.Helper()
	if testing.Short() {
		t.Skip("needs docker")
	}
	ctx := context.Background()

	mongoContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForLog("Waiting for connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { mongoContainer.Terminate(ctx) })

	endpoint, err := mongoContainer.Endpoint(ctx, "mongodb")
	if err != nil {
		t.Fatal(err)
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(endpoint))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { client.Disconnect(ctx) })
	return client.Database("cinema_test")
}

func TestCatalogRepository_RoundTrip(t *testing.T) {
	db := startMongo(t)
	ctx := context.Background()
	repo := NewCatalogRepository(db, observability.NewDiscardLogger())

	if err := repo.SaveDefinition(ctx, testDefinition()); err != nil {
		t.Fatal(err)
	}
	// Saving twice must upsert, not duplicate.
	if err := repo.SaveDefinition(ctx, testDefinition()); err != nil {
		t.Fatal(err)
	}

	def, err := repo.LoadDefinition(ctx)
	if err != nil {
		t.Fatal(err)
	}
	c, err := catalog.Build(def)
	if err != nil {
		t.Fatal(err)
	}
	if got := c.AllPlayingMovies(); !reflect.DeepEqual(got, []string{"Heat", "Inception"}) {
		t.Errorf("unexpected movies %v", got)
	}
}

func TestAuditLogger_Publish(t *testing.T) {
	db := startMongo(t)
	ctx := context.Background()
	audit := NewAuditLogger(db, observability.NewDiscardLogger())

	booking := domain.NewBooking("Rex", "One", "Heat", []int{4, 5})
	ev := outbox.NewBookingEvent(booking)
	if err := audit.Publish(ctx, ev); err != nil {
		t.Fatal(err)
	}
	if err := audit.Publish(ctx, ev); err != nil {
		t.Fatalf("retried publish should be accepted, got %v", err)
	}

	logs, err := audit.FindByBooking(ctx, booking.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected one audit entry, got %d", len(logs))
	}
	if logs[0].Action != outbox.EventBookingConfirmed || logs[0].Data["room"] != "One" {
		t.Errorf("unexpected audit entry %+v", logs[0])
	}
}
