// en internal/match/infra/outbound/db/mongodb/match_repo.go
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	// --- Importaciones del dominio y compartidas ---
	matchDomain "github.com/smarcilla/football-oracle-monorepo/internal/match/domain"
	sharedDomain "github.com/smarcilla/football-oracle-monorepo/internal/shared/domain"
	sharedMongo "github.com/smarcilla/football-oracle-monorepo/internal/shared/infra/platform/db/mongodb"
	sharedQuery "github.com/smarcilla/football-oracle-monorepo/internal/shared/infra/platform/query"
)

// fieldMap traduce campos lógicos a rutas del documento.
var fieldMap = map[string]string{
	matchDomain.FieldLeagueID: "season.leagueId",
	matchDomain.FieldSeasonID: "seasonId",
	matchDomain.FieldStatus:   "status",
	"id":                      "_id",
	"date":                    "date",
	"created_at":              "createdAt",
	"updated_at":              "updatedAt",
}

// MatchRepoMongoDB implementa MatchRepository para MongoDB. Simulación e
// informe van embebidos en el documento del partido.
type MatchRepoMongoDB struct {
	client       *mongo.Client
	matchesColl  *mongo.Collection
	seasonsColl  *mongo.Collection
	countersColl *mongo.Collection
	outboxColl   *mongo.Collection
}

// NewMatchRepoMongoDB es el constructor del repositorio.
func NewMatchRepoMongoDB(ctx context.Context, client *mongo.Client, dbName string) (*MatchRepoMongoDB, error) {
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("could not ping mongoDB: %w", err)
	}

	db := client.Database(dbName)
	return &MatchRepoMongoDB{
		client:       client,
		matchesColl:  db.Collection("matches"),
		seasonsColl:  db.Collection("seasons"),
		countersColl: db.Collection("counters"),
		outboxColl:   db.Collection(sharedMongo.OutboxCollection),
	}, nil
}

// EnsureIndexes crea los índices de temporada única y de filtros habituales.
func (r *MatchRepoMongoDB) EnsureIndexes(ctx context.Context) error {
	if _, err := r.seasonsColl.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "leagueId", Value: 1}, {Key: "name", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return err
	}
	_, err := r.matchesColl.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "season.leagueId", Value: 1}, {Key: "date", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
	})
	return err
}

// --- Structs de BSON para el mapeo ---
// Se definen localmente para no "contaminar" el dominio con tags de BSON.

type mongoSeason struct {
	ID       int64  `bson:"_id"`
	LeagueID string `bson:"leagueId"`
	Name     string `bson:"name"`
}

type mongoSimulation struct {
	HomeWinProb float64   `bson:"homeWinProb"`
	DrawProb    float64   `bson:"drawProb"`
	AwayWinProb float64   `bson:"awayWinProb"`
	Iterations  int       `bson:"iterations"`
	CreatedAt   time.Time `bson:"createdAt"`
	UpdatedAt   time.Time `bson:"updatedAt"`
}

type mongoReport struct {
	ID        int64     `bson:"id"`
	Content   string    `bson:"content"`
	Provider  string    `bson:"provider,omitempty"`
	CreatedAt time.Time `bson:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

type mongoMatch struct {
	ID         int64            `bson:"_id"`
	SeasonID   int64            `bson:"seasonId"`
	Season     mongoSeason      `bson:"season"`
	HomeTeamID int64            `bson:"homeTeamId"`
	AwayTeamID int64            `bson:"awayTeamId"`
	Date       time.Time        `bson:"date"`
	Status     string           `bson:"status"`
	Shots      string           `bson:"shots,omitempty"`
	Simulation *mongoSimulation `bson:"simulation,omitempty"`
	Report     *mongoReport     `bson:"report,omitempty"`
	CreatedAt  time.Time        `bson:"createdAt"`
	UpdatedAt  time.Time        `bson:"updatedAt"`
}

// --- Lectura ---

func (r *MatchRepoMongoDB) GetByID(ctx context.Context, id int64) (*matchDomain.Match, error) {
	var mm mongoMatch
	if err := r.matchesColl.FindOne(ctx, bson.M{"_id": id}).Decode(&mm); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, matchDomain.ErrMatchNotFound
		}
		return nil, err
	}
	return fromMongoMatch(&mm), nil
}

func (r *MatchRepoMongoDB) ListByCriteria(ctx context.Context, criteria sharedDomain.Criteria, pagination sharedQuery.OffsetPagination, sort sharedQuery.Sort) ([]*matchDomain.Match, error) {
	filter, err := criteriaToMongoFilter(criteria)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", matchDomain.ErrInvalidMatch, err)
	}

	if !matchDomain.SortableFields[sort.Field] {
		sort = matchDomain.DefaultSort
	}
	sortDir := 1 // Ascendente por defecto
	if sort.Desc {
		sortDir = -1 // Descendente
	}

	pagination = pagination.Normalize()
	opts := options.Find().
		SetSkip(int64(pagination.Offset)).
		SetLimit(int64(pagination.Limit)).
		SetProjection(bson.M{"simulation": 0, "report": 0}).
		SetSort(bson.D{{Key: fieldMap[sort.Field], Value: sortDir}, {Key: "_id", Value: sortDir}})

	cursor, err := r.matchesColl.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var matches []*matchDomain.Match
	for cursor.Next(ctx) {
		var mm mongoMatch
		if err := cursor.Decode(&mm); err != nil {
			return nil, err
		}
		matches = append(matches, fromMongoMatch(&mm))
	}
	return matches, cursor.Err()
}

// --- Transición + Outbox ---

// ApplyTransition relee el partido dentro de la transacción. Un conflicto de
// escritura con otra transición hace que WithTransaction reintente el callback
// completo, que vuelve a validar contra el estado ya confirmado.
func (r *MatchRepoMongoDB) ApplyTransition(ctx context.Context, id int64, next matchDomain.MatchStatus, change matchDomain.TransitionChange) (*matchDomain.Match, error) {
	if err := change.Validate(next); err != nil {
		return nil, err
	}

	session, err := r.client.StartSession()
	if err != nil {
		return nil, err
	}
	defer session.EndSession(ctx)

	res, err := session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		var mm mongoMatch
		if err := r.matchesColl.FindOne(sessCtx, bson.M{"_id": id}).Decode(&mm); err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return nil, matchDomain.ErrMatchNotFound
			}
			return nil, err
		}
		current := matchDomain.MatchStatus(mm.Status)
		if err := matchDomain.ValidateTransition(current, next); err != nil {
			return nil, err
		}

		now := time.Now().UTC()
		set := bson.M{"status": string(next), "updatedAt": now}
		mm.Status = string(next)
		mm.UpdatedAt = now
		if len(change.Shots) > 0 {
			set["shots"] = string(change.Shots)
			mm.Shots = string(change.Shots)
		}
		if s := change.Simulation; s != nil {
			sim := &mongoSimulation{
				HomeWinProb: s.HomeWinProb, DrawProb: s.DrawProb, AwayWinProb: s.AwayWinProb,
				Iterations: s.Iterations, CreatedAt: now, UpdatedAt: now,
			}
			if mm.Simulation != nil {
				sim.CreatedAt = mm.Simulation.CreatedAt
			}
			set["simulation"] = sim
			mm.Simulation = sim
		}
		if d := change.Report; d != nil {
			rep := &mongoReport{Content: d.Content, Provider: d.Provider, CreatedAt: now, UpdatedAt: now}
			if mm.Report != nil {
				rep.ID, rep.CreatedAt = mm.Report.ID, mm.Report.CreatedAt
			} else {
				reportID, err := r.nextSequence(sessCtx, "reports")
				if err != nil {
					return nil, err
				}
				rep.ID = reportID
			}
			set["report"] = rep
			mm.Report = rep
		}

		upd, err := r.matchesColl.UpdateOne(sessCtx, bson.M{"_id": id, "status": string(current)}, bson.M{"$set": set})
		if err != nil {
			return nil, err
		}
		if upd.MatchedCount == 0 {
			return nil, &matchDomain.TransitionError{From: current, To: next}
		}

		m := fromMongoMatch(&mm)
		entry, ok, err := matchDomain.NotificationFor(m)
		if err != nil {
			return nil, err
		}
		if ok {
			if err := sharedMongo.InsertOutboxSession(sessCtx, r.outboxColl, entry); err != nil {
				return nil, err
			}
		}
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(*matchDomain.Match), nil
}

// --- Ingesta masiva ---

func (r *MatchRepoMongoDB) BulkUpsert(ctx context.Context, batch matchDomain.BulkMatches) (int, error) {
	if err := batch.Validate(); err != nil {
		return 0, err
	}

	session, err := r.client.StartSession()
	if err != nil {
		return 0, err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		season, err := r.getOrCreateSeason(sessCtx, batch.LeagueID, batch.SeasonName)
		if err != nil {
			return nil, err
		}

		now := time.Now().UTC()
		models := make([]mongo.WriteModel, 0, len(batch.Matches))
		for _, item := range batch.Matches {
			models = append(models, mongo.NewUpdateOneModel().
				SetFilter(bson.M{"_id": item.ID}).
				SetUpsert(true).
				SetUpdate(bson.M{
					"$set": bson.M{"date": item.Date.UTC(), "updatedAt": now},
					"$setOnInsert": bson.M{
						"seasonId":   season.ID,
						"season":     season,
						"homeTeamId": item.HomeTeamID,
						"awayTeamId": item.AwayTeamID,
						"status":     string(matchDomain.StatusIdentified),
						"createdAt":  now,
					},
				}))
		}
		if len(models) > 0 {
			if _, err := r.matchesColl.BulkWrite(sessCtx, models); err != nil {
				return nil, fmt.Errorf("bulk upsert matches: %w", err)
			}
		}

		entry, err := matchDomain.LeagueSyncedEntry(
			matchDomain.Season{ID: season.ID, LeagueID: season.LeagueID, Name: season.Name}, len(batch.Matches))
		if err != nil {
			return nil, err
		}
		return nil, sharedMongo.InsertOutboxSession(sessCtx, r.outboxColl, entry)
	})
	if err != nil {
		return 0, err
	}
	return len(batch.Matches), nil
}

func (r *MatchRepoMongoDB) getOrCreateSeason(sessCtx mongo.SessionContext, leagueID, name string) (mongoSeason, error) {
	var s mongoSeason
	err := r.seasonsColl.FindOne(sessCtx, bson.M{"leagueId": leagueID, "name": name}).Decode(&s)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return s, err
	}

	id, err := r.nextSequence(sessCtx, "seasons")
	if err != nil {
		return s, err
	}
	s = mongoSeason{ID: id, LeagueID: leagueID, Name: name}
	if _, err := r.seasonsColl.InsertOne(sessCtx, s); err != nil {
		return s, fmt.Errorf("insert season: %w", err)
	}
	return s, nil
}

// nextSequence emula una columna autoincremental con un contador atómico.
func (r *MatchRepoMongoDB) nextSequence(sessCtx mongo.SessionContext, name string) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := r.countersColl.FindOneAndUpdate(sessCtx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("next %s sequence: %w", name, err)
	}
	return counter.Seq, nil
}

// --- Helpers de Mapeo y Conversión ---

func fromMongoMatch(mm *mongoMatch) *matchDomain.Match {
	m := &matchDomain.Match{
		ID: mm.ID, SeasonID: mm.SeasonID, HomeTeamID: mm.HomeTeamID, AwayTeamID: mm.AwayTeamID,
		Date: mm.Date, Status: matchDomain.MatchStatus(mm.Status), CreatedAt: mm.CreatedAt, UpdatedAt: mm.UpdatedAt,
		Season: &matchDomain.Season{ID: mm.Season.ID, LeagueID: mm.Season.LeagueID, Name: mm.Season.Name},
	}
	if mm.Shots != "" {
		m.Shots = []byte(mm.Shots)
	}
	if s := mm.Simulation; s != nil {
		m.Simulation = &matchDomain.Simulation{
			MatchID: mm.ID,
			Results: matchDomain.SimulationResults{
				HomeWinProb: s.HomeWinProb, DrawProb: s.DrawProb, AwayWinProb: s.AwayWinProb, Iterations: s.Iterations,
			},
			CreatedAt: s.CreatedAt, UpdatedAt: s.UpdatedAt,
		}
	}
	if rep := mm.Report; rep != nil {
		m.Report = &matchDomain.Report{
			ID: rep.ID, MatchID: mm.ID, Content: rep.Content, Provider: rep.Provider,
			CreatedAt: rep.CreatedAt, UpdatedAt: rep.UpdatedAt,
		}
	}
	return m
}

func criteriaToMongoFilter(criteria sharedDomain.Criteria) (bson.M, error) {
	if criteria == nil {
		return bson.M{}, nil
	}
	conds := criteria.ToConditions()
	if len(conds) == 0 {
		return bson.M{}, nil
	}

	parts := make([]bson.M, 0, len(conds))
	for _, c := range conds {
		field, ok := fieldMap[c.Field]
		if !ok {
			return nil, fmt.Errorf("unknown filter field %q", c.Field)
		}
		// Mapeo de operadores genéricos a operadores de MongoDB
		var cond bson.M
		switch c.Op {
		case sharedDomain.OpEq:
			cond = bson.M{"$eq": c.Value}
		case sharedDomain.OpNeq:
			cond = bson.M{"$ne": c.Value}
		case sharedDomain.OpGt:
			cond = bson.M{"$gt": c.Value}
		case sharedDomain.OpGte:
			cond = bson.M{"$gte": c.Value}
		case sharedDomain.OpLt:
			cond = bson.M{"$lt": c.Value}
		case sharedDomain.OpLte:
			cond = bson.M{"$lte": c.Value}
		case sharedDomain.OpLike:
			pattern, _ := c.Value.(string)
			cond = bson.M{"$regex": strings.ReplaceAll(strings.Trim(pattern, "%"), "%", ".*")}
		default:
			return nil, fmt.Errorf("unsupported operator %q", c.Op)
		}
		parts = append(parts, bson.M{field: cond})
	}

	if sharedDomain.LogicalOf(criteria) == sharedDomain.OpOr {
		return bson.M{"$or": parts}, nil
	}
	return bson.M{"$and": parts}, nil
}

// Verificación estática
var _ matchDomain.MatchRepository = (*MatchRepoMongoDB)(nil)
